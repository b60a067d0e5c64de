package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/slotkeeper/internal/booking"
	"github.com/MrSnakeDoc/slotkeeper/internal/httpserver/deps"
	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
	"github.com/MrSnakeDoc/slotkeeper/internal/timeslot"
)

type facilityResponse struct {
	Name           string `json:"name"`
	Bookings       int    `json:"bookings"`
	AvailableSlots int    `json:"available_slots"`
	Monitors       int    `json:"monitors"`
}

type facilitiesResponse struct {
	Facilities     []facilityResponse `json:"facilities"`
	ActiveMonitors int                `json:"active_monitors"`
}

// Facilities lists every facility with its booking and monitor counts.
func Facilities(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var resp facilitiesResponse
		err := d.Loop.Call(r.Context(), func() {
			names := d.Facilities.Names()
			resp.Facilities = make([]facilityResponse, 0, len(names))
			for _, name := range names {
				f, err := d.Facilities.Get(name)
				if err != nil {
					continue
				}
				resp.Facilities = append(resp.Facilities, facilityResponse{
					Name:           name,
					Bookings:       f.BookingCount(),
					AvailableSlots: len(f.AvailableSlots()),
					Monitors:       len(d.Monitors.Registrations(name)),
				})
			}
			resp.ActiveMonitors = d.Monitors.Len()
		})
		if err != nil {
			d.Logger.Warn("facilities read failed", logger.Error(err))
			writeError(w, http.StatusServiceUnavailable, "booking engine unavailable")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type slotRow struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

type availabilityResponse struct {
	Facility string    `json:"facility"`
	Day      string    `json:"day"`
	Slots    []slotRow `json:"slots"`
	Summary  string    `json:"summary"`
}

// Availability returns the per-slot grid of one facility for ?day=.
func Availability(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, err := url.PathUnescape(chi.URLParam(r, "name"))
		if err != nil || strings.TrimSpace(name) == "" {
			writeError(w, http.StatusBadRequest, "invalid facility name")
			return
		}
		day, err := timeslot.ParseDay(r.URL.Query().Get("day"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		resp := availabilityResponse{Facility: name, Day: day.String()}
		var lookupErr error
		err = d.Loop.Call(r.Context(), func() {
			f, err := d.Facilities.Get(name)
			if err != nil {
				lookupErr = err
				return
			}
			for _, st := range f.Availability(day) {
				resp.Slots = append(resp.Slots, slotRow{
					Start:     st.Slot.Start.String(),
					End:       st.Slot.End.String(),
					Available: st.Available,
				})
			}
			resp.Summary = f.Summary(day)
		})
		switch {
		case err != nil:
			d.Logger.Warn("availability read failed", logger.Error(err))
			writeError(w, http.StatusServiceUnavailable, "booking engine unavailable")
		case errors.Is(lookupErr, booking.ErrFacilityNotFound):
			writeError(w, http.StatusNotFound, lookupErr.Error())
		case lookupErr != nil:
			writeError(w, http.StatusInternalServerError, lookupErr.Error())
		default:
			writeJSON(w, http.StatusOK, resp)
		}
	}
}
