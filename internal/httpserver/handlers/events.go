package handlers

import (
	"net/http"
	"strconv"

	"github.com/MrSnakeDoc/slotkeeper/internal/httpserver/deps"
	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
	redisstore "github.com/MrSnakeDoc/slotkeeper/internal/store/redis"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

type eventsResponse struct {
	Events []redisstore.Record `json:"events"`
}

// Events returns the newest journal entries, ?limit= bounded.
func Events(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Journal == nil {
			writeError(w, http.StatusNotFound, "journal disabled")
			return
		}

		limit := defaultEventLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxEventLimit)
		}

		records, err := d.Journal.RecentEvents(r.Context(), int64(limit))
		if err != nil {
			d.Logger.Warn("journal read failed", logger.Error(err))
			writeError(w, http.StatusBadGateway, "journal unavailable")
			return
		}
		writeJSON(w, http.StatusOK, eventsResponse{Events: records})
	}
}
