package seed

import (
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/slotkeeper/internal/booking"
	"github.com/MrSnakeDoc/slotkeeper/internal/timeslot"
)

// Stats summarises what Apply added.
type Stats struct {
	Facilities int
	Slots      int // atomic slots
}

// Apply validates f and adds its facilities and availability to reg.
// Nothing is added when any entry is invalid.
func Apply(f File, reg *booking.Registry) (Stats, error) {
	type planned struct {
		name  string
		slots []timeslot.TimeSlot
	}

	plan := make([]planned, 0, len(f.Facilities))
	seen := make(map[string]bool, len(f.Facilities))
	for i, entry := range f.Facilities {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return Stats{}, fmt.Errorf("facility #%d: name is required", i+1)
		}
		if seen[name] {
			return Stats{}, fmt.Errorf("facility %q: declared twice", name)
		}
		seen[name] = true

		slots, err := mapSlots(entry)
		if err != nil {
			return Stats{}, fmt.Errorf("facility %q: %w", name, err)
		}
		plan = append(plan, planned{name: name, slots: slots})
	}
	if len(plan) == 0 {
		return Stats{}, fmt.Errorf("no facilities found in seed")
	}

	var st Stats
	for _, p := range plan {
		fac := reg.Add(p.name)
		for _, s := range p.slots {
			fac.AddAvailability(s)
			st.Slots += len(s.Atomic())
		}
		st.Facilities++
	}
	return st, nil
}

func mapSlots(entry FacilitySpec) ([]timeslot.TimeSlot, error) {
	var out []timeslot.TimeSlot
	if entry.OpenAll {
		for d := timeslot.Monday; d <= timeslot.Sunday; d++ {
			out = append(out, timeslot.New(d, timeslot.OpeningTime, timeslot.ClosingTime))
		}
	}
	for _, raw := range entry.Slots {
		s, err := mapSlot(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func mapSlot(raw SlotSpec) (timeslot.TimeSlot, error) {
	day, err := timeslot.ParseDay(raw.Day)
	if err != nil {
		return timeslot.TimeSlot{}, err
	}
	from, err := timeslot.ParseTimeOfDay(raw.From)
	if err != nil {
		return timeslot.TimeSlot{}, err
	}
	to, err := timeslot.ParseTimeOfDay(raw.To)
	if err != nil {
		return timeslot.TimeSlot{}, err
	}

	s := timeslot.New(day, from, to)
	if !s.Valid() || !s.WithinOperatingHours() {
		return timeslot.TimeSlot{}, fmt.Errorf("%s: %w", s, booking.ErrInvalidTimeRange)
	}
	if from.Minutes()%timeslot.SlotMinutes != 0 || to.Minutes()%timeslot.SlotMinutes != 0 {
		return timeslot.TimeSlot{}, fmt.Errorf("%s: not aligned to %d minutes", s, timeslot.SlotMinutes)
	}
	return s, nil
}
