package booking

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/MrSnakeDoc/slotkeeper/internal/timeslot"
)

// Facility owns the availability and bookings of one bookable place.
//
// Every (day, start) atomic unit inside operating hours is either in the
// available list or covered by exactly one booking. A Facility is not safe
// for concurrent use; the server only touches it from the reactor goroutine.
type Facility struct {
	name string
	ids  *IDSequence

	// available holds atomic slots sorted by day then start, without duplicates.
	available []timeslot.TimeSlot
	bookings  map[uint32]timeslot.TimeSlot
}

// NewFacility returns an empty facility drawing booking ids from ids.
func NewFacility(name string, ids *IDSequence) *Facility {
	return &Facility{
		name:     name,
		ids:      ids,
		bookings: make(map[uint32]timeslot.TimeSlot),
	}
}

func (f *Facility) Name() string { return f.name }

// SlotStatus is one row of an availability summary.
type SlotStatus struct {
	Slot      timeslot.TimeSlot
	Available bool
}

func compareSlots(a, b timeslot.TimeSlot) int {
	if c := cmp.Compare(a.Day, b.Day); c != 0 {
		return c
	}
	return cmp.Compare(a.Start, b.Start)
}

func (f *Facility) find(day timeslot.Day, start timeslot.TimeOfDay) (int, bool) {
	return slices.BinarySearchFunc(f.available, timeslot.TimeSlot{Day: day, Start: start}, compareSlots)
}

func (f *Facility) insert(s timeslot.TimeSlot) {
	i, found := f.find(s.Day, s.Start)
	if found {
		return
	}
	f.available = slices.Insert(f.available, i, s)
}

func (f *Facility) remove(s timeslot.TimeSlot) {
	if i, found := f.find(s.Day, s.Start); found && f.available[i] == s {
		f.available = slices.Delete(f.available, i, i+1)
	}
}

// match walks the available list from s.Start, chaining atomic slots until
// s.End is reached exactly. It returns the chained slots, or false on any gap.
func (f *Facility) match(s timeslot.TimeSlot) ([]timeslot.TimeSlot, bool) {
	if !s.Valid() {
		return nil, false
	}
	var parts []timeslot.TimeSlot
	for cur := s.Start; cur < s.End; {
		i, found := f.find(s.Day, cur)
		if !found || f.available[i].End > s.End {
			return nil, false
		}
		parts = append(parts, f.available[i])
		cur = f.available[i].End
	}
	return parts, true
}

// AddAvailability marks every atomic piece of s as available.
func (f *Facility) AddAvailability(s timeslot.TimeSlot) {
	for _, part := range s.Atomic() {
		f.insert(part)
	}
}

// IsAvailable reports whether s is covered by a gap-free run of available
// atomic slots ending exactly at s.End.
func (f *Facility) IsAvailable(s timeslot.TimeSlot) bool {
	_, ok := f.match(s)
	return ok
}

// Book reserves s and returns the new booking id.
func (f *Facility) Book(s timeslot.TimeSlot) (uint32, error) {
	if !s.Valid() || !s.WithinOperatingHours() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTimeRange, s)
	}
	parts, ok := f.match(s)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSlotUnavailable, s)
	}
	for _, p := range parts {
		f.remove(p)
	}
	id := f.ids.Next()
	f.bookings[id] = s
	return id, nil
}

// Modify shifts a booking by offset minutes and returns its previous and new
// slot. On failure the facility is left exactly as it was. A zero offset is
// a no-op and returns the booking's slot twice.
func (f *Facility) Modify(id uint32, offset int) (timeslot.TimeSlot, timeslot.TimeSlot, error) {
	old, ok := f.bookings[id]
	if !ok {
		return timeslot.TimeSlot{}, timeslot.TimeSlot{}, fmt.Errorf("%w: id %d", ErrBookingNotFound, id)
	}
	if offset == 0 {
		return old, old, nil
	}

	start := old.Start.Minutes() + offset
	end := old.End.Minutes() + offset
	if start < timeslot.OpeningTime.Minutes() || end > timeslot.ClosingTime.Minutes() || start >= end {
		return old, old, fmt.Errorf("%w: offset %d moves booking %d outside operating hours", ErrInvalidTimeRange, offset, id)
	}
	moved := timeslot.New(old.Day, timeslot.FromMinutes(start), timeslot.FromMinutes(end))

	// The booking's own time may overlap the target, so release it before
	// checking and take it back if the target is not free.
	released := old.Atomic()
	for _, p := range released {
		f.insert(p)
	}
	parts, ok := f.match(moved)
	if !ok {
		for _, p := range released {
			f.remove(p)
		}
		return old, old, fmt.Errorf("%w: %s", ErrSlotUnavailable, moved)
	}
	for _, p := range parts {
		f.remove(p)
	}
	f.bookings[id] = moved
	return old, moved, nil
}

// Extend pushes a booking's end time out by extra minutes and returns its
// previous and new slot.
func (f *Facility) Extend(id uint32, extra int) (timeslot.TimeSlot, timeslot.TimeSlot, error) {
	old, ok := f.bookings[id]
	if !ok {
		return timeslot.TimeSlot{}, timeslot.TimeSlot{}, fmt.Errorf("%w: id %d", ErrBookingNotFound, id)
	}
	if extra <= 0 {
		return old, old, fmt.Errorf("%w: extension must be positive, got %d minutes", ErrInvalidTimeRange, extra)
	}
	end := old.End.Minutes() + extra
	if end > timeslot.ClosingTime.Minutes() {
		return old, old, fmt.Errorf("%w: extension past %s", ErrInvalidTimeRange, timeslot.ClosingTime)
	}

	tail := timeslot.New(old.Day, old.End, timeslot.FromMinutes(end))
	parts, ok := f.match(tail)
	if !ok {
		return old, old, fmt.Errorf("%w: %s", ErrSlotUnavailable, tail)
	}
	for _, p := range parts {
		f.remove(p)
	}
	extended := timeslot.New(old.Day, old.Start, tail.End)
	f.bookings[id] = extended
	return old, extended, nil
}

// Cancel releases a booking and returns the slot it held.
func (f *Facility) Cancel(id uint32) (timeslot.TimeSlot, error) {
	s, ok := f.bookings[id]
	if !ok {
		return timeslot.TimeSlot{}, fmt.Errorf("%w: id %d", ErrBookingNotFound, id)
	}
	for _, p := range s.Atomic() {
		f.insert(p)
	}
	delete(f.bookings, id)
	return s, nil
}

// Booking returns the slot currently held by id.
func (f *Facility) Booking(id uint32) (timeslot.TimeSlot, bool) {
	s, ok := f.bookings[id]
	return s, ok
}

// BookingCount returns the number of live bookings.
func (f *Facility) BookingCount() int { return len(f.bookings) }

// Bookings returns a copy of the booking table.
func (f *Facility) Bookings() map[uint32]timeslot.TimeSlot {
	out := make(map[uint32]timeslot.TimeSlot, len(f.bookings))
	for id, s := range f.bookings {
		out[id] = s
	}
	return out
}

// AvailableSlots returns a copy of the sorted available list.
func (f *Facility) AvailableSlots() []timeslot.TimeSlot {
	return slices.Clone(f.available)
}

// Availability reports every atomic unit of day within operating hours.
func (f *Facility) Availability(day timeslot.Day) []SlotStatus {
	open, closing := timeslot.OpeningTime.Minutes(), timeslot.ClosingTime.Minutes()
	rows := make([]SlotStatus, 0, (closing-open)/timeslot.SlotMinutes)
	for m := open; m < closing; m += timeslot.SlotMinutes {
		s := timeslot.New(day, timeslot.FromMinutes(m), timeslot.FromMinutes(m+timeslot.SlotMinutes))
		rows = append(rows, SlotStatus{Slot: s, Available: f.IsAvailable(s)})
	}
	return rows
}

// Summary renders Availability as text, one unit per line.
func (f *Facility) Summary(day timeslot.Day) string {
	var b strings.Builder
	fmt.Fprintf(&b, "All slots for %s on %s:\n", f.name, day)
	for _, row := range f.Availability(day) {
		flag := "no"
		if row.Available {
			flag = "yes"
		}
		fmt.Fprintf(&b, "\t%s - %s -> %s\n", row.Slot.Start, row.Slot.End, flag)
	}
	return b.String()
}
