package booking

import (
	"time"

	"github.com/MrSnakeDoc/slotkeeper/internal/timeslot"
)

type EventKind string

const (
	EventBooked    EventKind = "booked"
	EventModified  EventKind = "modified"
	EventExtended  EventKind = "extended"
	EventCancelled EventKind = "cancelled"
)

// Event describes one successful booking mutation. Previous is set for
// modified and extended events only.
type Event struct {
	Kind      EventKind
	Facility  string
	BookingID uint32
	Slot      timeslot.TimeSlot
	Previous  timeslot.TimeSlot
	At        time.Time
}

// Changed returns the ranges whose availability flipped because of e.
//
// A move notifies the union of the old and new ranges when they touch, and
// each range on its own otherwise. An extension only changes the added tail.
func (e Event) Changed() []timeslot.TimeSlot {
	switch e.Kind {
	case EventModified:
		if e.Previous.Touches(e.Slot) {
			return []timeslot.TimeSlot{e.Previous.Union(e.Slot)}
		}
		return []timeslot.TimeSlot{e.Previous, e.Slot}
	case EventExtended:
		return []timeslot.TimeSlot{timeslot.New(e.Slot.Day, e.Previous.End, e.Slot.End)}
	default:
		return []timeslot.TimeSlot{e.Slot}
	}
}
