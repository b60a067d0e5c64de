package booking

import "sync/atomic"

// FirstBookingID is the id handed out by a fresh sequence.
const FirstBookingID uint32 = 1000

// IDSequence hands out booking ids. One sequence is shared by every facility
// of a server so ids are unique server-wide.
type IDSequence struct {
	next atomic.Uint32
}

// NewIDSequence returns a sequence whose first id is start.
func NewIDSequence(start uint32) *IDSequence {
	s := &IDSequence{}
	s.next.Store(start)
	return s
}

// Next returns the next id.
func (s *IDSequence) Next() uint32 {
	return s.next.Add(1) - 1
}
