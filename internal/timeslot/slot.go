package timeslot

import "fmt"

// TimeSlot is a half-open range [Start, End) on one day.
type TimeSlot struct {
	Day   Day
	Start TimeOfDay
	End   TimeOfDay
}

// New builds a slot without validating it.
func New(day Day, start, end TimeOfDay) TimeSlot {
	return TimeSlot{Day: day, Start: start, End: end}
}

// Valid reports whether the day and both times are well formed and Start < End.
func (s TimeSlot) Valid() bool {
	return s.Day.Valid() && s.Start.Valid() && s.End.Valid() && s.Start < s.End
}

// WithinOperatingHours reports whether s lies inside [OpeningTime, ClosingTime].
func (s TimeSlot) WithinOperatingHours() bool {
	return s.Start >= OpeningTime && s.End <= ClosingTime
}

// Duration returns the slot length in minutes.
func (s TimeSlot) Duration() int {
	return s.End.Minutes() - s.Start.Minutes()
}

// Overlaps reports whether s and o share any instant on the same day.
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return s.Day == o.Day && s.Start < o.End && s.End > o.Start
}

// Touches reports whether s and o overlap or abut on the same day.
func (s TimeSlot) Touches(o TimeSlot) bool {
	return s.Day == o.Day && s.Start <= o.End && s.End >= o.Start
}

// Union returns the smallest slot covering both s and o. Only meaningful when
// the two touch.
func (s TimeSlot) Union(o TimeSlot) TimeSlot {
	u := s
	if o.Start < u.Start {
		u.Start = o.Start
	}
	if o.End > u.End {
		u.End = o.End
	}
	return u
}

// Less orders slots by day, then start time.
func (s TimeSlot) Less(o TimeSlot) bool {
	if s.Day != o.Day {
		return s.Day < o.Day
	}
	return s.Start < o.Start
}

// Atomic splits s into consecutive SlotMinutes-wide pieces starting at Start.
// The last piece may extend past End when s is not aligned to the slot width.
func (s TimeSlot) Atomic() []TimeSlot {
	var parts []TimeSlot
	for start := s.Start.Minutes(); start < s.End.Minutes(); start += SlotMinutes {
		parts = append(parts, TimeSlot{
			Day:   s.Day,
			Start: FromMinutes(start),
			End:   FromMinutes(start + SlotMinutes),
		})
	}
	return parts
}

func (s TimeSlot) String() string {
	return fmt.Sprintf("%s %s-%s", s.Day, s.Start, s.End)
}
