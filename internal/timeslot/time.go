package timeslot

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeOfDay is a wall-clock time encoded as hour*100+minute (HHMM).
//
// Arithmetic must go through Minutes/FromMinutes; adding two HHMM values
// directly yields nonsense (1030 + 30 = 1060).
type TimeOfDay uint16

const (
	// OpeningTime and ClosingTime bound every booking: [08:00, 18:00).
	OpeningTime TimeOfDay = 800
	ClosingTime TimeOfDay = 1800

	// SlotMinutes is the width of an atomic slot.
	SlotMinutes = 30

	minutesPerDay = 24 * 60
)

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 100 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 100 }

// Valid reports whether t is a real time of day (00:00..23:59).
func (t TimeOfDay) Valid() bool {
	return t.Hour() <= 23 && t.Minute() <= 59
}

// Minutes converts t to minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour()*60 + t.Minute()
}

// FromMinutes converts minutes since midnight back to HHMM.
// Callers are expected to bounds-check m before converting; values outside
// [0, 1440] are clamped.
func FromMinutes(m int) TimeOfDay {
	if m < 0 {
		m = 0
	}
	if m > minutesPerDay {
		m = minutesPerDay
	}
	return TimeOfDay((m/60)*100 + m%60)
}

// Add returns t shifted by delta minutes and whether the result still lies
// within a single day.
func (t TimeOfDay) Add(delta int) (TimeOfDay, bool) {
	m := t.Minutes() + delta
	if m < 0 || m > minutesPerDay {
		return 0, false
	}
	return FromMinutes(m), true
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// ParseTimeOfDay accepts "HH:MM" or the raw HHMM form ("930", "1430").
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	var h, m int
	var err error
	if hh, mm, ok := strings.Cut(s, ":"); ok {
		if h, err = strconv.Atoi(hh); err != nil {
			return 0, fmt.Errorf("invalid time %q: %w", s, err)
		}
		if m, err = strconv.Atoi(mm); err != nil {
			return 0, fmt.Errorf("invalid time %q: %w", s, err)
		}
	} else {
		v, convErr := strconv.Atoi(s)
		if convErr != nil {
			return 0, fmt.Errorf("invalid time %q: %w", s, convErr)
		}
		h, m = v/100, v%100
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", s)
	}
	return TimeOfDay(h*100 + m), nil
}
