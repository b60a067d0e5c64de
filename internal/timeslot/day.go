package timeslot

import (
	"fmt"
	"strings"
)

// Day is a day of the week, Monday first. The numeric value is the wire value.
type Day uint8

const (
	Monday Day = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// DaysInWeek is the number of valid Day values.
const DaysInWeek = 7

var dayNames = [DaysInWeek]string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// Valid reports whether d is one of Monday..Sunday.
func (d Day) Valid() bool {
	return d < DaysInWeek
}

func (d Day) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Day(%d)", uint8(d))
	}
	return dayNames[d]
}

// ParseDay accepts full day names and three-letter abbreviations, case-insensitive.
// Example: "monday", "Mon", "MONDAY" -> Monday
func ParseDay(s string) (Day, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("invalid day: empty")
	}
	for i, name := range dayNames {
		lower := strings.ToLower(name)
		if s == lower || s == lower[:3] {
			return Day(i), nil
		}
	}
	return 0, fmt.Errorf("invalid day: %q", s)
}
