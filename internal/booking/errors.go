package booking

import "errors"

var (
	// ErrFacilityNotFound is returned when a request names an unknown facility.
	ErrFacilityNotFound = errors.New("facility not found")

	// ErrBookingNotFound is returned when a booking id is not held by the facility.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrSlotUnavailable is returned when the requested range is not a gap-free
	// run of available atomic slots.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrInvalidTimeRange covers malformed ranges, ranges outside operating
	// hours and non-positive extensions.
	ErrInvalidTimeRange = errors.New("invalid time range")

	// ErrMissingField is returned when an operation lacks a field it requires,
	// such as a booking id or a monitor interval.
	ErrMissingField = errors.New("missing required field")
)
