package redis

const (
	// KeyPrefix is the prefix for every key slotkeeper writes
	KeyPrefix = "slotkeeper:"
	// DefaultStream is the stream booking events are appended to
	DefaultStream = KeyPrefix + "events"
)

// stream field names
const (
	fieldInstance  = "instance"
	fieldKind      = "kind"
	fieldFacility  = "facility"
	fieldBookingID = "booking_id"
	fieldSlot      = "slot"
	fieldPrevious  = "previous"
	fieldAt        = "at"
)
