// Package wire encodes and decodes the datagram protocol spoken between
// booking clients and the server. All multi-byte integers are big-endian.
//
// Request layout:
//
//	requestId u32 | op u8 | nameLen u16 | name | day u8 | start u16 | end u16 | trailer
//
// Response layout:
//
//	requestId u32 | status u8 | msgLen u16 | msg
package wire

import (
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/slotkeeper/internal/timeslot"
)

const (
	// MinRequestLen is the smallest request datagram accepted. A header with an
	// empty name is only 12 bytes; deployed clients never send less than 15 and
	// anything shorter is rejected.
	MinRequestLen   = 15
	requestFixedLen = 12
	// ResponseHeaderLen is the size of a response with an empty message.
	ResponseHeaderLen = 7
	// MaxStringLen is the largest name or message a u16 prefix can carry.
	MaxStringLen = 0xffff
)

var (
	// ErrMalformedMessage is returned when a buffer is truncated or its length
	// prefixes point past the end of the buffer.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrStringTooLong is returned when encoding a name or message longer than MaxStringLen.
	ErrStringTooLong = errors.New("string exceeds 65535 bytes")

	// ErrTrailerMismatch is returned when encoding a request whose trailer does
	// not belong to its operation.
	ErrTrailerMismatch = errors.New("trailer does not match operation")
)

// Operation is the request operation code.
type Operation uint8

const (
	OpQuery   Operation = 1
	OpBook    Operation = 2
	OpChange  Operation = 3
	OpMonitor Operation = 4
	OpExtend  Operation = 5
	OpCancel  Operation = 6
)

// Valid reports whether o is one of the known operation codes.
func (o Operation) Valid() bool {
	return o >= OpQuery && o <= OpCancel
}

func (o Operation) String() string {
	switch o {
	case OpQuery:
		return "QUERY"
	case OpBook:
		return "BOOK"
	case OpChange:
		return "CHANGE"
	case OpMonitor:
		return "MONITOR"
	case OpExtend:
		return "EXTEND"
	case OpCancel:
		return "CANCEL"
	default:
		return fmt.Sprintf("OP(%d)", uint8(o))
	}
}

// trailerLen is the exact byte size of the trailer each operation carries.
func (o Operation) trailerLen() int {
	switch o {
	case OpCancel, OpMonitor:
		return 4
	case OpChange, OpExtend:
		return 8
	default:
		return 0
	}
}

// Trailer is the operation-specific tail of a request. The set of
// implementations is closed: CancelTrailer, ChangeTrailer, ExtendTrailer and
// MonitorTrailer.
type Trailer interface {
	op() Operation
}

// CancelTrailer carries the booking to cancel.
type CancelTrailer struct {
	BookingID uint32
}

// ChangeTrailer shifts a booking by OffsetMinutes (may be negative).
type ChangeTrailer struct {
	BookingID     uint32
	OffsetMinutes int32
}

// ExtendTrailer grows a booking's end time by ExtraMinutes.
type ExtendTrailer struct {
	BookingID    uint32
	ExtraMinutes int32
}

// MonitorTrailer carries the registration length in seconds.
type MonitorTrailer struct {
	IntervalSeconds uint32
}

func (CancelTrailer) op() Operation  { return OpCancel }
func (ChangeTrailer) op() Operation  { return OpChange }
func (ExtendTrailer) op() Operation  { return OpExtend }
func (MonitorTrailer) op() Operation { return OpMonitor }

// Request is a decoded client request. Trailer is nil when the operation has
// none or the client omitted it entirely.
type Request struct {
	RequestID uint32
	Op        Operation
	Facility  string
	Day       timeslot.Day
	Start     timeslot.TimeOfDay
	End       timeslot.TimeOfDay
	Trailer   Trailer
}

// Slot returns the request's day/start/end as a TimeSlot.
func (r Request) Slot() timeslot.TimeSlot {
	return timeslot.New(r.Day, r.Start, r.End)
}

// Status is the response outcome.
type Status uint8

const (
	StatusOK    Status = 0
	StatusError Status = 1
)

func (s Status) String() string {
	if s == StatusOK {
		return "ok"
	}
	return "error"
}

// Response is a reply or an unsolicited notification.
type Response struct {
	RequestID uint32
	Status    Status
	Message   string
}
