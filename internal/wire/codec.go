package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/MrSnakeDoc/slotkeeper/internal/timeslot"
)

// MarshalBinary encodes r into its wire form.
func (r Request) MarshalBinary() ([]byte, error) {
	if len(r.Facility) > MaxStringLen {
		return nil, ErrStringTooLong
	}
	if r.Trailer != nil && r.Trailer.op() != r.Op {
		return nil, fmt.Errorf("%w: %s trailer on %s", ErrTrailerMismatch, r.Trailer.op(), r.Op)
	}

	buf := make([]byte, 0, requestFixedLen+len(r.Facility)+r.Op.trailerLen())
	buf = binary.BigEndian.AppendUint32(buf, r.RequestID)
	buf = append(buf, byte(r.Op))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Facility)))
	buf = append(buf, r.Facility...)
	buf = append(buf, byte(r.Day))
	buf = binary.BigEndian.AppendUint16(buf, uint16(r.Start))
	buf = binary.BigEndian.AppendUint16(buf, uint16(r.End))

	switch t := r.Trailer.(type) {
	case CancelTrailer:
		buf = binary.BigEndian.AppendUint32(buf, t.BookingID)
	case ChangeTrailer:
		buf = binary.BigEndian.AppendUint32(buf, t.BookingID)
		buf = binary.BigEndian.AppendUint32(buf, uint32(t.OffsetMinutes))
	case ExtendTrailer:
		buf = binary.BigEndian.AppendUint32(buf, t.BookingID)
		buf = binary.BigEndian.AppendUint32(buf, uint32(t.ExtraMinutes))
	case MonitorTrailer:
		buf = binary.BigEndian.AppendUint32(buf, t.IntervalSeconds)
	}
	return buf, nil
}

// DecodeRequest parses a request datagram.
//
// The operation byte is not validated here so that the caller can answer an
// unknown operation with a proper error response. A trailer that is entirely
// absent decodes as nil; one that is only partially present is malformed.
func DecodeRequest(b []byte) (Request, error) {
	if len(b) < MinRequestLen {
		return Request{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedMessage, len(b), MinRequestLen)
	}

	var r Request
	r.RequestID = binary.BigEndian.Uint32(b[0:4])
	r.Op = Operation(b[4])
	nameLen := int(binary.BigEndian.Uint16(b[5:7]))

	off := 7
	// name + day + start + end must all fit
	if off+nameLen+5 > len(b) {
		return Request{}, fmt.Errorf("%w: facility name length %d exceeds buffer", ErrMalformedMessage, nameLen)
	}
	r.Facility = string(b[off : off+nameLen])
	off += nameLen

	r.Day = timeslot.Day(b[off])
	r.Start = timeslot.TimeOfDay(binary.BigEndian.Uint16(b[off+1 : off+3]))
	r.End = timeslot.TimeOfDay(binary.BigEndian.Uint16(b[off+3 : off+5]))
	off += 5

	need := r.Op.trailerLen()
	rest := b[off:]
	if need == 0 || len(rest) == 0 {
		return r, nil
	}
	if len(rest) < need {
		return Request{}, fmt.Errorf("%w: %s trailer has %d of %d bytes", ErrMalformedMessage, r.Op, len(rest), need)
	}

	switch r.Op {
	case OpCancel:
		r.Trailer = CancelTrailer{BookingID: binary.BigEndian.Uint32(rest[0:4])}
	case OpChange:
		r.Trailer = ChangeTrailer{
			BookingID:     binary.BigEndian.Uint32(rest[0:4]),
			OffsetMinutes: int32(binary.BigEndian.Uint32(rest[4:8])),
		}
	case OpExtend:
		r.Trailer = ExtendTrailer{
			BookingID:    binary.BigEndian.Uint32(rest[0:4]),
			ExtraMinutes: int32(binary.BigEndian.Uint32(rest[4:8])),
		}
	case OpMonitor:
		r.Trailer = MonitorTrailer{IntervalSeconds: binary.BigEndian.Uint32(rest[0:4])}
	}
	return r, nil
}

// PeekRequestID returns the request id of a datagram that may otherwise be
// malformed.
func PeekRequestID(b []byte) (uint32, bool) {
	if len(b) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(b[0:4]), true
}

// MarshalBinary encodes r into its wire form.
func (r Response) MarshalBinary() ([]byte, error) {
	if len(r.Message) > MaxStringLen {
		return nil, ErrStringTooLong
	}
	buf := make([]byte, 0, ResponseHeaderLen+len(r.Message))
	buf = binary.BigEndian.AppendUint32(buf, r.RequestID)
	buf = append(buf, byte(r.Status))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Message)))
	buf = append(buf, r.Message...)
	return buf, nil
}

// DecodeResponse parses a response or notification datagram.
func DecodeResponse(b []byte) (Response, error) {
	if len(b) < ResponseHeaderLen {
		return Response{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedMessage, len(b), ResponseHeaderLen)
	}
	msgLen := int(binary.BigEndian.Uint16(b[5:7]))
	if ResponseHeaderLen+msgLen > len(b) {
		return Response{}, fmt.Errorf("%w: message length %d exceeds buffer", ErrMalformedMessage, msgLen)
	}
	return Response{
		RequestID: binary.BigEndian.Uint32(b[0:4]),
		Status:    Status(b[4]),
		Message:   string(b[ResponseHeaderLen : ResponseHeaderLen+msgLen]),
	}, nil
}
