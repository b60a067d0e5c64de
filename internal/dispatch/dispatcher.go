// Package dispatch decides whether an inbound request is executed, routes it
// to the booking or monitor engine and sends the reply.
package dispatch

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/MrSnakeDoc/slotkeeper/internal/booking"
	"github.com/MrSnakeDoc/slotkeeper/internal/dedup"
	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
	"github.com/MrSnakeDoc/slotkeeper/internal/metrics"
	"github.com/MrSnakeDoc/slotkeeper/internal/monitor"
	"github.com/MrSnakeDoc/slotkeeper/internal/timeslot"
	"github.com/MrSnakeDoc/slotkeeper/internal/wire"
)

// Semantics selects the delivery guarantee of the server.
type Semantics string

const (
	AtMostOnce  Semantics = "at-most-once"
	AtLeastOnce Semantics = "at-least-once"
)

// DuplicatePolicy selects the answer to a duplicate in at-most-once mode.
type DuplicatePolicy string

const (
	// PolicyIgnore answers a duplicate with an error status.
	PolicyIgnore DuplicatePolicy = "ignore"
	// PolicyReplay resends the stored reply of the first execution.
	PolicyReplay DuplicatePolicy = "replay"
)

// DuplicateMessage is the reply text for an ignored duplicate.
const DuplicateMessage = "Duplicate request ignored"

var (
	// ErrInvalidOperation is returned for an unknown operation code.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrDuplicateRequest marks a request already executed within the dedup window.
	ErrDuplicateRequest = errors.New("duplicate request")

	errInternal = errors.New("internal error")
)

// Sender writes a reply on the normal, possibly lossy, response path.
type Sender interface {
	SendResponse(to netip.AddrPort, payload []byte) error
}

// Journal receives every successful booking mutation. Append must not block.
type Journal interface {
	Append(ev booking.Event)
}

// Deps holds everything the dispatcher needs. Journal and Metrics may be nil.
type Deps struct {
	Facilities *booking.Registry
	Monitors   *monitor.Engine
	Cache      *dedup.Cache
	Sender     Sender
	Journal    Journal
	Logger     logger.Logger
	Metrics    *metrics.Metrics

	Semantics          Semantics
	DuplicatePolicy    DuplicatePolicy
	MaxMonitorInterval time.Duration // 0 means no cap

	TimeNow func() time.Time
}

type Dispatcher struct {
	d Deps
}

func New(d Deps) *Dispatcher {
	if d.TimeNow == nil {
		d.TimeNow = time.Now
	}
	if d.Semantics == "" {
		d.Semantics = AtMostOnce
	}
	if d.DuplicatePolicy == "" {
		d.DuplicatePolicy = PolicyIgnore
	}
	return &Dispatcher{d: d}
}

// Handle processes one datagram received from from. It must run on the reactor.
func (x *Dispatcher) Handle(datagram []byte, from netip.AddrPort) {
	start := x.d.TimeNow()
	defer func() { x.d.Metrics.ObserveDispatch(x.d.TimeNow().Sub(start)) }()

	req, err := wire.DecodeRequest(datagram)
	if err != nil {
		x.d.Metrics.IncDropped(metrics.DropMalformed)
		id, ok := wire.PeekRequestID(datagram)
		x.d.Logger.Debug("malformed datagram",
			logger.String("client", from.String()),
			logger.Int("bytes", len(datagram)),
			logger.Error(err))
		if ok {
			x.reply(from, wire.Response{RequestID: id, Status: wire.StatusError, Message: wire.ErrMalformedMessage.Error()})
		}
		return
	}

	x.d.Metrics.IncReceived(opLabel(req.Op))
	x.d.Logger.Debug("request received",
		logger.Uint32("request_id", req.RequestID),
		logger.Stringer("op", req.Op),
		logger.String("facility", req.Facility),
		logger.String("client", from.String()))

	var key string
	if x.d.Semantics == AtMostOnce {
		key = dedup.Key(req.RequestID, from)
		if ent, seen := x.d.Cache.Lookup(key, start); seen {
			x.duplicate(req, from, ent)
			return
		}
	}

	resp := x.execute(req, from)
	payload, err := resp.MarshalBinary()
	if err != nil {
		x.d.Logger.Error("failed to encode response", logger.Uint32("request_id", req.RequestID), logger.Error(err))
		payload, _ = wire.Response{RequestID: req.RequestID, Status: wire.StatusError, Message: errInternal.Error()}.MarshalBinary()
	}

	if key != "" {
		var stored []byte
		if x.d.DuplicatePolicy == PolicyReplay {
			stored = payload
		}
		x.d.Cache.Record(key, start, stored)
		x.d.Metrics.SetDedupEntries(x.d.Cache.Len())
	}

	x.send(from, payload)
}

// opLabel keeps the received-datagram metric to a fixed label set.
func opLabel(op wire.Operation) string {
	if !op.Valid() {
		return metrics.OpUnknown
	}
	return op.String()
}

func (x *Dispatcher) duplicate(req wire.Request, from netip.AddrPort, ent dedup.Entry) {
	x.d.Metrics.IncDuplicate()
	x.d.Logger.Info(ErrDuplicateRequest.Error(),
		logger.Uint32("request_id", req.RequestID),
		logger.String("client", from.String()),
		logger.Duration("age", x.d.TimeNow().Sub(ent.SeenAt)),
		logger.String("policy", string(x.d.DuplicatePolicy)))

	if x.d.DuplicatePolicy == PolicyReplay && ent.Response != nil {
		x.send(from, ent.Response)
		return
	}
	x.reply(from, wire.Response{RequestID: req.RequestID, Status: wire.StatusError, Message: DuplicateMessage})
}

// execute routes req and turns every failure, panics included, into an error reply.
func (x *Dispatcher) execute(req wire.Request, from netip.AddrPort) (resp wire.Response) {
	resp.RequestID = req.RequestID
	defer func() {
		if rec := recover(); rec != nil {
			x.d.Logger.Error("request handler panicked",
				logger.Uint32("request_id", req.RequestID),
				logger.Stringer("op", req.Op),
				logger.String("panic", fmt.Sprint(rec)))
			resp.Status = wire.StatusError
			resp.Message = errInternal.Error()
		}
	}()

	msg, err := x.route(req, from)
	if err != nil {
		x.d.Logger.Info("request failed",
			logger.Uint32("request_id", req.RequestID),
			logger.Stringer("op", req.Op),
			logger.String("facility", req.Facility),
			logger.Error(err))
		resp.Status = wire.StatusError
		resp.Message = err.Error()
		return resp
	}
	resp.Status = wire.StatusOK
	resp.Message = msg
	return resp
}

func (x *Dispatcher) route(req wire.Request, from netip.AddrPort) (string, error) {
	switch req.Op {
	case wire.OpQuery:
		return x.query(req)
	case wire.OpBook:
		return x.book(req)
	case wire.OpChange:
		return x.change(req)
	case wire.OpExtend:
		return x.extend(req)
	case wire.OpCancel:
		return x.cancel(req)
	case wire.OpMonitor:
		return x.monitor(req, from)
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidOperation, req.Op)
	}
}

func checkRange(s timeslot.TimeSlot) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %s", booking.ErrInvalidTimeRange, s)
	}
	return nil
}

func (x *Dispatcher) query(req wire.Request) (string, error) {
	f, err := x.d.Facilities.Get(req.Facility)
	if err != nil {
		return "", err
	}
	s := req.Slot()
	if err := checkRange(s); err != nil {
		return "", err
	}
	x.d.Logger.Debugf("%s", f.Summary(s.Day))
	if f.IsAvailable(s) {
		return fmt.Sprintf("Slot available: %s", s), nil
	}
	return fmt.Sprintf("Slot not available: %s", s), nil
}

func (x *Dispatcher) book(req wire.Request) (string, error) {
	f, err := x.d.Facilities.Get(req.Facility)
	if err != nil {
		return "", err
	}
	s := req.Slot()
	if err := checkRange(s); err != nil {
		return "", err
	}
	id, err := f.Book(s)
	if err != nil {
		return "", err
	}
	x.emit(f, booking.Event{Kind: booking.EventBooked, BookingID: id, Slot: s})
	return fmt.Sprintf("Booking confirmed for %s on %s. Booking ID: %d", f.Name(), s, id), nil
}

func (x *Dispatcher) change(req wire.Request) (string, error) {
	t, ok := req.Trailer.(wire.ChangeTrailer)
	if !ok {
		return "", fmt.Errorf("%w: booking id and offset are required", booking.ErrMissingField)
	}
	f, err := x.d.Facilities.Get(req.Facility)
	if err != nil {
		return "", err
	}
	old, moved, err := f.Modify(t.BookingID, int(t.OffsetMinutes))
	if err != nil {
		return "", err
	}
	if moved == old {
		return fmt.Sprintf("Booking %d unchanged at %s.", t.BookingID, old), nil
	}
	x.emit(f, booking.Event{Kind: booking.EventModified, BookingID: t.BookingID, Slot: moved, Previous: old})
	return fmt.Sprintf("Booking %d moved from %s to %s.", t.BookingID, old, moved), nil
}

func (x *Dispatcher) extend(req wire.Request) (string, error) {
	t, ok := req.Trailer.(wire.ExtendTrailer)
	if !ok {
		return "", fmt.Errorf("%w: booking id and extension are required", booking.ErrMissingField)
	}
	f, err := x.d.Facilities.Get(req.Facility)
	if err != nil {
		return "", err
	}
	old, extended, err := f.Extend(t.BookingID, int(t.ExtraMinutes))
	if err != nil {
		return "", err
	}
	x.emit(f, booking.Event{Kind: booking.EventExtended, BookingID: t.BookingID, Slot: extended, Previous: old})
	return fmt.Sprintf("Booking %d extended to %s.", t.BookingID, extended), nil
}

func (x *Dispatcher) cancel(req wire.Request) (string, error) {
	t, ok := req.Trailer.(wire.CancelTrailer)
	if !ok {
		return "", fmt.Errorf("%w: booking id is required for cancellation", booking.ErrMissingField)
	}
	f, err := x.d.Facilities.Get(req.Facility)
	if err != nil {
		return "", err
	}
	freed, err := f.Cancel(t.BookingID)
	if err != nil {
		return "", err
	}
	x.emit(f, booking.Event{Kind: booking.EventCancelled, BookingID: t.BookingID, Slot: freed})
	return fmt.Sprintf("Booking with ID %d canceled successfully.", t.BookingID), nil
}

func (x *Dispatcher) monitor(req wire.Request, from netip.AddrPort) (string, error) {
	t, ok := req.Trailer.(wire.MonitorTrailer)
	if !ok {
		return "", fmt.Errorf("%w: monitor interval is required", booking.ErrMissingField)
	}
	f, err := x.d.Facilities.Get(req.Facility)
	if err != nil {
		return "", err
	}
	s := req.Slot()
	if err := checkRange(s); err != nil {
		return "", err
	}
	interval := time.Duration(t.IntervalSeconds) * time.Second
	if interval <= 0 {
		return "", fmt.Errorf("%w: monitor interval must be positive", booking.ErrInvalidTimeRange)
	}
	if limit := x.d.MaxMonitorInterval; limit > 0 && interval > limit {
		return "", fmt.Errorf("%w: monitor interval exceeds %s", booking.ErrInvalidTimeRange, limit)
	}
	reg := x.d.Monitors.Register(f.Name(), s, interval, from)
	return reg.Confirmation(), nil
}

// emit publishes a successful mutation to monitors, metrics and the journal.
func (x *Dispatcher) emit(f *booking.Facility, ev booking.Event) {
	ev.Facility = f.Name()
	ev.At = x.d.TimeNow()

	x.d.Metrics.IncBooking(string(ev.Kind))
	x.d.Logger.Info("booking "+string(ev.Kind),
		logger.String("facility", ev.Facility),
		logger.Uint32("booking_id", ev.BookingID),
		logger.Stringer("slot", ev.Slot))

	for _, changed := range ev.Changed() {
		x.d.Monitors.NotifyOnChange(f, changed)
	}
	if x.d.Journal != nil {
		x.d.Journal.Append(ev)
	}
}

func (x *Dispatcher) reply(to netip.AddrPort, resp wire.Response) {
	payload, err := resp.MarshalBinary()
	if err != nil {
		x.d.Logger.Error("failed to encode response", logger.Uint32("request_id", resp.RequestID), logger.Error(err))
		return
	}
	x.send(to, payload)
}

func (x *Dispatcher) send(to netip.AddrPort, payload []byte) {
	if err := x.d.Sender.SendResponse(to, payload); err != nil {
		x.d.Logger.Warn("failed to send response",
			logger.String("client", to.String()),
			logger.Error(err))
	}
}
