// Package monitor tracks clients watching a facility's schedule and pushes
// availability updates to them.
package monitor

import (
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
	"github.com/MrSnakeDoc/slotkeeper/internal/metrics"
	"github.com/MrSnakeDoc/slotkeeper/internal/reactor"
	"github.com/MrSnakeDoc/slotkeeper/internal/timeslot"
	"github.com/MrSnakeDoc/slotkeeper/internal/wire"
)

// Scheduler arms expiry timers. Callbacks must run on the same goroutine as
// the Engine's other methods.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) reactor.Timer
}

// Notifier delivers an encoded notification over the reliable path.
type Notifier interface {
	SendNotification(to netip.AddrPort, payload []byte) error
}

// Availability is the read side of a facility the engine needs to describe a change.
type Availability interface {
	Name() string
	IsAvailable(s timeslot.TimeSlot) bool
}

// Registration is one client watching one window of one facility.
type Registration struct {
	ID        uint64
	Facility  string
	Client    netip.AddrPort
	Slot      timeslot.TimeSlot
	Interval  time.Duration
	ExpiresAt time.Time
}

// Confirmation is the reply text for a successful registration.
func (r Registration) Confirmation() string {
	return fmt.Sprintf("Client registered to monitor %s on %s from %s to %s for %d seconds.",
		r.Facility, r.Slot.Day, r.Slot.Start, r.Slot.End, int64(r.Interval/time.Second))
}

// UpdateText is the message of a notification about sub.
func UpdateText(facility string, sub timeslot.TimeSlot, available bool) string {
	state := "not available"
	if available {
		state = "available"
	}
	return fmt.Sprintf("Update: %s %s is now %s", facility, sub, state)
}

type entry struct {
	Registration
	timer reactor.Timer
}

// dayIndex holds a facility's registrations per day, sorted by start time.
type dayIndex [timeslot.DaysInWeek][]*entry

// Engine is the monitor registry. It is not safe for concurrent use.
type Engine struct {
	sched    Scheduler
	notifier Notifier
	logger   logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	nextID uint64
	byID   map[uint64]*entry
	index  map[string]*dayIndex
}

func New(sched Scheduler, notifier Notifier, log logger.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		sched:    sched,
		notifier: notifier,
		logger:   log,
		metrics:  m,
		now:      time.Now,
		byID:     make(map[uint64]*entry),
		index:    make(map[string]*dayIndex),
	}
}

// Register starts watching s on facility for client and arms its expiry.
// The caller validates s and interval.
func (e *Engine) Register(facility string, s timeslot.TimeSlot, interval time.Duration, client netip.AddrPort) Registration {
	e.nextID++
	ent := &entry{Registration: Registration{
		ID:        e.nextID,
		Facility:  facility,
		Client:    client,
		Slot:      s,
		Interval:  interval,
		ExpiresAt: e.now().Add(interval),
	}}

	idx, ok := e.index[facility]
	if !ok {
		idx = &dayIndex{}
		e.index[facility] = idx
	}
	day := idx[s.Day]
	pos := slices.IndexFunc(day, func(x *entry) bool { return x.Slot.Start > s.Start })
	if pos < 0 {
		pos = len(day)
	}
	idx[s.Day] = slices.Insert(day, pos, ent)
	e.byID[ent.ID] = ent

	// only the id is captured; the entry may be gone by the time this fires
	id := ent.ID
	ent.timer = e.sched.AfterFunc(interval, func() { e.expire(id) })

	e.metrics.SetActiveMonitors(len(e.byID))
	e.logger.Debug("monitor registered",
		logger.String("facility", facility),
		logger.String("client", client.String()),
		logger.Stringer("slot", s),
		logger.Duration("interval", interval))
	return ent.Registration
}

func (e *Engine) expire(id uint64) {
	ent, ok := e.byID[id]
	if !ok {
		return
	}
	ent.timer = nil
	e.unlink(ent)
	e.logger.Info("monitor expired",
		logger.String("facility", ent.Facility),
		logger.String("client", ent.Client.String()),
		logger.Stringer("slot", ent.Slot))
}

// Remove drops every registration client holds on facility, on any day, and
// returns how many were removed.
func (e *Engine) Remove(facility string, client netip.AddrPort) int {
	idx, ok := e.index[facility]
	if !ok {
		return 0
	}
	var victims []*entry
	for _, day := range idx {
		for _, ent := range day {
			if ent.Client == client {
				victims = append(victims, ent)
			}
		}
	}
	for _, ent := range victims {
		if ent.timer != nil {
			ent.timer.Stop()
		}
		e.unlink(ent)
	}
	return len(victims)
}

func (e *Engine) unlink(ent *entry) {
	delete(e.byID, ent.ID)
	if idx, ok := e.index[ent.Facility]; ok {
		idx[ent.Slot.Day] = slices.DeleteFunc(idx[ent.Slot.Day], func(x *entry) bool { return x == ent })
		if idx.empty() {
			delete(e.index, ent.Facility)
		}
	}
	e.metrics.SetActiveMonitors(len(e.byID))
}

func (idx *dayIndex) empty() bool {
	for _, day := range idx {
		if len(day) > 0 {
			return false
		}
	}
	return true
}

// NotifyOnChange tells every monitor overlapping changed about the current
// availability of each atomic unit of changed. It returns the number of
// notifications delivered.
func (e *Engine) NotifyOnChange(f Availability, changed timeslot.TimeSlot) int {
	idx, ok := e.index[f.Name()]
	if !ok || !changed.Valid() {
		return 0
	}
	day := idx[changed.Day]
	if len(day) == 0 {
		return 0
	}

	sent := 0
	for _, sub := range changed.Atomic() {
		available := f.IsAvailable(sub)
		var payload []byte
		for _, ent := range day {
			if ent.Slot.Start >= sub.End {
				break
			}
			if ent.Slot.End <= sub.Start {
				continue
			}
			if payload == nil {
				resp := wire.Response{Status: wire.StatusOK, Message: UpdateText(f.Name(), sub, available)}
				var err error
				if payload, err = resp.MarshalBinary(); err != nil {
					e.logger.Error("failed to encode notification", logger.Error(err))
					return sent
				}
			}
			if err := e.notifier.SendNotification(ent.Client, payload); err != nil {
				e.metrics.IncNotification(false)
				e.logger.Warn("notification not delivered",
					logger.String("client", ent.Client.String()),
					logger.Error(err))
				continue
			}
			e.metrics.IncNotification(true)
			sent++
		}
	}
	return sent
}

// Len returns the number of live registrations.
func (e *Engine) Len() int { return len(e.byID) }

// Registrations returns the live registrations on facility ordered by day then start.
func (e *Engine) Registrations(facility string) []Registration {
	idx, ok := e.index[facility]
	if !ok {
		return nil
	}
	var out []Registration
	for _, day := range idx {
		for _, ent := range day {
			out = append(out, ent.Registration)
		}
	}
	return out
}
