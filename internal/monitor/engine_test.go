package monitor

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/slotkeeper/internal/booking"
	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
	"github.com/MrSnakeDoc/slotkeeper/internal/reactor"
	"github.com/MrSnakeDoc/slotkeeper/internal/timeslot"
	"github.com/MrSnakeDoc/slotkeeper/internal/wire"
)

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeScheduler struct {
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) reactor.Timer {
	t := &fakeTimer{d: d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) fire(i int) {
	t := s.timers[i]
	if t.stopped || t.fired {
		return
	}
	t.fired = true
	t.fn()
}

type sent struct {
	to   netip.AddrPort
	resp wire.Response
}

type fakeNotifier struct {
	sent []sent
	fail bool
}

func (n *fakeNotifier) SendNotification(to netip.AddrPort, payload []byte) error {
	if n.fail {
		return errors.New("write failed")
	}
	resp, err := wire.DecodeResponse(payload)
	if err != nil {
		return err
	}
	n.sent = append(n.sent, sent{to: to, resp: resp})
	return nil
}

var (
	alice = netip.MustParseAddrPort("10.0.0.1:4000")
	bob   = netip.MustParseAddrPort("10.0.0.2:4000")
)

func newEngine() (*Engine, *fakeScheduler, *fakeNotifier) {
	s := &fakeScheduler{}
	n := &fakeNotifier{}
	return New(s, n, logger.NewNop(), nil), s, n
}

func gym() *booking.Facility {
	f := booking.NewFacility("Gym", booking.NewIDSequence(booking.FirstBookingID))
	f.AddAvailability(timeslot.New(timeslot.Monday, timeslot.OpeningTime, timeslot.ClosingTime))
	return f
}

func TestRegisterConfirmation(t *testing.T) {
	e, s, _ := newEngine()
	e.now = func() time.Time { return time.Unix(1000, 0) }

	reg := e.Register("Gym", timeslot.New(timeslot.Monday, 1000, 1200), 300*time.Second, alice)
	assert.Equal(t, "Client registered to monitor Gym on Monday from 10:00 to 12:00 for 300 seconds.", reg.Confirmation())
	assert.Equal(t, time.Unix(1300, 0), reg.ExpiresAt)
	require.Len(t, s.timers, 1)
	assert.Equal(t, 300*time.Second, s.timers[0].d)
	assert.Equal(t, 1, e.Len())
}

func TestBookInsideWindowNotifiesOnce(t *testing.T) {
	e, _, n := newEngine()
	f := gym()
	e.Register("Gym", timeslot.New(timeslot.Monday, 1000, 1200), time.Minute, alice)

	booked := timeslot.New(timeslot.Monday, 1000, 1030)
	_, err := f.Book(booked)
	require.NoError(t, err)

	assert.Equal(t, 1, e.NotifyOnChange(f, booked))
	require.Len(t, n.sent, 1)
	assert.Equal(t, alice, n.sent[0].to)
	assert.Equal(t, wire.Response{
		RequestID: 0,
		Status:    wire.StatusOK,
		Message:   "Update: Gym Monday 10:00-10:30 is now not available",
	}, n.sent[0].resp)
}

func TestBookOutsideWindowIsSilent(t *testing.T) {
	e, _, n := newEngine()
	f := gym()
	e.Register("Gym", timeslot.New(timeslot.Monday, 1000, 1200), time.Minute, alice)

	booked := timeslot.New(timeslot.Monday, 1300, 1330)
	_, err := f.Book(booked)
	require.NoError(t, err)

	assert.Zero(t, e.NotifyOnChange(f, booked))
	assert.Empty(t, n.sent)

	// abutting windows do not overlap
	assert.Zero(t, e.NotifyOnChange(f, timeslot.New(timeslot.Monday, 1200, 1230)))
	assert.Zero(t, e.NotifyOnChange(f, timeslot.New(timeslot.Monday, 930, 1000)))
	// other day
	assert.Zero(t, e.NotifyOnChange(f, timeslot.New(timeslot.Tuesday, 1000, 1030)))
}

func TestNotifyPerAtomicUnit(t *testing.T) {
	e, _, n := newEngine()
	f := gym()
	e.Register("Gym", timeslot.New(timeslot.Monday, 1030, 1100), time.Minute, alice)
	e.Register("Gym", timeslot.New(timeslot.Monday, 900, 1300), time.Minute, bob)

	changed := timeslot.New(timeslot.Monday, 1000, 1130)
	_, err := f.Book(changed)
	require.NoError(t, err)

	// bob sees three units, alice only the one she watches
	assert.Equal(t, 4, e.NotifyOnChange(f, changed))
	var forAlice, forBob []string
	for _, s := range n.sent {
		if s.to == alice {
			forAlice = append(forAlice, s.resp.Message)
		} else {
			forBob = append(forBob, s.resp.Message)
		}
	}
	assert.Equal(t, []string{"Update: Gym Monday 10:30-11:00 is now not available"}, forAlice)
	assert.Equal(t, []string{
		"Update: Gym Monday 10:00-10:30 is now not available",
		"Update: Gym Monday 10:30-11:00 is now not available",
		"Update: Gym Monday 11:00-11:30 is now not available",
	}, forBob)
}

func TestNotifyReportsAvailableAfterCancel(t *testing.T) {
	e, _, n := newEngine()
	f := gym()
	id, err := f.Book(timeslot.New(timeslot.Monday, 1000, 1030))
	require.NoError(t, err)
	e.Register("Gym", timeslot.New(timeslot.Monday, 1000, 1200), time.Minute, alice)

	freed, err := f.Cancel(id)
	require.NoError(t, err)
	e.NotifyOnChange(f, freed)

	require.Len(t, n.sent, 1)
	assert.Equal(t, "Update: Gym Monday 10:00-10:30 is now available", n.sent[0].resp.Message)
}

func TestExpiryRemovesOnlyThatRegistration(t *testing.T) {
	e, s, n := newEngine()
	f := gym()
	e.Register("Gym", timeslot.New(timeslot.Monday, 1000, 1200), time.Minute, alice)
	e.Register("Gym", timeslot.New(timeslot.Monday, 1400, 1600), time.Hour, alice)

	s.fire(0)
	assert.Equal(t, 1, e.Len())

	assert.Zero(t, e.NotifyOnChange(f, timeslot.New(timeslot.Monday, 1000, 1030)))
	assert.Equal(t, 1, e.NotifyOnChange(f, timeslot.New(timeslot.Monday, 1400, 1430)))
	assert.Len(t, n.sent, 1)

	// firing an already expired registration is harmless
	s.timers[0].fired = false
	s.fire(0)
	assert.Equal(t, 1, e.Len())
}

func TestRemoveStopsTimers(t *testing.T) {
	e, s, _ := newEngine()
	e.Register("Gym", timeslot.New(timeslot.Monday, 1000, 1200), time.Minute, alice)
	e.Register("Gym", timeslot.New(timeslot.Friday, 800, 900), time.Minute, alice)
	e.Register("Gym", timeslot.New(timeslot.Monday, 1000, 1200), time.Minute, bob)
	e.Register("Swimming Pool", timeslot.New(timeslot.Monday, 1000, 1200), time.Minute, alice)

	assert.Equal(t, 2, e.Remove("Gym", alice))
	assert.True(t, s.timers[0].stopped)
	assert.True(t, s.timers[1].stopped)
	assert.False(t, s.timers[2].stopped)
	assert.Equal(t, 2, e.Len())

	regs := e.Registrations("Gym")
	require.Len(t, regs, 1)
	assert.Equal(t, bob, regs[0].Client)

	assert.Zero(t, e.Remove("Tennis Court", alice))
}

func TestRegistrationsOrdered(t *testing.T) {
	e, _, _ := newEngine()
	e.Register("Gym", timeslot.New(timeslot.Tuesday, 800, 900), time.Minute, alice)
	e.Register("Gym", timeslot.New(timeslot.Monday, 1400, 1500), time.Minute, alice)
	e.Register("Gym", timeslot.New(timeslot.Monday, 900, 1000), time.Minute, bob)

	regs := e.Registrations("Gym")
	require.Len(t, regs, 3)
	assert.Equal(t, timeslot.New(timeslot.Monday, 900, 1000), regs[0].Slot)
	assert.Equal(t, timeslot.New(timeslot.Monday, 1400, 1500), regs[1].Slot)
	assert.Equal(t, timeslot.New(timeslot.Tuesday, 800, 900), regs[2].Slot)
}

func TestFailedNotificationIsNotCounted(t *testing.T) {
	e, _, n := newEngine()
	n.fail = true
	f := gym()
	e.Register("Gym", timeslot.New(timeslot.Monday, 1000, 1200), time.Minute, alice)

	assert.Zero(t, e.NotifyOnChange(f, timeslot.New(timeslot.Monday, 1000, 1030)))
}
