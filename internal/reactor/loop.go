// Package reactor runs callbacks one at a time on a single goroutine.
//
// Everything that mutates booking, monitor or dedup state is posted here, so
// none of that state needs locking.
package reactor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
)

const DefaultQueueSize = 1024

var (
	// ErrStopped is returned when posting to a loop that has exited.
	ErrStopped = errors.New("reactor stopped")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("reactor already running")
)

type Loop struct {
	logger  logger.Logger
	queue   chan func()
	done    chan struct{}
	running atomic.Bool
}

// New returns a loop with a callback queue of the given size. Callbacks posted
// before Run are kept and executed once it starts.
func New(log logger.Logger, queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Loop{
		logger: log,
		queue:  make(chan func(), queueSize),
		done:   make(chan struct{}),
	}
}

// Run executes posted callbacks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.queue:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Errorf("reactor callback panicked: %v", rec)
		}
	}()
	fn()
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Post queues fn for execution on the loop. It blocks while the queue is full
// and returns false if the loop has exited. Must not be called from inside a
// loop callback.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}

	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}

	select {
	case l.queue <- wrapped:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Timer is a cancellable one-shot callback.
type Timer interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already ran or the timer was already stopped.
	Stop() bool
}

type loopTimer struct {
	t       *time.Timer
	stopped atomic.Bool
	fired   atomic.Bool
}

func (t *loopTimer) Stop() bool {
	t.t.Stop()
	if t.stopped.Swap(true) {
		return false
	}
	return !t.fired.Load()
}

// AfterFunc runs fn on the loop once d has elapsed. The stop flag is checked
// on the loop itself, so a timer stopped after it expired but before its
// callback was dequeued still never runs fn.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if lt.stopped.Load() {
				return
			}
			lt.fired.Store(true)
			fn()
		})
	})
	return lt
}
