package redis

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/slotkeeper/internal/booking"
	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
)

const (
	// DefaultJournalBuffer is the number of events queued before Append drops
	DefaultJournalBuffer = 256
	// DefaultWriteTimeout bounds a single XADD
	DefaultWriteTimeout = 2 * time.Second
	// DefaultFlushTimeout bounds the final flush when Run stops
	DefaultFlushTimeout = 5 * time.Second
)

// Journal feeds booking events to a Store from a background worker so the
// caller never waits on Redis.
type Journal struct {
	store        *Store
	logger       logger.Logger
	events       chan booking.Event
	writeTimeout time.Duration
	flushTimeout time.Duration

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewJournal creates a journal with the given queue size. flushTimeout is
// the whole budget for writing queued events once Run is stopped.
func NewJournal(store *Store, log logger.Logger, buffer int, flushTimeout time.Duration) *Journal {
	if buffer <= 0 {
		buffer = DefaultJournalBuffer
	}
	if flushTimeout <= 0 {
		flushTimeout = DefaultFlushTimeout
	}
	return &Journal{
		store:        store,
		logger:       log,
		events:       make(chan booking.Event, buffer),
		writeTimeout: DefaultWriteTimeout,
		flushTimeout: flushTimeout,
	}
}

// Append queues ev. When the queue is full the event is dropped.
func (j *Journal) Append(ev booking.Event) {
	select {
	case j.events <- ev:
	default:
		j.dropped.Add(1)
		j.logger.Warn("journal queue full, event dropped",
			logger.String("kind", string(ev.Kind)),
			logger.Uint32("booking_id", ev.BookingID))
	}
}

// Run writes queued events until ctx is done, then flushes what is left
// within the flush budget.
func (j *Journal) Run(ctx context.Context) error {
	j.logger.Info("journal started",
		logger.String("stream", j.store.Stream()),
		logger.String("instance", j.store.Instance()))

	for {
		select {
		case ev := <-j.events:
			j.write(context.WithoutCancel(ctx), ev)
		case <-ctx.Done():
			j.flush()
			return nil
		}
	}
}

// Discard empties the queue without writing and counts every pending event
// as dropped.
func (j *Journal) Discard() int {
	n := 0
	for {
		select {
		case <-j.events:
			n++
		default:
			j.dropped.Add(uint64(n))
			return n
		}
	}
}

func (j *Journal) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), j.flushTimeout)
	defer cancel()

drain:
	for ctx.Err() == nil {
		select {
		case ev := <-j.events:
			j.write(ctx, ev)
		default:
			break drain
		}
	}
	if n := j.Discard(); n > 0 {
		j.logger.Warn("journal flush deadline reached, events dropped",
			logger.Int("dropped", n),
			logger.Duration("flush_timeout", j.flushTimeout))
	}

	j.logger.Info("journal stopped",
		logger.Int("written", int(j.written.Load())),
		logger.Int("dropped", int(j.dropped.Load())),
		logger.Int("failed", int(j.failed.Load())))
}

func (j *Journal) write(parent context.Context, ev booking.Event) {
	ctx, cancel := context.WithTimeout(parent, j.writeTimeout)
	defer cancel()

	if _, err := j.store.AppendEvent(ctx, ev); err != nil {
		j.failed.Add(1)
		j.logger.Warn("failed to journal booking event",
			logger.String("kind", string(ev.Kind)),
			logger.Uint32("booking_id", ev.BookingID),
			logger.Error(err))
		return
	}
	j.written.Add(1)
}

// Stats returns the number of written, dropped and failed events.
func (j *Journal) Stats() (written, dropped, failed uint64) {
	return j.written.Load(), j.dropped.Load(), j.failed.Load()
}
