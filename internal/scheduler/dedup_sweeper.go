package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/slotkeeper/internal/dedup"
	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
	"github.com/MrSnakeDoc/slotkeeper/internal/metrics"
)

const (
	// DefaultSweepInterval is used when no interval is configured
	DefaultSweepInterval = 10 * time.Second
)

// Poster runs a callback on the goroutine that owns the cache.
type Poster interface {
	Post(fn func()) bool
}

// DedupSweeper periodically drops stale request records so the cache
// shrinks even when no traffic arrives.
type DedupSweeper struct {
	loop     Poster
	cache    *dedup.Cache
	logger   logger.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	timeNow  func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewDedupSweeper creates a new dedup sweeper
func NewDedupSweeper(
	loop Poster,
	cache *dedup.Cache,
	log logger.Logger,
	m *metrics.Metrics,
	interval time.Duration,
) *DedupSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &DedupSweeper{
		loop:     loop,
		cache:    cache,
		logger:   log,
		metrics:  m,
		interval: interval,
		timeNow:  time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep. The ticker goroutine exits on Stop, when
// ctx is done or once the loop has stopped.
func (s *DedupSweeper) Start(ctx context.Context) {
	// Run immediately on start
	s.Sweep()

	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !s.Sweep() {
					s.logger.Debug("dedup sweep skipped, loop stopped")
					return
				}
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the sweeper
func (s *DedupSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Sweep schedules one sweep on the loop. It reports false once the loop
// has stopped.
func (s *DedupSweeper) Sweep() bool {
	return s.loop.Post(func() { s.sweep(s.timeNow()) })
}

func (s *DedupSweeper) sweep(now time.Time) int {
	removed := s.cache.Sweep(now)
	s.metrics.SetDedupEntries(s.cache.Len())

	if removed > 0 {
		s.logger.Debug("dedup sweep completed",
			logger.Int("removed", removed),
			logger.Int("remaining", s.cache.Len()))
	}
	return removed
}
