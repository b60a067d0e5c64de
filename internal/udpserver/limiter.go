package udpserver

import (
	"net/netip"
	"time"

	"golang.org/x/time/rate"
)

type LimiterConfig struct {
	PerSecond     float64 // 0 disables limiting
	Burst         int
	MaxEntries    int
	SweepInterval time.Duration
	IdleTTL       time.Duration
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client IP. It is only used by the
// reader goroutine and needs no locking.
type clientLimiter struct {
	cfg       LimiterConfig
	buckets   map[netip.Addr]*bucket
	lastSweep time.Time
}

func newClientLimiter(cfg LimiterConfig, now time.Time) *clientLimiter {
	if cfg.PerSecond <= 0 {
		return nil
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &clientLimiter{
		cfg:       cfg,
		buckets:   make(map[netip.Addr]*bucket, 256),
		lastSweep: now,
	}
}

// allow reports whether a datagram from addr may be processed. A nil limiter
// allows everything.
func (l *clientLimiter) allow(addr netip.Addr, now time.Time) bool {
	if l == nil {
		return true
	}
	if now.Sub(l.lastSweep) >= l.cfg.SweepInterval ||
		(l.cfg.MaxEntries > 0 && len(l.buckets) >= l.cfg.MaxEntries) {
		l.sweep(now)
	}

	b := l.buckets[addr]
	if b == nil {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.cfg.PerSecond), l.cfg.Burst)}
		l.buckets[addr] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

func (l *clientLimiter) sweep(now time.Time) {
	for addr, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.cfg.IdleTTL {
			delete(l.buckets, addr)
		}
	}
	l.lastSweep = now
}

func (l *clientLimiter) len() int {
	if l == nil {
		return 0
	}
	return len(l.buckets)
}
