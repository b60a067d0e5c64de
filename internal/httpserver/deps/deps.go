package deps

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrSnakeDoc/slotkeeper/internal/booking"
	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
	"github.com/MrSnakeDoc/slotkeeper/internal/monitor"
	redisstore "github.com/MrSnakeDoc/slotkeeper/internal/store/redis"
)

// Caller runs fn on the goroutine that owns the booking state.
type Caller interface {
	Call(ctx context.Context, fn func()) error
}

// JournalReader is the read side of the booking event journal.
type JournalReader interface {
	Ping(ctx context.Context) error
	RecentEvents(ctx context.Context, n int64) ([]redisstore.Record, error)
}

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	TimeNow      func() time.Time // for testing, defaults to time.Now
	AllowedCIDRS []string         // IPs allowed to access the admin endpoints
	TrustProxy   bool             // true if running behind a trusted reverse proxy

	Loop       Caller              // every read of Facilities or Monitors goes through Loop
	Facilities *booking.Registry   // facility engines
	Monitors   *monitor.Engine     // active monitor registrations
	Journal    JournalReader       // nil when the journal is disabled
	Gatherer   prometheus.Gatherer // nil disables /metrics
}
