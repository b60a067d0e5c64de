// Package redis owns the connection behind the booking journal. Redis is
// optional for slotkeeper: the booking service starts without it and the
// journal begins writing once Connect succeeds.
package redis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
)

// ConnectOptions defines the client settings and the retry policy.
type ConnectOptions struct {
	Addr           string        // Redis address (ex: "localhost:6379")
	User           string        // Optional username
	Password       string        // Optional password
	RedisDB        int           // Redis DB number
	DialTimeout    time.Duration // Redis dial timeout
	ReadTimeout    time.Duration // Redis read timeout
	WriteTimeout   time.Duration // Redis write timeout
	PoolSize       int           // Redis connection pool size
	ConnectTimeout time.Duration // after this long without Redis the journal is reported degraded
	RetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	MaxWait        time.Duration // max wait between retries (ex: 10s)
	PingTimeout    time.Duration // timeout for each ping attempt (ex: 2s)
	WarnThreshold  int           // attempts logged at warn before switching to error
}

func (o ConnectOptions) validate() error {
	switch {
	case o.Addr == "":
		return fmt.Errorf("redis address is required")
	case o.ConnectTimeout <= 0:
		return fmt.Errorf("ConnectTimeout must be > 0, got %v", o.ConnectTimeout)
	case o.RetryInterval <= 0:
		return fmt.Errorf("RetryInterval must be > 0, got %v", o.RetryInterval)
	case o.MaxWait <= 0:
		return fmt.Errorf("MaxWait must be > 0, got %v", o.MaxWait)
	case o.PingTimeout <= 0:
		return fmt.Errorf("PingTimeout must be > 0, got %v", o.PingTimeout)
	case o.WarnThreshold < 0:
		return fmt.Errorf("WarnThreshold must be >= 0, got %d", o.WarnThreshold)
	}
	return nil
}

// State is the journal backend's connection state.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDegraded // ConnectTimeout passed, still retrying
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Connector holds the journal's Redis client. The client exists from
// NewConnector on; Connect only waits for Redis to answer.
type Connector struct {
	opts   ConnectOptions
	client *redis.Client
	logger logger.Logger

	state     atomic.Int32
	ready     chan struct{}
	readyOnce sync.Once
}

// NewConnector validates opts and creates the client without touching the
// network.
func NewConnector(opts ConnectOptions, log logger.Logger) (*Connector, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid redis options: %w", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:                  opts.Addr,
		Username:              opts.User,
		Password:              opts.Password,
		DB:                    opts.RedisDB,
		DialTimeout:           opts.DialTimeout,
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		PoolSize:              opts.PoolSize,
		ContextTimeoutEnabled: true, // journal writes are bounded by their ctx
	})

	return &Connector{
		opts:   opts,
		client: client,
		logger: log,
		ready:  make(chan struct{}),
	}, nil
}

// Client returns the underlying client. Commands fail until Redis answers.
func (c *Connector) Client() *redis.Client { return c.client }

// State returns the current connection state.
func (c *Connector) State() State { return State(c.state.Load()) }

// Ready is closed once Connect has succeeded.
func (c *Connector) Ready() <-chan struct{} { return c.ready }

// Close closes the client.
func (c *Connector) Close() error { return c.client.Close() }

// Ping reports the connection state as an error while Redis has never
// answered, and pings it afterwards.
func (c *Connector) Ping(ctx context.Context) error {
	if st := c.State(); st != StateConnected {
		return fmt.Errorf("redis %s at %s", st, c.opts.Addr)
	}
	return c.client.Ping(ctx).Err()
}

// Connect pings Redis with exponential backoff until it answers or ctx is
// done. Past ConnectTimeout the connector turns degraded and keeps retrying
// at MaxWait. It returns ctx.Err() when stopped before Redis answered.
func (c *Connector) Connect(ctx context.Context) error {
	c.logger.Info("connecting to redis",
		logger.String("addr", c.opts.Addr),
		logger.Duration("degraded_after", c.opts.ConnectTimeout))

	start := time.Now()
	wait := c.opts.RetryInterval
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, c.opts.PingTimeout)
		err := c.client.Ping(pingCtx).Err()
		cancel()

		if err == nil {
			c.markConnected(attempt, time.Since(start))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logFailure(attempt, time.Since(start), wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("redis connect abandoned",
				logger.String("addr", c.opts.Addr),
				logger.Int("attempts", attempt))
			return ctx.Err()
		case <-timer.C:
		}

		wait *= 2
		if wait > c.opts.MaxWait {
			wait = c.opts.MaxWait
		}
	}
}

func (c *Connector) markConnected(attempts int, elapsed time.Duration) {
	previous := State(c.state.Swap(int32(StateConnected)))
	c.readyOnce.Do(func() { close(c.ready) })

	if attempts > 1 || previous == StateDegraded {
		c.logger.Warn("connected to redis after retry, journal enabled",
			logger.String("addr", c.opts.Addr),
			logger.Int("attempts", attempts),
			logger.Duration("elapsed", elapsed))
		return
	}
	c.logger.Info("connected to redis", logger.String("addr", c.opts.Addr))
}

func (c *Connector) logFailure(attempt int, elapsed, nextRetry time.Duration, err error) {
	if elapsed >= c.opts.ConnectTimeout && c.state.CompareAndSwap(int32(StateConnecting), int32(StateDegraded)) {
		c.logger.Error("redis unavailable, booking journal degraded until it answers",
			logger.String("addr", c.opts.Addr),
			logger.Int("attempts", attempt),
			logger.Duration("elapsed", elapsed),
			logger.Error(err))
		return
	}

	fields := []logger.Field{
		logger.String("addr", c.opts.Addr),
		logger.Int("attempt", attempt),
		logger.Duration("next_retry_in", nextRetry),
		logger.Error(err),
	}
	switch {
	case c.State() == StateDegraded:
		c.logger.Debug("redis still unavailable", fields...)
	case attempt <= c.opts.WarnThreshold:
		c.logger.Warn("redis connection failed, retrying", fields...)
	default:
		c.logger.Error("redis still unavailable, retrying", fields...)
	}
}
