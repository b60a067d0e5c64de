package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/slotkeeper/internal/client"
	"github.com/MrSnakeDoc/slotkeeper/internal/config"
	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
	"github.com/MrSnakeDoc/slotkeeper/internal/redis"
	"github.com/MrSnakeDoc/slotkeeper/internal/timeslot"
)

func testConfig() *config.Config {
	return &config.Config{
		ListenAddr:             "127.0.0.1:0",
		ShutdownTimeout:        time.Second,
		LogLevel:               "error",
		Semantics:              "at-most-once",
		DuplicatePolicy:        "ignore",
		DedupTTL:               30 * time.Second,
		DedupCapacity:          1000,
		DedupSweepInterval:     time.Second,
		SendSuccessProbability: 1,
		NotifyRetries:          1,
		MaxMonitorInterval:     time.Hour,
		MaxDatagram:            1024,
		JournalStream:          "slotkeeper:events",
		JournalMaxLen:          100,
	}
}

// serve starts a, returns a client connected to it and stops a on cleanup.
func serve(t *testing.T, a *App) *client.Client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after cancel")
		}
	})

	c, err := client.Dial(client.Config{
		Server:  a.UDPAddr().String(),
		Timeout: 200 * time.Millisecond,
		Retries: 5,
	}, logger.New("error", false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestServeBookingRoundTrip(t *testing.T) {
	a, err := Build(testConfig(), logger.New("error", false))
	require.NoError(t, err)
	c := serve(t, a)
	ctx := context.Background()

	slot := timeslot.New(timeslot.Monday, 1000, 1100)

	resp, err := c.Query(ctx, "Gym", slot)
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "Slot available")

	resp, err = c.Book(ctx, "Gym", slot)
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "Booking ID: 1000")

	resp, err = c.Query(ctx, "Gym", slot)
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "Slot not available")

	_, err = c.Book(ctx, "Gym", slot)
	require.ErrorIs(t, err, client.ErrRejected)

	resp, err = c.Cancel(ctx, "Gym", 1000)
	require.NoError(t, err)
	assert.Equal(t, "Booking with ID 1000 canceled successfully.", resp.Message)
}

func TestServeUnknownFacility(t *testing.T) {
	a, err := Build(testConfig(), logger.New("error", false))
	require.NoError(t, err)
	c := serve(t, a)

	_, err = c.Query(context.Background(), "Bowling Alley", timeslot.New(timeslot.Monday, 1000, 1100))
	require.ErrorIs(t, err, client.ErrRejected)
}

func redisConfig(addr string) *config.Config {
	cfg := testConfig()
	cfg.RedisAddr = addr
	cfg.RedisDT = time.Second
	cfg.RedisRT = time.Second
	cfg.RedisWT = time.Second
	cfg.RedisPoolSize = 2
	cfg.RedisConnectTimeout = time.Second
	cfg.RedisRetryInterval = 50 * time.Millisecond
	cfg.RedisMaxWait = 100 * time.Millisecond
	cfg.RedisPingTimeout = 200 * time.Millisecond
	cfg.RedisWarnThreshold = 3
	return cfg
}

func TestServeWritesJournal(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := redisConfig(mr.Addr())

	a, err := Build(cfg, logger.New("error", false))
	require.NoError(t, err)
	c := serve(t, a)

	_, err = c.Book(context.Background(), "Gym", timeslot.New(timeslot.Monday, 1100, 1200))
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	assert.Eventually(t, func() bool {
		n, err := rdb.XLen(context.Background(), cfg.JournalStream).Result()
		return err == nil && n == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServeStartsWithoutRedis(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()
	t.Cleanup(mr.Close)

	cfg := redisConfig(addr)
	cfg.RedisConnectTimeout = 100 * time.Millisecond

	start := time.Now()
	a, err := Build(cfg, logger.New("error", false))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "Build must not wait for redis")
	c := serve(t, a)

	resp, err := c.Book(context.Background(), "Gym", timeslot.New(timeslot.Monday, 1000, 1030))
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "Booking ID: 1000")

	assert.Eventually(t, func() bool { return a.redis.State() == redis.StateDegraded }, 2*time.Second, 10*time.Millisecond)
	reader := journalStatus{conn: a.redis}
	assert.Error(t, reader.Ping(context.Background()))

	// the queued event is written once redis answers
	require.NoError(t, mr.StartAddr(addr))
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	assert.Eventually(t, func() bool {
		n, err := rdb.XLen(context.Background(), cfg.JournalStream).Result()
		return err == nil && n == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.NoError(t, reader.Ping(context.Background()))
}

func TestServeStopsWhileRedisIsDown(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	a, err := Build(redisConfig(addr), logger.New("error", false))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Serve(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return while redis was down")
	}
}

func TestBuildRejectsBadSeed(t *testing.T) {
	cfg := testConfig()
	cfg.SeedFile = "does-not-exist.yaml"

	_, err := Build(cfg, logger.New("error", false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load seed")
}
