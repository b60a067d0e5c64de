package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
)

func testOptions(addr string) ConnectOptions {
	return ConnectOptions{
		Addr:           addr,
		DialTimeout:    100 * time.Millisecond,
		ReadTimeout:    100 * time.Millisecond,
		WriteTimeout:   100 * time.Millisecond,
		PoolSize:       2,
		ConnectTimeout: 500 * time.Millisecond,
		RetryInterval:  20 * time.Millisecond,
		MaxWait:        50 * time.Millisecond,
		PingTimeout:    100 * time.Millisecond,
		WarnThreshold:  1,
	}
}

// closedAddr returns an address nothing listens on, plus the stopped server
// so the test can bring it back.
func closedAddr(t *testing.T) (string, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()
	t.Cleanup(mr.Close)
	return addr, mr
}

func newTestConnector(t *testing.T, opts ConnectOptions) *Connector {
	t.Helper()
	c, err := NewConnector(opts, logger.New("error", false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnectorConnects(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestConnector(t, testOptions(mr.Addr()))

	assert.Equal(t, StateConnecting, c.State())
	assert.Error(t, c.Ping(context.Background()), "not ready before Connect")

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.State())
	assert.NoError(t, c.Ping(context.Background()))

	select {
	case <-c.Ready():
	default:
		t.Fatal("Ready not closed after Connect")
	}
}

func TestNewConnectorDoesNotDial(t *testing.T) {
	addr, _ := closedAddr(t)

	start := time.Now()
	c := newTestConnector(t, testOptions(addr))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, StateConnecting, c.State())
}

func TestConnectRetriesUntilAvailable(t *testing.T) {
	addr, mr := closedAddr(t)
	c := newTestConnector(t, testOptions(addr))

	go func() {
		time.Sleep(80 * time.Millisecond)
		_ = mr.StartAddr(addr)
	}()

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.State())
}

func TestConnectDegradesThenRecovers(t *testing.T) {
	addr, mr := closedAddr(t)
	opts := testOptions(addr)
	opts.ConnectTimeout = 60 * time.Millisecond
	c := newTestConnector(t, opts)

	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background()) }()

	require.Eventually(t, func() bool { return c.State() == StateDegraded }, 2*time.Second, 10*time.Millisecond)
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "degraded")

	require.NoError(t, mr.StartAddr(addr))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return after redis came back")
	}
	assert.Equal(t, StateConnected, c.State())
}

func TestConnectStopsWithContext(t *testing.T) {
	addr, _ := closedAddr(t)
	c := newTestConnector(t, testOptions(addr))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.Connect(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEqual(t, StateConnected, c.State())
}

func TestNewConnectorValidatesOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ConnectOptions)
	}{
		{name: "address", mutate: func(o *ConnectOptions) { o.Addr = "" }},
		{name: "connect timeout", mutate: func(o *ConnectOptions) { o.ConnectTimeout = 0 }},
		{name: "retry interval", mutate: func(o *ConnectOptions) { o.RetryInterval = 0 }},
		{name: "max wait", mutate: func(o *ConnectOptions) { o.MaxWait = -time.Second }},
		{name: "ping timeout", mutate: func(o *ConnectOptions) { o.PingTimeout = 0 }},
		{name: "warn threshold", mutate: func(o *ConnectOptions) { o.WarnThreshold = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions("127.0.0.1:1")
			tt.mutate(&opts)
			_, err := NewConnector(opts, logger.New("error", false))
			assert.Error(t, err)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "degraded", StateDegraded.String())
}
