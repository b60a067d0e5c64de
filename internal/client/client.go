// Package client talks to a slotkeeper server over UDP. Requests are
// retransmitted with the same request id until a matching reply arrives.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
	"github.com/MrSnakeDoc/slotkeeper/internal/timeslot"
	"github.com/MrSnakeDoc/slotkeeper/internal/wire"
)

const (
	DefaultTimeout = time.Second
	DefaultRetries = 3
	// NoRetries disables retransmission: each request is sent once.
	NoRetries   = -1
	maxDatagram = 1024
)

var (
	// ErrNoResponse is returned when every transmission timed out.
	ErrNoResponse = errors.New("no response from server")

	// ErrRejected wraps the message of a status=1 reply.
	ErrRejected = errors.New("request rejected")
)

type Config struct {
	Server         string        // ex: "127.0.0.1:2222"
	Timeout        time.Duration // wait per transmission
	Retries        int           // retransmissions after the first send; 0 = DefaultRetries, NoRetries = none
	FirstRequestID uint32        // defaults to 1
}

// Client is safe for concurrent use; requests are sent one at a time.
type Client struct {
	cfg    Config
	conn   *net.UDPConn
	logger logger.Logger

	mu     sync.Mutex
	nextID uint32
}

// Dial opens a UDP socket towards cfg.Server.
func Dial(cfg Config, log logger.Logger) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch {
	case cfg.Retries == 0:
		cfg.Retries = DefaultRetries
	case cfg.Retries < 0:
		cfg.Retries = 0
	}
	if cfg.FirstRequestID == 0 {
		cfg.FirstRequestID = 1
	}

	raddr, err := net.ResolveUDPAddr("udp", cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", cfg.Server, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %q: %w", cfg.Server, err)
	}

	return &Client{
		cfg:    cfg,
		conn:   conn,
		logger: log,
		nextID: cfg.FirstRequestID,
	}, nil
}

// LocalAddr returns the client's socket address as the server sees it.
func (c *Client) LocalAddr() netip.AddrPort {
	return c.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Close closes the socket.
func (c *Client) Close() error { return c.conn.Close() }

// Do assigns the next request id to req, sends it and waits for the reply.
// A status=1 reply is returned together with an error wrapping ErrRejected.
func (c *Client) Do(ctx context.Context, req wire.Request) (wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req.RequestID = c.nextID
	c.nextID++

	payload, err := req.MarshalBinary()
	if err != nil {
		return wire.Response{}, fmt.Errorf("encode request: %w", err)
	}

	buf := make([]byte, maxDatagram)
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return wire.Response{}, err
		}
		if attempt > 0 {
			c.logger.Debug("retransmitting request",
				logger.Uint32("request_id", req.RequestID),
				logger.Int("attempt", attempt))
		}
		if _, err := c.conn.Write(payload); err != nil {
			return wire.Response{}, fmt.Errorf("send request %d: %w", req.RequestID, err)
		}

		resp, ok, err := c.await(ctx, req.RequestID, buf)
		if err != nil {
			return wire.Response{}, err
		}
		if !ok {
			continue
		}
		if resp.Status != wire.StatusOK {
			return resp, fmt.Errorf("%w: %s", ErrRejected, resp.Message)
		}
		return resp, nil
	}
	return wire.Response{}, fmt.Errorf("%w: request %d after %d attempts", ErrNoResponse, req.RequestID, c.cfg.Retries+1)
}

// await reads until a reply for id arrives or the per-attempt timeout passes.
func (c *Client) await(ctx context.Context, id uint32, buf []byte) (wire.Response, bool, error) {
	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return wire.Response{}, false, err
	}

	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return wire.Response{}, false, ctxErr
				}
				return wire.Response{}, false, nil
			}
			return wire.Response{}, false, fmt.Errorf("read response: %w", err)
		}

		resp, err := wire.DecodeResponse(buf[:n])
		if err != nil {
			c.logger.Debug("ignoring malformed datagram", logger.Error(err))
			continue
		}
		if resp.RequestID != id {
			c.logger.Debug("ignoring unrelated datagram",
				logger.Uint32("request_id", resp.RequestID),
				logger.String("message", resp.Message))
			continue
		}
		return resp, true, nil
	}
}

// Listen delivers every datagram received until ctx is done. It is used
// after a MONITOR registration to receive notifications.
func (c *Client) Listen(ctx context.Context, fn func(wire.Response)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read notification: %w", err)
		}
		resp, err := wire.DecodeResponse(buf[:n])
		if err != nil {
			c.logger.Debug("ignoring malformed datagram", logger.Error(err))
			continue
		}
		fn(resp)
	}
}

// Query asks whether s is free at facility.
func (c *Client) Query(ctx context.Context, facility string, s timeslot.TimeSlot) (wire.Response, error) {
	return c.Do(ctx, slotRequest(wire.OpQuery, facility, s, nil))
}

// Book reserves s at facility.
func (c *Client) Book(ctx context.Context, facility string, s timeslot.TimeSlot) (wire.Response, error) {
	return c.Do(ctx, slotRequest(wire.OpBook, facility, s, nil))
}

// Change shifts booking id at facility by offset minutes.
func (c *Client) Change(ctx context.Context, facility string, id uint32, offset int32) (wire.Response, error) {
	return c.Do(ctx, wire.Request{Op: wire.OpChange, Facility: facility, Trailer: wire.ChangeTrailer{BookingID: id, OffsetMinutes: offset}})
}

// Extend moves the end of booking id at facility by extra minutes.
func (c *Client) Extend(ctx context.Context, facility string, id uint32, extra int32) (wire.Response, error) {
	return c.Do(ctx, wire.Request{Op: wire.OpExtend, Facility: facility, Trailer: wire.ExtendTrailer{BookingID: id, ExtraMinutes: extra}})
}

// Cancel releases booking id at facility.
func (c *Client) Cancel(ctx context.Context, facility string, id uint32) (wire.Response, error) {
	return c.Do(ctx, wire.Request{Op: wire.OpCancel, Facility: facility, Trailer: wire.CancelTrailer{BookingID: id}})
}

// Monitor registers for availability updates on s for interval.
func (c *Client) Monitor(ctx context.Context, facility string, s timeslot.TimeSlot, interval time.Duration) (wire.Response, error) {
	secs := uint32(interval / time.Second)
	return c.Do(ctx, slotRequest(wire.OpMonitor, facility, s, wire.MonitorTrailer{IntervalSeconds: secs}))
}

func slotRequest(op wire.Operation, facility string, s timeslot.TimeSlot, tr wire.Trailer) wire.Request {
	return wire.Request{Op: op, Facility: facility, Day: s.Day, Start: s.Start, End: s.End, Trailer: tr}
}
