// Package udpserver owns the UDP socket. It feeds datagrams into the reactor
// and implements the lossy response path and the reliable notification path.
package udpserver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"time"

	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
	"github.com/MrSnakeDoc/slotkeeper/internal/metrics"
	"github.com/MrSnakeDoc/slotkeeper/internal/reactor"
	"github.com/MrSnakeDoc/slotkeeper/internal/wire"
)

type Config struct {
	ListenAddr  string // ex: ":2222"
	MaxDatagram int    // receive buffer size

	// Fault injection. Production uses 1 and 0.
	SendSuccessProbability float64
	RecvDropProbability    float64

	NotifyRetries int // write attempts per notification
	Limiter       LimiterConfig
}

// Handler processes one datagram on the reactor goroutine.
type Handler interface {
	Handle(datagram []byte, from netip.AddrPort)
}

type Server struct {
	cfg     Config
	loop    *reactor.Loop
	logger  logger.Logger
	metrics *metrics.Metrics

	conn    *net.UDPConn
	limiter *clientLimiter
	chance  func() float64
	timeNow func() time.Time
}

func New(cfg Config, loop *reactor.Loop, log logger.Logger, m *metrics.Metrics) *Server {
	if cfg.MaxDatagram <= 0 {
		cfg.MaxDatagram = 1024
	}
	if cfg.NotifyRetries < 1 {
		cfg.NotifyRetries = 1
	}
	return &Server{
		cfg:     cfg,
		loop:    loop,
		logger:  log,
		metrics: m,
		limiter: newClientLimiter(cfg.Limiter, time.Now()),
		chance:  rand.Float64,
		timeNow: time.Now,
	}
}

// Listen binds the socket.
func (s *Server) Listen() error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", s.cfg.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp %q: %w", s.cfg.ListenAddr, err)
	}
	s.conn = conn
	return nil
}

// LocalAddr returns the bound address. Only valid after Listen.
func (s *Server) LocalAddr() netip.AddrPort {
	return s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Serve reads datagrams and posts them to the reactor until ctx is done.
// The socket is closed on return.
func (s *Server) Serve(ctx context.Context, h Handler) error {
	if s.conn == nil {
		return errors.New("udpserver: Serve called before Listen")
	}
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	s.logger.Info("udp server listening", logger.String("addr", s.LocalAddr().String()))

	buf := make([]byte, s.cfg.MaxDatagram)
	for {
		n, from, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("udp read failed", logger.Error(err))
			continue
		}
		if n == 0 {
			continue
		}
		from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())

		if s.chance() < s.cfg.RecvDropProbability {
			s.metrics.IncDropped(metrics.DropInjected)
			s.logger.Debug("inbound datagram dropped", logger.String("client", from.String()))
			continue
		}
		if !s.limiter.allow(from.Addr(), s.timeNow()) {
			s.metrics.IncDropped(metrics.DropRateLimited)
			s.logger.Debug("inbound datagram rate limited", logger.String("client", from.String()))
			continue
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		if !s.loop.Post(func() { h.Handle(datagram, from) }) {
			return nil
		}
	}
}

// SendResponse writes a reply unless loss injection withholds it. A withheld
// reply is not an error.
func (s *Server) SendResponse(to netip.AddrPort, payload []byte) error {
	if s.chance() >= s.cfg.SendSuccessProbability {
		s.metrics.IncLost()
		s.logger.Debug("response dropped", logger.String("client", to.String()))
		return nil
	}
	if _, err := s.conn.WriteToUDPAddrPort(payload, to); err != nil {
		return fmt.Errorf("write to %s: %w", to, err)
	}
	s.metrics.IncSent(statusLabel(payload))
	return nil
}

// SendNotification writes a notification, bypassing loss injection and
// retrying failed writes.
func (s *Server) SendNotification(to netip.AddrPort, payload []byte) error {
	var err error
	for attempt := 1; attempt <= s.cfg.NotifyRetries; attempt++ {
		if _, err = s.conn.WriteToUDPAddrPort(payload, to); err == nil {
			return nil
		}
		s.logger.Debug("notification write failed",
			logger.String("client", to.String()),
			logger.Int("attempt", attempt),
			logger.Error(err))
	}
	return fmt.Errorf("notify %s after %d attempts: %w", to, s.cfg.NotifyRetries, err)
}

// Close closes the socket.
func (s *Server) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func statusLabel(payload []byte) string {
	if len(payload) < wire.ResponseHeaderLen {
		return "unknown"
	}
	return wire.Status(payload[4]).String()
}
