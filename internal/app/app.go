package app

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/slotkeeper/internal/booking"
	"github.com/MrSnakeDoc/slotkeeper/internal/config"
	"github.com/MrSnakeDoc/slotkeeper/internal/dedup"
	"github.com/MrSnakeDoc/slotkeeper/internal/dispatch"
	"github.com/MrSnakeDoc/slotkeeper/internal/httpserver"
	"github.com/MrSnakeDoc/slotkeeper/internal/httpserver/deps"
	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
	"github.com/MrSnakeDoc/slotkeeper/internal/metrics"
	"github.com/MrSnakeDoc/slotkeeper/internal/monitor"
	"github.com/MrSnakeDoc/slotkeeper/internal/reactor"
	"github.com/MrSnakeDoc/slotkeeper/internal/redis"
	"github.com/MrSnakeDoc/slotkeeper/internal/scheduler"
	"github.com/MrSnakeDoc/slotkeeper/internal/seed"
	redisstore "github.com/MrSnakeDoc/slotkeeper/internal/store/redis"
	"github.com/MrSnakeDoc/slotkeeper/internal/udpserver"
	"github.com/MrSnakeDoc/slotkeeper/internal/utils"
	"github.com/MrSnakeDoc/slotkeeper/internal/version"
)

type App struct {
	cfg        *config.Config
	logger     logger.Logger
	loop       *reactor.Loop
	udp        *udpserver.Server
	dispatcher *dispatch.Dispatcher
	sweeper    *scheduler.DedupSweeper
	admin      *httpserver.Server // nil when ADMIN_ADDR is empty
	redis      *redis.Connector   // nil when REDIS_ADDR is empty
	journal    *redisstore.Journal
}

// journalStatus answers readiness from the connector state, so the journal
// reads as not ready while Redis has never answered.
type journalStatus struct {
	*redisstore.Store
	conn *redis.Connector
}

func (j journalStatus) Ping(ctx context.Context) error { return j.conn.Ping(ctx) }

// New loads the configuration from the environment and builds the app.
// It exits the process when a dependency cannot be initialized.
func New() *App {
	cfg := config.Load()
	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	a, err := Build(cfg, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to initialize slotkeeper: %v", err)
		os.Exit(1)
	}
	return a
}

// Build wires every component from cfg. The UDP socket is bound on return.
func Build(cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Seed facilities before the loop starts; from then on only the loop touches them.
	facilities := booking.NewRegistry(booking.NewIDSequence(booking.FirstBookingID))
	file, err := seed.NewLoader(cfg.SeedFile).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load seed: %w", err)
	}
	stats, err := seed.Apply(file, facilities)
	if err != nil {
		return nil, fmt.Errorf("failed to apply seed: %w", err)
	}
	loggerClient.Info("facilities seeded",
		logger.Int("facilities", stats.Facilities),
		logger.Int("slots", stats.Slots))

	a := &App{cfg: cfg, logger: loggerClient}

	// Journal is optional. Redis is dialed in the background by Serve so a
	// missing Redis never holds up the booking service.
	var journalReader deps.JournalReader
	var journal dispatch.Journal
	if cfg.RedisAddr != "" {
		conn, err := redis.NewConnector(redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		if err != nil {
			return nil, fmt.Errorf("failed to configure redis: %w", err)
		}
		store := redisstore.NewStore(conn.Client(), cfg.JournalStream, cfg.JournalMaxLen)
		a.redis = conn
		a.journal = redisstore.NewJournal(store, loggerClient, redisstore.DefaultJournalBuffer, cfg.ShutdownTimeout)
		journalReader = journalStatus{Store: store, conn: conn}
		journal = a.journal
	} else {
		loggerClient.Info("redis not configured, booking journal disabled")
	}

	a.loop = reactor.New(loggerClient, reactor.DefaultQueueSize)
	a.udp = udpserver.New(udpserver.Config{
		ListenAddr:             cfg.ListenAddr,
		MaxDatagram:            cfg.MaxDatagram,
		SendSuccessProbability: cfg.SendSuccessProbability,
		RecvDropProbability:    cfg.RecvDropProbability,
		NotifyRetries:          cfg.NotifyRetries,
		Limiter: udpserver.LimiterConfig{
			PerSecond: cfg.RateLimitPerSec,
			Burst:     cfg.RateLimitBurst,
		},
	}, a.loop, loggerClient, m)
	if err := a.udp.Listen(); err != nil {
		a.closeRedis()
		return nil, err
	}

	monitors := monitor.New(a.loop, a.udp, loggerClient, m)
	cache := dedup.New(cfg.DedupTTL, cfg.DedupCapacity)
	a.dispatcher = dispatch.New(dispatch.Deps{
		Facilities:         facilities,
		Monitors:           monitors,
		Cache:              cache,
		Sender:             a.udp,
		Journal:            journal,
		Logger:             loggerClient,
		Metrics:            m,
		Semantics:          dispatch.Semantics(cfg.Semantics),
		DuplicatePolicy:    dispatch.DuplicatePolicy(cfg.DuplicatePolicy),
		MaxMonitorInterval: cfg.MaxMonitorInterval,
	})
	a.sweeper = scheduler.NewDedupSweeper(a.loop, cache, loggerClient, m, cfg.DedupSweepInterval)

	if cfg.AdminAddr != "" {
		var gatherer prometheus.Gatherer
		if cfg.MetricsEnabled {
			gatherer = registry
		}
		a.admin = httpserver.New(cfg, loggerClient, deps.Deps{
			Logger:       loggerClient,
			StartTime:    time.Now(),
			Version:      version.Version,
			Commit:       version.Commit,
			BuildDate:    version.BuildDate,
			GoVersion:    version.GoVersion,
			TimeNow:      time.Now,
			AllowedCIDRS: cfg.AllowedCIDRS,
			TrustProxy:   cfg.TrustProxy,
			Loop:         a.loop,
			Facilities:   facilities,
			Monitors:     monitors,
			Journal:      journalReader,
			Gatherer:     gatherer,
		})
	}

	return a, nil
}

// UDPAddr returns the bound UDP address.
func (a *App) UDPAddr() netip.AddrPort { return a.udp.LocalAddr() }

// Run serves until SIGINT or SIGTERM.
func (a *App) Run() error {
	a.logger.Infof("🚀 Starting slotkeeper %s on udp %s", version.Version, a.cfg.ListenAddr)
	a.logger.Infof("slotkeeper %s", version.String())
	a.logger.Info("delivery semantics",
		logger.String("semantics", a.cfg.Semantics),
		logger.String("duplicate_policy", a.cfg.DuplicatePolicy),
		logger.Float64("send_success_probability", a.cfg.SendSuccessProbability),
		logger.Float64("recv_drop_probability", a.cfg.RecvDropProbability))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.Serve(ctx)
}

// Serve runs the reactor, the UDP reader, the journal, the dedup sweeper and
// the admin server until ctx is done or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.loop.Run(gctx) })
	g.Go(func() error { return a.udp.Serve(gctx, a.dispatcher) })

	if a.journal != nil {
		g.Go(func() error {
			if err := a.redis.Connect(gctx); err != nil {
				n := a.journal.Discard()
				a.logger.Warn("stopped before redis answered, journal events discarded",
					logger.Int("discarded", n))
				return nil
			}
			return a.journal.Run(gctx)
		})
	}

	a.sweeper.Start(gctx)
	defer a.sweeper.Stop()
	a.logger.Info("dedup sweeper started",
		logger.Duration("interval", a.cfg.DedupSweepInterval))

	if a.admin != nil {
		g.Go(func() error {
			if err := a.admin.Start(); err != nil {
				return fmt.Errorf("admin http server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()
			if err := a.admin.Stop(shutdownCtx); err != nil {
				return fmt.Errorf("failed to stop admin server: %w", err)
			}
			return nil
		})
	}

	<-gctx.Done()
	a.logger.Info("⏳ Shutting down gracefully...")
	err := g.Wait()

	a.closeRedis()
	if err != nil {
		return err
	}
	a.logger.Info("✅ slotkeeper stopped cleanly")
	return nil
}

func (a *App) closeRedis() {
	if a.redis == nil {
		return
	}
	utils.CloseLogged(a.redis, a.logger, "redis")
}
