package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "SLOTKEEPER_"

type Config struct {
	ListenAddr      string        // UDP bind, ex: ":2222"
	AdminAddr       string        // admin HTTP bind, ex: ":8080" (empty = disabled)
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Delivery semantics
	Semantics          string        // "at-most-once" | "at-least-once"
	DuplicatePolicy    string        // "ignore" | "replay"
	DedupTTL           time.Duration // how long a request key is remembered (default: 30s)
	DedupCapacity      int           // max remembered keys (default: 1000)
	DedupSweepInterval time.Duration // periodic stale-key sweep (default: 10s)

	// Network behaviour
	SendSuccessProbability float64       // 1.0 = every response is sent
	RecvDropProbability    float64       // 0.0 = no inbound datagram is dropped
	NotifyRetries          int           // write attempts per notification
	MaxMonitorInterval     time.Duration // cap on MONITOR intervals
	MaxDatagram            int           // receive buffer size
	RateLimitPerSec        float64       // per-client datagrams/s (0 = disabled)
	RateLimitBurst         int

	SeedFile string // facility seed yaml (empty = built-in seed)

	// Redis change journal (optional, empty RedisAddr = disabled)
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // journal reported degraded after this long without Redis (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts
	JournalStream         string        // stream key
	JournalMaxLen         int64         // approximate stream cap

	AllowedCIDRS   []string // optional, restrict admin endpoints to specific IPs (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustProxy     bool     // true => trust X-Forwarded-For headers
	MetricsEnabled bool     // expose /metrics
}

// Load reads the configuration from the environment, after loading a .env
// file from the working directory when one exists.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(fmt.Sprintf("❌ FATAL: failed to read .env file: %v", err))
	}

	cfg := &Config{
		// Server settings
		ListenAddr:      getenv("LISTEN_ADDR", ":2222"),
		AdminAddr:       getenv("ADMIN_ADDR", ":8080"),
		ShutdownTimeout: mustDuration("SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("LOG_LEVEL", "info"),
		PrettyLog: mustBool("PRETTY_LOG", true),

		// Delivery semantics
		Semantics:          mustOneOf("SEMANTICS", "at-most-once", "at-most-once", "at-least-once"),
		DuplicatePolicy:    mustOneOf("DUPLICATE_POLICY", "ignore", "ignore", "replay"),
		DedupTTL:           mustDuration("DEDUP_TTL", 30*time.Second),
		DedupCapacity:      getenvInt("DEDUP_CAPACITY", 1000),
		DedupSweepInterval: mustDuration("DEDUP_SWEEP_INTERVAL", 10*time.Second),

		// Network behaviour
		SendSuccessProbability: mustProbability("SEND_SUCCESS_PROBABILITY", 1.0),
		RecvDropProbability:    mustProbability("RECV_DROP_PROBABILITY", 0.0),
		NotifyRetries:          getenvInt("NOTIFY_RETRIES", 3),
		MaxMonitorInterval:     mustDuration("MAX_MONITOR_INTERVAL", 24*time.Hour),
		MaxDatagram:            getenvInt("MAX_DATAGRAM", 1024),
		RateLimitPerSec:        getenvFloat("RATE_LIMIT_PER_SEC", 0),
		RateLimitBurst:         getenvInt("RATE_LIMIT_BURST", 20),

		SeedFile: getenv("SEED_FILE", ""),

		// Redis settings
		RedisAddr:             getenv("REDIS_ADDR", ""),
		RedisUser:             getenv("REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),
		JournalStream:         getenv("JOURNAL_STREAM", "slotkeeper:events"),
		JournalMaxLen:         int64(getenvInt("JOURNAL_MAXLEN", 10000)),

		// Admin access
		AllowedCIDRS:   parseAllowedIPs(getenv("ALLOWED_CIDRS", "")),
		TrustProxy:     mustBool("TRUST_PROXY", false),
		MetricsEnabled: mustBool("METRICS_ENABLED", true),
	}

	if cfg.RedisAddr != "" && cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: SLOTKEEPER_REDIS_PASSWORD is required when SLOTKEEPER_REDIS_PASSWORD_REQUIRED=true")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// helpers
func lookup(key string) string {
	return os.Getenv(envPrefix + key)
}

func getenv(key, def string) string {
	if v := lookup(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := lookup(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := lookup(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := lookup(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// mustProbability panics unless the value parses as a float in [0, 1].
func mustProbability(key string, def float64) float64 {
	v := lookup(key)
	if v == "" {
		return def
	}
	p, err := strconv.ParseFloat(v, 64)
	if err != nil || p < 0 || p > 1 {
		panic(fmt.Sprintf("❌ FATAL: %s%s must be a probability between 0 and 1, got %q", envPrefix, key, v))
	}
	return p
}

// mustOneOf panics unless the (case-insensitive) value is one of allowed.
func mustOneOf(key, def string, allowed ...string) string {
	v := strings.ToLower(strings.TrimSpace(lookup(key)))
	if v == "" {
		return def
	}
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	panic(fmt.Sprintf("❌ FATAL: Invalid value for %s%s: %q (allowed: %s)", envPrefix, key, v, strings.Join(allowed, ", ")))
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
