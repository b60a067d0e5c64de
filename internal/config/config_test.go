package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// chdirTemp moves into an empty directory so a developer's .env is not picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	cfg := Load()

	if cfg.ListenAddr != ":2222" {
		t.Errorf("ListenAddr = %q, want :2222", cfg.ListenAddr)
	}
	if cfg.Semantics != "at-most-once" {
		t.Errorf("Semantics = %q, want at-most-once", cfg.Semantics)
	}
	if cfg.DuplicatePolicy != "ignore" {
		t.Errorf("DuplicatePolicy = %q, want ignore", cfg.DuplicatePolicy)
	}
	if cfg.DedupTTL != 30*time.Second || cfg.DedupCapacity != 1000 {
		t.Errorf("dedup = %v/%d, want 30s/1000", cfg.DedupTTL, cfg.DedupCapacity)
	}
	if cfg.SendSuccessProbability != 1 || cfg.RecvDropProbability != 0 {
		t.Errorf("probabilities = %v/%v, want 1/0", cfg.SendSuccessProbability, cfg.RecvDropProbability)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("RedisAddr = %q, want empty", cfg.RedisAddr)
	}
	if cfg.JournalStream != "slotkeeper:events" {
		t.Errorf("JournalStream = %q", cfg.JournalStream)
	}
	if !cfg.MetricsEnabled {
		t.Error("MetricsEnabled should default to true")
	}
}

func TestLoadOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SLOTKEEPER_LISTEN_ADDR", "127.0.0.1:9999")
	t.Setenv("SLOTKEEPER_SEMANTICS", "At-Least-Once")
	t.Setenv("SLOTKEEPER_DUPLICATE_POLICY", "replay")
	t.Setenv("SLOTKEEPER_SEND_SUCCESS_PROBABILITY", "0.75")
	t.Setenv("SLOTKEEPER_RATE_LIMIT_PER_SEC", "2.5")
	t.Setenv("SLOTKEEPER_ALLOWED_CIDRS", "10.0.0.0/8, '192.168.1.1'")

	cfg := Load()
	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Semantics != "at-least-once" {
		t.Errorf("Semantics = %q, want at-least-once", cfg.Semantics)
	}
	if cfg.DuplicatePolicy != "replay" {
		t.Errorf("DuplicatePolicy = %q, want replay", cfg.DuplicatePolicy)
	}
	if cfg.SendSuccessProbability != 0.75 {
		t.Errorf("SendSuccessProbability = %v, want 0.75", cfg.SendSuccessProbability)
	}
	if cfg.RateLimitPerSec != 2.5 {
		t.Errorf("RateLimitPerSec = %v, want 2.5", cfg.RateLimitPerSec)
	}
	if want := []string{"10.0.0.0/8", "192.168.1.1"}; !reflect.DeepEqual(cfg.AllowedCIDRS, want) {
		t.Errorf("AllowedCIDRS = %v, want %v", cfg.AllowedCIDRS, want)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	content := "SLOTKEEPER_SEED_FILE=/etc/slotkeeper/facilities.yaml\nSLOTKEEPER_NOTIFY_RETRIES=5\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	// godotenv never overrides variables that are already set
	t.Setenv("SLOTKEEPER_NOTIFY_RETRIES", "7")
	t.Cleanup(func() { _ = os.Unsetenv("SLOTKEEPER_SEED_FILE") })

	cfg := Load()
	if cfg.SeedFile != "/etc/slotkeeper/facilities.yaml" {
		t.Errorf("SeedFile = %q", cfg.SeedFile)
	}
	if cfg.NotifyRetries != 7 {
		t.Errorf("NotifyRetries = %d, want 7", cfg.NotifyRetries)
	}
}

func TestLoadPanics(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown semantics", key: "SLOTKEEPER_SEMANTICS", value: "exactly-once"},
		{name: "unknown duplicate policy", key: "SLOTKEEPER_DUPLICATE_POLICY", value: "drop"},
		{name: "probability above one", key: "SLOTKEEPER_SEND_SUCCESS_PROBABILITY", value: "1.5"},
		{name: "negative probability", key: "SLOTKEEPER_RECV_DROP_PROBABILITY", value: "-0.1"},
		{name: "probability not a number", key: "SLOTKEEPER_RECV_DROP_PROBABILITY", value: "often"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirTemp(t)
			t.Setenv(tt.key, tt.value)

			defer func() {
				if r := recover(); r == nil {
					t.Errorf("Load() should have panicked")
				}
			}()
			Load()
		})
	}
}

func TestRedisPasswordRequired(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SLOTKEEPER_REDIS_ADDR", "localhost:6379")
	t.Setenv("SLOTKEEPER_REDIS_PASSWORD_REQUIRED", "true")

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Load() should have panicked without a redis password")
		}
	}()
	Load()
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{
			name:     "valid duration",
			key:      "TEST_DURATION",
			value:    "5s",
			def:      1 * time.Second,
			expected: 5 * time.Second,
		},
		{
			name:     "invalid duration uses default",
			key:      "TEST_DURATION_INVALID",
			value:    "invalid",
			def:      10 * time.Second,
			expected: 10 * time.Second,
		},
		{
			name:     "missing variable uses default",
			key:      "TEST_DURATION_MISSING",
			value:    "",
			def:      15 * time.Second,
			expected: 15 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(envPrefix+tt.key, tt.value)
			}

			result := mustDuration(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMustBool(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      bool
		expected bool
	}{
		{
			name:     "true value",
			key:      "TEST_BOOL",
			value:    "true",
			def:      false,
			expected: true,
		},
		{
			name:     "false value",
			key:      "TEST_BOOL_FALSE",
			value:    "false",
			def:      true,
			expected: false,
		},
		{
			name:     "invalid value uses default",
			key:      "TEST_BOOL_INVALID",
			value:    "invalid",
			def:      true,
			expected: true,
		},
		{
			name:     "missing variable uses default",
			key:      "TEST_BOOL_MISSING",
			value:    "",
			def:      false,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(envPrefix+tt.key, tt.value)
			}

			result := mustBool(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustBool() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "single", input: "a", expected: []string{"a"}},
		{name: "spaces and quotes", input: ` a , "b", 'c' ,, `, expected: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := splitAndTrim(tt.input)
			if len(result) == 0 && len(tt.expected) == 0 {
				return
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("splitAndTrim() = %v, want %v", result, tt.expected)
			}
		})
	}
}
