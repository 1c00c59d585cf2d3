package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "celeste.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  addr: ":9090"
  read_timeout: 10s
backend:
  base_url: https://api.celeste.example/v1
  timeout: 3s
cache:
  freshness_window: 2m
  max_entries: 500
persistence:
  driver: sqlite
  dsn: ":memory:"
auth:
  admin_key: secret
rate_limits:
  default_rpm: 120
log:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Backend.BaseURL != "https://api.celeste.example/v1" || cfg.Backend.Timeout != 3*time.Second {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	if cfg.Cache.FreshnessWindow != 2*time.Minute || cfg.Cache.MaxEntries != 500 {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Persistence.Driver != DriverSQLite || cfg.Persistence.DSN != ":memory:" {
		t.Errorf("persistence = %+v", cfg.Persistence)
	}
	if cfg.Auth.AdminKey != "secret" {
		t.Errorf("admin key = %q", cfg.Auth.AdminKey)
	}
	if cfg.RateLimits.DefaultRPM != 120 {
		t.Errorf("default rpm = %d, want 120", cfg.RateLimits.DefaultRPM)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "backend:\n  base_url: http://localhost:4000\n"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q, want :8080", cfg.Server.Addr)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should be enabled by default")
	}
	if cfg.Cache.FreshnessWindow != 5*time.Minute {
		t.Errorf("default window = %v, want 5m", cfg.Cache.FreshnessWindow)
	}
	if cfg.Cache.SnapshotKey != "product-cache" {
		t.Errorf("default snapshot key = %q", cfg.Cache.SnapshotKey)
	}
	if cfg.Persistence.Driver != DriverMemory {
		t.Errorf("default driver = %q, want memory", cfg.Persistence.Driver)
	}
	if cfg.Backend.Timeout != 10*time.Second {
		t.Errorf("default backend timeout = %v", cfg.Backend.Timeout)
	}
}

func TestExpandEnv(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv
	t.Setenv("CELESTE_TEST_ADMIN_KEY", "admin-123")
	t.Setenv("CELESTE_TEST_BACKEND", "https://backend.example")

	cfg, err := Load(writeConfig(t, `
backend:
  base_url: ${CELESTE_TEST_BACKEND}
auth:
  admin_key: ${CELESTE_TEST_ADMIN_KEY}
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.AdminKey != "admin-123" {
		t.Errorf("admin key = %q, want expanded value", cfg.Auth.AdminKey)
	}
	if cfg.Backend.BaseURL != "https://backend.example" {
		t.Errorf("base url = %q, want expanded value", cfg.Backend.BaseURL)
	}

	if got := string(expandEnv([]byte("k: ${CELESTE_TEST_UNSET_VAR}"))); got != "k: ${CELESTE_TEST_UNSET_VAR}" {
		t.Errorf("unset var should stay literal, got %q", got)
	}
}

func TestLoad_APIBaseURLEnv(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://env.example/api")

	cfg, err := Load(writeConfig(t, "server:\n  addr: \":1\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.BaseURL != "https://env.example/api" {
		t.Errorf("base url = %q, want API_BASE_URL", cfg.Backend.BaseURL)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing base url", "backend:\n  base_url: \"\"\n", "backend.base_url"},
		{"relative base url", "backend:\n  base_url: /api\n", "backend.base_url"},
		{"unknown driver", "backend:\n  base_url: http://b\npersistence:\n  driver: mongo\n", "unknown driver"},
		{"sqlite without dsn", "backend:\n  base_url: http://b\npersistence:\n  driver: sqlite\n", "persistence.dsn"},
		{"redis without addr", "backend:\n  base_url: http://b\npersistence:\n  driver: redis\n", "persistence.redis.addr"},
		{"zero window", "backend:\n  base_url: http://b\ncache:\n  freshness_window: 0s\n", "freshness_window"},
		{"bad sample rate", "backend:\n  base_url: http://b\ntelemetry:\n  tracing:\n    sample_rate: 2\n", "sample_rate"},
		{"bad yaml", "backend: [", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
