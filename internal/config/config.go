// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Persistence drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config is the top-level gateway configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Backend     BackendConfig     `yaml:"backend"`
	Cache       CacheConfig       `yaml:"cache"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Auth        AuthConfig        `yaml:"auth"`
	RateLimits  RateLimitConfig   `yaml:"rate_limits"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BackendConfig points at the upstream catalog API.
type BackendConfig struct {
	BaseURL      string        `yaml:"base_url"` // API_BASE_URL
	Timeout      time.Duration `yaml:"timeout"`
	ServiceToken string        `yaml:"service_token"` // used when the caller sends no bearer
	DNSRefresh   time.Duration `yaml:"dns_refresh"`
}

// CacheConfig holds query cache settings.
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled"`
	FreshnessWindow time.Duration `yaml:"freshness_window"`
	MaxEntries      int           `yaml:"max_entries"`
	SnapshotKey     string        `yaml:"snapshot_key"`
	WriteThrough    bool          `yaml:"write_through"`
	PersistInterval time.Duration `yaml:"persist_interval"` // write-behind flush period
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

// PersistenceConfig selects where the cache snapshot is stored.
type PersistenceConfig struct {
	Driver string      `yaml:"driver"` // memory, sqlite, redis, postgres
	DSN    string      `yaml:"dsn"`    // sqlite file path or postgres URL
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	AdminKey string `yaml:"admin_key"` // bearer key for /admin; empty disables the admin API
}

// RateLimitConfig holds default rate limiting settings.
type RateLimitConfig struct {
	DefaultRPM int `yaml:"default_rpm"` // per-client requests per minute (0 = unlimited)
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Default returns the configuration used for fields a file leaves unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL:    os.Getenv("API_BASE_URL"),
			Timeout:    10 * time.Second,
			DNSRefresh: 5 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled:         true,
			FreshnessWindow: 5 * time.Minute,
			MaxEntries:      10_000,
			SnapshotKey:     "product-cache",
			PersistInterval: 5 * time.Second,
			SweepInterval:   time.Minute,
		},
		Persistence: PersistenceConfig{
			Driver: DriverMemory,
		},
		RateLimits: RateLimitConfig{
			DefaultRPM: 600,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.Backend.BaseURL); c.Backend.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.base_url: %q is not an absolute URL", c.Backend.BaseURL))
	}
	if c.Cache.FreshnessWindow <= 0 {
		errs = append(errs, errors.New("cache.freshness_window must be positive"))
	}
	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, errors.New("cache.max_entries must be positive"))
	}
	if c.Cache.SnapshotKey == "" {
		errs = append(errs, errors.New("cache.snapshot_key must not be empty"))
	}
	switch c.Persistence.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Persistence.DSN == "" {
			errs = append(errs, fmt.Errorf("persistence.dsn is required for driver %q", c.Persistence.Driver))
		}
	case DriverRedis:
		if c.Persistence.Redis.Addr == "" {
			errs = append(errs, errors.New("persistence.redis.addr is required for driver \"redis\""))
		}
	default:
		errs = append(errs, fmt.Errorf("persistence.driver: unknown driver %q", c.Persistence.Driver))
	}
	if c.RateLimits.DefaultRPM < 0 {
		errs = append(errs, errors.New("rate_limits.default_rpm must not be negative"))
	}
	if r := c.Telemetry.Tracing.SampleRate; r < 0 || r > 1 {
		errs = append(errs, errors.New("telemetry.tracing.sample_rate must be within [0, 1]"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
