package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	"github.com/eugener/celeste/internal/app"
	"github.com/eugener/celeste/internal/backend"
	"github.com/eugener/celeste/internal/circuitbreaker"
	"github.com/eugener/celeste/internal/config"
	"github.com/eugener/celeste/internal/querycache"
	"github.com/eugener/celeste/internal/ratelimit"
	"github.com/eugener/celeste/internal/server"
	"github.com/eugener/celeste/internal/storage"
	"github.com/eugener/celeste/internal/storage/memory"
	"github.com/eugener/celeste/internal/storage/postgres"
	"github.com/eugener/celeste/internal/storage/redis"
	"github.com/eugener/celeste/internal/storage/sqlite"
	"github.com/eugener/celeste/internal/telemetry"
	"github.com/eugener/celeste/internal/worker"
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Log))

	slog.Info("starting celeste", "version", version, "addr", cfg.Server.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Tracing
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, version, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	// Metrics
	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
		observer       querycache.Observer
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		observer = metrics
	}

	// Snapshot store
	store, err := openStore(ctx, cfg.Persistence)
	if err != nil {
		return err
	}
	defer store.Close()

	// Query cache
	var cache *querycache.Cache
	if cfg.Cache.Enabled {
		cache, err = querycache.New(ctx, querycache.Options{
			Window:       cfg.Cache.FreshnessWindow,
			MaxEntries:   cfg.Cache.MaxEntries,
			Persister:    store,
			SnapshotKey:  cfg.Cache.SnapshotKey,
			WriteThrough: cfg.Cache.WriteThrough,
			Observer:     observer,
		})
		if err != nil {
			return err
		}
		slog.Info("query cache ready",
			"window", cfg.Cache.FreshnessWindow,
			"restored_entries", cache.Len(),
			"driver", cfg.Persistence.Driver,
		)
	} else {
		slog.Warn("query cache disabled; every request reaches the backend")
	}

	// Backend client
	resolver := &dnscache.Resolver{}
	client, err := backend.New(backend.Options{
		BaseURL:      cfg.Backend.BaseURL,
		Timeout:      cfg.Backend.Timeout,
		ServiceToken: cfg.Backend.ServiceToken,
		Resolver:     resolver,
		Breaker:      circuitbreaker.New(circuitbreaker.DefaultConfig()),
		Metrics:      metrics,
	})
	if err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.RateLimits.DefaultRPM)

	// Create HTTP server
	handler := server.New(server.Deps{
		Catalog:        app.NewCatalogService(client, cache, metrics),
		AdminKey:       cfg.Auth.AdminKey,
		ReadyCheck:     store.Ping,
		RateLimiter:    limiter,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background workers
	workers := backgroundWorkers(cfg, cache, limiter, resolver)
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.NewRunner(workers...).Run(workerCtx) }()

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("celeste ready", "addr", cfg.Server.Addr, "backend", cfg.Backend.BaseURL)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		runErr = err
	case err := <-workerDone:
		runErr = err
		workerDone <- nil
	}

	// Shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}

	// Workers stop after the server so in-flight requests can still populate
	// the cache; the flusher writes the final snapshot on its way out.
	cancelWorkers()
	if err := <-workerDone; err != nil && runErr == nil {
		runErr = err
	}
	if cache != nil && cfg.Cache.WriteThrough {
		cache.Flush(shutdownCtx)
	}

	slog.Info("celeste stopped")
	return runErr
}

// backgroundWorkers returns the workers for cfg. The sweeper always runs so
// idle rate limit buckets are evicted even with caching disabled.
func backgroundWorkers(cfg *config.Config, cache *querycache.Cache, limiter *ratelimit.Limiter, resolver *dnscache.Resolver) []worker.Worker {
	var (
		expired worker.ExpiredSweeper
		stale   worker.StaleEvicter
	)
	if cache != nil {
		expired = cache
	}
	if limiter.Enabled() {
		stale = limiter
	}

	workers := []worker.Worker{worker.NewDNSRefresher(resolver, cfg.Backend.DNSRefresh)}
	if expired != nil || stale != nil {
		workers = append(workers, worker.NewSweeper(expired, stale, cfg.Cache.SweepInterval))
	}
	if cache != nil && !cfg.Cache.WriteThrough {
		workers = append(workers, worker.NewSnapshotFlusher(cache, cfg.Cache.PersistInterval))
	}
	return workers
}

// openStore returns the snapshot store for the configured driver.
func openStore(ctx context.Context, cfg config.PersistenceConfig) (storage.SnapshotStore, error) {
	var (
		store storage.SnapshotStore
		err   error
	)
	switch cfg.Driver {
	case config.DriverMemory:
		store = memory.New()
	case config.DriverSQLite:
		store, err = sqlite.New(cfg.DSN)
	case config.DriverRedis:
		store, err = redis.New(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	case config.DriverPostgres:
		store, err = postgres.New(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown persistence driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s snapshot store: %w", cfg.Driver, err)
	}
	return store, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
