package worker

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultSweepInterval = time.Minute
	limiterIdleTimeout   = 10 * time.Minute
)

// ExpiredSweeper removes expired cache entries.
type ExpiredSweeper interface {
	Sweep() int
}

// StaleEvicter drops per-client rate limit state idle since cutoff.
type StaleEvicter interface {
	EvictStale(cutoff time.Time) int
}

// Sweeper periodically reclaims expired cache entries and idle rate limiters.
type Sweeper struct {
	cache    ExpiredSweeper // nil = caching disabled
	limiter  StaleEvicter   // nil = no rate limiting
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a sweeper. interval <= 0 uses 1m; either target may be nil.
func NewSweeper(cache ExpiredSweeper, limiter StaleEvicter, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{cache: cache, limiter: limiter, interval: interval, now: time.Now}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, evicted := 0, 0
	if s.cache != nil {
		expired = s.cache.Sweep()
	}
	if s.limiter != nil {
		evicted = s.limiter.EvictStale(s.now().Add(-limiterIdleTimeout))
	}
	if expired > 0 || evicted > 0 {
		slog.LogAttrs(ctx, slog.LevelDebug, "sweep completed",
			slog.Int("expired_entries", expired),
			slog.Int("evicted_limiters", evicted),
		)
	}
}
