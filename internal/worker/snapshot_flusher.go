package worker

import (
	"context"
	"time"
)

const (
	defaultFlushInterval = 5 * time.Second
	finalFlushTimeout    = 5 * time.Second
)

// Flusher is the cache operation SnapshotFlusher drives.
type Flusher interface {
	Flush(ctx context.Context)
}

// SnapshotFlusher periodically writes the cache snapshot in write-behind
// mode, and once more on shutdown so recent entries survive a restart.
type SnapshotFlusher struct {
	cache    Flusher
	interval time.Duration
}

// NewSnapshotFlusher creates a flusher. interval <= 0 uses 5s.
func NewSnapshotFlusher(cache Flusher, interval time.Duration) *SnapshotFlusher {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return &SnapshotFlusher{cache: cache, interval: interval}
}

// Run flushes on every tick until ctx is cancelled, then flushes a final time.
func (f *SnapshotFlusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// ctx is already cancelled; the final write needs its own deadline.
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
			f.cache.Flush(flushCtx)
			cancel()
			return nil
		case <-ticker.C:
			f.cache.Flush(ctx)
		}
	}
}
