package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/dnscache"

	"github.com/eugener/celeste/internal/ratelimit"
)

type countingFlusher struct {
	calls     atomic.Int32
	lastAlive atomic.Bool // whether the ctx passed on the last call was live
}

func (f *countingFlusher) Flush(ctx context.Context) {
	f.calls.Add(1)
	f.lastAlive.Store(ctx.Err() == nil)
}

func TestSnapshotFlusher_FlushesPeriodically(t *testing.T) {
	t.Parallel()

	f := &countingFlusher{}
	w := NewSnapshotFlusher(f, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("flusher did not stop")
	}
	if f.calls.Load() < 3 {
		t.Errorf("flush calls = %d, want at least 2 ticks plus final", f.calls.Load())
	}
	if !f.lastAlive.Load() {
		t.Error("final flush ran with a cancelled context")
	}
}

func TestSnapshotFlusher_FinalFlushOnShutdown(t *testing.T) {
	t.Parallel()

	f := &countingFlusher{}
	w := NewSnapshotFlusher(f, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if f.calls.Load() != 1 {
		t.Errorf("flush calls = %d, want 1", f.calls.Load())
	}
}

type fakeSweepTarget struct {
	mu      sync.Mutex
	sweeps  int
	cutoffs []time.Time
}

func (f *fakeSweepTarget) Sweep() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return 1
}

func (f *fakeSweepTarget) EvictStale(cutoff time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 0
}

func TestSweeper_Sweep(t *testing.T) {
	t.Parallel()

	target := &fakeSweepTarget{}
	s := NewSweeper(target, target, 0)
	if s.interval != defaultSweepInterval {
		t.Errorf("interval = %v, want default", s.interval)
	}
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	s.sweep(context.Background())

	if target.sweeps != 1 {
		t.Errorf("sweeps = %d, want 1", target.sweeps)
	}
	if len(target.cutoffs) != 1 || !target.cutoffs[0].Equal(now.Add(-limiterIdleTimeout)) {
		t.Errorf("cutoffs = %v", target.cutoffs)
	}
}

func TestSweeper_NilLimiter(t *testing.T) {
	t.Parallel()

	target := &fakeSweepTarget{}
	s := NewSweeper(target, nil, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatal(err)
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	if target.sweeps == 0 {
		t.Error("sweeper never ran")
	}
}

func TestDNSRefresher_StopsOnCancel(t *testing.T) {
	t.Parallel()

	d := NewDNSRefresher(&dnscache.Resolver{}, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestWorkerName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		w    Worker
		want string
	}{
		{NewSnapshotFlusher(&countingFlusher{}, 0), "snapshot_flusher"},
		{NewSweeper(&fakeSweepTarget{}, nil, 0), "sweeper"},
		{NewDNSRefresher(&dnscache.Resolver{}, 0), "dns_refresher"},
		{&fakeWorker{}, "unknown"},
	}
	for _, tt := range tests {
		if got := workerName(tt.w); got != tt.want {
			t.Errorf("workerName(%T) = %q, want %q", tt.w, got, tt.want)
		}
	}
}

func TestSweeper_NilCacheEvictsLimiters(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.New(60)
	limiter.Allow("203.0.113.9")
	limiter.Allow("198.51.100.1")

	s := NewSweeper(nil, limiter, 0)
	later := time.Now().Add(limiterIdleTimeout + time.Minute)
	s.now = func() time.Time { return later }

	s.sweep(context.Background())

	if n := limiter.Len(); n != 0 {
		t.Errorf("limiter buckets = %d, want 0 after sweep without cache", n)
	}
}
