// Package ratelimit implements per-client requests-per-minute limiting with
// lazy-refill token buckets.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the
// Retry-After header; it is at least 1 when the request was denied.
func (r Result) RetryAfterSeconds() int {
	if r.Allowed {
		return 0
	}
	return max(1, int(math.Ceil(r.RetryAfter.Seconds())))
}

// bucket is a token bucket with lazy refill (no background goroutine).
type bucket struct {
	tokens   float64
	lastFill time.Time
}

// Limiter holds one bucket per client, all sharing the same RPM limit.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	rpm     int
	rate    float64 // tokens per second
	buckets map[string]*bucket
	now     func() time.Time
}

// New returns a Limiter allowing rpm requests per minute per client.
// rpm <= 0 disables limiting.
func New(rpm int) *Limiter {
	return &Limiter{
		rpm:     rpm,
		rate:    float64(rpm) / 60,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Enabled reports whether the limiter enforces a limit.
func (l *Limiter) Enabled() bool { return l.rpm > 0 }

// Allow consumes one token for client.
func (l *Limiter) Allow(client string) Result {
	if l.rpm <= 0 {
		return Result{Allowed: true}
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[client]
	if !ok {
		b = &bucket{tokens: float64(l.rpm), lastFill: now}
		l.buckets[client] = b
	} else if elapsed := now.Sub(b.lastFill).Seconds(); elapsed > 0 {
		b.tokens = min(float64(l.rpm), b.tokens+elapsed*l.rate)
		b.lastFill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return Result{Allowed: true, Limit: l.rpm, Remaining: int(b.tokens)}
	}
	wait := (1 - b.tokens) / l.rate
	return Result{
		Limit:      l.rpm,
		RetryAfter: time.Duration(wait * float64(time.Second)),
	}
}

// EvictStale removes buckets untouched since cutoff. A bucket idle that long
// has refilled completely, so dropping it loses no state.
func (l *Limiter) EvictStale(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for k, b := range l.buckets {
		if b.lastFill.Before(cutoff) {
			delete(l.buckets, k)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
