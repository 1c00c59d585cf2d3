// Package circuitbreaker guards the catalog backend with a breaker driven by
// a sliding-window weighted error rate. While open, calls fail immediately
// instead of waiting out the backend timeout.
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows all requests through.
	StateClosed State = iota
	// StateOpen rejects all requests.
	StateOpen
	// StateHalfOpen allows a single probe request.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	ErrorThreshold float64       // weighted error rate to trip (e.g. 0.30)
	MinSamples     int           // minimum requests before breaker can open
	WindowSeconds  int           // sliding window duration in seconds
	OpenTimeout    time.Duration // time in OPEN before a probe is allowed
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 0.30,
		MinSamples:     10,
		WindowSeconds:  30,
		OpenTimeout:    15 * time.Second,
	}
}

// slot aggregates outcomes for one wall-clock second.
type slot struct {
	sec    int64
	errors float64
	total  int
}

// window is a ring of per-second slots. A slot whose second has fallen out
// of the window is treated as empty and recycled on the next write.
type window struct {
	slots []slot
}

func newWindow(seconds int) window {
	if seconds <= 0 {
		seconds = 30
	}
	return window{slots: make([]slot, seconds)}
}

func (w *window) record(weight float64, now time.Time) {
	sec := now.Unix()
	s := &w.slots[int(sec%int64(len(w.slots)))]
	if s.sec != sec {
		*s = slot{sec: sec}
	}
	s.total++
	s.errors += weight
}

// rate returns the weighted error rate and sample count inside the window.
func (w *window) rate(now time.Time) (float64, int) {
	cutoff := now.Unix() - int64(len(w.slots))
	var errs float64
	var total int
	for _, s := range w.slots {
		if s.sec > cutoff {
			errs += s.errors
			total += s.total
		}
	}
	if total == 0 {
		return 0, 0
	}
	return errs / float64(total), total
}

func (w *window) reset() {
	clear(w.slots)
}

// Breaker is a circuit breaker state machine. It is safe for concurrent use.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	now      func() time.Time
	state    State
	win      window
	openedAt time.Time
	probing  bool
}

// New creates a breaker with the given config.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg: cfg,
		now: time.Now,
		win: newWindow(cfg.WindowSeconds),
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a request may proceed. In HALF_OPEN exactly one
// probe is admitted until its outcome is recorded.
func (b *Breaker) Allow() bool {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) < b.cfg.OpenTimeout {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Record feeds a call outcome into the breaker. Errors that ClassifyError
// weighs at zero count as successes.
func (b *Breaker) Record(err error) {
	weight := ClassifyError(err)
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.win.record(weight, now)

	switch b.state {
	case StateClosed:
		if weight == 0 {
			return
		}
		rate, samples := b.win.rate(now)
		if samples >= b.cfg.MinSamples && rate >= b.cfg.ErrorThreshold {
			b.trip(now)
		}
	case StateHalfOpen:
		if weight == 0 {
			b.state = StateClosed
			b.probing = false
			b.win.reset()
			return
		}
		b.trip(now)
	}
}

func (b *Breaker) trip(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
	b.probing = false
}
