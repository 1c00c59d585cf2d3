package querycache

import "time"

// Clock provides time to the cache. Tests substitute a controllable one.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the current wall-clock time.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }
