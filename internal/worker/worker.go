// Package worker runs the gateway's background jobs: the cache snapshot
// flusher, the expiry sweeper and the DNS refresher.
package worker

import "context"

// Worker is a background job driven by a Runner. Run returns nil once ctx
// is cancelled; a non-nil error stops every other worker.
type Worker interface {
	Run(ctx context.Context) error
}
