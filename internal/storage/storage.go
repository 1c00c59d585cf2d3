// Package storage defines persistence interfaces for the catalog gateway.
package storage

import "context"

// SnapshotStore persists named binary snapshots (the query cache blob).
// Load returns catalog.ErrNotFound for a missing key; Remove of a missing key
// may return catalog.ErrNotFound or nil.
type SnapshotStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
