// Package memory implements storage.SnapshotStore in process memory.
// Snapshots do not survive a restart; it is the default for single-node
// development and the reference implementation for the contract tests.
package memory

import (
	"context"
	"sync"

	catalog "github.com/eugener/celeste/internal"
	"github.com/eugener/celeste/internal/storage"
)

var _ storage.SnapshotStore = (*Store)(nil)

// Store is an in-memory snapshot store.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Load returns a copy of the blob stored under key.
func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	b, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

// Save stores a copy of data under key.
func (s *Store) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	s.blobs[key] = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

// Remove deletes the blob under key.
func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.blobs, key)
	s.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }
