// Package postgres implements storage.SnapshotStore on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	catalog "github.com/eugener/celeste/internal"
	"github.com/eugener/celeste/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_snapshots (
	name       TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

var _ storage.SnapshotStore = (*Store)(nil)

// Store is a Postgres snapshot store.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a pool for dsn and ensures the snapshot table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	s, err := NewFromPool(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewFromPool wraps an existing pool and ensures the snapshot table exists.
func NewFromPool(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("create snapshot table: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Load returns the snapshot stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM cache_snapshots WHERE name = $1`, key,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save inserts or replaces the snapshot under key.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cache_snapshots (name, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, key, data)
	return err
}

// Remove deletes the snapshot under key.
func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM cache_snapshots WHERE name = $1`, key)
	return err
}

// Ping checks pool connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
