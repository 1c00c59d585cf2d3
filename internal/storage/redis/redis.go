// Package redis implements storage.SnapshotStore on Redis, letting several
// gateway replicas share one cache snapshot.
package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	catalog "github.com/eugener/celeste/internal"
	"github.com/eugener/celeste/internal/storage"
)

const keyPrefix = "celeste:snapshot:"

var _ storage.SnapshotStore = (*Store)(nil)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Store keeps snapshots as plain Redis strings without expiry; the cache
// applies its own freshness window on restore.
type Store struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewFromClient(client, keyPrefix), nil
}

// NewFromClient wraps an existing client. prefix namespaces every key.
func NewFromClient(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Load returns the snapshot stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save replaces the snapshot under key.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	return s.client.Set(ctx, s.prefix+key, data, 0).Err()
}

// Remove deletes the snapshot under key.
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
