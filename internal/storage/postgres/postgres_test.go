package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eugener/celeste/internal/storage"
	"github.com/eugener/celeste/internal/storage/storagetest"
)

// openPool connects to CELESTE_TEST_POSTGRES_DSN or skips the test.
func openPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("CELESTE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CELESTE_TEST_POSTGRES_DSN not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		t.Skipf("Postgres not available: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// keyedStore prefixes keys so parallel runs against one database stay isolated.
type keyedStore struct {
	*Store
	prefix string
}

func (s keyedStore) Load(ctx context.Context, key string) ([]byte, error) {
	return s.Store.Load(ctx, s.prefix+key)
}

func (s keyedStore) Save(ctx context.Context, key string, data []byte) error {
	return s.Store.Save(ctx, s.prefix+key, data)
}

func (s keyedStore) Remove(ctx context.Context, key string) error {
	return s.Store.Remove(ctx, s.prefix+key)
}

func TestContract_PostgresStore(t *testing.T) {
	pool := openPool(t)

	storagetest.RunSnapshotStore(t, func(t *testing.T) storage.SnapshotStore {
		t.Helper()
		s, err := NewFromPool(context.Background(), pool)
		if err != nil {
			t.Fatal(err)
		}
		prefix := uuid.NewString() + ":"
		t.Cleanup(func() {
			pool.Exec(context.Background(), `DELETE FROM cache_snapshots WHERE name LIKE $1`, prefix+"%")
		})
		return keyedStore{Store: s, prefix: prefix}
	})
}

func TestNewFromPool_Nil(t *testing.T) {
	t.Parallel()
	if _, err := NewFromPool(context.Background(), nil); err == nil {
		t.Error("expected error for nil pool")
	}
}
