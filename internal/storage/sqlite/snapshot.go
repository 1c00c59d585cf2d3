package sqlite

import (
	"context"
	"time"
)

// Load returns the snapshot stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.read.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE name = ?`, key,
	).Scan(&data)
	if err != nil {
		return nil, notFoundErr(err)
	}
	return data, nil
}

// Save inserts or replaces the snapshot under key.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO snapshots (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, data, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Remove deletes the snapshot under key. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.write.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, key)
	return err
}
