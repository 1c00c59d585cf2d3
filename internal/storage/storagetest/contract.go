// Package storagetest holds contract tests shared by every SnapshotStore
// implementation.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	catalog "github.com/eugener/celeste/internal"
	"github.com/eugener/celeste/internal/storage"
)

// RunSnapshotStore exercises the SnapshotStore contract. newStore must return
// a store with no existing blobs for the keys used here; it is called once per
// subtest.
func RunSnapshotStore(t *testing.T, newStore func(t *testing.T) storage.SnapshotStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("load missing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Load(ctx, "missing"); !errors.Is(err, catalog.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("save then load", func(t *testing.T) {
		s := newStore(t)
		data := []byte(`[["cat:5|page:1",{"value":[],"timestamp":1}]]`)
		if err := s.Save(ctx, "product-cache", data); err != nil {
			t.Fatal("save:", err)
		}
		got, err := s.Load(ctx, "product-cache")
		if err != nil {
			t.Fatal("load:", err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("load = %q, want %q", got, data)
		}
	})

	t.Run("save overwrites", func(t *testing.T) {
		s := newStore(t)
		if err := s.Save(ctx, "k", []byte("one")); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx, "k", []byte("two")); err != nil {
			t.Fatal(err)
		}
		got, err := s.Load(ctx, "k")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "two" {
			t.Errorf("load = %q, want %q", got, "two")
		}
	})

	t.Run("keys are isolated", func(t *testing.T) {
		s := newStore(t)
		if err := s.Save(ctx, "a", []byte("A")); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx, "b", []byte("B")); err != nil {
			t.Fatal(err)
		}
		if err := s.Remove(ctx, "a"); err != nil {
			t.Fatal(err)
		}
		got, err := s.Load(ctx, "b")
		if err != nil || string(got) != "B" {
			t.Errorf("load b = %q, %v; want B", got, err)
		}
	})

	t.Run("remove", func(t *testing.T) {
		s := newStore(t)
		if err := s.Save(ctx, "k", []byte("x")); err != nil {
			t.Fatal(err)
		}
		if err := s.Remove(ctx, "k"); err != nil {
			t.Fatal("remove:", err)
		}
		if _, err := s.Load(ctx, "k"); !errors.Is(err, catalog.ErrNotFound) {
			t.Errorf("load after remove err = %v, want ErrNotFound", err)
		}
		if err := s.Remove(ctx, "k"); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			t.Errorf("remove missing err = %v", err)
		}
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		if err := s.Ping(ctx); err != nil {
			t.Errorf("ping: %v", err)
		}
	})
}
