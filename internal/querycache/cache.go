// Package querycache caches product query results for a fixed freshness
// window, with scoped invalidation and a persisted snapshot.
//
// An entry is either fresh or absent: once its age reaches the window it is
// treated exactly like a missing key. Expiry is checked lazily on read, and
// Sweep reclaims expired entries in bulk.
package querycache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter/v2"

	catalog "github.com/eugener/celeste/internal"
)

// Defaults applied by New when Options leaves a field zero.
const (
	DefaultWindow      = 5 * time.Minute
	DefaultMaxEntries  = 10_000
	DefaultSnapshotKey = "product-cache"

	persistTimeout = 5 * time.Second
)

// Persister stores the serialized snapshot blob.
// Load reports catalog.ErrNotFound when no blob exists.
type Persister interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
}

// Observer receives cache events for metrics. Nil means no observation.
type Observer interface {
	SnapshotWritten(err error)
	EntriesChanged(n int)
}

// Options configures a Cache.
type Options struct {
	Window       time.Duration // freshness window
	MaxEntries   int
	Clock        Clock     // nil = SystemClock
	Persister    Persister // nil = memory only
	SnapshotKey  string
	WriteThrough bool // persist synchronously on every mutation instead of on Flush
	Observer     Observer
}

type entry struct {
	products []catalog.Product
	storedAt time.Time
	seq      uint64 // insertion order for Stats and snapshots
}

// Cache is a query result cache safe for concurrent use.
type Cache struct {
	store        *otter.Cache[string, entry]
	window       time.Duration
	clock        Clock
	persister    Persister
	snapshotKey  string
	writeThrough bool
	observer     Observer

	seq   atomic.Uint64
	dirty atomic.Bool

	persistMu sync.Mutex // orders snapshot collection and Save
}

// Stats is the debug view of the cache.
type Stats struct {
	Entries int      `json:"entries"`
	Keys    []string `json:"keys"`
}

// New creates a Cache and restores the persisted snapshot, if any.
// A missing, unreadable or corrupt snapshot yields an empty cache.
func New(ctx context.Context, opts Options) (*Cache, error) {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.SnapshotKey == "" {
		opts.SnapshotKey = DefaultSnapshotKey
	}

	store, err := otter.New(&otter.Options[string, entry]{
		MaximumSize: opts.MaxEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}

	c := &Cache{
		store:        store,
		window:       opts.Window,
		clock:        opts.Clock,
		persister:    opts.Persister,
		snapshotKey:  opts.SnapshotKey,
		writeThrough: opts.WriteThrough,
		observer:     opts.Observer,
	}
	c.restore(ctx)
	return c, nil
}

// Window returns the freshness window.
func (c *Cache) Window() time.Duration { return c.window }

// Get returns a copy of the cached products for key if the entry is still
// fresh.
func (c *Cache) Get(key string) ([]catalog.Product, bool) {
	e, ok := c.store.GetIfPresent(key)
	if !ok {
		return nil, false
	}
	if c.expired(e, c.clock.Now()) {
		c.removeExpired(key, e.seq)
		return nil, false
	}
	return slices.Clone(e.products), true
}

// removeExpired deletes key only if it still holds the entry with seq, so a
// concurrent Set of the same key survives.
func (c *Cache) removeExpired(key string, seq uint64) {
	removed := false
	c.store.Compute(key, func(old entry, found bool) (entry, otter.ComputeOp) {
		if found && old.seq == seq {
			removed = true
			return old, otter.InvalidateOp
		}
		return old, otter.CancelOp
	})
	if removed {
		c.changed()
	}
}

// Set stores a copy of products under key, replacing any previous entry.
func (c *Cache) Set(key string, products []catalog.Product) {
	c.store.Set(key, entry{
		products: slices.Clone(products),
		storedAt: c.clock.Now(),
		seq:      c.seq.Add(1),
	})
	c.changed()
}

// Stats returns the number of fresh entries and their keys in insertion order.
func (c *Cache) Stats() Stats {
	pairs := c.fresh(c.clock.Now())
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.key
	}
	return Stats{Entries: len(keys), Keys: keys}
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.clock.Now()
	var stale []string
	for k, e := range c.store.All() {
		if c.expired(e, now) {
			stale = append(stale, k)
		}
	}
	for _, k := range stale {
		c.store.Invalidate(k)
	}
	if len(stale) > 0 {
		c.changed()
	}
	return len(stale)
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	n := 0
	for range c.store.All() {
		n++
	}
	return n
}

// Flush persists the snapshot if the cache changed since the last successful
// write. Failures are logged and retried on the next Flush.
func (c *Cache) Flush(ctx context.Context) {
	if c.persister == nil || !c.dirty.Swap(false) {
		return
	}
	if err := c.persist(ctx); err != nil {
		c.dirty.Store(true)
	}
}

func (c *Cache) expired(e entry, now time.Time) bool {
	return now.Sub(e.storedAt) >= c.window
}

// keyedEntry pairs a key with its entry for ordered traversal.
type keyedEntry struct {
	key string
	entry
}

// fresh returns all unexpired entries sorted by insertion order.
func (c *Cache) fresh(now time.Time) []keyedEntry {
	var out []keyedEntry
	for k, e := range c.store.All() {
		if !c.expired(e, now) {
			out = append(out, keyedEntry{key: k, entry: e})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// changed marks the snapshot dirty and persists immediately in write-through mode.
func (c *Cache) changed() {
	if c.observer != nil {
		c.observer.EntriesChanged(c.store.EstimatedSize())
	}
	if c.persister == nil {
		return
	}
	if !c.writeThrough {
		c.dirty.Store(true)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.persist(ctx); err != nil {
		c.dirty.Store(true)
	}
}

// persist writes the current snapshot. Collection and Save happen under
// persistMu so a slower, older snapshot can never overwrite a newer one.
func (c *Cache) persist(ctx context.Context) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	pairs := c.fresh(c.clock.Now())

	var err error
	if len(pairs) == 0 {
		err = c.persister.Remove(ctx, c.snapshotKey)
		if errors.Is(err, catalog.ErrNotFound) {
			err = nil
		}
	} else {
		var data []byte
		data, err = encodeSnapshot(pairs)
		if err == nil {
			err = c.persister.Save(ctx, c.snapshotKey, data)
		}
	}

	if c.observer != nil {
		c.observer.SnapshotWritten(err)
	}
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "cache snapshot write failed",
			slog.String("key", c.snapshotKey),
			slog.Int("entries", len(pairs)),
			slog.String("error", err.Error()),
		)
	}
	return err
}

func (c *Cache) restore(ctx context.Context) {
	if c.persister == nil {
		return
	}
	data, err := c.persister.Load(ctx, c.snapshotKey)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			slog.Warn("cache snapshot load failed, starting empty",
				"key", c.snapshotKey, "error", err)
		}
		return
	}

	pairs, err := decodeSnapshot(data)
	if err != nil {
		slog.Warn("cache snapshot corrupt, starting empty",
			"key", c.snapshotKey, "error", err)
		c.dirty.Store(true)
		return
	}

	now := c.clock.Now()
	restored := 0
	for _, p := range pairs {
		e := entry{
			products: p.Entry.Value,
			storedAt: time.UnixMilli(p.Entry.Timestamp),
			seq:      c.seq.Add(1),
		}
		if c.expired(e, now) {
			continue
		}
		c.store.Set(p.Key, e)
		restored++
	}
	if restored != len(pairs) {
		c.dirty.Store(true)
	}
	if c.observer != nil {
		c.observer.EntriesChanged(restored)
	}
	slog.Info("cache snapshot restored", "entries", restored, "dropped", len(pairs)-restored)
}
