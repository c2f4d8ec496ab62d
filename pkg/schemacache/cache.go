// Package schemacache holds the last-known schema snapshot per connection
// key and refreshes it from the schema source on expiry or miss. The cache
// is the only mutable state shared between concurrent pipeline runs.
package schemacache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-data/tessera-engine/pkg/apperrors"
	"github.com/tessera-data/tessera-engine/pkg/models"
)

// FetchFunc fetches a fresh snapshot for a cache key. Implemented by the
// datasource schema fetchers.
type FetchFunc func(ctx context.Context, key string) (*models.SchemaSnapshot, error)

// entry wraps a snapshot with its expiry and a monotonically increasing
// generation counter. Mutated only under the cache mutex by the refresh
// path; the snapshot itself is immutable and safe to hand out.
type entry struct {
	snapshot   *models.SchemaSnapshot
	expiresAt  time.Time
	generation uint64

	// degraded marks an entry whose last refresh failed. Its expiry was
	// extended to hold off a stampede, but callers served within that
	// window must still see the snapshot as stale.
	degraded bool
}

// inflight represents one in-progress refresh. Callers that find a refresh
// underway wait on done instead of fetching again; at most one refresh per
// key is in flight at any time.
type inflight struct {
	done     chan struct{}
	snapshot *models.SchemaSnapshot
	err      error
}

// Cache is a TTL schema cache with per-key single-flight refresh.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	inflight map[string]*inflight

	fetch          FetchFunc
	ttl            time.Duration
	refreshTimeout time.Duration
	persistDir     string
	clock          func() time.Time
	logger         *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the snapshot freshness window (default 300s).
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithRefreshTimeout bounds a single fetch (default 30s).
func WithRefreshTimeout(timeout time.Duration) Option {
	return func(c *Cache) { c.refreshTimeout = timeout }
}

// WithPersistDir enables writing snapshots to disk for warm starts.
func WithPersistDir(dir string) Option {
	return func(c *Cache) { c.persistDir = dir }
}

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) { c.clock = clock }
}

// New creates a schema cache around the given fetch function. If logger is
// nil, a no-op logger is used.
func New(fetch FetchFunc, logger *zap.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		entries:        make(map[string]*entry),
		inflight:       make(map[string]*inflight),
		fetch:          fetch,
		ttl:            300 * time.Second,
		refreshTimeout: 30 * time.Second,
		clock:          time.Now,
		logger:         logger.Named("schemacache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the snapshot for the key. On a fresh hit no external call is
// made. On miss or expiry exactly one refresh runs per key, shared by all
// concurrent callers. If the refresh fails and a stale snapshot exists, the
// stale snapshot is served with stale=true and a nil error (degraded
// operation); with no snapshot at all the failure is propagated.
func (c *Cache) Get(ctx context.Context, key string) (snapshot *models.SchemaSnapshot, stale bool, err error) {
	c.mu.Lock()

	if e, ok := c.entries[key]; ok && c.clock().Before(e.expiresAt) {
		c.mu.Unlock()
		return e.snapshot, e.degraded, nil
	}

	// Join an in-flight refresh if one is already underway for this key.
	if fl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return c.await(ctx, key, fl)
	}

	fl := &inflight{done: make(chan struct{})}
	c.inflight[key] = fl
	c.mu.Unlock()

	// The refresh deliberately runs detached from the caller's context:
	// other concurrent runs may be waiting on it, so one run's
	// cancellation must not abort the shared fetch.
	go c.refresh(key, fl)

	return c.await(ctx, key, fl)
}

// Invalidate drops the entry for a key, forcing the next Get to refresh.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Generation returns the refresh generation for a key (0 if never loaded).
func (c *Cache) Generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.generation
	}
	return 0
}

// await blocks until the in-flight refresh finishes or the caller's
// context is cancelled. Cancellation abandons the wait only; the refresh
// itself keeps running for other callers.
func (c *Cache) await(ctx context.Context, key string, fl *inflight) (*models.SchemaSnapshot, bool, error) {
	select {
	case <-fl.done:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}

	if fl.err == nil {
		return fl.snapshot, false, nil
	}

	// Soft failure: serve the stale entry if we still have one.
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		c.logger.Warn("schema refresh failed, serving stale snapshot",
			zap.String("key", key),
			zap.Time("captured_at", e.snapshot.CapturedAt),
			zap.Error(fl.err))
		return e.snapshot, true, nil
	}

	return nil, false, fmt.Errorf("%w: %v", apperrors.ErrSchemaUnavailable, fl.err)
}

// refresh performs the single fetch for a key and atomically installs the
// new entry. The previous snapshot remains valid for any caller that
// already read it; entries are replaced, never mutated in place.
func (c *Cache) refresh(key string, fl *inflight) {
	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	snapshot, err := c.fetch(ctx, key)

	c.mu.Lock()
	if err == nil {
		var generation uint64 = 1
		if prev, ok := c.entries[key]; ok {
			generation = prev.generation + 1
		}
		c.entries[key] = &entry{
			snapshot:   snapshot,
			expiresAt:  c.clock().Add(c.ttl),
			generation: generation,
		}
		fl.snapshot = snapshot
		c.logger.Debug("schema snapshot refreshed",
			zap.String("key", key),
			zap.Uint64("generation", generation),
			zap.Int("tables", len(snapshot.Tables)))
	} else {
		// A failed refresh extends the stale entry's life briefly so a
		// flapping source does not trigger a refresh stampede. The entry
		// is marked degraded so the window still reads as stale.
		if prev, ok := c.entries[key]; ok {
			prev.expiresAt = c.clock().Add(c.ttl / 10)
			prev.degraded = true
		}
		fl.err = err
	}
	delete(c.inflight, key)
	c.mu.Unlock()

	close(fl.done)

	if err == nil && c.persistDir != "" {
		if persistErr := c.persistSnapshot(key, snapshot); persistErr != nil {
			c.logger.Warn("failed to persist schema snapshot",
				zap.String("key", key), zap.Error(persistErr))
		}
	}
}
