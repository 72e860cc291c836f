// Package cache memoizes match decisions across runs.
//
// A [MatchCache] is opened once per run and closed at the end. Reads are concurrent and served from memory,
// filled lazily from a [Store]. Writes are applied by a single goroutine in the order they were issued, so the
// store never sees concurrent writers even when matching runs in parallel.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/libsync/internal/models"
	"github.com/desertthunder/libsync/internal/shared"
	"github.com/gofrs/flock"
)

const (
	writeQueueSize = 256
	// maxRetryMultiplier caps failure memo backoff at 32x the base delay.
	maxRetryMultiplier = 32
)

// Store is the durable side of the cache.
//
// Load and LoadFailure return [shared.ErrCacheMiss] for absent keys and [shared.ErrCacheCorrupt] for undecodable ones.
type Store interface {
	Check(ctx context.Context) error
	Load(ctx context.Context, key models.CacheKey) (*models.CacheEntry, error)
	Persist(ctx context.Context, entry models.CacheEntry) error
	Delete(ctx context.Context, key models.CacheKey) error
	LoadFailure(ctx context.Context, key models.CacheKey) (*models.FailureEntry, error)
	PersistFailure(ctx context.Context, f models.FailureEntry) error
	DeleteFailure(ctx context.Context, key models.CacheKey) error
}

// Options configures [Open].
type Options struct {
	Store  Store
	Logger *log.Logger
	// LockPath guards the store against a second writing process. Empty disables locking.
	LockPath string
	// RetryFailedAfter is the first delay before a failed entity is searched again. Zero disables the failure memo.
	RetryFailedAfter time.Duration
	Now              func() time.Time
}

// Stats counts cache activity for the run summary.
type Stats struct {
	Hits        int64
	Misses      int64
	Writes      int64
	WriteErrors int64
	Evictions   int64
}

type writeOp struct {
	desc  string
	apply func(ctx context.Context, s Store) error
	done  chan struct{}
}

// MatchCache is the run-scoped view over a [Store].
type MatchCache struct {
	store      Store
	logger     *log.Logger
	lock       *flock.Flock
	retryAfter time.Duration
	now        func() time.Time

	degraded bool
	readOnly bool

	mu       sync.RWMutex
	entries  map[models.CacheKey]*models.CacheEntry // nil value: known absent
	failures map[models.CacheKey]*models.FailureEntry

	sendMu sync.RWMutex
	closed bool
	writes chan writeOp
	done   chan struct{}

	hits, misses, written, writeErrors, evictions atomic.Int64
}

// Open prepares the cache for a run.
//
// A store that fails its integrity check does not fail Open: the cache degrades to always missing and logs a warning.
// When another process holds the lock the cache opens read-only.
func Open(ctx context.Context, opts Options) (*MatchCache, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: match cache needs a store", shared.ErrInvalidConfig)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &MatchCache{
		store:      opts.Store,
		logger:     opts.Logger.WithPrefix("cache"),
		retryAfter: opts.RetryFailedAfter,
		now:        opts.Now,
		entries:    make(map[models.CacheKey]*models.CacheEntry),
		failures:   make(map[models.CacheKey]*models.FailureEntry),
		writes:     make(chan writeOp, writeQueueSize),
		done:       make(chan struct{}),
	}

	if opts.LockPath != "" {
		c.lock = flock.New(opts.LockPath)
		ok, err := c.lock.TryLock()
		switch {
		case err != nil:
			c.logger.Warn("could not lock match cache, opening read-only", "path", opts.LockPath, "err", err)
			c.readOnly, c.lock = true, nil
		case !ok:
			c.logger.Warn("match cache is locked by another process, opening read-only", "path", opts.LockPath)
			c.readOnly, c.lock = true, nil
		}
	}

	if err := c.store.Check(ctx); err != nil {
		c.logger.Warn("match cache unreadable, every lookup will miss", "err", err)
		c.degraded = true
	}

	go c.writer(context.WithoutCancel(ctx))
	return c, nil
}

// Degraded reports whether the cache is running in always-miss mode.
func (c *MatchCache) Degraded() bool { return c.degraded }

// ReadOnly reports whether writes are being dropped because another process owns the store.
func (c *MatchCache) ReadOnly() bool { return c.readOnly }

// Lookup returns the cached entry for key.
//
// Store errors are logged and reported as a miss.
func (c *MatchCache) Lookup(ctx context.Context, t models.EntityType, sourceID string) (models.CacheEntry, bool) {
	if c.degraded {
		c.misses.Add(1)
		return models.CacheEntry{}, false
	}
	key := models.CacheKey{EntityType: t, SourceID: sourceID}

	c.mu.RLock()
	entry, known := c.entries[key]
	c.mu.RUnlock()

	if !known {
		loaded, err := c.store.Load(ctx, key)
		switch {
		case err == nil:
			entry = loaded
		case errors.Is(err, shared.ErrCacheMiss):
		case errors.Is(err, shared.ErrCacheCorrupt):
			c.logger.Warn("ignoring unreadable cache entry", "key", key.String(), "err", err)
		default:
			c.logger.Warn("cache lookup failed", "key", key.String(), "err", err)
			c.misses.Add(1)
			return models.CacheEntry{}, false
		}

		c.mu.Lock()
		if current, raced := c.entries[key]; raced {
			entry = current
		} else {
			c.entries[key] = entry
		}
		c.mu.Unlock()
	}

	if entry == nil {
		c.misses.Add(1)
		return models.CacheEntry{}, false
	}
	c.hits.Add(1)
	return *entry, true
}

// Store upserts entry and clears any failure memo for its key.
//
// The in-memory view changes immediately; persistence happens on the writer goroutine.
func (c *MatchCache) Store(entry models.CacheEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if c.degraded {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = c.now()
	}
	key := entry.Key()

	c.mu.Lock()
	stored := entry
	c.entries[key] = &stored
	c.failures[key] = nil
	c.mu.Unlock()

	c.enqueue("persist "+key.String(), func(ctx context.Context, s Store) error {
		if err := s.Persist(ctx, entry); err != nil {
			return err
		}
		if c.retryAfter > 0 {
			return s.DeleteFailure(ctx, key)
		}
		return nil
	})
	return nil
}

// Evict removes the entry for key, e.g. after the target catalog reported its target as gone.
func (c *MatchCache) Evict(t models.EntityType, sourceID string) {
	if c.degraded {
		return
	}
	key := models.CacheKey{EntityType: t, SourceID: sourceID}

	c.mu.Lock()
	c.entries[key] = nil
	c.mu.Unlock()
	c.evictions.Add(1)

	c.enqueue("evict "+key.String(), func(ctx context.Context, s Store) error {
		return s.Delete(ctx, key)
	})
}

// ShouldSkip reports whether key failed to match recently enough that searching again is pointless.
func (c *MatchCache) ShouldSkip(ctx context.Context, t models.EntityType, sourceID string) bool {
	if c.degraded || c.retryAfter <= 0 {
		return false
	}
	memo := c.failure(ctx, models.CacheKey{EntityType: t, SourceID: sourceID})
	return memo != nil && c.now().Before(memo.NextRetry)
}

// RecordFailure remembers that key could not be matched. Repeated failures double the delay.
func (c *MatchCache) RecordFailure(ctx context.Context, t models.EntityType, sourceID string) {
	if c.degraded || c.retryAfter <= 0 {
		return
	}
	key := models.CacheKey{EntityType: t, SourceID: sourceID}

	delay := c.retryAfter
	if prev := c.failure(ctx, key); prev != nil {
		if d := 2 * prev.NextRetry.Sub(prev.InsertedAt); d > delay {
			delay = min(d, c.retryAfter*maxRetryMultiplier)
		}
	}

	now := c.now()
	memo := models.FailureEntry{EntityType: t, SourceID: sourceID, InsertedAt: now, NextRetry: now.Add(delay)}

	c.mu.Lock()
	c.failures[key] = &memo
	c.mu.Unlock()

	c.enqueue("failure "+key.String(), func(ctx context.Context, s Store) error {
		return s.PersistFailure(ctx, memo)
	})
}

func (c *MatchCache) failure(ctx context.Context, key models.CacheKey) *models.FailureEntry {
	c.mu.RLock()
	memo, known := c.failures[key]
	c.mu.RUnlock()
	if known {
		return memo
	}

	loaded, err := c.store.LoadFailure(ctx, key)
	if err != nil && !errors.Is(err, shared.ErrCacheMiss) {
		c.logger.Warn("failure memo lookup failed", "key", key.String(), "err", err)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if current, raced := c.failures[key]; raced {
		return current
	}
	c.failures[key] = loaded
	return loaded
}

// Flush blocks until every write issued so far has been applied.
func (c *MatchCache) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !c.enqueueOp(writeOp{desc: "flush", done: done}) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains pending writes, stops the writer and releases the lock. It is safe to call more than once.
func (c *MatchCache) Close() error {
	c.sendMu.Lock()
	if c.closed {
		c.sendMu.Unlock()
		return nil
	}
	c.closed = true
	close(c.writes)
	c.sendMu.Unlock()

	<-c.done

	if c.lock != nil {
		if err := c.lock.Unlock(); err != nil {
			return fmt.Errorf("failed to release cache lock: %w", err)
		}
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (c *MatchCache) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Writes:      c.written.Load(),
		WriteErrors: c.writeErrors.Load(),
		Evictions:   c.evictions.Load(),
	}
}

func (c *MatchCache) enqueue(desc string, apply func(context.Context, Store) error) {
	if c.readOnly {
		c.logger.Debug("read-only cache, dropping write", "op", desc)
		return
	}
	if !c.enqueueOp(writeOp{desc: desc, apply: apply}) {
		c.logger.Warn("cache closed, dropping write", "op", desc)
	}
}

func (c *MatchCache) enqueueOp(op writeOp) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return false
	}
	c.writes <- op
	return true
}

// writer is the only goroutine that mutates the store.
func (c *MatchCache) writer(ctx context.Context) {
	defer close(c.done)
	for op := range c.writes {
		if op.apply == nil {
			close(op.done)
			continue
		}
		if err := op.apply(ctx, c.store); err != nil {
			c.writeErrors.Add(1)
			c.logger.Warn("cache write failed, continuing without persistence", "op", op.desc, "err", err)
			continue
		}
		c.written.Add(1)
	}
}
