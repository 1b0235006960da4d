package memory

import (
	"context"
	"sync"
	"time"

	"chronicle/internal/audit"
	"chronicle/internal/audit/metrics"
	"chronicle/internal/pending"
)

// DefaultTTL bounds how long an orphaned entry may linger before the sweep
// drops it. Entries are normally consumed within one unit of work; anything
// older than this was abandoned by a failed or cancelled write.
const DefaultTTL = 2 * time.Minute

type entry struct {
	before   audit.Snapshot
	stagedAt time.Time
}

// Cache is the in-process pending store: a mutex-guarded map with unit-scoped
// release plus a TTL sweep as backstop for units that never release.
type Cache struct {
	mu      sync.Mutex
	entries map[pending.Key]entry
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the orphan-eviction TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithMetrics wires eviction counting.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache constructs an empty in-memory pending cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[pending.Key]entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Stage stores a before-snapshot (nil marks "no prior state") under the key.
// Re-staging the same key overwrites: within one unit the later pre-hook is
// the one whose post-hook will consume.
func (c *Cache) Stage(_ context.Context, key pending.Key, before audit.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	c.entries[key] = entry{before: before.Clone(), stagedAt: c.now()}
	return nil
}

// Consume atomically reads and removes the entry for the key.
func (c *Cache) Consume(_ context.Context, key pending.Key) (audit.Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	delete(c.entries, key)
	return e.before, true, nil
}

// ReleaseUnit drops every entry staged by the given unit of work. Called from
// a deferred middleware hook so orphans from failed writes never leak into a
// later unit.
func (c *Cache) ReleaseUnit(_ context.Context, unitID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.UnitID == unitID {
			delete(c.entries, key)
			c.metrics.IncrementPendingEviction()
		}
	}
	return nil
}

// Len reports the number of staged entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) sweepLocked() {
	if c.ttl <= 0 {
		return
	}
	cutoff := c.now().Add(-c.ttl)
	for key, e := range c.entries {
		if e.stagedAt.Before(cutoff) {
			delete(c.entries, key)
			c.metrics.IncrementPendingEviction()
		}
	}
}
