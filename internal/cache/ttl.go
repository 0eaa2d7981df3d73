// Package cache provides the engine's bounded in-memory caches, the optional
// shared Redis tier, and the tenant credential cache built on top of them.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Config bounds a TTLCache.
type Config struct {
	TTL        time.Duration
	MaxEntries int

	// Now overrides the clock. Tests use it to step past expiry deterministically.
	Now func() time.Time
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a mutex-guarded map with per-entry expiry and a size bound.
// When full, the entry inserted longest ago is evicted first. Expired entries
// are never returned.
type TTLCache[V any] struct {
	mu          sync.Mutex
	ttl         time.Duration
	maxEntries  int
	now         func() time.Time
	entries     map[string]*entry[V]
	insertOrder []string // oldest first

	group singleflight.Group
}

// New creates a TTLCache. A zero MaxEntries means unbounded.
func New[V any](cfg Config) *TTLCache[V] {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TTLCache[V]{
		ttl:         cfg.TTL,
		maxEntries:  cfg.MaxEntries,
		now:         now,
		entries:     make(map[string]*entry[V]),
		insertOrder: make([]string, 0, max(cfg.MaxEntries, 0)),
	}
}

// Get returns the value for key if present and not expired.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		c.removeLocked(key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the cache's default TTL.
func (c *TTLCache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit TTL.
// Re-setting a key counts as a fresh insertion for eviction purposes.
func (c *TTLCache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.removeLocked(key)
	}
	for c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = &entry[V]{value: value, expiresAt: c.now().Add(ttl)}
	c.insertOrder = append(c.insertOrder, key)
}

// TTL returns how long key has left, or false if it is absent or expired.
func (c *TTLCache[V]) TTL(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	left := e.expiresAt.Sub(c.now())
	if left <= 0 {
		c.removeLocked(key)
		return 0, false
	}
	return left, true
}

// GetOrLoad returns the cached value or calls load once, even when many
// goroutines miss on the same key at the same time. Load errors are not cached.
func (c *TTLCache[V]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent caller may have filled the entry while we waited.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Delete removes key.
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops expired entries and returns how many were removed.
func (c *TTLCache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			c.removeLocked(key)
			removed++
		}
	}
	return removed
}

// Clear removes all entries.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
	c.insertOrder = c.insertOrder[:0]
}

func (c *TTLCache[V]) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.insertOrder {
		if k == key {
			c.insertOrder = append(c.insertOrder[:i], c.insertOrder[i+1:]...)
			return
		}
	}
}

func (c *TTLCache[V]) evictOldestLocked() {
	if len(c.insertOrder) == 0 {
		return
	}
	oldest := c.insertOrder[0]
	c.insertOrder = c.insertOrder[1:]
	delete(c.entries, oldest)
}
