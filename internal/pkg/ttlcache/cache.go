// Package ttlcache memoizes remote lookups for a fixed time window.
package ttlcache

import (
	"sync"
	"time"
)

// DefaultTTL is the lifetime of a weather lookup.
const DefaultTTL = 900 * time.Second

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Stats counts lookups served from memory and from the fetch function.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// Cache is a process-wide TTL memo. Entries are only dropped when they are
// found expired; there is no explicit invalidation.
//
// Concurrent misses on the same key each call fetch; the last write wins.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration
	clock   Clock

	hits   uint64
	misses uint64

	// OnLookup, when set, is told the outcome of every Get.
	OnLookup func(key string, hit bool)
}

// Option configures a Cache.
type Option func(*cacheOptions)

type cacheOptions struct {
	clock Clock
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(o *cacheOptions) { o.clock = c }
}

// New creates a cache whose entries live for ttl.
func New[V any](ttl time.Duration, opts ...Option) *Cache[V] {
	o := cacheOptions{clock: systemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		clock:   o.clock,
	}
}

// Get returns the value stored under key if it is younger than the TTL.
// Otherwise it calls fetch, stores whatever it returns and returns it.
func (c *Cache[V]) Get(key string, fetch func() V) V {
	now := c.clock.Now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && now.Sub(e.storedAt) < c.ttl {
		c.record(key, true)
		return e.value
	}

	c.record(key, false)
	v := fetch()

	c.mu.Lock()
	c.entries[key] = entry[V]{value: v, storedAt: c.clock.Now()}
	c.mu.Unlock()

	return v
}

// TTL returns the configured entry lifetime.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Stats returns a snapshot of cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}

func (c *Cache[V]) record(key string, hit bool) {
	c.mu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	if c.OnLookup != nil {
		c.OnLookup(key, hit)
	}
}
