// Package cache provides a bounded least-recently-used cache with optional
// time-based eviction.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/jonboulle/clockwork"
)

// SweepInterval is how often owners of a cache with a ttl should call
// EvictExpired.
const SweepInterval = 10 * time.Second

type entry[V any] struct {
	value     V
	touchedAt time.Time
}

// Cache maps keys to values, bounded by capacity. Recency order is kept by
// simplelru; each entry carries the time it was last touched so expired
// entries can be swept from the oldest end.
//
// Every operation runs under a single mutex. The eviction callback is
// invoked while that mutex is held and must not call back into the cache.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[K, *entry[V]]
	capacity int
	ttl      time.Duration
	onEvict  func(V)
	clock    clockwork.Clock
}

// New creates a cache holding at most capacity entries. A ttl of zero
// disables time-based eviction. onEvict may be nil.
func New[K comparable, V any](capacity int, ttl time.Duration, onEvict func(V), clock clockwork.Clock) *Cache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	// Eviction is driven here rather than through simplelru's callback,
	// which also fires on Remove and Purge.
	l, _ := simplelru.NewLRU[K, *entry[V]](capacity, nil) // Can only error if size is not positive
	return &Cache[K, V]{
		lru:      l,
		capacity: capacity,
		ttl:      ttl,
		onEvict:  onEvict,
		clock:    clock,
	}
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}

	e.touchedAt = c.clock.Now()
	return e.value, true
}

// Put inserts or replaces the value for key and marks it most recently used.
// Inserting into a full cache evicts the least recently used entry first.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if e, ok := c.lru.Get(key); ok {
		e.value = value
		e.touchedAt = now
		return
	}

	if c.lru.Len() >= c.capacity {
		c.evictOldest()
	}
	c.lru.Add(key, &entry[V]{value: value, touchedAt: now})
}

// Remove deletes key without invoking the eviction callback.
func (c *Cache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// ContainsKey reports whether key is present. It does not affect recency.
func (c *Cache[K, V]) ContainsKey(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(key)
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Clear drops every entry without invoking the eviction callback.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// EvictExpired walks from the least recently used end and evicts entries
// untouched for longer than the ttl. It stops at the first fresh entry and
// returns the number evicted.
func (c *Cache[K, V]) EvictExpired() int {
	if c.ttl <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for {
		_, oldest, ok := c.lru.GetOldest()
		if !ok || now.Sub(oldest.touchedAt) <= c.ttl {
			return evicted
		}
		c.evictOldest()
		evicted++
	}
}

// evictOldest removes the least recently used entry and hands its value to
// the callback. The caller holds c.mu.
func (c *Cache[K, V]) evictOldest() {
	_, e, ok := c.lru.RemoveOldest()
	if ok && c.onEvict != nil {
		c.onEvict(e.value)
	}
}
