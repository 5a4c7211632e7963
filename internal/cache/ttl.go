package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTL is an in-memory map whose entries expire after a fixed duration.
type TTL[K comparable, V any] struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	items map[K]entry[V]
}

// NewTTL returns a cache holding entries for ttl. Non-positive values default to
// one minute.
func NewTTL[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TTL[K, V]{ttl: ttl, now: time.Now, items: make(map[K]entry[V])}
}

// Get returns the live value for key.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key and drops expired entries.
func (c *TTL[K, V]) Set(key K, value V) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.items {
		if !now.Before(e.expires) {
			delete(c.items, k)
		}
	}
	c.items[key] = entry[V]{value: value, expires: now.Add(c.ttl)}
}

// Len reports the number of stored entries, expired or not.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
