// Package cache provides a small thread-safe TTL cache. The runner uses
// it to memoize PATH lookups across invocations.
package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time // zero means no expiration
}

func (it item[V]) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && now.After(it.expiresAt)
}

// Cache is a mutex-guarded map with per-item TTL and lazy expiry.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	store      map[K]item[V]
	defaultTTL time.Duration
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithDefaultTTL sets the TTL applied by Set. Zero means no expiration.
func WithDefaultTTL[K comparable, V any](ttl time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.defaultTTL = ttl
	}
}

// NewCache creates an empty cache.
func NewCache[K comparable, V any](opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{store: make(map[K]item[V])}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores v under k with the default TTL.
func (c *Cache[K, V]) Set(k K, v V) {
	c.SetWithTTL(k, v, c.defaultTTL)
}

// SetWithTTL stores v under k. A zero ttl never expires; a negative ttl
// removes the key.
func (c *Cache[K, V]) SetWithTTL(k K, v V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl < 0 {
		delete(c.store, k)
		return
	}
	it := item[V]{value: v}
	if ttl > 0 {
		it.expiresAt = time.Now().Add(ttl)
	}
	c.store[k] = it
}

// Get returns the value under k if present and not expired. Expired
// entries are removed on access.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.store[k]
	if !ok {
		var zero V
		return zero, false
	}
	if it.expired(time.Now()) {
		delete(c.store, k)
		var zero V
		return zero, false
	}
	return it.value, true
}

// Delete removes k.
func (c *Cache[K, V]) Delete(k K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, k)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}
