// Package cache provides a generic, concurrency-safe TTL+LRU cache used to
// front slow-changing admin/metadata lookups (subscriptions, resource
// groups, namespaces, connection strings, queue statistics). Entries expire
// on their own TTL and are additionally bounded by an LRU ceiling so a long
// session never grows the cache without limit.
//
// Usage:
//
//	c := cache.New[string, Subscriptions](cache.Config{MaxEntries: 1000})
//	c.Set("subs", subs, 5*time.Minute)
//	v, ok := c.Get("subs")
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Config bounds a Cache's footprint.
type Config struct {
	// MaxEntries caps the number of live entries; once exceeded, the least
	// recently used entry is evicted regardless of its remaining TTL.
	MaxEntries int `env:"RESOURCE_CACHE_MAX_ENTRIES" env-default:"1000"`
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a TTL+LRU cache keyed by a comparable type K.
type Cache[K comparable, V any] struct {
	mu  sync.Mutex
	lru *lru.Cache[K, entry[V]]
}

// New creates a Cache bounded by cfg.MaxEntries (default 1000 if unset).
func New[K comparable, V any](cfg Config) *Cache[K, V] {
	max := cfg.MaxEntries
	if max <= 0 {
		max = 1000
	}
	l, _ := lru.New[K, entry[V]](max)
	return &Cache[K, V]{lru: l}
}

// Get returns the cached value for key if present and not expired. A hit on
// an expired entry is treated as a miss and the entry is purged.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the given ttl. A zero ttl means the entry
// never expires on its own (it can still be evicted by the LRU bound).
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	c.lru.Add(key, entry[V]{value: value, expiresAt: expiresAt})
}

// Invalidate removes key unconditionally. A miss is not an error.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// InvalidateAll clears every entry.
func (c *Cache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len reports the number of entries currently retained (including any that
// have expired but have not yet been purged by a Get).
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
