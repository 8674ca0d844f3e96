// Package cache provides a process-lifetime in-memory key/value store with
// per-entry expiration. Entries are either present-and-fresh,
// present-and-stale (treated as absent and dropped on read), or absent.
// There is no eviction beyond lazy expiration and no capacity bound.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTL is a mutex-guarded map of keys to timestamped values. Instances are
// constructed and injected by their owners; there is no package-level state.
type TTL[V any] struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	entries    map[string]entry[V]
}

func NewTTL[V any](defaultTTL time.Duration) *TTL[V] {
	return &TTL[V]{
		defaultTTL: defaultTTL,
		entries:    make(map[string]entry[V]),
	}
}

// Get returns the cached value for key if it is younger than the default TTL.
func (c *TTL[V]) Get(key string) (V, bool) {
	return c.GetWithTTL(key, c.defaultTTL)
}

// GetWithTTL is Get with a per-call freshness override. A stale entry is
// removed on read so a subsequent Set is unambiguous.
func (c *TTL[V]) GetWithTTL(key string, ttl time.Duration) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if time.Since(e.storedAt) > ttl {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, storedAt: time.Now()}
}

func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *TTL[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Len reports the number of entries currently stored, stale ones included.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
