// Package cache provides a simple in-memory TTL cache.
// It backs the rendered-prompt cache and the per-client rate limiters.
package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// InMemory is a thread-safe in-memory cache with TTL.
type InMemory[T any] struct {
	mu    sync.RWMutex
	items map[string]entry[T]
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
}

// New creates a new in-memory cache with the given TTL.
// Call Close to stop the background cleanup goroutine.
func New[T any](ttl time.Duration) *InMemory[T] {
	c := &InMemory[T]{
		items: make(map[string]entry[T]),
		ttl:   ttl,
		done:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get retrieves a value from the cache. Returns false if not found or expired.
func (c *InMemory[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores a value in the cache with the configured TTL.
func (c *InMemory[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[T]{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// GetOrCreate returns the live value for key, or stores and returns create().
// The second result is true when the value came from the cache.
// create runs under the write lock, so concurrent callers get one value.
func (c *InMemory[T]) GetOrCreate(key string, create func() T) (T, bool) {
	if v, ok := c.Get(key); ok {
		return v, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, ok := c.items[key]; ok && !now.After(e.expiresAt) {
		return e.value, true
	}
	v := create()
	c.items[key] = entry[T]{value: v, expiresAt: now.Add(c.ttl)}
	return v, false
}

// Delete removes a value from the cache.
func (c *InMemory[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *InMemory[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the cleanup goroutine. The cache stays usable.
func (c *InMemory[T]) Close() {
	c.once.Do(func() { close(c.done) })
}

// cleanup periodically removes expired entries.
func (c *InMemory[T]) cleanup() {
	interval := c.ttl
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		now := time.Now()
		for k, v := range c.items {
			if now.After(v.expiresAt) {
				delete(c.items, k)
			}
		}
		c.mu.Unlock()
	}
}
