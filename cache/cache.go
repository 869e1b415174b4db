package cache

import (
	"sync"
	"time"
)

// entry holds a cached value with its expiry.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a bounded in-memory map with per-entry expiry.
// It is safe for concurrent use.
type Cache[V any] struct {
	mu         sync.RWMutex
	store      map[string]*entry[V]
	maxEntries int
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Cache holding at most maxEntries values. A background
// goroutine sweeps expired entries every sweepInterval until Stop is called.
func New[V any](maxEntries int, sweepInterval time.Duration) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	c := &Cache[V]{
		store:      make(map[string]*entry[V]),
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.cleanupLoop(sweepInterval)
	}
	return c
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	var zero V
	if !ok || !c.now().Before(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for ttl. If the cache is at capacity, an
// expired entry is evicted first, otherwise a random one.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.store[key] = &entry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
}

// Len reports the number of stored entries, including expired ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stop ends the background sweep.
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) evictOneLocked() {
	now := c.now()
	for k, e := range c.store {
		if !now.Before(e.expiresAt) {
			delete(c.store, k)
			return
		}
	}
	// Map iteration order is random in Go.
	for k := range c.store {
		delete(c.store, k)
		return
	}
}

// Sweep removes every expired entry.
func (c *Cache[V]) Sweep() {
	now := c.now()
	c.mu.Lock()
	for k, e := range c.store {
		if !now.Before(e.expiresAt) {
			delete(c.store, k)
		}
	}
	c.mu.Unlock()
}

func (c *Cache[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
