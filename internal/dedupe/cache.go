// ABOUTME: Thread-safe TTL cache for suppressing duplicate message delivery.
// ABOUTME: Used on the realtime path where history replay can overlap live fan-out.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the background sweeper removes
// expired entries when no interval is given to New.
const DefaultSweepInterval = time.Minute

// record holds when a key was observed and its position in the
// insertion-order list.
type record struct {
	observedAt time.Time
	element    *list.Element
}

// Cache tracks message IDs that have already been delivered on a
// connection so a message replayed from history and then received
// again from live fan-out reaches the client once. Entries expire
// after a TTL and the cache is bounded, evicting the oldest entry
// when full. Eviction is O(1) via an insertion-order list.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*record
	order   *list.List // oldest key at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum entry count and
// starts a background sweeper. sweepInterval <= 0 selects
// DefaultSweepInterval.
func New(ttl time.Duration, maxSize int, sweepInterval time.Duration) *Cache {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	c := &Cache{
		entries: make(map[string]*record),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep(sweepInterval)
	return c
}

// Observe atomically records a key and reports whether it is new.
// It returns true the first time a key is seen within the TTL and
// false for repeats. The check and the record happen under one lock
// so concurrent observers of the same key cannot both see it as new.
func (c *Cache) Observe(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.entries[key]; ok && time.Since(rec.observedAt) < c.ttl {
		rec.observedAt = time.Now()
		c.order.MoveToBack(rec.element)
		return false
	}
	c.recordLocked(key)
	return true
}

// Contains reports whether the key has been observed and is not expired.
func (c *Cache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.entries[key]
	if !ok {
		return false
	}
	return time.Since(rec.observedAt) < c.ttl
}

// recordLocked inserts or refreshes a key. Must be called with mu held.
func (c *Cache) recordLocked(key string) {
	now := time.Now()

	if rec, exists := c.entries[key]; exists {
		rec.observedAt = now
		c.order.MoveToBack(rec.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &record{observedAt: now, element: elem}
}

// evictOldestLocked removes the entry at the front of the insertion
// order. Must be called with mu held.
func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// sweep periodically drops expired entries until Close is called.
func (c *Cache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

// removeExpired deletes every entry older than the TTL.
func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, rec := range c.entries {
		if now.Sub(rec.observedAt) > c.ttl {
			c.order.Remove(rec.element)
			delete(c.entries, key)
		}
	}
}

// Close stops the background sweeper. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
