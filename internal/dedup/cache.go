// Package dedup provides a bounded window of recently seen message ids.
// It suppresses redelivery of retried frames; it is a deduplication
// window, not exactly-once delivery.
package dedup

import "sync"

const (
	// DefaultCapacity is the number of ids held before eviction kicks in.
	DefaultCapacity = 1000
	// evictBatch is how many of the oldest ids are dropped at once, so
	// eviction cost is paid rarely instead of on every insert.
	evictBatch = 100
)

// Cache is an insertion-ordered set of message ids with a hard cap.
// Eviction removes the oldest entries in insertion order, not LRU by
// access. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ids      map[string]struct{}
	order    []string
}

// New returns a cache capped at capacity entries. A capacity <= 0 falls
// back to DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		ids:      make(map[string]struct{}, capacity),
	}
}

// Seen reports whether id is currently inside the dedup window.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ids[id]
	return ok
}

// Remember records id. Once remembered, Seen(id) returns true until the
// id ages out of the window.
func (c *Cache) Remember(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ids[id]; ok {
		return
	}
	c.ids[id] = struct{}{}
	c.order = append(c.order, id)

	if len(c.ids) > c.capacity {
		c.evictOldest()
	}
}

// SeenOrRemember atomically checks and records id, returning whether it
// was already present. This is the form the router uses so a concurrent
// replay cannot slip between a Seen and a Remember.
func (c *Cache) SeenOrRemember(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ids[id]; ok {
		return true
	}
	c.ids[id] = struct{}{}
	c.order = append(c.order, id)

	if len(c.ids) > c.capacity {
		c.evictOldest()
	}
	return false
}

// Len returns the current number of remembered ids.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

func (c *Cache) evictOldest() {
	n := evictBatch
	if n > len(c.order) {
		n = len(c.order)
	}
	for _, id := range c.order[:n] {
		delete(c.ids, id)
	}
	c.order = append(c.order[:0], c.order[n:]...)
}
