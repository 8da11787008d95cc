// Package dedupe holds bounded, expiring in-memory caches shared by the
// ingest worker (redelivered posts) and the embedding provider (vectors per
// content hash).
package dedupe

import (
	"sync"
	"time"
)

type entry struct {
	key string
	ts  time.Time
	seq uint64
}

type slot[V any] struct {
	value V
	ts    time.Time
	seq   uint64
}

// Cache keeps a fixed number of recently stored values. Entries expire after
// ttl and the oldest entries are evicted once capacity is exceeded.
type Cache[V any] struct {
	mu       sync.Mutex
	items    map[string]slot[V]
	order    []entry
	capacity int
	ttl      time.Duration
	seq      uint64
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache[V]{
		items:    make(map[string]slot[V], capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.items[key]; ok && now.Sub(s.ts) <= c.ttl {
		return s.value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key, refreshing its age.
func (c *Cache[V]) Put(key string, value V) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.items[key] = slot[V]{value: value, ts: now, seq: c.seq}
	c.order = append(c.order, entry{key: key, ts: now, seq: c.seq})
	c.compact(now)
}

// IsSeen returns true when the key has already been observed inside the ttl window.
// It does not mark the key as seen; use MarkSeen() to record a key.
func (c *Cache[V]) IsSeen(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// MarkSeen records that a key has been processed.
func (c *Cache[V]) MarkSeen(key string) {
	var zero V
	c.Put(key, zero)
}

// Len reports the number of stored entries, expired ones included until the
// next write compacts them.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[V]) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		if s, ok := c.items[oldest.key]; ok {
			if s.seq == oldest.seq {
				delete(c.items, oldest.key)
			}
		}
	}
}
