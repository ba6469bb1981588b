// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/riskgrid/internal/metrics"
)

// lruEntry is a node of the recency list.
type lruEntry struct {
	key       string
	data      []byte
	expiresAt time.Time
	prev      *lruEntry
	next      *lruEntry
}

// LRUCache is a fixed-capacity in-process tile cache. The most recently
// used tile sits right after head; eviction takes the node before tail.
// A zero ttl disables expiry.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*lruEntry
	head     *lruEntry
	tail     *lruEntry

	hits      int64
	misses    int64
	evictions int64
}

var _ TileCache = (*LRUCache)(nil)

// NewLRUCache creates an LRU cache holding at most capacity tiles.
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	if capacity < 1 {
		capacity = 1
	}
	head := &lruEntry{}
	tail := &lruEntry{}
	head.next = tail
	tail.prev = head
	return &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*lruEntry, capacity),
		head:     head,
		tail:     tail,
	}
}

// Name identifies the backend in metrics and health output.
func (c *LRUCache) Name() string { return BackendMemory }

// Get returns the tile stored under key. Expired tiles count as misses
// and are dropped.
func (c *LRUCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		metrics.RecordTileCache(BackendMemory, false)
		return nil, false, nil
	}
	if c.ttl > 0 && time.Now().After(e.expiresAt) {
		c.removeEntry(e)
		c.misses++
		metrics.RecordTileCache(BackendMemory, false)
		return nil, false, nil
	}
	c.moveToFront(e)
	c.hits++
	metrics.RecordTileCache(BackendMemory, true)
	return e.data, true, nil
}

// Set stores a tile, evicting the least recently used one when full.
func (c *LRUCache) Set(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := time.Time{}
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}
	if e, ok := c.items[key]; ok {
		e.data = data
		e.expiresAt = expires
		c.moveToFront(e)
		return nil
	}
	if len(c.items) >= c.capacity {
		c.evictOldest()
	}
	e := &lruEntry{key: key, data: data, expiresAt: expires}
	c.items[key] = e
	c.addToFront(e)
	return nil
}

// Invalidate drops every tile.
func (c *LRUCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*lruEntry, c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head
	return nil
}

// Ping always succeeds for the in-process cache.
func (c *LRUCache) Ping(context.Context) error { return nil }

// Close is a no-op.
func (c *LRUCache) Close() error { return nil }

// Len returns the number of stored tiles, expired ones included.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CleanupExpired removes expired tiles and returns how many were dropped.
func (c *LRUCache) CleanupExpired() int {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for e := c.tail.prev; e != c.head; {
		prev := e.prev
		if now.After(e.expiresAt) {
			c.removeEntry(e)
			removed++
		}
		e = prev
	}
	return removed
}

// LRUStats is a snapshot of cache counters.
type LRUStats struct {
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Stats returns current counters.
func (c *LRUCache) Stats() LRUStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := LRUStats{
		Size:      len(c.items),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *LRUCache) addToFront(e *lruEntry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *LRUCache) moveToFront(e *lruEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	c.addToFront(e)
}

func (c *LRUCache) removeEntry(e *lruEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(c.items, e.key)
}

func (c *LRUCache) evictOldest() {
	if oldest := c.tail.prev; oldest != c.head {
		c.removeEntry(oldest)
		c.evictions++
	}
}
