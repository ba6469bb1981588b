// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/riskgrid/internal/metrics"
)

const queryCacheName = "query"

type queryEntry struct {
	data      any
	expiresAt time.Time
}

// QueryCache holds decoded view query results (risk by date, hotspots)
// between refreshes. Entries expire after the TTL and the whole cache is
// cleared whenever the risk view is rebuilt.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string]queryEntry
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once

	statsMu     sync.Mutex
	stats       QueryStats
	lastCleanup time.Time
}

// QueryStats tracks cache performance.
type QueryStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Keys      int64 `json:"keys"`
}

// NewQueryCache starts a cache with a background sweep every cleanup
// interval. Call Stop to end the sweep.
func NewQueryCache(ttl, cleanup time.Duration) *QueryCache {
	c := &QueryCache{
		entries:     make(map[string]queryEntry),
		ttl:         ttl,
		stop:        make(chan struct{}),
		lastCleanup: time.Now(),
	}
	if cleanup > 0 {
		go c.cleanupLoop(cleanup)
	}
	return c
}

// Get returns the cached value for key.
func (c *QueryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.record(func(s *QueryStats) { s.Misses++ })
		metrics.RecordTileCache(queryCacheName, false)
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		n := int64(len(c.entries))
		c.mu.Unlock()
		c.record(func(s *QueryStats) { s.Misses++; s.Evictions++; s.Keys = n })
		metrics.RecordTileCache(queryCacheName, false)
		return nil, false
	}
	c.record(func(s *QueryStats) { s.Hits++ })
	metrics.RecordTileCache(queryCacheName, true)
	return e.data, true
}

// Set stores value under key for the cache TTL.
func (c *QueryCache) Set(key string, value any) {
	c.mu.Lock()
	c.entries[key] = queryEntry{data: value, expiresAt: time.Now().Add(c.ttl)}
	n := int64(len(c.entries))
	c.mu.Unlock()
	c.record(func(s *QueryStats) { s.Keys = n })
}

// Clear drops every entry.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	n := int64(len(c.entries))
	c.entries = make(map[string]queryEntry)
	c.mu.Unlock()
	c.record(func(s *QueryStats) { s.Evictions += n; s.Keys = 0 })
}

// Stats returns a snapshot of the counters.
func (c *QueryCache) Stats() QueryStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Stop ends the background sweep. Safe to call more than once.
func (c *QueryCache) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *QueryCache) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

func (c *QueryCache) cleanup() {
	now := time.Now()
	c.mu.Lock()
	var evicted int64
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	n := int64(len(c.entries))
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.Evictions += evicted
	c.stats.Keys = n
	c.lastCleanup = now
	c.statsMu.Unlock()
}

func (c *QueryCache) record(fn func(*QueryStats)) {
	c.statsMu.Lock()
	fn(&c.stats)
	c.statsMu.Unlock()
}

// QueryKey hashes the JSON form of params into a compact key.
func QueryKey(method string, params any) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", method, params)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", method, sum[:16])
}
