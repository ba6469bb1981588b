// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func mustGet(t *testing.T, c *LRUCache, key string) ([]byte, bool) {
	t.Helper()
	data, ok, err := c.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%q) returned error: %v", key, err)
	}
	return data, ok
}

func mustSet(t *testing.T, c *LRUCache, key string, data []byte) {
	t.Helper()
	if err := c.Set(context.Background(), key, data); err != nil {
		t.Fatalf("Set(%q) returned error: %v", key, err)
	}
}

func TestLRUCache_BasicOperations(t *testing.T) {
	c := NewLRUCache(3, time.Minute)

	mustSet(t, c, "a", []byte("tile-a"))
	mustSet(t, c, "b", []byte("tile-b"))
	mustSet(t, c, "c", []byte("tile-c"))

	data, ok := mustGet(t, c, "a")
	if !ok {
		t.Fatal("Expected to find key 'a'")
	}
	if string(data) != "tile-a" {
		t.Errorf("Expected tile-a, got %q", data)
	}
	if c.Len() != 3 {
		t.Errorf("Expected len 3, got %d", c.Len())
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache(3, time.Minute)

	mustSet(t, c, "a", nil)
	mustSet(t, c, "b", nil)
	mustSet(t, c, "c", nil)

	// 'a' becomes most recently used, so 'b' is the eviction candidate.
	mustGet(t, c, "a")
	mustSet(t, c, "d", nil)

	if _, ok := mustGet(t, c, "b"); ok {
		t.Error("Expected 'b' to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := mustGet(t, c, key); !ok {
			t.Errorf("Expected %q to be present", key)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Expected 1 eviction, got %d", got)
	}
}

func TestLRUCache_UpdateRefreshesRecency(t *testing.T) {
	c := NewLRUCache(2, time.Minute)

	mustSet(t, c, "a", []byte("1"))
	mustSet(t, c, "b", []byte("1"))
	mustSet(t, c, "a", []byte("2"))
	mustSet(t, c, "c", []byte("1"))

	if _, ok := mustGet(t, c, "b"); ok {
		t.Error("Expected 'b' to be evicted after 'a' was rewritten")
	}
	data, ok := mustGet(t, c, "a")
	if !ok || string(data) != "2" {
		t.Errorf("Expected updated value for 'a', got %q (found=%v)", data, ok)
	}
}

func TestLRUCache_TTLExpiration(t *testing.T) {
	c := NewLRUCache(10, 50*time.Millisecond)
	mustSet(t, c, "a", []byte("x"))

	if _, ok := mustGet(t, c, "a"); !ok {
		t.Fatal("Expected to find key 'a' immediately")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := mustGet(t, c, "a"); ok {
		t.Error("Expected key 'a' to expire")
	}
	if c.Len() != 0 {
		t.Errorf("Expected expired entry to be dropped, len=%d", c.Len())
	}
}

func TestLRUCache_CleanupExpired(t *testing.T) {
	c := NewLRUCache(10, 50*time.Millisecond)
	mustSet(t, c, "a", nil)
	mustSet(t, c, "b", nil)
	time.Sleep(60 * time.Millisecond)
	mustSet(t, c, "c", nil)

	if removed := c.CleanupExpired(); removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 remaining, got %d", c.Len())
	}
}

func TestLRUCache_Invalidate(t *testing.T) {
	c := NewLRUCache(5, time.Minute)
	mustSet(t, c, "a", nil)
	mustSet(t, c, "b", nil)

	if err := c.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Expected empty cache, len=%d", c.Len())
	}
	// The list must still be usable after a reset.
	mustSet(t, c, "c", []byte("ok"))
	if _, ok := mustGet(t, c, "c"); !ok {
		t.Error("Expected 'c' after invalidate")
	}
}

func TestLRUCache_Stats(t *testing.T) {
	c := NewLRUCache(5, time.Minute)
	mustSet(t, c, "a", nil)
	mustGet(t, c, "a")
	mustGet(t, c, "a")
	mustGet(t, c, "missing")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Errorf("Expected 2 hits / 1 miss, got %d / %d", s.Hits, s.Misses)
	}
	if s.HitRate < 0.66 || s.HitRate > 0.67 {
		t.Errorf("Unexpected hit rate %f", s.HitRate)
	}
	if s.Capacity != 5 || s.Size != 1 {
		t.Errorf("Unexpected size/capacity %d/%d", s.Size, s.Capacity)
	}
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	c := NewLRUCache(50, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%75)
				_ = c.Set(ctx, key, []byte(key))
				_, _, _ = c.Get(ctx, key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Cache exceeded capacity: %d", c.Len())
	}
}
