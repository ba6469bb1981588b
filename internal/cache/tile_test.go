// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/riskgrid/internal/analytics"
	"github.com/tomtom215/riskgrid/internal/config"
)

func TestTileKey(t *testing.T) {
	day := time.Date(2024, 5, 7, 13, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		day    time.Time
		levels []analytics.RiskLevel
		want   string
	}{
		{"no filters", time.Time{}, nil, "tile:10:518:352:all:all"},
		{"day only", day, nil, "tile:10:518:352:2024-05-07:all"},
		{
			"levels sorted",
			day,
			[]analytics.RiskLevel{analytics.RiskHigh, analytics.RiskCritical},
			"tile:10:518:352:2024-05-07:critical,high",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TileKey(10, 518, 352, tt.day, tt.levels); got != tt.want {
				t.Errorf("TileKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTileKey_LevelOrderIndependent(t *testing.T) {
	a := TileKey(3, 1, 2, time.Time{}, []analytics.RiskLevel{analytics.RiskLow, analytics.RiskMedium})
	b := TileKey(3, 1, 2, time.Time{}, []analytics.RiskLevel{analytics.RiskMedium, analytics.RiskLow})
	if a != b {
		t.Errorf("Expected equal keys, got %q and %q", a, b)
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	tests := []struct {
		backend string
		want    string
	}{
		{config.CacheMemory, BackendMemory},
		{"", BackendMemory},
		{config.CacheNone, BackendNone},
	}
	for _, tt := range tests {
		c, err := New(&config.CacheConfig{Backend: tt.backend, Capacity: 10, TTL: time.Minute})
		if err != nil {
			t.Fatalf("New(%q): %v", tt.backend, err)
		}
		if c.Name() != tt.want {
			t.Errorf("New(%q).Name() = %q, want %q", tt.backend, c.Name(), tt.want)
		}
	}

	if _, err := New(&config.CacheConfig{Backend: "memcached"}); err == nil {
		t.Error("Expected error for unknown backend")
	}
	if _, err := New(&config.CacheConfig{Backend: config.CacheRedis, RedisURL: "://bad"}); err == nil {
		t.Error("Expected error for invalid redis url")
	}
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var c TileCache = Noop{}
	if err := c.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("Noop cache must never hit")
	}
}

func TestQueryCache(t *testing.T) {
	c := NewQueryCache(50*time.Millisecond, 0)
	defer c.Stop()

	key := QueryKey("risk_by_date", map[string]string{"date": "2024-05-07"})
	if key != QueryKey("risk_by_date", map[string]string{"date": "2024-05-07"}) {
		t.Fatal("QueryKey must be deterministic")
	}
	if key == QueryKey("hotspots", map[string]string{"date": "2024-05-07"}) {
		t.Fatal("QueryKey must include the method")
	}

	c.Set(key, []string{"row"})
	if v, ok := c.Get(key); !ok || len(v.([]string)) != 1 {
		t.Fatalf("Expected hit, got %v %v", v, ok)
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Error("Expected entry to expire")
	}

	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()
	if _, ok := c.Get("a"); ok {
		t.Error("Expected Clear to drop entries")
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 2 || s.Keys != 0 {
		t.Errorf("Unexpected stats %+v", s)
	}
	c.Stop()
}
