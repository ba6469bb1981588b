// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

// Package cache stores rendered vector tiles between view refreshes.
//
// Three backends implement TileCache: an in-process LRU (the default), a
// Redis cache guarded by a circuit breaker, and a no-op cache. A failing
// cache never fails a tile request; callers render uncached instead.
package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/riskgrid/internal/analytics"
	"github.com/tomtom215/riskgrid/internal/config"
)

// Backend names.
const (
	BackendMemory = config.CacheMemory
	BackendRedis  = config.CacheRedis
	BackendNone   = config.CacheNone
)

// TileCache stores encoded tiles by key.
type TileCache interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
	// Invalidate drops every cached tile. Called after each view refresh.
	Invalidate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// keyPrefix namespaces tile keys so Invalidate can scan for them.
const keyPrefix = "tile:"

// TileKey builds tile:{z}:{x}:{y}:{date}:{levels}. A zero day is written as
// "all"; levels are sorted so equivalent filters share a key.
func TileKey(z, x, y int, day time.Time, levels []analytics.RiskLevel) string {
	date := "all"
	if !day.IsZero() {
		date = day.UTC().Format(analytics.DateLayout)
	}
	lv := "all"
	if len(levels) > 0 {
		names := make([]string, len(levels))
		for i, l := range levels {
			names[i] = string(l)
		}
		sort.Strings(names)
		lv = strings.Join(names, ",")
	}
	return fmt.Sprintf("%s%d:%d:%d:%s:%s", keyPrefix, z, x, y, date, lv)
}

// Noop never stores anything.
type Noop struct{}

var _ TileCache = Noop{}

func (Noop) Name() string                                      { return BackendNone }
func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte) error         { return nil }
func (Noop) Invalidate(context.Context) error                  { return nil }
func (Noop) Ping(context.Context) error                        { return nil }
func (Noop) Close() error                                      { return nil }

// New builds the tile cache selected by cfg.Backend.
func New(cfg *config.CacheConfig) (TileCache, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewLRUCache(cfg.Capacity, cfg.TTL), nil
	case BackendRedis:
		return NewRedisTileCache(cfg)
	case BackendNone:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown tile cache backend %q", cfg.Backend)
	}
}
