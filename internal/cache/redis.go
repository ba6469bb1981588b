// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/riskgrid/internal/config"
	"github.com/tomtom215/riskgrid/internal/logging"
	"github.com/tomtom215/riskgrid/internal/metrics"
)

// Defaults applied when the config leaves breaker settings empty.
const (
	defaultRedisTTL         = 300 * time.Second
	defaultBreakerThreshold = 5
	defaultBreakerTimeout   = 30 * time.Second
	scanBatch               = 500
)

// ErrCacheUnavailable is returned while the breaker is open.
var ErrCacheUnavailable = errors.New("tile cache unavailable")

type redisResult struct {
	data  []byte
	found bool
}

// RedisTileCache stores tiles in Redis with a TTL. Calls go through a
// circuit breaker; once it trips, Get reports misses and Set is skipped
// until the breaker half-opens.
type RedisTileCache struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker[redisResult]
}

var _ TileCache = (*RedisTileCache)(nil)

// NewRedisTileCache connects to cfg.RedisURL. The connection is not
// checked here; Ping reports reachability.
func NewRedisTileCache(cfg *config.CacheConfig) (*RedisTileCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = defaultBreakerThreshold
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}

	breaker := gobreaker.NewCircuitBreaker[redisResult](gobreaker.Settings{
		Name:        "redis-tile-cache",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Tile cache circuit breaker changed state")
		},
	})

	return &RedisTileCache{
		client:  redis.NewClient(opts),
		ttl:     ttl,
		breaker: breaker,
	}, nil
}

// Name identifies the backend in metrics and health output.
func (c *RedisTileCache) Name() string { return BackendRedis }

// Get returns the cached tile. Redis errors are returned but never leave
// the caller without a usable miss.
func (c *RedisTileCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := c.breaker.Execute(func() (redisResult, error) {
		data, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return redisResult{}, nil
		}
		if err != nil {
			return redisResult{}, err
		}
		return redisResult{data: data, found: true}, nil
	})
	if err != nil {
		metrics.RecordTileCache(BackendRedis, false)
		return nil, false, c.wrap(err)
	}
	metrics.RecordTileCache(BackendRedis, res.found)
	return res.data, res.found, nil
}

// Set stores a tile with the configured TTL.
func (c *RedisTileCache) Set(ctx context.Context, key string, data []byte) error {
	_, err := c.breaker.Execute(func() (redisResult, error) {
		return redisResult{}, c.client.Set(ctx, key, data, c.ttl).Err()
	})
	return c.wrap(err)
}

// Invalidate removes every tile key. Keys are found with SCAN so large
// caches do not block the server.
func (c *RedisTileCache) Invalidate(ctx context.Context) error {
	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("failed to scan tile keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Unlink(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to remove tile keys: %w", err)
			}
			removed += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	logging.Debug().Int64("keys", removed).Msg("Invalidated redis tile cache")
	return nil
}

// Ping checks that Redis answers.
func (c *RedisTileCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client connections.
func (c *RedisTileCache) Close() error {
	return c.client.Close()
}

// BreakerState reports the breaker state for health output.
func (c *RedisTileCache) BreakerState() string {
	return c.breaker.State().String()
}

func (c *RedisTileCache) wrap(err error) error {
	if err == nil {
		return nil
	}
	metrics.TileCacheErrors.WithLabelValues(BackendRedis).Inc()
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return fmt.Errorf("redis tile cache: %w", err)
}
