// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// MinJWTSecretLength is the minimum HS256 secret length in production.
const MinJWTSecretLength = 32

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateMQTT(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateAnalytics(); err != nil {
		return err
	}
	return c.validateLogging()
}

// IsProduction reports whether ENVIRONMENT=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch strings.ToLower(c.Server.Environment) {
	case "development", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development or production, got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Backend {
	case BackendDuckDB:
		if c.Database.Path == "" {
			return fmt.Errorf("DUCKDB_PATH is required when STORE_BACKEND=duckdb")
		}
	case BackendPostGIS:
		if c.PostGIS.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgis")
		}
		if c.PostGIS.MaxConns < 1 {
			return fmt.Errorf("POSTGIS_MAX_CONNS must be at least 1")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be duckdb or postgis, got %q", c.Database.Backend)
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case CacheMemory:
		if c.Cache.Capacity < 1 {
			return fmt.Errorf("TILE_CACHE_CAPACITY must be positive")
		}
	case CacheRedis:
		if _, err := url.Parse(c.Cache.RedisURL); err != nil || c.Cache.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be a valid URL when TILE_CACHE_BACKEND=redis")
		}
	case CacheNone:
	default:
		return fmt.Errorf("TILE_CACHE_BACKEND must be memory, redis or none, got %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 && c.Cache.Backend != CacheNone {
		return fmt.Errorf("TILE_CACHE_TTL must be positive")
	}
	return nil
}

func (c *Config) validateJobs() error {
	switch c.Jobs.Transport {
	case TransportMemory:
	case TransportNATS:
		if !c.NATS.EmbeddedServer && c.NATS.URL == "" {
			return fmt.Errorf("NATS_URL is required when JOBS_TRANSPORT=nats without an embedded server")
		}
	default:
		return fmt.Errorf("JOBS_TRANSPORT must be memory or nats, got %q", c.Jobs.Transport)
	}
	if c.Jobs.Topic == "" {
		return fmt.Errorf("jobs.topic must not be empty")
	}
	if c.Jobs.RetryCount < 0 {
		return fmt.Errorf("JOBS_RETRY_COUNT must not be negative")
	}
	if c.Jobs.SubmitPerMinute < 1 {
		return fmt.Errorf("JOBS_SUBMIT_PER_MINUTE must be at least 1")
	}
	if c.Jobs.ScheduleInterval < 0 {
		return fmt.Errorf("JOBS_SCHEDULE_INTERVAL must not be negative")
	}
	return nil
}

func (c *Config) validateMQTT() error {
	if !c.MQTT.Enabled {
		return nil
	}
	if c.MQTT.BrokerURL == "" {
		return fmt.Errorf("MQTT_BROKER_URL is required when MQTT_ENABLED=true")
	}
	if c.MQTT.Topic == "" {
		return fmt.Errorf("MQTT_TOPIC is required when MQTT_ENABLED=true")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if c.MQTT.BatchSize < 1 {
		return fmt.Errorf("mqtt.batch_size must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.IsProduction() && len(c.Security.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in production", MinJWTSecretLength)
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.Security.AdminPassword != "" && c.Security.AdminUsername == "" {
		return fmt.Errorf("ADMIN_USERNAME is required when ADMIN_PASSWORD is set")
	}
	if c.IsProduction() && c.hasWildcardCORS() {
		return fmt.Errorf("CORS_ORIGINS must not contain * in production")
	}
	if c.Security.RateLimitPublic < 1 || c.Security.RateLimitAnalyst < 1 || c.Security.RateLimitAdmin < 1 {
		return fmt.Errorf("rate limits must be at least 1 request per window")
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("security.rate_limit_window must be positive")
	}
	return nil
}

func (c *Config) hasWildcardCORS() bool {
	for _, o := range c.Security.CORSOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (c *Config) validateAnalytics() error {
	a := c.Analytics
	if a.DefaultResolution < 7 || a.DefaultResolution > 8 {
		return fmt.Errorf("ANALYTICS_RESOLUTION must be 7 or 8, got %d", a.DefaultResolution)
	}
	if a.DefaultWindowDays < 1 {
		return fmt.Errorf("ANALYTICS_WINDOW_DAYS must be at least 1")
	}
	if a.MaxUploadEvents < 1 || a.DefaultListLimit < 1 || a.MaxListLimit < a.DefaultListLimit {
		return fmt.Errorf("analytics limits are inconsistent")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
