// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

// Package config loads Riskgrid configuration.
//
// Configuration is layered with Koanf v2:
//  1. Defaults: built-in values for every setting
//  2. Config file: optional YAML (config.yaml or CONFIG_PATH)
//  3. Environment variables: override any mapped setting
//
// Config is immutable after Load and safe for concurrent reads.
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Invalid configuration")
//	}
package config

import (
	"fmt"
	"time"
)

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	PostGIS   PostGISConfig   `koanf:"postgis"`
	Cache     CacheConfig     `koanf:"cache"`
	Jobs      JobsConfig      `koanf:"jobs"`
	NATS      NATSConfig      `koanf:"nats"`
	MQTT      MQTTConfig      `koanf:"mqtt"`
	Security  SecurityConfig  `koanf:"security"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // development or production
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Store backends.
const (
	BackendDuckDB  = "duckdb"
	BackendPostGIS = "postgis"
)

// DatabaseConfig selects the store and tunes DuckDB.
type DatabaseConfig struct {
	// Backend is duckdb or postgis.
	Backend                string `koanf:"backend"`
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"` // 0 = runtime.NumCPU()
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
	// SpatialOptional lets the server start without the spatial extension;
	// tile rendering is then unavailable.
	SpatialOptional bool `koanf:"spatial_optional"`
}

// PostGISConfig configures the pgx pool for the postgis backend.
type PostGISConfig struct {
	URL               string        `koanf:"url"`
	MaxConns          int32         `koanf:"max_conns"`
	MinConns          int32         `koanf:"min_conns"`
	HealthCheckPeriod time.Duration `koanf:"health_check_period"`
}

// Tile cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// CacheConfig configures the vector tile cache.
type CacheConfig struct {
	Backend          string        `koanf:"backend"`
	RedisURL         string        `koanf:"redis_url"`
	TTL              time.Duration `koanf:"ttl"`
	Capacity         int           `koanf:"capacity"`
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

// Job transports.
const (
	TransportMemory = "memory"
	TransportNATS   = "nats"
)

// JobsConfig configures asynchronous pipeline runs.
type JobsConfig struct {
	Transport            string        `koanf:"transport"`
	Topic                string        `koanf:"topic"`
	PoisonTopic          string        `koanf:"poison_topic"`
	StatusPath           string        `koanf:"status_path"` // empty = in-memory Badger
	StatusTTL            time.Duration `koanf:"status_ttl"`
	RetryCount           int           `koanf:"retry_count"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	CloseTimeout         time.Duration `koanf:"close_timeout"`
	SubmitPerMinute      int           `koanf:"submit_per_minute"`
	SubmitBurst          int           `koanf:"submit_burst"`
	ScheduleInterval     time.Duration `koanf:"schedule_interval"` // 0 disables the scheduler
	ScheduleWindowDays   int           `koanf:"schedule_window_days"`
}

// NATSConfig configures the JetStream transport.
type NATSConfig struct {
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	StoreDir       string        `koanf:"store_dir"`
	MaxMemory      int64         `koanf:"max_memory"`
	MaxStore       int64         `koanf:"max_store"`
	StreamName     string        `koanf:"stream_name"`
	DurableName    string        `koanf:"durable_name"`
	QueueGroup     string        `koanf:"queue_group"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
}

// MQTTConfig configures live event ingestion from an MQTT broker.
type MQTTConfig struct {
	Enabled       bool          `koanf:"enabled"`
	BrokerURL     string        `koanf:"broker_url"`
	ClientID      string        `koanf:"client_id"`
	Topic         string        `koanf:"topic"`
	QoS           byte          `koanf:"qos"`
	Username      string        `koanf:"username"`
	Password      string        `koanf:"password"`
	BatchSize     int           `koanf:"batch_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// SecurityConfig configures authentication, CORS and rate limits.
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	AdminUsername     string        `koanf:"admin_username"`
	AdminPassword     string        `koanf:"admin_password"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitPublic   int           `koanf:"rate_limit_public"`
	RateLimitAnalyst  int           `koanf:"rate_limit_analyst"`
	RateLimitAdmin    int           `koanf:"rate_limit_admin"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// AnalyticsConfig holds pipeline defaults for requests that omit them.
type AnalyticsConfig struct {
	DefaultWindowDays int `koanf:"default_window_days"`
	DefaultResolution int `koanf:"default_resolution"`
	MaxUploadEvents   int `koanf:"max_upload_events"`
	DefaultListLimit  int `koanf:"default_list_limit"`
	MaxListLimit      int `koanf:"max_list_limit"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from defaults, the config file and the environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
