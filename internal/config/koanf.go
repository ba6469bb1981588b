// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/riskgrid/config.yaml",
	"/etc/riskgrid/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Database: DatabaseConfig{
			Backend:                BackendDuckDB,
			Path:                   "/data/riskgrid.duckdb",
			MaxMemory:              "2GB",
			PreserveInsertionOrder: true,
			SpatialOptional:        true,
		},
		PostGIS: PostGISConfig{
			MaxConns:          10,
			MinConns:          1,
			HealthCheckPeriod: time.Minute,
		},
		Cache: CacheConfig{
			Backend:          CacheMemory,
			TTL:              300 * time.Second,
			Capacity:         4096,
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		Jobs: JobsConfig{
			Transport:            TransportMemory,
			Topic:                "analytics.run",
			PoisonTopic:          "analytics.run.poison",
			StatusTTL:            7 * 24 * time.Hour,
			RetryCount:           2,
			RetryInitialInterval: 500 * time.Millisecond,
			CloseTimeout:         30 * time.Second,
			SubmitPerMinute:      30,
			SubmitBurst:          5,
			ScheduleWindowDays:   30,
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			Host:           "127.0.0.1",
			Port:           4222,
			StoreDir:       "/data/nats/jetstream",
			MaxMemory:      256 << 20,
			MaxStore:       1 << 30,
			StreamName:     "ANALYTICS",
			DurableName:    "riskgrid-worker",
			QueueGroup:     "riskgrid",
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
		},
		MQTT: MQTTConfig{
			Enabled:       false,
			BrokerURL:     "tcp://127.0.0.1:1883",
			ClientID:      "riskgrid-ingest",
			Topic:         "riskgrid/events",
			QoS:           1,
			BatchSize:     500,
			FlushInterval: 5 * time.Second,
		},
		Security: SecurityConfig{
			TokenTTL:         60 * time.Minute,
			AdminUsername:    "admin",
			CORSOrigins:      []string{"*"},
			RateLimitPublic:  60,
			RateLimitAnalyst: 240,
			RateLimitAdmin:   600,
			RateLimitWindow:  time.Minute,
		},
		Analytics: AnalyticsConfig{
			DefaultWindowDays: 30,
			DefaultResolution: 8,
			MaxUploadEvents:   5000,
			DefaultListLimit:  500,
			MaxListLimit:      5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf layers defaults, an optional YAML file and environment
// variables (ENV > file > defaults), then validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma separated env values for slice settings.
// YAML lists arrive as slices already and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			continue
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"http_host":               "server.host",
	"http_port":               "server.port",
	"http_read_timeout":       "server.read_timeout",
	"http_write_timeout":      "server.write_timeout",
	"shutdown_timeout":        "server.shutdown_timeout",
	"environment":             "server.environment",
	"store_backend":           "database.backend",
	"duckdb_path":             "database.path",
	"duckdb_max_memory":       "database.max_memory",
	"duckdb_threads":          "database.threads",
	"duckdb_spatial_optional": "database.spatial_optional",
	"database_url":            "postgis.url",
	"postgis_max_conns":       "postgis.max_conns",
	"tile_cache_backend":      "cache.backend",
	"redis_url":               "cache.redis_url",
	"tile_cache_ttl":          "cache.ttl",
	"tile_cache_capacity":     "cache.capacity",
	"jobs_transport":          "jobs.transport",
	"jobs_status_path":        "jobs.status_path",
	"jobs_retry_count":        "jobs.retry_count",
	"jobs_submit_per_minute":  "jobs.submit_per_minute",
	"jobs_schedule_interval":  "jobs.schedule_interval",
	"nats_url":                "nats.url",
	"nats_embedded":           "nats.embedded_server",
	"nats_store_dir":          "nats.store_dir",
	"mqtt_enabled":            "mqtt.enabled",
	"mqtt_broker_url":         "mqtt.broker_url",
	"mqtt_client_id":          "mqtt.client_id",
	"mqtt_topic":              "mqtt.topic",
	"mqtt_username":           "mqtt.username",
	"mqtt_password":           "mqtt.password",
	"jwt_secret":              "security.jwt_secret",
	"jwt_ttl":                 "security.token_ttl",
	"admin_username":          "security.admin_username",
	"admin_password":          "security.admin_password",
	"cors_origins":            "security.cors_origins",
	"rate_limit_public":       "security.rate_limit_public",
	"rate_limit_analyst":      "security.rate_limit_analyst",
	"rate_limit_admin":        "security.rate_limit_admin",
	"disable_rate_limit":      "security.rate_limit_disabled",
	"analytics_window_days":   "analytics.default_window_days",
	"analytics_resolution":    "analytics.default_resolution",
	"log_level":               "logging.level",
	"log_format":              "logging.format",
	"log_caller":              "logging.caller",
}

// envTransformFunc maps environment variable names to koanf paths.
// Unmapped variables return "" and are ignored.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
