// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies the built-in defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Backend != BackendDuckDB {
		t.Errorf("Database.Backend = %q, want duckdb", cfg.Database.Backend)
	}
	if cfg.Cache.TTL != 300*time.Second {
		t.Errorf("Cache.TTL = %v, want 5m", cfg.Cache.TTL)
	}
	if cfg.Security.TokenTTL != time.Hour {
		t.Errorf("Security.TokenTTL = %v, want 1h", cfg.Security.TokenTTL)
	}
	if cfg.Security.RateLimitPublic != 60 || cfg.Security.RateLimitAnalyst != 240 || cfg.Security.RateLimitAdmin != 600 {
		t.Errorf("unexpected rate limits: %+v", cfg.Security)
	}
	if cfg.Analytics.DefaultWindowDays != 30 || cfg.Analytics.DefaultResolution != 8 {
		t.Errorf("unexpected analytics defaults: %+v", cfg.Analytics)
	}
	if cfg.Jobs.Transport != TransportMemory {
		t.Errorf("Jobs.Transport = %q, want memory", cfg.Jobs.Transport)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"bad environment", func(c *Config) { c.Server.Environment = "staging" }, "ENVIRONMENT"},
		{"unknown backend", func(c *Config) { c.Database.Backend = "sqlite" }, "STORE_BACKEND"},
		{"postgis without url", func(c *Config) { c.Database.Backend = BackendPostGIS }, "DATABASE_URL"},
		{"redis without url", func(c *Config) { c.Cache.Backend = CacheRedis }, "REDIS_URL"},
		{"unknown transport", func(c *Config) { c.Jobs.Transport = "kafka" }, "JOBS_TRANSPORT"},
		{"mqtt without topic", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Topic = "" }, "MQTT_TOPIC"},
		{"production short secret", func(c *Config) {
			c.Server.Environment = "production"
			c.Security.JWTSecret = "short"
			c.Security.CORSOrigins = []string{"https://maps.example.com"}
		}, "JWT_SECRET"},
		{"production wildcard cors", func(c *Config) {
			c.Server.Environment = "production"
			c.Security.JWTSecret = strings.Repeat("x", 32)
		}, "CORS_ORIGINS"},
		{"resolution out of range", func(c *Config) { c.Analytics.DefaultResolution = 9 }, "ANALYTICS_RESOLUTION"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %s", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"HTTP_PORT":       "server.port",
		"DUCKDB_PATH":     "database.path",
		"REDIS_URL":       "cache.redis_url",
		"JWT_SECRET":      "security.jwt_secret",
		"MQTT_BROKER_URL": "mqtt.broker_url",
		"PATH":            "",
		"HOME":            "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadWithKoanf_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
database:
  path: /tmp/test.duckdb
analytics:
  default_resolution: 7
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("JWT_TTL", "30m")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090 from file", cfg.Server.Port)
	}
	if cfg.Analytics.DefaultResolution != 7 {
		t.Errorf("DefaultResolution = %d, want 7", cfg.Analytics.DefaultResolution)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug from env", cfg.Logging.Level)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
	if cfg.Security.TokenTTL != 30*time.Minute {
		t.Errorf("TokenTTL = %v, want 30m", cfg.Security.TokenTTL)
	}
	if cfg.Cache.TTL != 300*time.Second {
		t.Errorf("Cache.TTL default lost: %v", cfg.Cache.TTL)
	}
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8080}
	if s.Addr() != "127.0.0.1:8080" {
		t.Errorf("Addr = %q", s.Addr())
	}
}
