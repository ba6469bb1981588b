// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/tomtom215/riskgrid/internal/logging"
)

// duckdbVersion is the DuckDB version used for local extension paths.
// It must match the duckdb-go-bindings version in go.mod.
const duckdbVersion = "v1.4.3"

type extensionRetryConfig struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	BackoffMult float64
}

var defaultRetryConfig = extensionRetryConfig{
	MaxRetries:  3,
	BaseDelay:   2 * time.Second,
	MaxDelay:    30 * time.Second,
	BackoffMult: 2.0,
}

// extensionTimeout bounds a single INSTALL/LOAD. DUCKDB_EXTENSION_TIMEOUT overrides it.
func extensionTimeout() time.Duration {
	if s := os.Getenv("DUCKDB_EXTENSION_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return 30 * time.Second
}

// extensionSpec describes one DuckDB extension to install.
type extensionSpec struct {
	Name string
	// VerifyQuery runs after LOAD; an error marks the extension unavailable.
	VerifyQuery string
	// AvailabilityField points at the DB flag tracking this extension.
	AvailabilityField func(*DB) *bool
	// WarningMessage is logged when an optional extension is unavailable.
	WarningMessage string
}

func coreExtensions() []*extensionSpec {
	return []*extensionSpec{
		{
			Name:              "spatial",
			VerifyQuery:       "SELECT ST_AsText(ST_GeomFromText('POINT(0 0)'))",
			AvailabilityField: func(db *DB) *bool { return &db.spatialAvailable },
			WarningMessage:    "Spatial extension unavailable: vector tiles are disabled",
		},
	}
}

// offlineEnvVar disables network INSTALL; only locally installed extensions load.
const offlineEnvVar = "DUCKDB_OFFLINE"

// installExtensions installs every core extension. Failures are fatal unless
// database.spatial_optional is set.
func (db *DB) installExtensions() error {
	optional := db.cfg.SpatialOptional
	offline := os.Getenv(offlineEnvVar) != ""
	for _, spec := range coreExtensions() {
		if offline {
			if err := db.loadLocalExtension(spec, optional); err != nil {
				return err
			}
			continue
		}
		if err := db.installCoreExtension(spec, optional); err != nil {
			return err
		}
	}
	return nil
}

// installCoreExtension follows INSTALL -> LOAD -> FORCE INSTALL -> LOAD -> verify.
func (db *DB) installCoreExtension(spec *extensionSpec, optional bool) error {
	if isExtensionInstalledLocally(spec.Name) {
		logging.Debug().Str("extension", spec.Name).Msg("Extension found locally, skipping download")
		if err := db.execWithHardTimeout(fmt.Sprintf("LOAD %s;", spec.Name)); err == nil {
			return db.verifyExtension(spec, optional)
		}
	}

	if err := db.execWithRetry(fmt.Sprintf("INSTALL %s;", spec.Name), defaultRetryConfig); err != nil {
		installErr := err
		if loadErr := db.execWithHardTimeout(fmt.Sprintf("LOAD %s;", spec.Name)); loadErr == nil {
			return db.verifyExtension(spec, optional)
		} else if forceErr := db.execWithRetry(fmt.Sprintf("FORCE INSTALL %s;", spec.Name), defaultRetryConfig); forceErr != nil {
			if optional {
				db.setExtensionUnavailable(spec)
				return nil
			}
			return fmt.Errorf("failed to install %s extension: install error: %w, load error: %w, force install error: %w",
				spec.Name, installErr, loadErr, forceErr)
		}
	}

	if err := db.execWithHardTimeout(fmt.Sprintf("LOAD %s;", spec.Name)); err != nil {
		if optional {
			db.setExtensionUnavailable(spec)
			logging.Warn().Str("extension", spec.Name).Err(err).Msg("Failed to load extension")
			return nil
		}
		return fmt.Errorf("failed to load %s extension: %w", spec.Name, err)
	}
	return db.verifyExtension(spec, optional)
}

// loadLocalExtension loads an extension without touching the network.
func (db *DB) loadLocalExtension(spec *extensionSpec, optional bool) error {
	if !isExtensionInstalledLocally(spec.Name) {
		if optional {
			db.setExtensionUnavailable(spec)
			return nil
		}
		return fmt.Errorf("%s extension is not installed locally and %s is set", spec.Name, offlineEnvVar)
	}
	if err := db.execWithHardTimeout(fmt.Sprintf("LOAD %s;", spec.Name)); err != nil {
		if optional {
			db.setExtensionUnavailable(spec)
			return nil
		}
		return fmt.Errorf("failed to load %s extension: %w", spec.Name, err)
	}
	return db.verifyExtension(spec, optional)
}

func (db *DB) verifyExtension(spec *extensionSpec, optional bool) error {
	if spec.VerifyQuery != "" {
		if err := db.execWithHardTimeout(spec.VerifyQuery); err != nil {
			if optional {
				db.setExtensionUnavailable(spec)
				logging.Warn().Str("extension", spec.Name).Err(err).Msg("Extension functions unavailable")
				return nil
			}
			return fmt.Errorf("%s extension loaded but functions unavailable: %w", spec.Name, err)
		}
	}
	db.setExtensionAvailable(spec)
	return nil
}

func (db *DB) setExtensionUnavailable(spec *extensionSpec) {
	if field := spec.AvailabilityField; field != nil {
		*field(db) = false
	}
	if spec.WarningMessage != "" {
		logging.Warn().Str("extension", spec.Name).Msg(spec.WarningMessage)
	}
}

func (db *DB) setExtensionAvailable(spec *extensionSpec) {
	if field := spec.AvailabilityField; field != nil {
		*field(db) = true
	}
}

// isExtensionInstalledLocally checks ~/.duckdb/extensions so that
// pre-installed extensions skip the network INSTALL.
func isExtensionInstalledLocally(name string) bool {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	platform := runtime.GOOS + "_" + runtime.GOARCH
	extPath := filepath.Join(homeDir, ".duckdb", "extensions", duckdbVersion, platform, name+".duckdb_extension")
	_, err = os.Stat(extPath)
	return err == nil
}

// execWithHardTimeout runs a statement with a goroutine-based deadline.
// DuckDB CGO calls do not observe context cancellation.
func (db *DB) execWithHardTimeout(query string) error {
	timeout := extensionTimeout()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() {
		_, err := db.conn.ExecContext(ctx, query)
		resultCh <- err
	}()

	select {
	case err := <-resultCh:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// execWithRetry retries transient failures with exponential backoff.
func (db *DB) execWithRetry(query string, cfg extensionRetryConfig) error {
	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logging.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Str("query", query).
				Msg("Retrying extension operation")
			time.Sleep(delay)
			delay = time.Duration(float64(delay) * cfg.BackoffMult)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		err := db.execWithHardTimeout(query)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableExtensionError(err) {
			return err
		}
	}
	return fmt.Errorf("after %d retries: %w", cfg.MaxRetries, lastErr)
}

func isRetryableExtensionError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"timed out", "timeout", "connection", "network", "temporarily", "http"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
