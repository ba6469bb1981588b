// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package postgis

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tomtom215/riskgrid/internal/logging"
)

type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations are append-only.
var migrations = []migration{
	{1, "postgis_extension", `CREATE EXTENSION IF NOT EXISTS postgis`},
	{2, "events", `
		CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			event_timestamp TIMESTAMPTZ NOT NULL,
			geom geometry(Point, 4326) NOT NULL,
			attributes JSONB,
			ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (event_timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events (event_type);
		CREATE INDEX IF NOT EXISTS idx_events_geom ON events USING GIST (geom)`},
	{3, "h3_cells", `
		CREATE TABLE IF NOT EXISTS h3_cells (
			h3_index TEXT PRIMARY KEY,
			resolution INTEGER NOT NULL,
			boundary geometry(Polygon, 4326) NOT NULL,
			area_km2 DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_h3_cells_boundary ON h3_cells USING GIST (boundary)`},
	{4, "derived_tables", `
		CREATE TABLE IF NOT EXISTS cell_aggregates (
			h3_index TEXT NOT NULL REFERENCES h3_cells (h3_index),
			time_bucket DATE NOT NULL,
			event_count BIGINT NOT NULL,
			rolling_7d_avg DOUBLE PRECISION NOT NULL DEFAULT 0,
			growth_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			computed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (h3_index, time_bucket)
		);
		CREATE TABLE IF NOT EXISTS risk_scores (
			h3_index TEXT NOT NULL REFERENCES h3_cells (h3_index),
			time_bucket DATE NOT NULL,
			risk_score DOUBLE PRECISION NOT NULL CHECK (risk_score BETWEEN 0 AND 100),
			risk_level TEXT NOT NULL CHECK (risk_level IN ('low', 'medium', 'high', 'critical')),
			raw_score DOUBLE PRECISION NOT NULL,
			scored_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (h3_index, time_bucket)
		);
		CREATE TABLE IF NOT EXISTS anomaly_flags (
			h3_index TEXT NOT NULL REFERENCES h3_cells (h3_index),
			time_bucket DATE NOT NULL,
			z_score DOUBLE PRECISION NOT NULL,
			is_anomaly BOOLEAN NOT NULL,
			checked_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (h3_index, time_bucket)
		)`},
	{5, "mv_daily_risk", `
		CREATE MATERIALIZED VIEW IF NOT EXISTS mv_daily_risk AS
		SELECT
			s.h3_index,
			s.time_bucket,
			a.event_count,
			a.rolling_7d_avg,
			a.growth_rate,
			s.risk_score,
			s.risk_level,
			COALESCE(f.is_anomaly, FALSE) AS anomaly_flagged,
			c.boundary
		FROM risk_scores s
		JOIN cell_aggregates a ON a.h3_index = s.h3_index AND a.time_bucket = s.time_bucket
		JOIN h3_cells c ON c.h3_index = s.h3_index
		LEFT JOIN anomaly_flags f ON f.h3_index = s.h3_index AND f.time_bucket = s.time_bucket
		WITH DATA;
		CREATE UNIQUE INDEX IF NOT EXISTS idx_mv_daily_risk_key ON mv_daily_risk (h3_index, time_bucket);
		CREATE INDEX IF NOT EXISTS idx_mv_daily_risk_day ON mv_daily_risk (time_bucket);
		CREATE INDEX IF NOT EXISTS idx_mv_daily_risk_boundary ON mv_daily_risk USING GIST (boundary)`},
	{6, "users", `
		CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`},
}

// migrate applies pending migrations, each in its own transaction, under
// an advisory lock so concurrent starts do not race.
func (s *Store) migrate(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	const lockID = 0x726973 // "ris"
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		return fmt.Errorf("failed to take migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID); err != nil {
			logging.Warn().Err(err).Msg("Failed to release migration lock")
		}
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		var exists bool
		if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check migration v%d: %w", m.Version, err)
		}
		if exists {
			continue
		}
		err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration v%d (%s): %w", m.Version, m.Name, err)
		}
		applied++
	}
	if applied > 0 {
		logging.Info().Int("count", applied).Msg("Applied PostGIS migrations")
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}
