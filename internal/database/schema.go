// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package database

import (
	"context"
	"fmt"
	"time"
)

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// Per-cell tables reference h3_cells; cells are only ever inserted, never
// updated or deleted.
const (
	cellAggregatesDDL = `CREATE TABLE IF NOT EXISTS cell_aggregates (
		h3_index TEXT NOT NULL,
		time_bucket DATE NOT NULL,
		event_count BIGINT NOT NULL,
		rolling_7d_avg DOUBLE NOT NULL DEFAULT 0,
		growth_rate DOUBLE NOT NULL DEFAULT 0,
		computed_at TIMESTAMP NOT NULL,
		PRIMARY KEY (h3_index, time_bucket),
		FOREIGN KEY (h3_index) REFERENCES h3_cells (h3_index)
	)`
	riskScoresDDL = `CREATE TABLE IF NOT EXISTS risk_scores (
		h3_index TEXT NOT NULL,
		time_bucket DATE NOT NULL,
		risk_score DOUBLE NOT NULL,
		risk_level TEXT NOT NULL,
		raw_score DOUBLE NOT NULL,
		scored_at TIMESTAMP NOT NULL,
		PRIMARY KEY (h3_index, time_bucket),
		FOREIGN KEY (h3_index) REFERENCES h3_cells (h3_index)
	)`
	anomalyFlagsDDL = `CREATE TABLE IF NOT EXISTS anomaly_flags (
		h3_index TEXT NOT NULL,
		time_bucket DATE NOT NULL,
		z_score DOUBLE NOT NULL,
		is_anomaly BOOLEAN NOT NULL,
		checked_at TIMESTAMP NOT NULL,
		PRIMARY KEY (h3_index, time_bucket),
		FOREIGN KEY (h3_index) REFERENCES h3_cells (h3_index)
	)`
)

// Timestamps are stored as TIMESTAMP in UTC. Boundaries are WKT text so the
// schema does not depend on the spatial extension.
var tableStatements = []string{
	`CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		event_timestamp TIMESTAMP NOT NULL,
		longitude DOUBLE NOT NULL,
		latitude DOUBLE NOT NULL,
		attributes TEXT,
		ingested_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS h3_cells (
		h3_index TEXT PRIMARY KEY,
		resolution INTEGER NOT NULL,
		boundary_wkt TEXT NOT NULL,
		area_km2 DOUBLE NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	cellAggregatesDDL,
	riskScoresDDL,
	anomalyFlagsDDL,
	`CREATE TABLE IF NOT EXISTS mv_daily_risk (
		h3_index TEXT,
		time_bucket DATE,
		event_count BIGINT,
		rolling_7d_avg DOUBLE,
		growth_rate DOUBLE,
		risk_score DOUBLE,
		risk_level TEXT,
		anomaly_flagged BOOLEAN,
		boundary_wkt TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, stmt := range tableStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}
