// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/riskgrid/internal/logging"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         string
	// Steps run after SQL, in order, in the same transaction.
	Steps     []string
	AppliedAt time.Time
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// migrations are append-only. Never edit or remove an applied entry.
var migrations = []Migration{
	{
		Version:     1,
		Name:        "events_timestamp_index",
		Description: "Index events by timestamp for batch window reads",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (event_timestamp)`,
	},
	{
		Version:     2,
		Name:        "events_type_index",
		Description: "Index events by type for filtered listings",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_events_type ON events (event_type)`,
	},
	{
		Version:     3,
		Name:        "aggregates_day_index",
		Description: "Index cell_aggregates by day for window reads",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_cell_aggregates_day ON cell_aggregates (time_bucket)`,
	},
	{
		Version:     4,
		Name:        "cell_foreign_keys",
		Description: "Rebuild per-cell tables with foreign keys to h3_cells, dropping orphan rows",
		Steps: concatSteps(
			rebuildWithCellKey("cell_aggregates", cellAggregatesDDL),
			[]string{`CREATE INDEX IF NOT EXISTS idx_cell_aggregates_day ON cell_aggregates (time_bucket)`},
			rebuildWithCellKey("risk_scores", riskScoresDDL),
			rebuildWithCellKey("anomaly_flags", anomalyFlagsDDL),
		),
	},
}

// rebuildWithCellKey recreates table from ddl and copies back the rows whose
// cell exists. DuckDB cannot add a foreign key to an existing table.
func rebuildWithCellKey(table, ddl string) []string {
	backup := table + "_v4_backup"
	return []string{
		fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM %s`, backup, table),
		fmt.Sprintf(`DROP TABLE %s`, table),
		ddl,
		fmt.Sprintf(`INSERT INTO %s SELECT * FROM %s WHERE h3_index IN (SELECT h3_index FROM h3_cells)`, table, backup),
		fmt.Sprintf(`DROP TABLE %s`, backup),
	}
}

func concatSteps(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func (db *DB) getAppliedMigrations(ctx context.Context) (map[int]Migration, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT version, name, description, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]Migration)
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name, &m.Description, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[m.Version] = m
	}
	return applied, rows.Err()
}

// runVersionedMigrations applies migrations that are not yet recorded.
func (db *DB) runVersionedMigrations() error {
	ctx, cancel := schemaContext()
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	newMigrations := 0
	for _, m := range migrations {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return err
		}
		newMigrations++
	}

	if newMigrations > 0 {
		logging.Info().Int("count", newMigrations).Msg("Applied database migrations")
	}
	return nil
}

// applyMigration runs m and records it in one transaction.
func (db *DB) applyMigration(ctx context.Context, m Migration) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration v%d: %w", m.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := m.Steps
	if m.SQL != "" {
		stmts = append([]string{m.SQL}, m.Steps...)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration v%d (%s): %w", m.Version, m.Name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, description) VALUES (?, ?, ?)`,
		m.Version, m.Name, m.Description); err != nil {
		return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration v%d: %w", m.Version, err)
	}
	return nil
}

// GetCurrentSchemaVersion returns the highest applied migration version.
func (db *DB) GetCurrentSchemaVersion(ctx context.Context) (int, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var version int
	if err := db.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// GetMigrationHistory returns all applied migrations in order.
func (db *DB) GetMigrationHistory(ctx context.Context) ([]Migration, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	history := make([]Migration, 0, len(applied))
	for _, m := range migrations {
		if a, ok := applied[m.Version]; ok {
			history = append(history, a)
		}
	}
	return history, nil
}
