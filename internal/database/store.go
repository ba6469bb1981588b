// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/riskgrid/internal/analytics"
)

// timestampLayout is how times are bound to TIMESTAMP parameters. Binding
// strings with an explicit CAST keeps comparisons in UTC regardless of how
// the driver would map time.Time.
const timestampLayout = "2006-01-02 15:04:05.999999"

func tsArg(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func dayArg(t time.Time) string {
	return analytics.DayOf(t).Format(analytics.DateLayout)
}

// withTx runs fn inside a transaction and records the operation metric.
func (db *DB) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) (err error) {
	defer observe(op, time.Now(), &err)
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", op, err)
	}
	return nil
}

// EventsInRange returns events with start <= event_timestamp < end.
func (db *DB) EventsInRange(ctx context.Context, start, end time.Time) (_ []analytics.EventPoint, err error) {
	defer observe("events_in_range", time.Now(), &err)
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT event_id, event_timestamp, latitude, longitude
		FROM events
		WHERE event_timestamp >= CAST(? AS TIMESTAMP)
			AND event_timestamp < CAST(? AS TIMESTAMP)
		ORDER BY event_timestamp, event_id`,
		tsArg(start), tsArg(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []analytics.EventPoint
	for rows.Next() {
		var ev analytics.EventPoint
		if err := rows.Scan(&ev.EventID, &ev.Timestamp, &ev.Lat, &ev.Lon); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Timestamp = ev.Timestamp.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// EnsureCells inserts cells that are not yet registered. Existing rows are
// never modified.
func (db *DB) EnsureCells(ctx context.Context, cells []analytics.Cell) (int, error) {
	if len(cells) == 0 {
		return 0, nil
	}
	inserted := 0
	now := tsArg(time.Now())
	err := db.withTx(ctx, "ensure_cells", func(tx *sql.Tx) error {
		exists, err := tx.PrepareContext(ctx, `SELECT COUNT(*) FROM h3_cells WHERE h3_index = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare cell lookup: %w", err)
		}
		defer closeWithLog(exists, "prepared statement")

		insert, err := tx.PrepareContext(ctx, `
			INSERT INTO h3_cells (h3_index, resolution, boundary_wkt, area_km2, created_at)
			VALUES (?, ?, ?, ?, CAST(? AS TIMESTAMP))`)
		if err != nil {
			return fmt.Errorf("failed to prepare cell insert: %w", err)
		}
		defer closeWithLog(insert, "prepared statement")

		for _, c := range cells {
			var n int
			if err := exists.QueryRowContext(ctx, c.ID).Scan(&n); err != nil {
				return fmt.Errorf("failed to look up cell %s: %w", c.ID, err)
			}
			if n > 0 {
				continue
			}
			if _, err := insert.ExecContext(ctx, c.ID, c.Resolution, c.Boundary.WKT(), c.AreaKm2, now); err != nil {
				return fmt.Errorf("failed to insert cell %s: %w", c.ID, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// UpsertCounts overwrites event_count for each (cell, day). Window columns
// of existing rows are left for UpdateWindows.
func (db *DB) UpsertCounts(ctx context.Context, counts []analytics.CellDayCount, computedAt time.Time) error {
	if len(counts) == 0 {
		return nil
	}
	at := tsArg(computedAt)
	return db.withTx(ctx, "upsert_counts", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO cell_aggregates (h3_index, time_bucket, event_count, rolling_7d_avg, growth_rate, computed_at)
			VALUES (?, CAST(? AS DATE), ?, 0, 0, CAST(? AS TIMESTAMP))
			ON CONFLICT (h3_index, time_bucket) DO UPDATE SET
				event_count = EXCLUDED.event_count,
				computed_at = EXCLUDED.computed_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare aggregate upsert: %w", err)
		}
		defer closeWithLog(stmt, "prepared statement")

		for _, c := range counts {
			if _, err := stmt.ExecContext(ctx, c.CellID, dayArg(c.Day), c.Count, at); err != nil {
				return fmt.Errorf("failed to upsert aggregate %s/%s: %w", c.CellID, dayArg(c.Day), err)
			}
		}
		return nil
	})
}

// ListAggregates returns rows with firstDay <= time_bucket <= lastDay
// ordered by cell then day.
func (db *DB) ListAggregates(ctx context.Context, firstDay, lastDay time.Time) (_ []analytics.Aggregate, err error) {
	defer observe("list_aggregates", time.Now(), &err)
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT h3_index, time_bucket, event_count, rolling_7d_avg, growth_rate, computed_at
		FROM cell_aggregates
		WHERE time_bucket BETWEEN CAST(? AS DATE) AND CAST(? AS DATE)
		ORDER BY h3_index, time_bucket`,
		dayArg(firstDay), dayArg(lastDay))
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer rows.Close()

	var out []analytics.Aggregate
	for rows.Next() {
		var a analytics.Aggregate
		if err := rows.Scan(&a.CellID, &a.Day, &a.EventCount, &a.Rolling7dAvg, &a.GrowthRate, &a.ComputedAt); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		a.Day = analytics.DayOf(a.Day)
		a.ComputedAt = a.ComputedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateWindows writes rolling_7d_avg and growth_rate.
func (db *DB) UpdateWindows(ctx context.Context, aggs []analytics.Aggregate) error {
	if len(aggs) == 0 {
		return nil
	}
	return db.withTx(ctx, "update_windows", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE cell_aggregates
			SET rolling_7d_avg = ?, growth_rate = ?
			WHERE h3_index = ? AND time_bucket = CAST(? AS DATE)`)
		if err != nil {
			return fmt.Errorf("failed to prepare window update: %w", err)
		}
		defer closeWithLog(stmt, "prepared statement")

		for _, a := range aggs {
			if _, err := stmt.ExecContext(ctx, a.Rolling7dAvg, a.GrowthRate, a.CellID, dayArg(a.Day)); err != nil {
				return fmt.Errorf("failed to update windows %s/%s: %w", a.CellID, dayArg(a.Day), err)
			}
		}
		return nil
	})
}

// UpsertScores writes one risk score per (cell, day).
func (db *DB) UpsertScores(ctx context.Context, scores []analytics.RiskScore) error {
	if len(scores) == 0 {
		return nil
	}
	return db.withTx(ctx, "upsert_scores", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO risk_scores (h3_index, time_bucket, risk_score, risk_level, raw_score, scored_at)
			VALUES (?, CAST(? AS DATE), ?, ?, ?, CAST(? AS TIMESTAMP))
			ON CONFLICT (h3_index, time_bucket) DO UPDATE SET
				risk_score = EXCLUDED.risk_score,
				risk_level = EXCLUDED.risk_level,
				raw_score = EXCLUDED.raw_score,
				scored_at = EXCLUDED.scored_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare score upsert: %w", err)
		}
		defer closeWithLog(stmt, "prepared statement")

		for _, s := range scores {
			if _, err := stmt.ExecContext(ctx, s.CellID, dayArg(s.Day), s.Score, string(s.Level), s.RawScore, tsArg(s.ScoredAt)); err != nil {
				return fmt.Errorf("failed to upsert score %s/%s: %w", s.CellID, dayArg(s.Day), err)
			}
		}
		return nil
	})
}

// UpsertFlags writes one anomaly flag per (cell, day).
func (db *DB) UpsertFlags(ctx context.Context, flags []analytics.AnomalyFlag) error {
	if len(flags) == 0 {
		return nil
	}
	return db.withTx(ctx, "upsert_flags", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO anomaly_flags (h3_index, time_bucket, z_score, is_anomaly, checked_at)
			VALUES (?, CAST(? AS DATE), ?, ?, CAST(? AS TIMESTAMP))
			ON CONFLICT (h3_index, time_bucket) DO UPDATE SET
				z_score = EXCLUDED.z_score,
				is_anomaly = EXCLUDED.is_anomaly,
				checked_at = EXCLUDED.checked_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare flag upsert: %w", err)
		}
		defer closeWithLog(stmt, "prepared statement")

		for _, f := range flags {
			if _, err := stmt.ExecContext(ctx, f.CellID, dayArg(f.Day), f.ZScore, f.Flagged, tsArg(f.CheckedAt)); err != nil {
				return fmt.Errorf("failed to upsert flag %s/%s: %w", f.CellID, dayArg(f.Day), err)
			}
		}
		return nil
	})
}
