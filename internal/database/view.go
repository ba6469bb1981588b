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

const buildRiskViewStaging = `
CREATE OR REPLACE TABLE mv_daily_risk_staging AS
SELECT
	s.h3_index,
	s.time_bucket,
	a.event_count,
	a.rolling_7d_avg,
	a.growth_rate,
	s.risk_score,
	s.risk_level,
	COALESCE(f.is_anomaly, FALSE) AS anomaly_flagged,
	c.boundary_wkt
FROM risk_scores s
JOIN cell_aggregates a ON a.h3_index = s.h3_index AND a.time_bucket = s.time_bucket
JOIN h3_cells c ON c.h3_index = s.h3_index
LEFT JOIN anomaly_flags f ON f.h3_index = s.h3_index AND f.time_bucket = s.time_bucket`

// RefreshRiskView rebuilds mv_daily_risk. The new contents are built in a
// staging table and swapped in with DROP + RENAME inside one transaction, so
// readers see either the old view or the new one.
func (db *DB) RefreshRiskView(ctx context.Context) (int64, error) {
	var count int64
	err := db.withTx(ctx, "refresh_view", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, buildRiskViewStaging); err != nil {
			return fmt.Errorf("failed to build staging view: %w", err)
		}
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM mv_daily_risk_staging`).Scan(&count); err != nil {
			return fmt.Errorf("failed to count staging view: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS mv_daily_risk`); err != nil {
			return fmt.Errorf("failed to drop view: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `ALTER TABLE mv_daily_risk_staging RENAME TO mv_daily_risk`); err != nil {
			return fmt.Errorf("failed to swap view: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

const riskViewColumns = `h3_index, time_bucket, event_count, rolling_7d_avg, growth_rate,
	risk_score, risk_level, anomaly_flagged, boundary_wkt`

// RiskByDate returns the view rows of one day ordered by risk descending.
func (db *DB) RiskByDate(ctx context.Context, day time.Time) (_ []analytics.RiskViewRow, err error) {
	defer observe("risk_by_date", time.Now(), &err)
	return db.queryRiskView(ctx, `
		SELECT `+riskViewColumns+`
		FROM mv_daily_risk
		WHERE time_bucket = CAST(? AS DATE)
		ORDER BY risk_score DESC, h3_index`,
		dayArg(day))
}

// Hotspots returns rows between two days inclusive whose level is high or
// critical, or that are flagged, ordered by day then risk descending.
func (db *DB) Hotspots(ctx context.Context, firstDay, lastDay time.Time) (_ []analytics.RiskViewRow, err error) {
	defer observe("hotspots", time.Now(), &err)
	return db.queryRiskView(ctx, `
		SELECT `+riskViewColumns+`
		FROM mv_daily_risk
		WHERE time_bucket BETWEEN CAST(? AS DATE) AND CAST(? AS DATE)
			AND (risk_level IN ('high', 'critical') OR anomaly_flagged)
		ORDER BY time_bucket DESC, risk_score DESC, h3_index`,
		dayArg(firstDay), dayArg(lastDay))
}

func (db *DB) queryRiskView(ctx context.Context, query string, args ...interface{}) ([]analytics.RiskViewRow, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk view: %w", err)
	}
	defer rows.Close()

	out := []analytics.RiskViewRow{}
	for rows.Next() {
		var (
			r     analytics.RiskViewRow
			level string
		)
		if err := rows.Scan(&r.CellID, &r.Day, &r.EventCount, &r.Rolling7dAvg, &r.GrowthRate,
			&r.RiskScore, &level, &r.AnomalyFlagged, &r.BoundaryWKT); err != nil {
			return nil, fmt.Errorf("failed to scan risk view row: %w", err)
		}
		r.Day = analytics.DayOf(r.Day)
		r.TimeBucket = r.Day.Format(analytics.DateLayout)
		r.RiskLevel = analytics.RiskLevel(level)
		out = append(out, r)
	}
	return out, rows.Err()
}
