// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

// Package postgis is the PostgreSQL/PostGIS implementation of the analytics
// store. Geometry is stored natively, mv_daily_risk is a real materialized
// view, and tiles are rendered with ST_TileEnvelope and ST_AsMVT.
package postgis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/riskgrid/internal/analytics"
	"github.com/tomtom215/riskgrid/internal/config"
	"github.com/tomtom215/riskgrid/internal/logging"
	"github.com/tomtom215/riskgrid/internal/metrics"
)

const backendName = "postgis"

// Store is a pgx connection pool with the riskgrid schema applied.
type Store struct {
	pool *pgxpool.Pool
}

var _ analytics.Store = (*Store)(nil)

// New connects, pings and migrates.
func New(ctx context.Context, cfg *config.PostGISConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgis: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logging.Info().
		Str("host", poolCfg.ConnConfig.Host).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("PostGIS store ready")
	return s, nil
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func observe(op string, start time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	metrics.RecordDBQuery(backendName, op, time.Since(start), err)
}

// sendBatch runs b inside a transaction and returns the summed rows affected.
func (s *Store) sendBatch(ctx context.Context, op string, b *pgx.Batch) (affected int64, err error) {
	defer observe(op, time.Now(), &err)

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, b)
		for i := 0; i < b.Len(); i++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("%s: statement %d: %w", op, i, err)
			}
			affected += tag.RowsAffected()
		}
		return br.Close()
	})
	return affected, err
}

// EventsInRange returns events with start <= event_timestamp < end.
func (s *Store) EventsInRange(ctx context.Context, start, end time.Time) (_ []analytics.EventPoint, err error) {
	defer observe("events_in_range", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `
		SELECT event_id, event_timestamp, ST_Y(geom), ST_X(geom)
		FROM events
		WHERE event_timestamp >= $1 AND event_timestamp < $2
		ORDER BY event_timestamp, event_id`,
		start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.EventPoint, error) {
		var ev analytics.EventPoint
		err := row.Scan(&ev.EventID, &ev.Timestamp, &ev.Lat, &ev.Lon)
		ev.Timestamp = ev.Timestamp.UTC()
		return ev, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	return out, nil
}

// EnsureCells inserts unregistered cells and never touches existing rows.
func (s *Store) EnsureCells(ctx context.Context, cells []analytics.Cell) (int, error) {
	if len(cells) == 0 {
		return 0, nil
	}
	b := &pgx.Batch{}
	for _, c := range cells {
		b.Queue(`
			INSERT INTO h3_cells (h3_index, resolution, boundary, area_km2)
			VALUES ($1, $2, ST_GeomFromText($3, 4326), $4)
			ON CONFLICT (h3_index) DO NOTHING`,
			c.ID, c.Resolution, c.Boundary.WKT(), c.AreaKm2)
	}
	n, err := s.sendBatch(ctx, "ensure_cells", b)
	return int(n), err
}

// UpsertCounts overwrites event_count per (cell, day).
func (s *Store) UpsertCounts(ctx context.Context, counts []analytics.CellDayCount, computedAt time.Time) error {
	if len(counts) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, c := range counts {
		b.Queue(`
			INSERT INTO cell_aggregates (h3_index, time_bucket, event_count, computed_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (h3_index, time_bucket) DO UPDATE SET
				event_count = EXCLUDED.event_count,
				computed_at = EXCLUDED.computed_at`,
			c.CellID, analytics.DayOf(c.Day), c.Count, computedAt.UTC())
	}
	_, err := s.sendBatch(ctx, "upsert_counts", b)
	return err
}

// ListAggregates returns rows between two days inclusive ordered by cell, day.
func (s *Store) ListAggregates(ctx context.Context, firstDay, lastDay time.Time) (_ []analytics.Aggregate, err error) {
	defer observe("list_aggregates", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `
		SELECT h3_index, time_bucket, event_count, rolling_7d_avg, growth_rate, computed_at
		FROM cell_aggregates
		WHERE time_bucket BETWEEN $1 AND $2
		ORDER BY h3_index, time_bucket`,
		analytics.DayOf(firstDay), analytics.DayOf(lastDay))
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.Aggregate, error) {
		var a analytics.Aggregate
		err := row.Scan(&a.CellID, &a.Day, &a.EventCount, &a.Rolling7dAvg, &a.GrowthRate, &a.ComputedAt)
		a.Day = analytics.DayOf(a.Day)
		a.ComputedAt = a.ComputedAt.UTC()
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan aggregates: %w", err)
	}
	return out, nil
}

// UpdateWindows writes the rolling average and growth rate.
func (s *Store) UpdateWindows(ctx context.Context, aggs []analytics.Aggregate) error {
	if len(aggs) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, a := range aggs {
		b.Queue(`
			UPDATE cell_aggregates SET rolling_7d_avg = $1, growth_rate = $2
			WHERE h3_index = $3 AND time_bucket = $4`,
			a.Rolling7dAvg, a.GrowthRate, a.CellID, analytics.DayOf(a.Day))
	}
	_, err := s.sendBatch(ctx, "update_windows", b)
	return err
}

// UpsertScores writes one score per (cell, day).
func (s *Store) UpsertScores(ctx context.Context, scores []analytics.RiskScore) error {
	if len(scores) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, sc := range scores {
		b.Queue(`
			INSERT INTO risk_scores (h3_index, time_bucket, risk_score, risk_level, raw_score, scored_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (h3_index, time_bucket) DO UPDATE SET
				risk_score = EXCLUDED.risk_score,
				risk_level = EXCLUDED.risk_level,
				raw_score = EXCLUDED.raw_score,
				scored_at = EXCLUDED.scored_at`,
			sc.CellID, analytics.DayOf(sc.Day), sc.Score, string(sc.Level), sc.RawScore, sc.ScoredAt.UTC())
	}
	_, err := s.sendBatch(ctx, "upsert_scores", b)
	return err
}

// UpsertFlags writes one flag per (cell, day).
func (s *Store) UpsertFlags(ctx context.Context, flags []analytics.AnomalyFlag) error {
	if len(flags) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, f := range flags {
		b.Queue(`
			INSERT INTO anomaly_flags (h3_index, time_bucket, z_score, is_anomaly, checked_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (h3_index, time_bucket) DO UPDATE SET
				z_score = EXCLUDED.z_score,
				is_anomaly = EXCLUDED.is_anomaly,
				checked_at = EXCLUDED.checked_at`,
			f.CellID, analytics.DayOf(f.Day), f.ZScore, f.Flagged, f.CheckedAt.UTC())
	}
	_, err := s.sendBatch(ctx, "upsert_flags", b)
	return err
}

// RefreshRiskView refreshes the materialized view concurrently; readers
// keep seeing the previous contents until the refresh commits.
func (s *Store) RefreshRiskView(ctx context.Context) (n int64, err error) {
	defer observe("refresh_view", time.Now(), &err)

	if _, err = s.pool.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY mv_daily_risk`); err != nil {
		return 0, fmt.Errorf("failed to refresh mv_daily_risk: %w", err)
	}
	if err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM mv_daily_risk`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count mv_daily_risk: %w", err)
	}
	return n, nil
}

// RiskByDate returns the view rows of one day ordered by risk descending.
func (s *Store) RiskByDate(ctx context.Context, day time.Time) (_ []analytics.RiskViewRow, err error) {
	defer observe("risk_by_date", time.Now(), &err)
	return s.queryRiskView(ctx, `
		SELECT `+riskViewColumns+` FROM mv_daily_risk
		WHERE time_bucket = $1
		ORDER BY risk_score DESC, h3_index`,
		analytics.DayOf(day))
}

// Hotspots returns high, critical or flagged rows between two days inclusive.
func (s *Store) Hotspots(ctx context.Context, firstDay, lastDay time.Time) (_ []analytics.RiskViewRow, err error) {
	defer observe("hotspots", time.Now(), &err)
	return s.queryRiskView(ctx, `
		SELECT `+riskViewColumns+` FROM mv_daily_risk
		WHERE time_bucket BETWEEN $1 AND $2
			AND (risk_level IN ('high', 'critical') OR anomaly_flagged)
		ORDER BY time_bucket DESC, risk_score DESC, h3_index`,
		analytics.DayOf(firstDay), analytics.DayOf(lastDay))
}

const riskViewColumns = `h3_index, time_bucket, event_count, rolling_7d_avg, growth_rate,
	risk_score, risk_level, anomaly_flagged, ST_AsText(boundary)`

func (s *Store) queryRiskView(ctx context.Context, query string, args ...any) ([]analytics.RiskViewRow, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk view: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.RiskViewRow, error) {
		var (
			r     analytics.RiskViewRow
			level string
		)
		err := row.Scan(&r.CellID, &r.Day, &r.EventCount, &r.Rolling7dAvg, &r.GrowthRate,
			&r.RiskScore, &level, &r.AnomalyFlagged, &r.BoundaryWKT)
		r.Day = analytics.DayOf(r.Day)
		r.TimeBucket = r.Day.Format(analytics.DateLayout)
		r.RiskLevel = analytics.RiskLevel(level)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan risk view: %w", err)
	}
	if out == nil {
		out = []analytics.RiskViewRow{}
	}
	return out, nil
}

// isNoRows reports whether err means an empty result.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
