// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package analytics

import (
	"context"
	"time"
)

// EventSource reads the events of a batch window.
type EventSource interface {
	// EventsInRange returns events with start <= timestamp < end.
	EventsInRange(ctx context.Context, start, end time.Time) ([]EventPoint, error)
}

// CellRegistry persists hexagon metadata.
type CellRegistry interface {
	// EnsureCells inserts cells not yet present and never overwrites an
	// existing row. It returns how many rows were inserted.
	EnsureCells(ctx context.Context, cells []Cell) (int, error)
}

// AggregateStore persists per-cell daily aggregates.
type AggregateStore interface {
	// UpsertCounts writes event_count for each (cell, day), replacing any
	// previous count.
	UpsertCounts(ctx context.Context, counts []CellDayCount, computedAt time.Time) error

	// ListAggregates returns rows with firstDay <= day <= lastDay ordered
	// by cell then day.
	ListAggregates(ctx context.Context, firstDay, lastDay time.Time) ([]Aggregate, error)

	// UpdateWindows writes rolling_7d_avg and growth_rate for existing rows.
	UpdateWindows(ctx context.Context, rows []Aggregate) error
}

// ScoreStore persists risk scores.
type ScoreStore interface {
	UpsertScores(ctx context.Context, scores []RiskScore) error
}

// FlagStore persists anomaly flags.
type FlagStore interface {
	UpsertFlags(ctx context.Context, flags []AnomalyFlag) error
}

// ViewRefresher rebuilds mv_daily_risk. Readers must observe either the
// previous or the new contents, never a mix.
type ViewRefresher interface {
	RefreshRiskView(ctx context.Context) (int64, error)
}

// Store is everything a pipeline run needs.
type Store interface {
	EventSource
	CellRegistry
	AggregateStore
	ScoreStore
	FlagStore
	ViewRefresher
}
