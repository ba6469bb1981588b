// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

/*
Package analytics implements the risk pipeline: spatial aggregation of events
onto H3 cells per UTC day, rolling and growth windows, batch-normalized risk
scores, z-score anomaly flags and the refresh of the daily risk view.

The numeric work happens in Go on rows read back from a Store, so every
backend (DuckDB, PostGIS, in-memory) produces identical results. Each stage
persists before the next stage starts; nothing is carried in memory between
stages.

Stages run strictly in order and the first failure aborts the run:

	AGGREGATE -> SCORE -> DETECT -> REFRESH_VIEW -> DONE
*/
package analytics

import (
	"time"

	"github.com/tomtom215/riskgrid/internal/hexgrid"
)

// EventPoint is the projection of an event the aggregator needs.
type EventPoint struct {
	EventID   string
	Timestamp time.Time
	Lat       float64
	Lon       float64
}

// Cell is a registered hexagon. Boundary is closed and in (lon, lat) order.
type Cell struct {
	ID         string
	Resolution int
	Boundary   hexgrid.Ring
	AreaKm2    float64
}

// CellDayCount is the number of events in a cell on one UTC day.
type CellDayCount struct {
	CellID string
	Day    time.Time
	Count  int64
}

// Aggregate is one row of cell_aggregates.
type Aggregate struct {
	CellID       string
	Day          time.Time
	EventCount   int64
	Rolling7dAvg float64
	GrowthRate   float64
	ComputedAt   time.Time
}

// RiskLevel is the categorical bucket of a risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Valid reports whether l is one of the four known levels.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// RiskScore is one row of risk_scores.
type RiskScore struct {
	CellID   string
	Day      time.Time
	Score    float64
	Level    RiskLevel
	RawScore float64
	ScoredAt time.Time
}

// AnomalyFlag is one row of anomaly_flags.
type AnomalyFlag struct {
	CellID    string
	Day       time.Time
	ZScore    float64
	Flagged   bool
	CheckedAt time.Time
}

// RiskViewRow is one row of the mv_daily_risk read model.
type RiskViewRow struct {
	CellID         string    `json:"h3_index"`
	Day            time.Time `json:"-"`
	TimeBucket     string    `json:"time_bucket"`
	EventCount     int64     `json:"event_count"`
	Rolling7dAvg   float64   `json:"rolling_7d_avg"`
	GrowthRate     float64   `json:"growth_rate"`
	RiskScore      float64   `json:"risk_score"`
	RiskLevel      RiskLevel `json:"risk_level"`
	AnomalyFlagged bool      `json:"anomaly_flagged"`
	BoundaryWKT    string    `json:"-"`
}

// DateLayout is the canonical day format used on the wire and in SQL.
const DateLayout = "2006-01-02"

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string as a UTC day.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
