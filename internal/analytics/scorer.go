// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package analytics

import (
	"time"
)

// Weights of the raw risk formula.
const (
	WeightCount   = 0.5
	WeightGrowth  = 0.3
	WeightRolling = 0.2
)

// RawScore combines the three aggregate signals.
func RawScore(a Aggregate) float64 {
	return WeightCount*float64(a.EventCount) + WeightGrowth*a.GrowthRate + WeightRolling*a.Rolling7dAvg
}

// Normalize maps raw onto [0, 100] given the batch bounds. A degenerate
// batch (max == min) scores 0 everywhere.
func Normalize(raw, minRaw, maxRaw float64) float64 {
	if maxRaw == minRaw {
		return 0
	}
	score := 100 * (raw - minRaw) / (maxRaw - minRaw)
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

// ClassifyRisk buckets a score. Upper bounds are inclusive.
func ClassifyRisk(score float64) RiskLevel {
	switch {
	case score <= 25:
		return RiskLow
	case score <= 50:
		return RiskMedium
	case score <= 75:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// ScoreBatch scores every aggregate against the bounds of the batch itself.
// Scores are only comparable within one batch.
func ScoreBatch(rows []Aggregate, scoredAt time.Time) []RiskScore {
	if len(rows) == 0 {
		return nil
	}

	raws := make([]float64, len(rows))
	minRaw, maxRaw := 0.0, 0.0
	for i, r := range rows {
		raws[i] = RawScore(r)
		if i == 0 || raws[i] < minRaw {
			minRaw = raws[i]
		}
		if i == 0 || raws[i] > maxRaw {
			maxRaw = raws[i]
		}
	}

	out := make([]RiskScore, len(rows))
	for i, r := range rows {
		score := Normalize(raws[i], minRaw, maxRaw)
		out[i] = RiskScore{
			CellID:   r.CellID,
			Day:      r.Day,
			Score:    score,
			Level:    ClassifyRisk(score),
			RawScore: raws[i],
			ScoredAt: scoredAt,
		}
	}
	return out
}
