// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package analytics

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// AnomalyThreshold is the z-score at or above which a cell-day is flagged.
const AnomalyThreshold = 2.0

// sigmaEpsilon absorbs float noise in the deviation of a constant series.
const sigmaEpsilon = 1e-12

// MeanPopStdDev returns the mean and population standard deviation of xs.
// Fewer than two values yield sigma 0.
func MeanPopStdDev(xs []float64) (mu, sigma float64) {
	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	mu, sigma = stat.PopMeanStdDev(xs, nil)
	if math.IsNaN(sigma) || sigma < sigmaEpsilon {
		sigma = 0
	}
	return mu, sigma
}

// ZScore returns (x - mu) / sigma, or 0 when sigma is 0.
func ZScore(x, mu, sigma float64) float64 {
	if sigma == 0 {
		return 0
	}
	return (x - mu) / sigma
}

// DetectAnomalies computes a z-score for each row against the other rows of
// the same cell in the batch.
func DetectAnomalies(rows []Aggregate, checkedAt time.Time) []AnomalyFlag {
	if len(rows) == 0 {
		return nil
	}
	sorted := make([]Aggregate, len(rows))
	copy(sorted, rows)
	sortAggregates(sorted)

	out := make([]AnomalyFlag, 0, len(sorted))
	for start := 0; start < len(sorted); {
		end := start
		for end < len(sorted) && sorted[end].CellID == sorted[start].CellID {
			end++
		}
		part := sorted[start:end]

		xs := make([]float64, len(part))
		for i, r := range part {
			xs[i] = float64(r.EventCount)
		}
		mu, sigma := MeanPopStdDev(xs)
		for i, r := range part {
			z := ZScore(xs[i], mu, sigma)
			out = append(out, AnomalyFlag{
				CellID:    r.CellID,
				Day:       r.Day,
				ZScore:    z,
				Flagged:   z >= AnomalyThreshold,
				CheckedAt: checkedAt,
			})
		}
		start = end
	}
	return out
}
