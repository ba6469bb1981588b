// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/riskgrid/internal/hexgrid"
)

const (
	// RollingWindowRows is the number of rows (current included) in the rolling mean.
	RollingWindowRows = 7
	// PriorWindowRows is the number of rows before the current one in the growth baseline.
	PriorWindowRows = 7
)

type cellDay struct {
	cell string
	day  int64
}

// GroupByCellDay assigns each event to its cell and UTC day and counts them.
// Counts come back ordered by cell then day; cells are ordered by id and
// carry boundary and area for registration.
func GroupByCellDay(events []EventPoint, resolution int) ([]CellDayCount, []Cell, error) {
	if err := hexgrid.ValidateResolution(resolution); err != nil {
		return nil, nil, err
	}

	counts := make(map[cellDay]int64)
	seen := make(map[string]struct{})
	for _, ev := range events {
		id, err := hexgrid.CellOf(ev.Lat, ev.Lon, resolution)
		if err != nil {
			return nil, nil, fmt.Errorf("event %s: %w", ev.EventID, err)
		}
		counts[cellDay{cell: id, day: DayOf(ev.Timestamp).Unix()}]++
		seen[id] = struct{}{}
	}

	out := make([]CellDayCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, CellDayCount{CellID: k.cell, Day: time.Unix(k.day, 0).UTC(), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CellID != out[j].CellID {
			return out[i].CellID < out[j].CellID
		}
		return out[i].Day.Before(out[j].Day)
	})

	cells := make([]Cell, 0, len(seen))
	for id := range seen {
		ring, err := hexgrid.BoundaryOf(id)
		if err != nil {
			return nil, nil, err
		}
		cells = append(cells, Cell{
			ID:         id,
			Resolution: resolution,
			Boundary:   ring,
			AreaKm2:    hexgrid.AreaKm2(ring),
		})
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].ID < cells[j].ID })

	return out, cells, nil
}

// ComputeWindows fills Rolling7dAvg and GrowthRate for rows ordered by cell
// then day. Windows are row based: the rolling mean covers up to six rows
// before the current one plus the current row, and the growth baseline is
// the mean of up to seven rows before it. Gaps between days are not filled.
//
// The input is not modified.
func ComputeWindows(rows []Aggregate) []Aggregate {
	out := make([]Aggregate, len(rows))
	copy(out, rows)
	sortAggregates(out)

	for start := 0; start < len(out); {
		end := start
		for end < len(out) && out[end].CellID == out[start].CellID {
			end++
		}
		applyWindows(out[start:end])
		start = end
	}
	return out
}

func applyWindows(part []Aggregate) {
	for i := range part {
		lo := i - (RollingWindowRows - 1)
		if lo < 0 {
			lo = 0
		}
		part[i].Rolling7dAvg = meanCounts(part[lo : i+1])

		plo := i - PriorWindowRows
		if plo < 0 {
			plo = 0
		}
		prior := meanCounts(part[plo:i])
		part[i].GrowthRate = GrowthRate(part[i].EventCount, prior)
	}
}

// GrowthRate returns (count - prior) / prior, or 0 when prior is 0.
func GrowthRate(count int64, prior float64) float64 {
	if prior == 0 {
		return 0
	}
	return (float64(count) - prior) / prior
}

func meanCounts(rows []Aggregate) float64 {
	if len(rows) == 0 {
		return 0
	}
	var sum int64
	for _, r := range rows {
		sum += r.EventCount
	}
	return float64(sum) / float64(len(rows))
}

func sortAggregates(rows []Aggregate) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].CellID != rows[j].CellID {
			return rows[i].CellID < rows[j].CellID
		}
		return rows[i].Day.Before(rows[j].Day)
	})
}
