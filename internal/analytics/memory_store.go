// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type rowKey struct {
	cell string
	day  int64
}

func keyOf(cell string, day time.Time) rowKey {
	return rowKey{cell: cell, day: DayOf(day).Unix()}
}

// MemoryStore is an in-process Store used for dry runs and tests. It keeps
// the same invariants as the SQL stores: cells are insert-if-absent, every
// derived row references a registered cell, and the view is swapped whole.
type MemoryStore struct {
	mu         sync.RWMutex
	events     []EventPoint
	cells      map[string]Cell
	aggregates map[rowKey]Aggregate
	scores     map[rowKey]RiskScore
	flags      map[rowKey]AnomalyFlag
	view       []RiskViewRow
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cells:      make(map[string]Cell),
		aggregates: make(map[rowKey]Aggregate),
		scores:     make(map[rowKey]RiskScore),
		flags:      make(map[rowKey]AnomalyFlag),
	}
}

// AddEvents appends events.
func (m *MemoryStore) AddEvents(events ...EventPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
}

func (m *MemoryStore) EventsInRange(_ context.Context, start, end time.Time) ([]EventPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []EventPoint
	for _, ev := range m.events {
		if !ev.Timestamp.Before(start) && ev.Timestamp.Before(end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MemoryStore) EnsureCells(_ context.Context, cells []Cell) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, c := range cells {
		if _, ok := m.cells[c.ID]; ok {
			continue
		}
		m.cells[c.ID] = c
		inserted++
	}
	return inserted, nil
}

// Cell returns a registered cell.
func (m *MemoryStore) Cell(id string) (Cell, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cells[id]
	return c, ok
}

func (m *MemoryStore) UpsertCounts(_ context.Context, counts []CellDayCount, computedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range counts {
		if _, ok := m.cells[c.CellID]; !ok {
			return fmt.Errorf("aggregate references unknown cell %s", c.CellID)
		}
		k := keyOf(c.CellID, c.Day)
		a := m.aggregates[k]
		a.CellID = c.CellID
		a.Day = DayOf(c.Day)
		a.EventCount = c.Count
		a.ComputedAt = computedAt
		m.aggregates[k] = a
	}
	return nil
}

func (m *MemoryStore) ListAggregates(_ context.Context, firstDay, lastDay time.Time) ([]Aggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lo, hi := DayOf(firstDay), DayOf(lastDay)
	var out []Aggregate
	for _, a := range m.aggregates {
		if !a.Day.Before(lo) && !a.Day.After(hi) {
			out = append(out, a)
		}
	}
	sortAggregates(out)
	return out, nil
}

func (m *MemoryStore) UpdateWindows(_ context.Context, rows []Aggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		k := keyOf(r.CellID, r.Day)
		a, ok := m.aggregates[k]
		if !ok {
			continue
		}
		a.Rolling7dAvg = r.Rolling7dAvg
		a.GrowthRate = r.GrowthRate
		m.aggregates[k] = a
	}
	return nil
}

// Aggregate returns one aggregate row.
func (m *MemoryStore) Aggregate(cell string, day time.Time) (Aggregate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.aggregates[keyOf(cell, day)]
	return a, ok
}

func (m *MemoryStore) UpsertScores(_ context.Context, scores []RiskScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range scores {
		if _, ok := m.cells[s.CellID]; !ok {
			return fmt.Errorf("score references unknown cell %s", s.CellID)
		}
		s.Day = DayOf(s.Day)
		m.scores[keyOf(s.CellID, s.Day)] = s
	}
	return nil
}

// Score returns one risk score row.
func (m *MemoryStore) Score(cell string, day time.Time) (RiskScore, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scores[keyOf(cell, day)]
	return s, ok
}

func (m *MemoryStore) UpsertFlags(_ context.Context, flags []AnomalyFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range flags {
		if _, ok := m.cells[f.CellID]; !ok {
			return fmt.Errorf("flag references unknown cell %s", f.CellID)
		}
		f.Day = DayOf(f.Day)
		m.flags[keyOf(f.CellID, f.Day)] = f
	}
	return nil
}

// Flag returns one anomaly flag row.
func (m *MemoryStore) Flag(cell string, day time.Time) (AnomalyFlag, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.flags[keyOf(cell, day)]
	return f, ok
}

// RefreshRiskView joins scores with aggregates and cells, defaulting the
// anomaly flag to false, and swaps the result in under the write lock.
func (m *MemoryStore) RefreshRiskView(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	view := make([]RiskViewRow, 0, len(m.scores))
	for k, s := range m.scores {
		a, ok := m.aggregates[k]
		if !ok {
			continue
		}
		c, ok := m.cells[s.CellID]
		if !ok {
			continue
		}
		view = append(view, RiskViewRow{
			CellID:         s.CellID,
			Day:            a.Day,
			TimeBucket:     a.Day.Format(DateLayout),
			EventCount:     a.EventCount,
			Rolling7dAvg:   a.Rolling7dAvg,
			GrowthRate:     a.GrowthRate,
			RiskScore:      s.Score,
			RiskLevel:      s.Level,
			AnomalyFlagged: m.flags[k].Flagged,
			BoundaryWKT:    c.Boundary.WKT(),
		})
	}
	m.view = view
	return int64(len(view)), nil
}

// RiskByDate returns the view rows of one day ordered by risk descending.
func (m *MemoryStore) RiskByDate(_ context.Context, day time.Time) ([]RiskViewRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d := DayOf(day)
	var out []RiskViewRow
	for _, r := range m.view {
		if r.Day.Equal(d) {
			out = append(out, r)
		}
	}
	SortByRiskDesc(out)
	return out, nil
}

// Hotspots returns high, critical or flagged rows between two days inclusive.
func (m *MemoryStore) Hotspots(_ context.Context, firstDay, lastDay time.Time) ([]RiskViewRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lo, hi := DayOf(firstDay), DayOf(lastDay)
	var out []RiskViewRow
	for _, r := range m.view {
		if r.Day.Before(lo) || r.Day.After(hi) || !IsHotspot(r) {
			continue
		}
		out = append(out, r)
	}
	SortHotspots(out)
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }
