// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package analytics

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/riskgrid/internal/hexgrid"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestPipeline(store Store, opts ...Option) *Pipeline {
	return NewPipeline(store, append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func TestPipeline_TwoEventsScenario(t *testing.T) {
	store := NewMemoryStore()
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.AddEvents(
		EventPoint{EventID: "e1", Timestamp: ts, Lat: 40.7128, Lon: -74.0060},
		EventPoint{EventID: "e2", Timestamp: ts.Add(time.Minute), Lat: 40.7128, Lon: -74.0060},
	)

	report, err := newTestPipeline(store).Run(context.Background(),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 8)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != StageDone {
		t.Errorf("State = %s, want %s", report.State, StageDone)
	}
	if report.EventsRead != 2 || report.CellsInserted != 1 {
		t.Errorf("EventsRead = %d, CellsInserted = %d, want 2 and 1", report.EventsRead, report.CellsInserted)
	}
	if len(report.Stages) != 4 {
		t.Errorf("len(Stages) = %d, want 4", len(report.Stages))
	}

	cell, err := hexgrid.CellOf(40.7128, -74.0060, 8)
	if err != nil {
		t.Fatal(err)
	}

	agg, ok := store.Aggregate(cell, ts)
	if !ok {
		t.Fatal("aggregate missing")
	}
	if agg.EventCount != 2 || agg.Rolling7dAvg != 2 || agg.GrowthRate != 0 {
		t.Errorf("aggregate = %+v, want count 2, rolling 2, growth 0", agg)
	}

	score, ok := store.Score(cell, ts)
	if !ok {
		t.Fatal("score missing")
	}
	if score.Score != 0 || score.Level != RiskLow {
		t.Errorf("score = %v (%s), want 0 (low)", score.Score, score.Level)
	}

	flag, ok := store.Flag(cell, ts)
	if !ok {
		t.Fatal("flag missing")
	}
	if flag.ZScore != 0 || flag.Flagged {
		t.Errorf("flag = %+v, want z 0 unflagged", flag)
	}

	rows, err := store.RiskByDate(context.Background(), ts)
	if err != nil {
		t.Fatalf("RiskByDate: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].TimeBucket != "2024-01-01" {
		t.Errorf("TimeBucket = %q", rows[0].TimeBucket)
	}
	if !strings.Contains(rows[0].BoundaryWKT, "POLYGON((") {
		t.Errorf("BoundaryWKT = %q", rows[0].BoundaryWKT)
	}
}

func TestPipeline_Idempotent(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for d := 0; d < 10; d++ {
		for i := 0; i <= d%4; i++ {
			store.AddEvents(EventPoint{
				EventID:   fmt.Sprintf("%d-%d", d, i),
				Timestamp: base.AddDate(0, 0, d),
				Lat:       51.5074,
				Lon:       -0.1278,
			})
		}
	}
	p := newTestPipeline(store)
	start, end := base.AddDate(0, 0, -1), base.AddDate(0, 0, 11)

	if _, err := p.Run(context.Background(), start, end, 7); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, err := store.ListAggregates(context.Background(), start, end)
	if err != nil {
		t.Fatal(err)
	}

	report, err := p.Run(context.Background(), start, end, 7)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.CellsInserted != 0 {
		t.Errorf("second run inserted %d cells", report.CellsInserted)
	}
	second, err := store.ListAggregates(context.Background(), start, end)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("aggregates changed between runs:\n%+v\n%+v", first, second)
	}
}

func TestPipeline_AnomalySpikeEndToEnd(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	counts := []int{10, 10, 10, 10, 10, 10, 50}
	for d, n := range counts {
		for i := 0; i < n; i++ {
			store.AddEvents(EventPoint{
				EventID:   fmt.Sprintf("%d-%d", d, i),
				Timestamp: base.AddDate(0, 0, d).Add(time.Duration(i) * time.Second),
				Lat:       48.8566,
				Lon:       2.3522,
			})
		}
	}

	report, err := newTestPipeline(store).Run(context.Background(), base, base.AddDate(0, 0, 7), 8)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Flagged != 1 {
		t.Errorf("Flagged = %d, want 1", report.Flagged)
	}

	cell, _ := hexgrid.CellOf(48.8566, 2.3522, 8)
	flag, ok := store.Flag(cell, base.AddDate(0, 0, 6))
	if !ok || !flag.Flagged {
		t.Errorf("spike day flag = %+v (present %v), want flagged", flag, ok)
	}

	hot, err := store.Hotspots(context.Background(), base, base.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("Hotspots: %v", err)
	}
	if len(hot) == 0 {
		t.Fatal("no hotspots")
	}
	if want := base.AddDate(0, 0, 6).Format(DateLayout); hot[0].TimeBucket != want || !hot[0].AnomalyFlagged {
		t.Errorf("top hotspot = %+v, want flagged on %s", hot[0], want)
	}
}

func TestPipeline_ExistingCellNotOverwritten(t *testing.T) {
	store := NewMemoryStore()
	cell, _ := hexgrid.CellOf(40.7128, -74.0060, 8)
	sentinel := hexgrid.Ring{{Lon: 1, Lat: 1}, {Lon: 2, Lat: 1}, {Lon: 2, Lat: 2}, {Lon: 1, Lat: 1}}
	if _, err := store.EnsureCells(context.Background(), []Cell{{ID: cell, Resolution: 8, Boundary: sentinel}}); err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	store.AddEvents(EventPoint{EventID: "e", Timestamp: ts, Lat: 40.7128, Lon: -74.0060})
	if _, err := newTestPipeline(store).Run(context.Background(), ts.Add(-time.Hour), ts.Add(time.Hour), 8); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, ok := store.Cell(cell)
	if !ok {
		t.Fatal("cell missing")
	}
	if !reflect.DeepEqual(got.Boundary, sentinel) {
		t.Errorf("boundary = %v, want the original %v", got.Boundary, sentinel)
	}
}

func TestPipeline_InputValidation(t *testing.T) {
	store := NewMemoryStore()
	p := newTestPipeline(store)
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		end  time.Time
		res  int
	}{
		{"resolution too coarse", start.Add(time.Hour), 6},
		{"resolution too fine", start.Add(time.Hour), 9},
		{"end before start", start.Add(-time.Hour), 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := p.Run(context.Background(), start, tt.end, tt.res)
			if !IsInputRange(err) {
				t.Fatalf("err = %v, want input range error", err)
			}
			if report.State != StagePending || len(report.Stages) != 0 {
				t.Errorf("report = %+v, want pending with no stages", report)
			}
		})
	}
}

func TestPipeline_EmptyWindow(t *testing.T) {
	store := NewMemoryStore()
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	report, err := newTestPipeline(store).Run(context.Background(), start, start, 8)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != StageDone || report.Aggregates != 0 || report.ViewRows != 0 {
		t.Errorf("report = %+v, want done with nothing written", report)
	}
}

type failingStore struct {
	*MemoryStore
	failOn string
	flags  int
}

var errDisk = errors.New("disk full")

func (f *failingStore) UpsertScores(ctx context.Context, s []RiskScore) error {
	if f.failOn == "scores" {
		return errDisk
	}
	return f.MemoryStore.UpsertScores(ctx, s)
}

func (f *failingStore) UpsertFlags(ctx context.Context, flags []AnomalyFlag) error {
	f.flags++
	return f.MemoryStore.UpsertFlags(ctx, flags)
}

func (f *failingStore) EventsInRange(ctx context.Context, start, end time.Time) ([]EventPoint, error) {
	if f.failOn == "events" {
		return nil, errDisk
	}
	return f.MemoryStore.EventsInRange(ctx, start, end)
}

func TestPipeline_FailFast(t *testing.T) {
	tests := []struct {
		failOn    string
		wantStage Stage
	}{
		{"events", StageAggregate},
		{"scores", StageScore},
	}
	for _, tt := range tests {
		t.Run(tt.failOn, func(t *testing.T) {
			store := &failingStore{MemoryStore: NewMemoryStore(), failOn: tt.failOn}
			ts := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
			store.AddEvents(EventPoint{EventID: "e", Timestamp: ts, Lat: 10, Lon: 10})

			var observed []Stage
			p := newTestPipeline(store, WithObserver(func(_ context.Context, sr StageReport) {
				observed = append(observed, sr.Stage)
			}))
			report, err := p.Run(context.Background(), ts.Add(-time.Hour), ts.Add(time.Hour), 8)

			var se *StorageError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *StorageError", err)
			}
			if se.Stage != tt.wantStage {
				t.Errorf("failed stage = %s, want %s", se.Stage, tt.wantStage)
			}
			if !errors.Is(err, errDisk) {
				t.Errorf("err = %v, want wrapped %v", err, errDisk)
			}
			if report.State != tt.wantStage {
				t.Errorf("State = %s, want %s", report.State, tt.wantStage)
			}
			if len(observed) == 0 || observed[len(observed)-1] != tt.wantStage {
				t.Errorf("observed stages = %v, want last %s", observed, tt.wantStage)
			}
			if store.flags != 0 {
				t.Error("detect ran after a failed stage")
			}
		})
	}
}

func TestPipeline_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := newTestPipeline(NewMemoryStore()).Run(ctx, start, start.Add(time.Hour), 8)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestMemoryStore_ViewDefaultsFlagToFalse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cell, _ := hexgrid.CellOf(1, 1, 8)
	ring, _ := hexgrid.BoundaryOf(cell)
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.EnsureCells(ctx, []Cell{{ID: cell, Resolution: 8, Boundary: ring}}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertCounts(ctx, []CellDayCount{{CellID: cell, Day: d, Count: 3}}, d); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertScores(ctx, []RiskScore{{CellID: cell, Day: d, Score: 80, Level: RiskCritical}}); err != nil {
		t.Fatal(err)
	}

	n, err := store.RefreshRiskView(ctx)
	if err != nil {
		t.Fatalf("RefreshRiskView: %v", err)
	}
	if n != 1 {
		t.Errorf("view rows = %d, want 1", n)
	}

	rows, err := store.RiskByDate(ctx, d)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].AnomalyFlagged {
		t.Error("cell without a flag row reported as flagged")
	}

	if err := store.UpsertScores(ctx, []RiskScore{{CellID: "unknown", Day: d}}); err == nil {
		t.Error("score for an unregistered cell was accepted")
	}
}
