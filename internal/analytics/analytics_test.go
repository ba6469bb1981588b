// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package analytics

import (
	"math"
	"reflect"
	"testing"
	"time"
)

func day(s string) time.Time {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func series(cell string, first time.Time, counts ...int64) []Aggregate {
	out := make([]Aggregate, len(counts))
	for i, c := range counts {
		out[i] = Aggregate{CellID: cell, Day: first.AddDate(0, 0, i), EventCount: c}
	}
	return out
}

func near(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

func TestClassifyRisk_Boundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{0, RiskLow},
		{25, RiskLow},
		{25.0001, RiskMedium},
		{50, RiskMedium},
		{50.0001, RiskHigh},
		{50.5, RiskHigh},
		{75, RiskHigh},
		{75.0001, RiskCritical},
		{75.01, RiskCritical},
		{100, RiskCritical},
	}
	for _, tt := range tests {
		if got := ClassifyRisk(tt.score); got != tt.want {
			t.Errorf("ClassifyRisk(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	if got := Normalize(3, 3, 10); got != 0 {
		t.Errorf("Normalize(min) = %v, want 0", got)
	}
	if got := Normalize(10, 3, 10); got != 100 {
		t.Errorf("Normalize(max) = %v, want 100", got)
	}
	if got := Normalize(6.5, 3, 10); !near(got, 50, 1e-9) {
		t.Errorf("Normalize(mid) = %v, want 50", got)
	}
	if got := Normalize(5, 5, 5); got != 0 {
		t.Errorf("Normalize(degenerate) = %v, want 0", got)
	}
}

func TestGrowthRate_ZeroGuard(t *testing.T) {
	t.Parallel()

	if got := GrowthRate(12, 0); got != 0 {
		t.Errorf("GrowthRate(12, 0) = %v, want 0", got)
	}
	if got := GrowthRate(8, 4); !near(got, 1, 1e-9) {
		t.Errorf("GrowthRate(8, 4) = %v, want 1", got)
	}
	if got := GrowthRate(2, 4); !near(got, -0.5, 1e-9) {
		t.Errorf("GrowthRate(2, 4) = %v, want -0.5", got)
	}
}

func TestComputeWindows_RowBased(t *testing.T) {
	t.Parallel()

	rows := series("a", day("2024-01-01"), 1, 2, 3, 4, 5, 6, 7, 8, 9)
	out := ComputeWindows(rows)
	if len(out) != 9 {
		t.Fatalf("len = %d, want 9", len(out))
	}

	tests := []struct {
		idx             int
		rolling, growth float64
	}{
		{0, 1, 0},   // rolling is itself, no prior rows
		{1, 1.5, 1}, // rolling (1+2)/2, prior 1
		{7, 5, 1},   // rolling over counts 2..8, prior over 1..7
		{8, 6, 0.8}, // rolling over 3..9, prior over 2..8
	}
	for _, tt := range tests {
		r := out[tt.idx]
		if !near(r.Rolling7dAvg, tt.rolling, 1e-9) || !near(r.GrowthRate, tt.growth, 1e-9) {
			t.Errorf("row %d: rolling = %v growth = %v, want %v and %v",
				tt.idx, r.Rolling7dAvg, r.GrowthRate, tt.rolling, tt.growth)
		}
	}

	if rows[8].Rolling7dAvg != 0 {
		t.Error("input rows were modified")
	}
}

func TestComputeWindows_IgnoresCalendarGaps(t *testing.T) {
	t.Parallel()

	rows := []Aggregate{
		{CellID: "a", Day: day("2024-01-01"), EventCount: 4},
		{CellID: "a", Day: day("2024-01-20"), EventCount: 8},
	}
	out := ComputeWindows(rows)
	if !near(out[1].Rolling7dAvg, 6, 1e-9) || !near(out[1].GrowthRate, 1, 1e-9) {
		t.Errorf("second row = %+v, want rolling 6 growth 1", out[1])
	}
}

func TestComputeWindows_PartitionsByCell(t *testing.T) {
	t.Parallel()

	rows := append(series("b", day("2024-01-01"), 10, 10), series("a", day("2024-01-01"), 1, 3)...)
	out := ComputeWindows(rows)
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}
	if out[0].CellID != "a" || out[2].CellID != "b" {
		t.Errorf("rows not ordered by cell: %s, %s", out[0].CellID, out[2].CellID)
	}
	if !near(out[1].Rolling7dAvg, 2, 1e-9) || !near(out[1].GrowthRate, 2, 1e-9) {
		t.Errorf("cell a day 2 = %+v", out[1])
	}
	if out[3].GrowthRate != 0 {
		t.Errorf("cell b growth = %v, want 0", out[3].GrowthRate)
	}
}

func TestScoreBatch_BoundsAndEndpoints(t *testing.T) {
	t.Parallel()

	rows := ComputeWindows(append(
		series("a", day("2024-03-01"), 1, 5, 2, 9, 0, 3),
		series("b", day("2024-03-01"), 7, 7, 20, 1, 4, 11)...,
	))
	scores := ScoreBatch(rows, time.Now())
	if len(scores) != len(rows) {
		t.Fatalf("len = %d, want %d", len(scores), len(rows))
	}

	var sawMin, sawMax bool
	for _, s := range scores {
		if s.Score < 0 || s.Score > 100 {
			t.Errorf("score %v out of [0, 100]", s.Score)
		}
		if want := ClassifyRisk(s.Score); s.Level != want {
			t.Errorf("score %v level = %s, want %s", s.Score, s.Level, want)
		}
		sawMin = sawMin || s.Score == 0
		sawMax = sawMax || s.Score == 100
	}
	if !sawMin {
		t.Error("lowest raw score should normalize to 0")
	}
	if !sawMax {
		t.Error("highest raw score should normalize to 100")
	}
}

func TestScoreBatch_Degenerate(t *testing.T) {
	t.Parallel()

	rows := []Aggregate{
		{CellID: "a", Day: day("2024-01-01"), EventCount: 3, Rolling7dAvg: 3},
		{CellID: "b", Day: day("2024-01-01"), EventCount: 3, Rolling7dAvg: 3},
	}
	for _, s := range ScoreBatch(rows, time.Now()) {
		if s.Score != 0 || s.Level != RiskLow {
			t.Errorf("degenerate batch scored %v (%s), want 0 (low)", s.Score, s.Level)
		}
	}
	if got := ScoreBatch(nil, time.Now()); len(got) != 0 {
		t.Errorf("empty batch = %v", got)
	}
}

func TestRawScore(t *testing.T) {
	t.Parallel()

	a := Aggregate{EventCount: 10, GrowthRate: 0.5, Rolling7dAvg: 4}
	if got, want := RawScore(a), 0.5*10+0.3*0.5+0.2*4; !near(got, want, 1e-12) {
		t.Errorf("RawScore = %v, want %v", got, want)
	}
}

func TestDetectAnomalies_Spike(t *testing.T) {
	t.Parallel()

	rows := series("a", day("2024-05-01"), 10, 10, 10, 10, 10, 10, 50)
	flags := DetectAnomalies(rows, time.Now())
	if len(flags) != 7 {
		t.Fatalf("len = %d, want 7", len(flags))
	}

	last := flags[6]
	if !last.Flagged || !near(last.ZScore, 2.449, 0.01) {
		t.Errorf("spike = %+v, want flagged with z ~2.449", last)
	}
	for i, f := range flags[:6] {
		if f.Flagged || f.ZScore >= 0 {
			t.Errorf("day %d = %+v, want unflagged with negative z", i, f)
		}
	}
}

func TestDetectAnomalies_ConstantAndSingle(t *testing.T) {
	t.Parallel()

	flags := DetectAnomalies(append(
		series("a", day("2024-05-01"), 4, 4, 4),
		series("b", day("2024-05-01"), 99)...,
	), time.Now())
	if len(flags) != 4 {
		t.Fatalf("len = %d, want 4", len(flags))
	}
	for _, f := range flags {
		if f.ZScore != 0 || f.Flagged {
			t.Errorf("%s %v = %+v, want z 0 unflagged", f.CellID, f.Day, f)
		}
	}
}

func TestMeanPopStdDev(t *testing.T) {
	t.Parallel()

	mu, sigma := MeanPopStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if !near(mu, 5, 1e-12) || !near(sigma, 2, 1e-12) {
		t.Errorf("mean, stddev = %v, %v, want 5, 2", mu, sigma)
	}

	mu, sigma = MeanPopStdDev([]float64{7})
	if mu != 7 || sigma != 0 {
		t.Errorf("single value = %v, %v, want 7, 0", mu, sigma)
	}

	if _, sigma = MeanPopStdDev(nil); sigma != 0 {
		t.Errorf("empty stddev = %v", sigma)
	}
	if math.IsNaN(ZScore(1, 1, 0)) {
		t.Error("ZScore with zero stddev is NaN")
	}
}

func TestGroupByCellDay(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 2, 10, 23, 30, 0, 0, time.UTC)
	events := []EventPoint{
		{EventID: "1", Timestamp: ts, Lat: 40.7128, Lon: -74.0060},
		{EventID: "2", Timestamp: ts.Add(40 * time.Minute), Lat: 40.7128, Lon: -74.0060}, // next UTC day
		{EventID: "3", Timestamp: ts, Lat: 40.71281, Lon: -74.00601},
	}
	counts, cells, err := GroupByCellDay(events, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 1 || len(counts) != 2 {
		t.Fatalf("cells = %d counts = %d, want 1 and 2", len(cells), len(counts))
	}
	if counts[0].Count != 2 || !counts[0].Day.Equal(day("2024-02-10")) {
		t.Errorf("counts[0] = %+v", counts[0])
	}
	if counts[1].Count != 1 || !counts[1].Day.Equal(day("2024-02-11")) {
		t.Errorf("counts[1] = %+v", counts[1])
	}
	if !cells[0].Boundary.Closed() || cells[0].AreaKm2 <= 0 {
		t.Errorf("cell = %+v", cells[0])
	}

	if _, _, err := GroupByCellDay(events, 6); err == nil {
		t.Error("resolution 6 accepted")
	}
}

func TestDayOf_UsesUTC(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+9", 9*3600)
	local := time.Date(2024, 1, 2, 3, 0, 0, 0, loc) // 2024-01-01T18:00Z
	if got := DayOf(local); !got.Equal(day("2024-01-01")) {
		t.Errorf("DayOf = %v, want 2024-01-01", got)
	}
}

func TestParseLevels(t *testing.T) {
	t.Parallel()

	if got := ParseLevels(""); got != nil {
		t.Errorf("ParseLevels(\"\") = %v, want nil", got)
	}
	want := []RiskLevel{RiskHigh, RiskCritical}
	if got := ParseLevels("high, CRITICAL,bogus,high"); !reflect.DeepEqual(got, want) {
		t.Errorf("ParseLevels = %v, want %v", got, want)
	}
}

func TestSortHotspots(t *testing.T) {
	t.Parallel()

	rows := []RiskViewRow{
		{CellID: "a", Day: day("2024-01-01"), RiskScore: 90},
		{CellID: "b", Day: day("2024-01-02"), RiskScore: 60},
		{CellID: "c", Day: day("2024-01-02"), RiskScore: 80},
	}
	SortHotspots(rows)
	if got := rows[0].CellID + rows[1].CellID + rows[2].CellID; got != "cba" {
		t.Errorf("order = %s, want cba", got)
	}
	if !IsHotspot(RiskViewRow{RiskLevel: RiskLow, AnomalyFlagged: true}) {
		t.Error("flagged low-risk row should be a hotspot")
	}
	if IsHotspot(RiskViewRow{RiskLevel: RiskMedium}) {
		t.Error("unflagged medium row should not be a hotspot")
	}
}
