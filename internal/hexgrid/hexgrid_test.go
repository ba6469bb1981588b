// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package hexgrid

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestCellOf_Deterministic(t *testing.T) {
	t.Parallel()

	a, err := CellOf(40.7128, -74.0060, 8)
	if err != nil {
		t.Fatal(err)
	}
	b, err := CellOf(40.7128, -74.0060, 8)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("CellOf not deterministic: %s != %s", a, b)
	}
	if len(a) != 15 {
		t.Errorf("len(%q) = %d, want 15", a, len(a))
	}

	res, err := ResolutionOf(a)
	if err != nil {
		t.Fatal(err)
	}
	if res != 8 {
		t.Errorf("ResolutionOf = %d, want 8", res)
	}
}

func TestCellOf_ResolutionRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		res     int
		wantErr bool
	}{
		{6, true},
		{7, false},
		{8, false},
		{9, true},
		{0, true},
	}
	for _, tt := range tests {
		_, err := CellOf(51.5, -0.12, tt.res)
		if tt.wantErr {
			var re *ResolutionError
			if !errors.As(err, &re) {
				t.Errorf("res %d: err = %v, want *ResolutionError", tt.res, err)
			}
		} else if err != nil {
			t.Errorf("res %d: %v", tt.res, err)
		}
	}
}

func TestCellOf_CoordinateRange(t *testing.T) {
	t.Parallel()

	var ce *CoordinateError
	if _, err := CellOf(91, 0, 8); !errors.As(err, &ce) {
		t.Errorf("lat 91: err = %v, want *CoordinateError", err)
	}
	if _, err := CellOf(0, -181, 8); !errors.As(err, &ce) {
		t.Errorf("lon -181: err = %v, want *CoordinateError", err)
	}
}

func TestCellOf_NearbyPointsShareCell(t *testing.T) {
	t.Parallel()

	a, err := CellOf(40.7128, -74.0060, 7)
	if err != nil {
		t.Fatal(err)
	}
	b, err := CellOf(40.71281, -74.00601, 7)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("nearby points in different cells: %s, %s", a, b)
	}
}

func TestBoundaryOf_ClosedRing(t *testing.T) {
	t.Parallel()

	cell, err := CellOf(35.6762, 139.6503, 8)
	if err != nil {
		t.Fatal(err)
	}

	ring, err := BoundaryOf(cell)
	if err != nil {
		t.Fatal(err)
	}
	if !ring.Closed() {
		t.Error("ring is not closed")
	}
	if len(ring) < 7 {
		t.Errorf("ring has %d points, want at least 7", len(ring))
	}

	for _, p := range ring {
		if math.Abs(p.Lon-139.6503) > 0.05 || math.Abs(p.Lat-35.6762) > 0.05 {
			t.Errorf("vertex %+v too far from the cell center", p)
		}
	}

	wkt := ring.WKT()
	if !strings.HasPrefix(wkt, "POLYGON((") || !strings.HasSuffix(wkt, "))") {
		t.Errorf("WKT = %q", wkt)
	}
}

func TestBoundaryOf_InvalidCell(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"", "not-a-cell", "0", "ffffffffffffffff"} {
		if _, err := BoundaryOf(id); !errors.Is(err, ErrInvalidCell) {
			t.Errorf("BoundaryOf(%q) = %v, want ErrInvalidCell", id, err)
		}
	}
}

func TestAreaKm2(t *testing.T) {
	t.Parallel()

	cell7, err := CellOf(48.8566, 2.3522, 7)
	if err != nil {
		t.Fatal(err)
	}
	cell8, err := CellOf(48.8566, 2.3522, 8)
	if err != nil {
		t.Fatal(err)
	}

	a7, err := CellAreaKm2(cell7)
	if err != nil {
		t.Fatal(err)
	}
	a8, err := CellAreaKm2(cell8)
	if err != nil {
		t.Fatal(err)
	}

	// Average areas are ~5.16 km² and ~0.74 km².
	if math.Abs(a7-5.16) > 2.0 {
		t.Errorf("res 7 area = %v km²", a7)
	}
	if math.Abs(a8-0.74) > 0.3 {
		t.Errorf("res 8 area = %v km²", a8)
	}
	if a7 <= a8 {
		t.Errorf("res 7 area %v should exceed res 8 area %v", a7, a8)
	}

	if got := AreaKm2(Ring{{0, 0}, {1, 1}}); got != 0 {
		t.Errorf("degenerate ring area = %v, want 0", got)
	}
}
