// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

/*
Package hexgrid maps geographic points onto the H3 hexagonal grid.

Only the city-scale resolutions 7 (about 5 km² per cell) and 8 (about 0.7 km²
per cell) are accepted. Cell identifiers are the canonical lowercase
hexadecimal H3 strings, and boundaries are returned as closed rings in
(longitude, latitude) order so they can be stored directly as WKT polygons.

Quick Start:

	cell, err := hexgrid.CellOf(40.7128, -74.0060, 8)
	ring, err := hexgrid.BoundaryOf(cell)
	wkt := ring.WKT()
*/
package hexgrid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/uber/h3-go/v4"
)

const (
	// MinResolution is the coarsest supported H3 resolution.
	MinResolution = 7
	// MaxResolution is the finest supported H3 resolution.
	MaxResolution = 8
	// DefaultResolution is used when callers do not specify one.
	DefaultResolution = 8
)

// ErrInvalidCell is returned for identifiers that are not valid H3 cells.
var ErrInvalidCell = errors.New("invalid h3 cell")

// ResolutionError reports a resolution outside the supported range.
type ResolutionError struct {
	Resolution int
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolution %d outside supported range %d..%d", e.Resolution, MinResolution, MaxResolution)
}

// CoordinateError reports a latitude or longitude outside WGS84 bounds.
type CoordinateError struct {
	Lat, Lon float64
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("coordinate (lat=%g, lon=%g) out of range", e.Lat, e.Lon)
}

// Point is a (longitude, latitude) vertex in degrees.
type Point struct {
	Lon float64
	Lat float64
}

// Ring is a closed polygon ring: the first vertex is repeated as the last.
type Ring []Point

// ValidateResolution returns a *ResolutionError unless res is 7 or 8.
func ValidateResolution(res int) error {
	if res < MinResolution || res > MaxResolution {
		return &ResolutionError{Resolution: res}
	}
	return nil
}

// CellOf returns the H3 cell containing (lat, lon) at the given resolution.
// The result is deterministic for identical inputs.
func CellOf(lat, lon float64, res int) (string, error) {
	if err := ValidateResolution(res); err != nil {
		return "", err
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", &CoordinateError{Lat: lat, Lon: lon}
	}
	cell := h3.LatLngToCell(h3.NewLatLng(lat, lon), res)
	if !cell.IsValid() {
		return "", fmt.Errorf("%w: no cell for (%g, %g)", ErrInvalidCell, lat, lon)
	}
	return cell.String(), nil
}

func parseCell(id string) (h3.Cell, error) {
	id = strings.TrimSpace(strings.ToLower(id))
	if id == "" {
		return 0, fmt.Errorf("%w: empty identifier", ErrInvalidCell)
	}
	if _, err := strconv.ParseUint(id, 16, 64); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCell, id)
	}
	cell := h3.Cell(h3.IndexFromString(id))
	if !cell.IsValid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCell, id)
	}
	return cell, nil
}

// ResolutionOf returns the resolution encoded in a cell identifier.
func ResolutionOf(cellID string) (int, error) {
	cell, err := parseCell(cellID)
	if err != nil {
		return 0, err
	}
	return cell.Resolution(), nil
}

// BoundaryOf returns the closed boundary ring of a cell in (lon, lat) order.
func BoundaryOf(cellID string) (Ring, error) {
	cell, err := parseCell(cellID)
	if err != nil {
		return nil, err
	}
	verts := cell.Boundary()
	if len(verts) == 0 {
		return nil, fmt.Errorf("%w: %q has no boundary", ErrInvalidCell, cellID)
	}
	ring := make(Ring, 0, len(verts)+1)
	for _, v := range verts {
		ring = append(ring, Point{Lon: v.Lng, Lat: v.Lat})
	}
	return append(ring, ring[0]), nil
}

// Closed reports whether the ring has at least four vertices and ends where it starts.
func (r Ring) Closed() bool {
	return len(r) >= 4 && r[0] == r[len(r)-1]
}

// WKT renders the ring as a POLYGON in well-known text.
func (r Ring) WKT() string {
	var b strings.Builder
	b.WriteString("POLYGON((")
	for i, p := range r {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(p.Lon, 'f', -1, 64))
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(p.Lat, 'f', -1, 64))
	}
	b.WriteString("))")
	return b.String()
}
