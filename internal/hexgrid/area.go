// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package hexgrid

import (
	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the mean Earth radius used for spherical area.
const EarthRadiusKm = 6371.0088

// AreaKm2 returns the spherical area of a closed ring in square kilometres.
// Rings with fewer than three distinct vertices have zero area.
func AreaKm2(r Ring) float64 {
	pts := r
	if r.Closed() {
		pts = r[:len(r)-1]
	}
	if len(pts) < 3 {
		return 0
	}
	s2pts := make([]s2.Point, len(pts))
	for i, p := range pts {
		s2pts[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lon))
	}
	loop := s2.LoopFromPoints(s2pts)
	loop.Normalize()
	return loop.Area() * EarthRadiusKm * EarthRadiusKm
}

// CellAreaKm2 returns the area of a cell by identifier.
func CellAreaKm2(cellID string) (float64, error) {
	ring, err := BoundaryOf(cellID)
	if err != nil {
		return 0, err
	}
	return AreaKm2(ring), nil
}
