// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package database

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tomtom215/riskgrid/internal/analytics"
	"github.com/tomtom215/riskgrid/internal/metrics"
)

// Vector tile layout.
const (
	TileLayer  = "risk"
	TileExtent = 4096
	TileBuffer = 64
	MaxZoom    = 22
)

// webMercatorHalf is half the Web Mercator world width in metres.
const webMercatorHalf = 20037508.342789244

// TileBounds is a tile's bounding box.
type TileBounds struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// TileFilter narrows the rows drawn into a tile. A zero Day draws every day.
type TileFilter struct {
	Day    time.Time
	Levels []analytics.RiskLevel
}

// ValidateTile checks that z/x/y address an existing tile.
func ValidateTile(z, x, y int) error {
	if z < 0 || z > MaxZoom {
		return fmt.Errorf("zoom %d out of range 0..%d", z, MaxZoom)
	}
	n := 1 << uint(z)
	if x < 0 || x >= n || y < 0 || y >= n {
		return fmt.Errorf("tile %d/%d/%d out of range", z, x, y)
	}
	return nil
}

// CalculateTileBounds returns the tile's bounds in degrees (EPSG:4326).
func CalculateTileBounds(z, x, y int) TileBounds {
	n := math.Pow(2, float64(z))

	minLon := float64(x)/n*360.0 - 180.0
	maxLon := float64(x+1)/n*360.0 - 180.0

	minLatRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y+1)/n)))
	maxLatRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y)/n)))

	return TileBounds{
		MinX: minLon,
		MinY: minLatRad * 180.0 / math.Pi,
		MaxX: maxLon,
		MaxY: maxLatRad * 180.0 / math.Pi,
	}
}

// MercatorTileBounds returns the tile's bounds in metres (EPSG:3857).
func MercatorTileBounds(z, x, y int) TileBounds {
	n := math.Pow(2, float64(z))
	size := 2 * webMercatorHalf / n
	return TileBounds{
		MinX: -webMercatorHalf + float64(x)*size,
		MaxX: -webMercatorHalf + float64(x+1)*size,
		MinY: webMercatorHalf - float64(y+1)*size,
		MaxY: webMercatorHalf - float64(y)*size,
	}
}

// RenderTile encodes the mv_daily_risk rows intersecting tile z/x/y as a
// Mapbox Vector Tile with one layer named "risk". An empty tile is a nil
// slice with no error.
func (db *DB) RenderTile(ctx context.Context, z, x, y int, filter TileFilter) (_ []byte, err error) {
	if !db.spatialAvailable {
		return nil, ErrSpatialUnavailable
	}
	if err := ValidateTile(z, x, y); err != nil {
		return nil, err
	}
	start := time.Now()
	defer observe("render_tile", start, &err)
	defer func() { metrics.TileRenderDuration.Observe(time.Since(start).Seconds()) }()

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	deg := CalculateTileBounds(z, x, y)
	merc := MercatorTileBounds(z, x, y)

	where := []string{
		"ST_Intersects(ST_GeomFromText(boundary_wkt), ST_MakeEnvelope(?, ?, ?, ?))",
	}
	args := []interface{}{deg.MinX, deg.MinY, deg.MaxX, deg.MaxY}
	if !filter.Day.IsZero() {
		where = append(where, "time_bucket = CAST(? AS DATE)")
		args = append(args, dayArg(filter.Day))
	}
	if len(filter.Levels) > 0 {
		placeholders := make([]string, len(filter.Levels))
		for i, l := range filter.Levels {
			placeholders[i] = "?"
			args = append(args, string(l))
		}
		where = append(where, fmt.Sprintf("risk_level IN (%s)", strings.Join(placeholders, ",")))
	}

	query := fmt.Sprintf(`
		WITH tile_rows AS (
			SELECT
				ST_AsMVTGeom(
					ST_Transform(ST_GeomFromText(boundary_wkt), 'EPSG:4326', 'EPSG:3857', true),
					ST_Extent(ST_MakeEnvelope(?, ?, ?, ?)),
					%d,
					%d,
					true
				) AS geom,
				h3_index,
				strftime(time_bucket, '%%Y-%%m-%%d') AS time_bucket,
				event_count,
				risk_score,
				risk_level,
				anomaly_flagged
			FROM mv_daily_risk
			WHERE %s
		)
		SELECT ST_AsMVT(tile_rows, '%s', %d, 'geom') AS mvt
		FROM tile_rows
		WHERE geom IS NOT NULL`,
		TileExtent, TileBuffer, strings.Join(where, " AND "), TileLayer, TileExtent)

	args = append([]interface{}{merc.MinX, merc.MinY, merc.MaxX, merc.MaxY}, args...)

	var mvt []byte
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&mvt); err != nil {
		return nil, fmt.Errorf("failed to generate vector tile: %w", err)
	}
	return mvt, nil
}
