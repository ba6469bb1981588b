// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package postgis

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/riskgrid/internal/database"
	"github.com/tomtom215/riskgrid/internal/metrics"
)

var renderTileSQL = fmt.Sprintf(`
WITH bounds AS (
	SELECT ST_TileEnvelope($1, $2, $3) AS env
),
tile_rows AS (
	SELECT
		ST_AsMVTGeom(ST_Transform(v.boundary, 3857), bounds.env, %d, %d, true) AS geom,
		v.h3_index,
		to_char(v.time_bucket, 'YYYY-MM-DD') AS time_bucket,
		v.event_count,
		v.risk_score,
		v.risk_level,
		v.anomaly_flagged
	FROM mv_daily_risk v, bounds
	WHERE v.boundary && ST_Transform(bounds.env, 4326)
		AND ($4::date IS NULL OR v.time_bucket = $4::date)
		AND (cardinality($5::text[]) = 0 OR v.risk_level = ANY($5::text[]))
)
SELECT ST_AsMVT(tile_rows, '%s', %d, 'geom') FROM tile_rows WHERE geom IS NOT NULL`,
	database.TileExtent, database.TileBuffer, database.TileLayer, database.TileExtent)

// RenderTile encodes the view rows intersecting z/x/y as a Mapbox Vector Tile.
func (s *Store) RenderTile(ctx context.Context, z, x, y int, filter database.TileFilter) (_ []byte, err error) {
	if err := database.ValidateTile(z, x, y); err != nil {
		return nil, err
	}
	start := time.Now()
	defer observe("render_tile", start, &err)
	defer func() { metrics.TileRenderDuration.Observe(time.Since(start).Seconds()) }()

	var dayArg any
	if !filter.Day.IsZero() {
		dayArg = filter.Day.UTC().Format("2006-01-02")
	}
	levels := make([]string, len(filter.Levels))
	for i, l := range filter.Levels {
		levels[i] = string(l)
	}

	var mvt []byte
	if err := s.pool.QueryRow(ctx, renderTileSQL, z, x, y, dayArg, levels).Scan(&mvt); err != nil {
		return nil, fmt.Errorf("failed to generate vector tile: %w", err)
	}
	if len(mvt) == 0 {
		return nil, nil
	}
	return mvt, nil
}
