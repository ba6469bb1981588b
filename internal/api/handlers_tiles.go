// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/riskgrid/internal/analytics"
	"github.com/tomtom215/riskgrid/internal/cache"
	"github.com/tomtom215/riskgrid/internal/database"
	"github.com/tomtom215/riskgrid/internal/logging"
)

// MVTContentType is the media type of vector tile responses.
const MVTContentType = "application/vnd.mapbox-vector-tile"

// Tile serves one Mapbox vector tile of the risk view. Optional filters:
// risk_date=YYYY-MM-DD and risk_level=high,critical. Rendered tiles are
// cached until the next view refresh; cache failures fall back to
// rendering.
func (h *Handler) Tile(w http.ResponseWriter, r *http.Request) {
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if errZ != nil || errX != nil || errY != nil {
		badRequest(w, r, "tile", "z, x and y must be integers")
		return
	}
	if err := database.ValidateTile(z, x, y); err != nil {
		badRequest(w, r, "tile", err.Error())
		return
	}

	var filter database.TileFilter
	if raw := r.URL.Query().Get("risk_date"); raw != "" {
		day, err := parseDayParam(raw)
		if err != nil {
			badRequest(w, r, "risk_date", "risk_date must be formatted YYYY-MM-DD")
			return
		}
		filter.Day = day
	}
	if raw := r.URL.Query().Get("risk_level"); raw != "" {
		filter.Levels = analytics.ParseLevels(raw)
		if len(filter.Levels) == 0 {
			badRequest(w, r, "risk_level", "risk_level must list low, medium, high or critical")
			return
		}
	}

	key := cache.TileKey(z, x, y, filter.Day, filter.Levels)
	ctx := r.Context()
	if data, ok, err := h.tiles.Get(ctx, key); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("key", key).Msg("Tile cache read failed; rendering")
	} else if ok {
		writeTile(w, data, true)
		return
	}

	data, err := h.store.RenderTile(ctx, z, x, y, filter)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := h.tiles.Set(ctx, key, data); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("key", key).Msg("Tile cache write failed")
	}
	writeTile(w, data, false)
}

func writeTile(w http.ResponseWriter, data []byte, hit bool) {
	w.Header().Set("Content-Type", MVTContentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
