// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/riskgrid/internal/analytics"
	"github.com/tomtom215/riskgrid/internal/cache"
)

// maxHotspotRangeDays bounds /hotspots scans.
const maxHotspotRangeDays = 366

// RiskByDate returns every scored cell for one day, highest risk first.
// Scores are normalized within the run that produced them, so values are
// comparable inside a day but not across separately computed runs.
func (h *Handler) RiskByDate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	day, err := parseDayParam(chi.URLParam(r, "date"))
	if err != nil {
		badRequest(w, r, "date", "date must be formatted YYYY-MM-DD")
		return
	}

	key := cache.QueryKey("risk", day.Format(analytics.DateLayout))
	rows, cached, err := cachedQuery(h, key, func() ([]analytics.RiskViewRow, error) {
		return h.store.RiskByDate(r.Context(), day)
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if rows == nil {
		rows = []analytics.RiskViewRow{}
	}
	respondSuccess(w, r, http.StatusOK, rows, responseMeta{start: start, cached: cached, count: countOf(len(rows))})
}

// Hotspots returns high and critical cells plus anomaly-flagged cells in
// [start_date, end_date], newest day first.
func (h *Handler) Hotspots(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	if q.Get("start_date") == "" || q.Get("end_date") == "" {
		badRequest(w, r, "start_date", "start_date and end_date are required")
		return
	}
	first, err := parseDayParam(q.Get("start_date"))
	if err != nil {
		badRequest(w, r, "start_date", "start_date must be formatted YYYY-MM-DD")
		return
	}
	last, err := parseDayParam(q.Get("end_date"))
	if err != nil {
		badRequest(w, r, "end_date", "end_date must be formatted YYYY-MM-DD")
		return
	}
	if last.Before(first) {
		badRequest(w, r, "end_date", "end_date must not be before start_date")
		return
	}
	if last.Sub(first) > maxHotspotRangeDays*24*time.Hour {
		badRequest(w, r, "end_date", "date range must not exceed 366 days")
		return
	}

	key := cache.QueryKey("hotspots", []string{first.Format(analytics.DateLayout), last.Format(analytics.DateLayout)})
	rows, cached, err := cachedQuery(h, key, func() ([]analytics.RiskViewRow, error) {
		return h.store.Hotspots(r.Context(), first, last)
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if rows == nil {
		rows = []analytics.RiskViewRow{}
	}
	respondSuccess(w, r, http.StatusOK, rows, responseMeta{start: start, cached: cached, count: countOf(len(rows))})
}
