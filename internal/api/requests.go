// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/riskgrid/internal/analytics"
	"github.com/tomtom215/riskgrid/internal/ingest"
	"github.com/tomtom215/riskgrid/internal/models"
)

// Body size limits.
const (
	maxSmallBody  = 64 << 10
	maxUploadBody = 32 << 20
)

// decodeJSON reads a JSON body into dst. On failure it writes a 400 (or 413)
// and returns false. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, limit int64) bool {
	body := http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, r, http.StatusRequestEntityTooLarge, models.ErrCodeValidation,
			"Request body too large", nil)
		return false
	}
	badRequest(w, r, "body", "Request body must be valid JSON: "+err.Error())
	return false
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates. Missing
// parameters yield the zero time.
func parseTimeParam(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return ingest.ParseTimestamp(s)
}

// parseDayParam parses a required YYYY-MM-DD parameter.
func parseDayParam(s string) (time.Time, error) {
	return analytics.ParseDay(strings.TrimSpace(s))
}

// firstQuery returns the first non-empty query value among names.
func firstQuery(r *http.Request, names ...string) string {
	q := r.URL.Query()
	for _, n := range names {
		if v := q.Get(n); v != "" {
			return v
		}
	}
	return ""
}

// parseLimit applies the default and rejects values outside 1..upper.
func parseLimit(s string, def, upper int) (int, bool) {
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > upper {
		return 0, false
	}
	return n, true
}
