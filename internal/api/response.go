// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/riskgrid/internal/analytics"
	"github.com/tomtom215/riskgrid/internal/database"
	"github.com/tomtom215/riskgrid/internal/jobs"
	"github.com/tomtom215/riskgrid/internal/logging"
	"github.com/tomtom215/riskgrid/internal/models"
	"github.com/tomtom215/riskgrid/internal/validation"
)

// responseMeta is filled in by handlers and finished by respondSuccess.
type responseMeta struct {
	start  time.Time
	cached bool
	count  *int
}

func countOf(n int) *int { return &n }

// respondJSON marshals the envelope and writes it with status.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

func respondSuccess(w http.ResponseWriter, r *http.Request, status int, data interface{}, meta responseMeta) {
	md := models.Metadata{
		Timestamp: time.Now().UTC(),
		Cached:    meta.cached,
		Count:     meta.count,
		RequestID: logging.RequestIDFromContext(r.Context()),
	}
	if !meta.start.IsZero() {
		md.QueryTimeMS = time.Since(meta.start).Milliseconds()
	}
	respondJSON(w, status, &models.APIResponse{Status: "success", Data: data, Metadata: md})
}

func respondAPIError(w http.ResponseWriter, r *http.Request, status int, apiErr *models.APIError) {
	respondJSON(w, status, &models.APIResponse{
		Status: "error",
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
		Error: apiErr,
	})
}

// respondError writes an error envelope. err, when set, is logged but never
// sent to the client.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		event := logging.Ctx(r.Context()).Warn()
		if status >= http.StatusInternalServerError {
			event = logging.Ctx(r.Context()).Error()
		}
		event.Err(err).Str("code", code).Str("path", sanitizeLogValue(r.URL.Path)).Msg("API error")
	}
	respondAPIError(w, r, status, &models.APIError{Code: code, Message: message})
}

func respondValidation(w http.ResponseWriter, r *http.Request, verr *validation.RequestValidationError) {
	respondAPIError(w, r, http.StatusBadRequest, verr.ToAPIError())
}

// badRequest reports a single invalid parameter.
func badRequest(w http.ResponseWriter, r *http.Request, field, message string) {
	respondValidation(w, r, validation.NewRequestValidationError(field, "invalid", message))
}

// handleError maps domain errors to HTTP statuses and API codes.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.RequestValidationError
	switch {
	case errors.As(err, &verr):
		respondValidation(w, r, verr)
	case analytics.IsInputRange(err):
		respondError(w, r, http.StatusBadRequest, models.ErrCodeValidation, err.Error(), nil)
	case errors.Is(err, jobs.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		respondError(w, r, http.StatusTooManyRequests, models.ErrCodeRateLimit, err.Error(), nil)
	case errors.Is(err, jobs.ErrJobNotFound):
		respondError(w, r, http.StatusNotFound, models.ErrCodeNotFound, "Job not found", nil)
	case errors.Is(err, database.ErrSpatialUnavailable):
		respondError(w, r, http.StatusServiceUnavailable, models.ErrCodeUnavailable, "Vector tiles are unavailable", err)
	case r.Context().Err() != nil && errors.Is(err, r.Context().Err()):
		// Client went away; nothing useful to send.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Request canceled")
	default:
		respondError(w, r, http.StatusInternalServerError, models.ErrCodeDatabase, "A database error occurred", err)
	}
}

// sanitizeLogValue strips control characters from client-supplied strings.
func sanitizeLogValue(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
