// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/riskgrid/internal/ingest"
	"github.com/tomtom215/riskgrid/internal/models"
)

// UploadRequest is the object form of POST /events/upload. A bare JSON
// array of events is accepted as well.
type UploadRequest struct {
	Events []models.Event `json:"events"`
}

// UploadResult reports how many events were stored. Events whose id was
// already stored are skipped and not counted.
type UploadResult struct {
	Received int `json:"received"`
	Inserted int `json:"inserted"`
}

// EventsUpload validates and stores a batch of events. The whole batch is
// rejected if any event is invalid.
func (h *Handler) EventsUpload(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, models.ErrCodeValidation, "Request body too large", nil)
			return
		}
		badRequest(w, r, "body", "Could not read request body")
		return
	}

	events, err := decodeUpload(raw)
	if err != nil {
		badRequest(w, r, "body", "Request body must be a JSON array of events or {\"events\": [...]}")
		return
	}
	if err := ingest.ValidateEvents(events, h.cfg.Analytics.MaxUploadEvents); err != nil {
		handleError(w, r, err)
		return
	}

	inserted, err := ingest.Insert(r.Context(), h.store, ingest.SourceAPI, events, ingest.DefaultBatchSize)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, UploadResult{Received: len(events), Inserted: inserted}, responseMeta{})
}

func decodeUpload(raw []byte) ([]models.Event, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var events []models.Event
		err := json.Unmarshal(trimmed, &events)
		return events, err
	}
	var req UploadRequest
	err := json.Unmarshal(trimmed, &req)
	return req.Events, err
}

// EventsList returns events newest first. Filters: event_type, start and
// end (inclusive, ISO 8601; start_datetime and end_datetime are accepted as
// aliases) and limit.
func (h *Handler) EventsList(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	limit, ok := parseLimit(r.URL.Query().Get("limit"), h.cfg.Analytics.DefaultListLimit, h.cfg.Analytics.MaxListLimit)
	if !ok {
		badRequest(w, r, "limit", "limit must be between 1 and the configured maximum")
		return
	}
	start, err := parseTimeParam(firstQuery(r, "start", "start_datetime"))
	if err != nil {
		badRequest(w, r, "start", "start must be an ISO 8601 timestamp")
		return
	}
	end, err := parseTimeParam(firstQuery(r, "end", "end_datetime"))
	if err != nil {
		badRequest(w, r, "end", "end must be an ISO 8601 timestamp")
		return
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		badRequest(w, r, "end", "end must not be before start")
		return
	}

	events, err := h.store.ListEvents(r.Context(), models.EventFilter{
		Limit:     limit,
		EventType: r.URL.Query().Get("event_type"),
		Start:     start,
		End:       end,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	respondSuccess(w, r, http.StatusOK, events, responseMeta{start: started, count: countOf(len(events))})
}
