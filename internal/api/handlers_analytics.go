// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/riskgrid/internal/auth"
	"github.com/tomtom215/riskgrid/internal/jobs"
)

const recentJobsLimit = 50

// RunRequest is the body of POST /analytics/run. Every field is optional.
type RunRequest struct {
	Start      string `json:"start,omitempty"`
	End        string `json:"end,omitempty"`
	Resolution *int   `json:"resolution,omitempty"`
}

// RunAccepted is returned with 202 once a run is queued.
type RunAccepted struct {
	JobID  string      `json:"job_id"`
	Status jobs.Status `json:"status"`
}

// AnalyticsRun queues a pipeline run. end defaults to now, start to end
// minus the configured window and resolution to the configured default.
func (h *Handler) AnalyticsRun(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if !decodeJSON(w, r, &body, maxSmallBody) {
		return
	}

	end, err := parseTimeParam(body.End)
	if err != nil {
		badRequest(w, r, "end", "end must be an ISO 8601 timestamp")
		return
	}
	if end.IsZero() {
		end = h.now().UTC()
	}
	start, err := parseTimeParam(body.Start)
	if err != nil {
		badRequest(w, r, "start", "start must be an ISO 8601 timestamp")
		return
	}
	if start.IsZero() {
		start = end.Add(-time.Duration(h.cfg.Analytics.DefaultWindowDays) * 24 * time.Hour)
	}
	resolution := h.cfg.Analytics.DefaultResolution
	if body.Resolution != nil {
		resolution = *body.Resolution
	}

	job, err := h.jobs.Submit(r.Context(), jobs.RunRequest{
		Start:      start,
		End:        end,
		Resolution: resolution,
		Source:     "api:" + auth.ClaimsFromContext(r.Context()).Username,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/analytics/jobs/"+job.ID)
	respondSuccess(w, r, http.StatusAccepted, RunAccepted{JobID: job.ID, Status: job.Status}, responseMeta{})
}

// AnalyticsJob returns one job's status and, once finished, its report.
func (h *Handler) AnalyticsJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, job, responseMeta{})
}

// AnalyticsJobs lists the most recent jobs, newest first.
func (h *Handler) AnalyticsJobs(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r.URL.Query().Get("limit"), recentJobsLimit, 500)
	if !ok {
		badRequest(w, r, "limit", "limit must be between 1 and 500")
		return
	}
	list, err := h.jobs.Recent(r.Context(), limit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, list, responseMeta{count: countOf(len(list))})
}
