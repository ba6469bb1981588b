// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

// Package metrics holds the Prometheus instruments for Riskgrid.
//
// Instruments are package-level promauto collectors registered on the
// default registry and exposed at /metrics. Callers use the Record* helpers
// rather than touching vectors directly.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgrid_pipeline_runs_total",
			Help: "Pipeline runs by outcome",
		},
		[]string{"outcome"}, // completed, failed, rejected
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riskgrid_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	PipelineStageRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgrid_pipeline_stage_rows_total",
			Help: "Rows written by each pipeline stage",
		},
		[]string{"stage"},
	)

	PipelineLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskgrid_pipeline_last_success_timestamp_seconds",
			Help: "Unix time of the last completed pipeline run",
		},
	)

	AnomaliesFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riskgrid_anomalies_flagged_total",
			Help: "Cell-days flagged as anomalous",
		},
	)

	// Jobs
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgrid_jobs_submitted_total",
			Help: "Analytics jobs submitted by result",
		},
		[]string{"result"}, // queued, rate_limited, error
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskgrid_jobs_in_flight",
			Help: "Analytics jobs queued or running",
		},
	)

	// Storage
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riskgrid_db_query_duration_seconds",
			Help:    "Duration of store queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgrid_db_query_errors_total",
			Help: "Failed store queries",
		},
		[]string{"backend", "operation"},
	)

	// Tiles
	TileCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgrid_tile_cache_hits_total",
			Help: "Vector tile cache hits",
		},
		[]string{"cache"},
	)

	TileCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgrid_tile_cache_misses_total",
			Help: "Vector tile cache misses",
		},
		[]string{"cache"},
	)

	TileCacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgrid_tile_cache_errors_total",
			Help: "Tile cache backend errors, including open circuit rejections",
		},
		[]string{"cache"},
	)

	TileRenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "riskgrid_tile_render_duration_seconds",
			Help:    "Time to render an uncached vector tile",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// Ingestion
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgrid_events_ingested_total",
			Help: "Events accepted by source",
		},
		[]string{"source"}, // api, csv, mqtt
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgrid_events_rejected_total",
			Help: "Events rejected by source",
		},
		[]string{"source"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgrid_api_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riskgrid_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskgrid_api_active_requests",
			Help: "In-flight HTTP requests",
		},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskgrid_websocket_clients",
			Help: "Connected WebSocket clients",
		},
	)
)

// RecordPipelineStage records the duration and written rows of one stage.
func RecordPipelineStage(stage string, duration time.Duration, rows int) {
	PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if rows > 0 {
		PipelineStageRows.WithLabelValues(stage).Add(float64(rows))
	}
}

// RecordPipelineRun records the outcome of a run.
func RecordPipelineRun(outcome string) {
	PipelineRuns.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		PipelineLastSuccess.SetToCurrentTime()
	}
}

// RecordDBQuery records a store query.
func RecordDBQuery(backend, operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	// Cancelled requests are the caller's doing, not a store fault.
	if err != nil && !errors.Is(err, context.Canceled) {
		DBQueryErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordTileCache records a lookup against the named cache.
func RecordTileCache(cache string, hit bool) {
	if hit {
		TileCacheHits.WithLabelValues(cache).Inc()
		return
	}
	TileCacheMisses.WithLabelValues(cache).Inc()
}

// RecordEvents records accepted and rejected events for a source.
func RecordEvents(source string, accepted, rejected int) {
	if accepted > 0 {
		EventsIngested.WithLabelValues(source).Add(float64(accepted))
	}
	if rejected > 0 {
		EventsRejected.WithLabelValues(source).Add(float64(rejected))
	}
}

// RecordAPIRequest records a completed HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
