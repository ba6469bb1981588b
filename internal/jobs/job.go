// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

// Package jobs runs the analytics pipeline asynchronously.
//
// A Dispatcher validates and throttles run requests, records a queued Job
// and publishes it on a Watermill topic. A Worker consumes the topic through
// a router with recovery, retry and poison-queue middleware, runs the
// pipeline and records the outcome. Status changes are persisted in a
// StatusStore and pushed to a Broadcaster (the WebSocket hub).
//
// Two transports are available: an in-process Go channel for single-node
// deployments and NATS JetStream, optionally served by an embedded server.
package jobs

import (
	"errors"
	"time"

	"github.com/tomtom215/riskgrid/internal/analytics"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions follow.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrRateLimited is returned by Submit when the token bucket is empty.
	ErrRateLimited = errors.New("too many analytics runs submitted")
	// ErrJobNotFound is returned for unknown or expired job ids.
	ErrJobNotFound = errors.New("job not found")
)

// RunRequest is the pipeline window requested by a caller.
type RunRequest struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Resolution int       `json:"resolution"`
	// Source records who asked: "api", "scheduler" or "cli".
	Source string `json:"source,omitempty"`
}

// Job is the persisted state of one pipeline run.
type Job struct {
	ID          string               `json:"job_id"`
	Status      Status               `json:"status"`
	Request     RunRequest           `json:"request"`
	Attempts    int                  `json:"attempts"`
	Error       string               `json:"error,omitempty"`
	Report      *analytics.RunReport `json:"report,omitempty"`
	SubmittedAt time.Time            `json:"submitted_at"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	FinishedAt  *time.Time           `json:"finished_at,omitempty"`
}

// Broadcaster receives status changes; *websocket.Hub implements it.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// Message types pushed to the broadcaster.
const (
	MessageJobStatus     = "job_status"
	MessageViewRefreshed = "view_refreshed"
)

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastJSON(string, interface{}) {}
