// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package models

import (
	"time"
)

// Event is one georeferenced observation. Events are immutable once stored.
type Event struct {
	ID         string                 `json:"event_id"`
	Type       string                 `json:"event_type" validate:"required,min=2,max=64"`
	Timestamp  time.Time              `json:"event_timestamp" validate:"required"`
	Longitude  float64                `json:"longitude" validate:"min=-180,max=180"`
	Latitude   float64                `json:"latitude" validate:"min=-90,max=90"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	IngestedAt time.Time              `json:"ingested_at,omitempty"`
}

// EventFilter selects events for listing. Zero values mean "no constraint".
type EventFilter struct {
	Limit     int
	EventType string
	Start     time.Time
	End       time.Time
}
