// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

// Package ingest validates incoming events and writes them to the store.
// Events arrive through the upload API, CSV files (cmd/seed) or an MQTT
// topic; all three share ValidateEvents and Insert.
package ingest

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/tomtom215/riskgrid/internal/metrics"
	"github.com/tomtom215/riskgrid/internal/models"
	"github.com/tomtom215/riskgrid/internal/validation"
)

// Event sources, used as the metrics label.
const (
	SourceAPI  = "api"
	SourceCSV  = "csv"
	SourceMQTT = "mqtt"
)

// DefaultBatchSize bounds the rows written per InsertEvents call.
const DefaultBatchSize = 1000

// Writer persists events; *database.DB and *postgis.Store implement it.
type Writer interface {
	InsertEvents(ctx context.Context, events []models.Event) (int, error)
}

// Normalize trims the event type and moves the timestamp to UTC.
func Normalize(ev *models.Event) {
	ev.Type = strings.TrimSpace(ev.Type)
	if !ev.Timestamp.IsZero() {
		ev.Timestamp = ev.Timestamp.UTC()
	}
}

// ValidateEvent normalizes and checks one event.
func ValidateEvent(ev *models.Event) *validation.RequestValidationError {
	Normalize(ev)
	var coordErrs []*validation.RequestValidationError
	// NaN passes min/max comparisons, so it is rejected explicitly.
	if math.IsNaN(ev.Longitude) || math.IsInf(ev.Longitude, 0) {
		coordErrs = append(coordErrs, validation.NewRequestValidationError("longitude", "finite", "longitude must be a finite number"))
	}
	if math.IsNaN(ev.Latitude) || math.IsInf(ev.Latitude, 0) {
		coordErrs = append(coordErrs, validation.NewRequestValidationError("latitude", "finite", "latitude must be a finite number"))
	}
	coordErrs = append(coordErrs, validation.ValidateStruct(ev))
	return validation.Join(coordErrs...)
}

// ValidateEvents checks a batch and reports every failing field, prefixed
// with the element index. maxEvents <= 0 means no upper bound.
func ValidateEvents(events []models.Event, maxEvents int) error {
	if len(events) == 0 {
		return validation.NewRequestValidationError("events", "min", "events must contain at least one event")
	}
	if maxEvents > 0 && len(events) > maxEvents {
		return validation.NewRequestValidationError("events", "max",
			fmt.Sprintf("events must contain at most %d events", maxEvents))
	}

	var errs []*validation.RequestValidationError
	for i := range events {
		if err := ValidateEvent(&events[i]); err != nil {
			errs = append(errs, err.WithFieldPrefix(fmt.Sprintf("events[%d].", i)))
		}
	}
	if joined := validation.Join(errs...); joined != nil {
		return joined
	}
	return nil
}

// Insert writes validated events in batches of batchSize and returns how
// many rows were new. Events already stored under the same ID are skipped
// by the store and not counted.
func Insert(ctx context.Context, w Writer, source string, events []models.Event, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	total := 0
	for start := 0; start < len(events); start += batchSize {
		end := min(start+batchSize, len(events))
		n, err := w.InsertEvents(ctx, events[start:end])
		total += n
		if err != nil {
			metrics.RecordEvents(source, total, len(events)-start)
			return total, fmt.Errorf("insert events %d..%d: %w", start, end, err)
		}
	}
	metrics.RecordEvents(source, total, 0)
	return total, nil
}
