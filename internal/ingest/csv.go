// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/riskgrid/internal/models"
)

// CSV columns. attributes_json and event_id are optional.
const (
	colType       = "event_type"
	colTimestamp  = "event_timestamp"
	colLongitude  = "longitude"
	colLatitude   = "latitude"
	colAttributes = "attributes_json"
	colID         = "event_id"
)

var requiredColumns = []string{colType, colTimestamp, colLongitude, colLatitude}

// timestampLayouts are tried in order; layouts without a zone are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp accepts ISO 8601 timestamps with or without a zone.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string, delimiter rune) ([]models.Event, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f, delimiter)
}

// ReadCSV parses and validates events from a CSV stream with a header row.
// Errors carry the 1-based line number of the offending row.
func ReadCSV(r io.Reader, delimiter rune) ([]models.Event, error) {
	reader := csv.NewReader(r)
	if delimiter != 0 {
		reader.Comma = delimiter
	}
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("csv header is missing column %q", name)
		}
	}

	var events []models.Event
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		ev, err := parseRow(record, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if verr := ValidateEvent(&ev); verr != nil {
			return nil, fmt.Errorf("line %d: %w", line, verr)
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseRow(record []string, cols map[string]int) (models.Event, error) {
	field := func(name string) string {
		if i, ok := cols[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	ts, err := ParseTimestamp(field(colTimestamp))
	if err != nil {
		return models.Event{}, err
	}
	lon, err := strconv.ParseFloat(field(colLongitude), 64)
	if err != nil {
		return models.Event{}, fmt.Errorf("longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(field(colLatitude), 64)
	if err != nil {
		return models.Event{}, fmt.Errorf("latitude: %w", err)
	}

	ev := models.Event{
		ID:        field(colID),
		Type:      field(colType),
		Timestamp: ts,
		Longitude: lon,
		Latitude:  lat,
	}
	if raw := field(colAttributes); raw != "" {
		if err := json.Unmarshal([]byte(raw), &ev.Attributes); err != nil {
			return models.Event{}, fmt.Errorf("attributes_json: %w", err)
		}
	}
	return ev, nil
}
