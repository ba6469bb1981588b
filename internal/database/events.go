// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/riskgrid/internal/models"
)

// InsertEvents stores events. Events without an ID get a UUID; events whose
// ID already exists are skipped. It returns how many rows were written.
func (db *DB) InsertEvents(ctx context.Context, events []models.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	inserted := 0
	now := time.Now().UTC()
	err := db.withTx(ctx, "insert_events", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO events (event_id, event_type, event_timestamp, longitude, latitude, attributes, ingested_at)
			VALUES (?, ?, CAST(? AS TIMESTAMP), ?, ?, ?, CAST(? AS TIMESTAMP))
			ON CONFLICT (event_id) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("failed to prepare event insert: %w", err)
		}
		defer closeWithLog(stmt, "prepared statement")

		for i := range events {
			ev := &events[i]
			if ev.ID == "" {
				ev.ID = uuid.NewString()
			}
			attrs, err := encodeAttributes(ev.Attributes)
			if err != nil {
				return fmt.Errorf("event %s: %w", ev.ID, err)
			}
			res, err := stmt.ExecContext(ctx, ev.ID, ev.Type, tsArg(ev.Timestamp), ev.Longitude, ev.Latitude, attrs, tsArg(now))
			if err != nil {
				return fmt.Errorf("failed to insert event %s: %w", ev.ID, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
			ev.IngestedAt = now
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func encodeAttributes(attrs map[string]interface{}) (sql.NullString, error) {
	if len(attrs) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode attributes: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// ListEvents returns events newest first.
func (db *DB) ListEvents(ctx context.Context, filter models.EventFilter) (_ []models.Event, err error) {
	defer observe("list_events", time.Now(), &err)
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var (
		where []string
		args  []interface{}
	)
	if filter.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if !filter.Start.IsZero() {
		where = append(where, "event_timestamp >= CAST(? AS TIMESTAMP)")
		args = append(args, tsArg(filter.Start))
	}
	if !filter.End.IsZero() {
		where = append(where, "event_timestamp < CAST(? AS TIMESTAMP)")
		args = append(args, tsArg(filter.End))
	}

	query := `SELECT event_id, event_type, event_timestamp, longitude, latitude, attributes, ingested_at FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY event_timestamp DESC, event_id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	out := []models.Event{}
	for rows.Next() {
		var (
			ev    models.Event
			attrs sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Timestamp, &ev.Longitude, &ev.Latitude, &attrs, &ev.IngestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Timestamp = ev.Timestamp.UTC()
		ev.IngestedAt = ev.IngestedAt.UTC()
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &ev.Attributes); err != nil {
				return nil, fmt.Errorf("failed to decode attributes of %s: %w", ev.ID, err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CountEvents returns the number of stored events.
func (db *DB) CountEvents(ctx context.Context) (_ int64, err error) {
	defer observe("count_events", time.Now(), &err)
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
