// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package postgis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tomtom215/riskgrid/internal/models"
)

// ErrUserNotFound is returned by GetUser for unknown usernames.
var ErrUserNotFound = models.ErrUserNotFound

// InsertEvents stores events; existing IDs are skipped.
func (s *Store) InsertEvents(ctx context.Context, events []models.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	b := &pgx.Batch{}
	for i := range events {
		ev := &events[i]
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		var attrs []byte
		if len(ev.Attributes) > 0 {
			encoded, err := json.Marshal(ev.Attributes)
			if err != nil {
				return 0, fmt.Errorf("event %s: failed to encode attributes: %w", ev.ID, err)
			}
			attrs = encoded
		}
		b.Queue(`
			INSERT INTO events (event_id, event_type, event_timestamp, geom, attributes)
			VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326), $6)
			ON CONFLICT (event_id) DO NOTHING`,
			ev.ID, ev.Type, ev.Timestamp.UTC(), ev.Longitude, ev.Latitude, attrs)
	}
	n, err := s.sendBatch(ctx, "insert_events", b)
	return int(n), err
}

// ListEvents returns events newest first.
func (s *Store) ListEvents(ctx context.Context, filter models.EventFilter) (_ []models.Event, err error) {
	defer observe("list_events", time.Now(), &err)

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.EventType != "" {
		where = append(where, "event_type = "+arg(filter.EventType))
	}
	if !filter.Start.IsZero() {
		where = append(where, "event_timestamp >= "+arg(filter.Start.UTC()))
	}
	if !filter.End.IsZero() {
		where = append(where, "event_timestamp < "+arg(filter.End.UTC()))
	}

	query := `SELECT event_id, event_type, event_timestamp, ST_X(geom), ST_Y(geom), attributes, ingested_at FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY event_timestamp DESC, event_id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Event, error) {
		var (
			ev    models.Event
			attrs []byte
		)
		if err := row.Scan(&ev.ID, &ev.Type, &ev.Timestamp, &ev.Longitude, &ev.Latitude, &attrs, &ev.IngestedAt); err != nil {
			return ev, err
		}
		ev.Timestamp = ev.Timestamp.UTC()
		ev.IngestedAt = ev.IngestedAt.UTC()
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &ev.Attributes); err != nil {
				return ev, fmt.Errorf("decode attributes of %s: %w", ev.ID, err)
			}
		}
		return ev, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	if out == nil {
		out = []models.Event{}
	}
	return out, nil
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents(ctx context.Context) (n int64, err error) {
	defer observe("count_events", time.Now(), &err)
	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// UpsertUser creates or replaces an account.
func (s *Store) UpsertUser(ctx context.Context, u *models.User) (err error) {
	defer observe("upsert_user", time.Now(), &err)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role`,
		u.Username, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", u.Username, err)
	}
	return nil
}

// GetUser looks up an account by username.
func (s *Store) GetUser(ctx context.Context, username string) (_ *models.User, err error) {
	defer observe("get_user", time.Now(), &err)
	u := &models.User{}
	err = s.pool.QueryRow(ctx,
		`SELECT username, password_hash, role, created_at FROM users WHERE username = $1`, username).
		Scan(&u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if isNoRows(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", username, err)
	}
	return u, nil
}
