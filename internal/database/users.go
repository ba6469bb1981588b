// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/riskgrid/internal/models"
)

// ErrUserNotFound is returned by GetUser for unknown usernames.
var ErrUserNotFound = models.ErrUserNotFound

// UpsertUser creates or replaces an account.
func (db *DB) UpsertUser(ctx context.Context, u *models.User) (err error) {
	defer observe("upsert_user", time.Now(), &err)
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, created_at)
		VALUES (?, ?, ?, CAST(? AS TIMESTAMP))
		ON CONFLICT (username) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role`,
		u.Username, u.PasswordHash, u.Role, tsArg(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", u.Username, err)
	}
	return nil
}

// GetUser looks up an account by username.
func (db *DB) GetUser(ctx context.Context, username string) (_ *models.User, err error) {
	defer observe("get_user", time.Now(), &err)
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	u := &models.User{}
	err = db.conn.QueryRowContext(ctx,
		`SELECT username, password_hash, role, created_at FROM users WHERE username = ?`, username).
		Scan(&u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", username, err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}
