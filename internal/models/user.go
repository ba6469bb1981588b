// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package models

import (
	"errors"
	"time"
)

// Role constants. These align with the Casbin policy in internal/authz/policy.csv.
const (
	// RolePublic is assigned to unauthenticated callers.
	RolePublic = "public"

	// RoleAnalyst can run the pipeline, upload and list events.
	RoleAnalyst = "analyst"

	// RoleAdmin has every permission.
	RoleAdmin = "admin"
)

// ValidRoles contains all assignable role names.
var ValidRoles = []string{RolePublic, RoleAnalyst, RoleAdmin}

// IsValidRole checks if a role name is valid.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// User is an API account. PasswordHash is a bcrypt hash and never serialized.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// ErrUserNotFound is returned by user stores for unknown usernames.
var ErrUserNotFound = errors.New("user not found")
