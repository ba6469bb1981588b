// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/riskgrid/internal/logging"
	"github.com/tomtom215/riskgrid/internal/models"
)

// ErrInvalidCredentials hides whether the username or password was wrong.
var ErrInvalidCredentials = errors.New("invalid username or password")

// MinPasswordLength applies to passwords set through this package.
const MinPasswordLength = 8

var bcryptCost = 12

// dummyHash keeps failed lookups as slow as a failed password check.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("riskgrid-timing-pad"), bcrypt.MinCost)

// UserStore is the subset of the storage backends used for accounts.
type UserStore interface {
	GetUser(ctx context.Context, username string) (*models.User, error)
	UpsertUser(ctx context.Context, u *models.User) error
}

// HashPassword returns a bcrypt hash.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
}

// Service authenticates users against a UserStore.
type Service struct {
	users UserStore
	jwt   *JWTManager
}

// NewService creates a login service.
func NewService(users UserStore, jwt *JWTManager) *Service {
	return &Service{users: users, jwt: jwt}
}

// JWT exposes the token manager for the middleware.
func (s *Service) JWT() *JWTManager { return s.jwt }

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (*Token, error) {
	user, err := s.users.GetUser(ctx, username)
	if errors.Is(err, models.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		logging.Ctx(ctx).Info().Str("username", username).Msg("Login failed")
		return nil, ErrInvalidCredentials
	}

	signed, expires, err := s.jwt.GenerateToken(user.Username, user.Role)
	if err != nil {
		return nil, err
	}
	return &Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expires,
		Username:    user.Username,
		Role:        user.Role,
	}, nil
}

// CreateUser hashes password and stores the account.
func (s *Service) CreateUser(ctx context.Context, username, password, role string) error {
	if !models.IsValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.users.UpsertUser(ctx, &models.User{Username: username, PasswordHash: hash, Role: role})
}

// BootstrapAdmin creates the admin account on first start. An existing
// account is left untouched so a changed password survives restarts.
func (s *Service) BootstrapAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		logging.Warn().Msg("ADMIN_PASSWORD not set; no admin account bootstrapped")
		return nil
	}
	_, err := s.users.GetUser(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return fmt.Errorf("check admin account: %w", err)
	}
	if err := s.CreateUser(ctx, username, password, models.RoleAdmin); err != nil {
		return fmt.Errorf("create admin account: %w", err)
	}
	logging.Info().Str("username", username).Msg("Bootstrapped admin account")
	return nil
}
