// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/riskgrid/internal/logging"
	"github.com/tomtom215/riskgrid/internal/models"
)

type contextKey string

// ClaimsContextKey holds *Claims on authenticated requests.
const ClaimsContextKey contextKey = "claims"

// PublicClaims are attached to requests without a token.
var PublicClaims = &Claims{Role: models.RolePublic}

// ClaimsFromContext returns the caller's claims, or PublicClaims.
func ClaimsFromContext(ctx context.Context) *Claims {
	if c, ok := ctx.Value(ClaimsContextKey).(*Claims); ok && c != nil {
		return c
	}
	return PublicClaims
}

// ContextWithClaims attaches claims to ctx.
func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, c)
}

// Authenticate attaches claims from a Bearer token. Requests without a
// token continue as the public role; a bad token is rejected with 401.
func Authenticate(m *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), PublicClaims)))
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeUnauthorized(w, "Authorization header must use the Bearer scheme")
				return
			}
			claims, err := m.ValidateToken(token)
			if err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("Token validation failed")
				writeUnauthorized(w, "Invalid or expired token")
				return
			}
			ctx := ContextWithClaims(r.Context(), claims)
			ctx = logging.ContextWithLogger(ctx, logging.LoggerFromContext(ctx).With().Str("username", claims.Username).Logger())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="riskgrid"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error:    &models.APIError{Code: models.ErrCodeAuthentication, Message: message},
	})
}
