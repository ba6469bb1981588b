// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/riskgrid/internal/auth"
	"github.com/tomtom215/riskgrid/internal/config"
	"github.com/tomtom215/riskgrid/internal/models"
)

// CORS builds the go-chi/cors handler for the configured origins.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Cache", "Location"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

// RoleRateLimiter applies a separate httprate window per role. Public
// callers are keyed by IP, authenticated callers by username.
type RoleRateLimiter struct {
	disabled bool
	limiters map[string]func(http.Handler) http.Handler
}

// NewRoleRateLimiter builds limiters for public, analyst and admin from cfg.
func NewRoleRateLimiter(cfg *config.SecurityConfig) *RoleRateLimiter {
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	rl := &RoleRateLimiter{
		disabled: cfg.RateLimitDisabled,
		limiters: make(map[string]func(http.Handler) http.Handler, 3),
	}
	for role, n := range map[string]int{
		models.RolePublic:  cfg.RateLimitPublic,
		models.RoleAnalyst: cfg.RateLimitAnalyst,
		models.RoleAdmin:   cfg.RateLimitAdmin,
	} {
		if n <= 0 {
			continue
		}
		rl.limiters[role] = httprate.Limit(n, window,
			httprate.WithKeyFuncs(keyByCaller),
			httprate.WithLimitHandler(rateLimited),
		)
	}
	return rl
}

// Handler runs the limiter matching the caller's role. It must run after
// auth.Authenticate.
func (rl *RoleRateLimiter) Handler(next http.Handler) http.Handler {
	if rl.disabled {
		return next
	}
	wrapped := make(map[string]http.Handler, len(rl.limiters))
	for role, limit := range rl.limiters {
		wrapped[role] = limit(next)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := wrapped[auth.ClaimsFromContext(r.Context()).Role]; ok {
			h.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func keyByCaller(r *http.Request) (string, error) {
	if c := auth.ClaimsFromContext(r.Context()); c.Username != "" {
		return "user:" + c.Username, nil
	}
	return httprate.KeyByIP(r)
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusTooManyRequests, models.ErrCodeRateLimit, "Rate limit exceeded", nil)
}

// APISecurityHeaders adds the standard hardening headers to API responses.
// HSTS is only sent over TLS.
func APISecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
