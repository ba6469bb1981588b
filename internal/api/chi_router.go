// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/riskgrid/internal/auth"
	"github.com/tomtom215/riskgrid/internal/authz"
	"github.com/tomtom215/riskgrid/internal/middleware"
	"github.com/tomtom215/riskgrid/internal/models"
)

// Router wires handlers and middleware.
type Router struct {
	handler *Handler
	jwt     *auth.JWTManager
	authz   *authz.Middleware
	limiter *RoleRateLimiter
}

// NewRouter creates a Router. jwt validates bearer tokens and enforcer
// decides which role may call which route.
func NewRouter(h *Handler, jwt *auth.JWTManager, enforcer *authz.Enforcer) *Router {
	return &Router{
		handler: h,
		jwt:     jwt,
		authz:   authz.NewMiddleware(enforcer),
		limiter: NewRoleRateLimiter(&h.cfg.Security),
	}
}

// SetupChi builds the HTTP handler.
func (router *Router) SetupChi() http.Handler {
	h := router.handler
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(h.cfg.Security.CORSOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, models.ErrCodeNotFound, "Resource not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, models.ErrCodeValidation, "Method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders)
		r.Use(middleware.PrometheusMetrics)
		r.Use(auth.Authenticate(router.jwt))
		r.Use(router.limiter.Handler)
		r.Use(router.authz.Authorize)

		r.Get("/health/live", h.HealthLive)
		r.Get("/health/ready", h.HealthReady)

		r.Post("/auth/token", h.Token)

		r.Route("/analytics", func(r chi.Router) {
			r.Post("/run", h.AnalyticsRun)
			r.Get("/jobs", h.AnalyticsJobs)
			r.Get("/jobs/{id}", h.AnalyticsJob)
		})

		r.Get("/risk/{date}", h.RiskByDate)
		r.Get("/hotspots", h.Hotspots)
		r.Get("/tiles/{z}/{x}/{y}.mvt", h.Tile)

		r.Get("/events", h.EventsList)
		r.Post("/events/upload", h.EventsUpload)

		if h.ws != nil {
			r.Get("/ws", h.ws.ServeHTTP)
		}
	})

	return r
}
