// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/riskgrid/internal/analytics"
	"github.com/tomtom215/riskgrid/internal/auth"
	"github.com/tomtom215/riskgrid/internal/cache"
	"github.com/tomtom215/riskgrid/internal/config"
	"github.com/tomtom215/riskgrid/internal/database"
	"github.com/tomtom215/riskgrid/internal/jobs"
	"github.com/tomtom215/riskgrid/internal/logging"
	"github.com/tomtom215/riskgrid/internal/models"
)

// Store is the read and ingest surface the handlers need. *database.DB and
// *postgis.Store implement it.
type Store interface {
	Ping(ctx context.Context) error
	RiskByDate(ctx context.Context, day time.Time) ([]analytics.RiskViewRow, error)
	Hotspots(ctx context.Context, firstDay, lastDay time.Time) ([]analytics.RiskViewRow, error)
	RenderTile(ctx context.Context, z, x, y int, filter database.TileFilter) ([]byte, error)
	InsertEvents(ctx context.Context, events []models.Event) (int, error)
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
}

// JobService submits and tracks pipeline runs; *jobs.Dispatcher implements it.
type JobService interface {
	Submit(ctx context.Context, req jobs.RunRequest) (*jobs.Job, error)
	Status(ctx context.Context, id string) (*jobs.Job, error)
	Recent(ctx context.Context, limit int) ([]*jobs.Job, error)
}

// Authenticator issues tokens; *auth.Service implements it.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*auth.Token, error)
}

// ReadinessCheck is one dependency probed by /health/ready.
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Handler holds the dependencies shared by all endpoints.
type Handler struct {
	cfg     *config.Config
	store   Store
	jobs    JobService
	auth    Authenticator
	tiles   cache.TileCache
	queries *cache.QueryCache
	checks  []ReadinessCheck
	ws      http.Handler
	now     func() time.Time
	started time.Time
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithReadinessCheck adds a dependency to /health/ready. The store is always
// checked.
func WithReadinessCheck(name string, ping func(ctx context.Context) error) HandlerOption {
	return func(h *Handler) {
		h.checks = append(h.checks, ReadinessCheck{Name: name, Ping: ping})
	}
}

// WithWebSocket mounts the job status stream at /ws.
func WithWebSocket(ws http.Handler) HandlerOption {
	return func(h *Handler) { h.ws = ws }
}

// WithClock overrides time.Now for request defaults.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a Handler. tiles and queries may be nil, which disables
// the respective cache.
func NewHandler(cfg *config.Config, store Store, jobSvc JobService, authn Authenticator,
	tiles cache.TileCache, queries *cache.QueryCache, opts ...HandlerOption) *Handler {
	if tiles == nil {
		tiles = cache.Noop{}
	}
	h := &Handler{
		cfg:     cfg,
		store:   store,
		jobs:    jobSvc,
		auth:    authn,
		tiles:   tiles,
		queries: queries,
		now:     time.Now,
		started: time.Now(),
	}
	h.checks = append(h.checks, ReadinessCheck{Name: "database", Ping: store.Ping})
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// InvalidateCaches drops cached tiles and query results. It is registered
// as a jobs.CompletionHook so reads never outlive a view refresh.
func (h *Handler) InvalidateCaches(ctx context.Context, _ *analytics.RunReport) {
	if h.queries != nil {
		h.queries.Clear()
	}
	if err := h.tiles.Invalidate(ctx); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("cache", h.tiles.Name()).Msg("Tile cache invalidation failed")
		return
	}
	logging.Ctx(ctx).Debug().Str("cache", h.tiles.Name()).Msg("Caches invalidated after view refresh")
}

// cachedQuery returns a cached result for key or loads and stores it.
func cachedQuery[T any](h *Handler, key string, load func() (T, error)) (T, bool, error) {
	if h.queries != nil {
		if v, ok := h.queries.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, true, nil
			}
		}
	}
	v, err := load()
	if err != nil {
		return v, false, err
	}
	if h.queries != nil {
		h.queries.Set(key, v)
	}
	return v, false, nil
}
