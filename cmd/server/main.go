// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/riskgrid/internal/analytics"
	"github.com/tomtom215/riskgrid/internal/api"
	"github.com/tomtom215/riskgrid/internal/auth"
	"github.com/tomtom215/riskgrid/internal/authz"
	"github.com/tomtom215/riskgrid/internal/cache"
	"github.com/tomtom215/riskgrid/internal/config"
	"github.com/tomtom215/riskgrid/internal/database"
	"github.com/tomtom215/riskgrid/internal/ingest"
	"github.com/tomtom215/riskgrid/internal/jobs"
	"github.com/tomtom215/riskgrid/internal/logging"
	"github.com/tomtom215/riskgrid/internal/postgis"
	"github.com/tomtom215/riskgrid/internal/supervisor"
	"github.com/tomtom215/riskgrid/internal/supervisor/services"
	"github.com/tomtom215/riskgrid/internal/websocket"
)

// store is what the server needs from a storage backend. Both DuckDB and
// PostGIS satisfy it.
type store interface {
	analytics.Store
	api.Store
	auth.UserStore
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logging.Init(logCfg)

	logging.Info().
		Str("backend", cfg.Database.Backend).
		Str("jobs_transport", cfg.Jobs.Transport).
		Str("cache", cfg.Cache.Backend).
		Msg("Starting riskgrid")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
	logging.Info().Msg("Server stopped gracefully")
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close store")
		}
	}()

	pipeline := analytics.NewPipeline(st, analytics.WithObserver(logStage))

	tiles, err := cache.New(&cfg.Cache)
	if err != nil {
		return fmt.Errorf("tile cache: %w", err)
	}
	defer func() {
		if err := tiles.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close tile cache")
		}
	}()
	queries := cache.NewQueryCache(cfg.Cache.TTL, time.Minute)

	transport, err := jobs.NewTransport(ctx, &cfg.Jobs, &cfg.NATS)
	if err != nil {
		return fmt.Errorf("job transport: %w", err)
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close job transport")
		}
	}()

	statuses, err := jobs.OpenBadgerStatusStore(cfg.Jobs.StatusPath, cfg.Jobs.StatusTTL)
	if err != nil {
		return fmt.Errorf("job status store: %w", err)
	}
	defer func() {
		if err := statuses.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close job status store")
		}
	}()

	hub := websocket.NewHub()
	dispatcher := jobs.NewDispatcher(transport.Publisher, statuses, &cfg.Jobs, jobs.WithBroadcaster(hub))

	jwt, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}
	authService := auth.NewService(st, jwt)
	if cfg.Security.AdminUsername != "" {
		if err := authService.BootstrapAdmin(ctx, cfg.Security.AdminUsername, cfg.Security.AdminPassword); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	enforcer, err := authz.NewEnforcer(nil)
	if err != nil {
		return fmt.Errorf("authz: %w", err)
	}

	handler := api.NewHandler(cfg, st, dispatcher, authService, tiles, queries,
		api.WithReadinessCheck("cache", tiles.Ping),
		api.WithWebSocket(websocket.Handler(hub, cfg.Security.CORSOrigins)),
	)

	worker, err := jobs.NewWorker(transport, &cfg.Jobs, statuses, pipeline,
		jobs.WithWorkerBroadcaster(hub),
		jobs.WithCompletionHook(handler.InvalidateCaches),
	)
	if err != nil {
		return fmt.Errorf("job worker: %w", err)
	}

	router := api.NewRouter(handler, jwt, enforcer)
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	tree.AddDataService(services.NewCloserService("query-cache", queries.Stop))
	tree.AddDataService(services.NewCloserService("authz-enforcer", enforcer.Close))

	tree.AddMessagingService(hub)
	tree.AddMessagingService(worker)
	if cfg.Jobs.ScheduleInterval > 0 {
		tree.AddMessagingService(jobs.NewScheduler(dispatcher, cfg.Jobs.ScheduleInterval,
			cfg.Jobs.ScheduleWindowDays, cfg.Analytics.DefaultResolution))
		logging.Info().Dur("interval", cfg.Jobs.ScheduleInterval).Msg("Scheduled pipeline runs enabled")
	}
	if cfg.MQTT.Enabled {
		tree.AddMessagingService(ingest.NewMQTTSubscriber(&cfg.MQTT, st))
		logging.Info().Str("broker", cfg.MQTT.BrokerURL).Str("topic", cfg.MQTT.Topic).Msg("MQTT ingestion enabled")
	}

	// Run submissions are dropped by the in-memory transport until the
	// worker has subscribed, so the listener waits for it.
	tree.AddAPIService(&afterReady{
		ready:   worker.Running(),
		service: services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout),
		name:    "http-server",
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logging.Info().Str("signal", sig.String()).Msg("Received signal, initiating graceful shutdown")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Serving")
	errCh := tree.ServeBackground(ctx)
	<-ctx.Done()

	shutdown := time.NewTimer(cfg.Server.ShutdownTimeout + 5*time.Second)
	defer shutdown.Stop()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree stopped with error")
		}
	case <-shutdown.C:
		logging.Warn().Msg("Supervisor tree did not stop in time")
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	switch cfg.Database.Backend {
	case config.BackendPostGIS:
		s, err := postgis.New(ctx, &cfg.PostGIS)
		if err != nil {
			return nil, fmt.Errorf("postgis: %w", err)
		}
		return s, nil
	default:
		db, err := database.New(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("duckdb: %w", err)
		}
		return db, nil
	}
}

func logStage(ctx context.Context, sr analytics.StageReport) {
	event := logging.Ctx(ctx).Debug()
	if sr.Error != "" {
		event = logging.Ctx(ctx).Warn().Str("error", sr.Error)
	}
	event.Str("stage", string(sr.Stage)).Int("rows", sr.Rows).Dur("duration", sr.Duration).Msg("Pipeline stage finished")
}

// afterReady delays a service until ready is closed.
type afterReady struct {
	ready   <-chan struct{}
	service suture.Service
	name    string
}

func (a *afterReady) Serve(ctx context.Context) error {
	select {
	case <-a.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	return a.service.Serve(ctx)
}

func (a *afterReady) String() string { return a.name }
