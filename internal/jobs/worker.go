// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/riskgrid/internal/analytics"
	"github.com/tomtom215/riskgrid/internal/config"
	"github.com/tomtom215/riskgrid/internal/logging"
	"github.com/tomtom215/riskgrid/internal/metrics"
)

const handlerName = "analytics-run"

// Runner executes a pipeline run; *analytics.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, start, end time.Time, resolution int) (*analytics.RunReport, error)
}

// CompletionHook runs after a successful pipeline run, e.g. to invalidate
// caches built on the previous view.
type CompletionHook func(ctx context.Context, report *analytics.RunReport)

// Worker consumes queued jobs and runs the pipeline.
type Worker struct {
	router      *message.Router
	store       StatusStore
	runner      Runner
	broadcaster Broadcaster
	hooks       []CompletionHook
	now         func() time.Time
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerBroadcaster pushes status changes to b.
func WithWorkerBroadcaster(b Broadcaster) WorkerOption {
	return func(w *Worker) { w.broadcaster = b }
}

// WithCompletionHook adds a hook called after each successful run.
func WithCompletionHook(h CompletionHook) WorkerOption {
	return func(w *Worker) { w.hooks = append(w.hooks, h) }
}

// NewWorker builds the router. Middleware order, outermost first: poison
// queue, retry with exponential backoff, panic recovery. A message reaches
// the poison topic only after every retry failed.
func NewWorker(t *Transport, cfg *config.JobsConfig, store StatusStore, runner Runner, opts ...WorkerOption) (*Worker, error) {
	logger := logging.NewWatermillAdapter()
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	if cfg.PoisonTopic != "" {
		poison, err := middleware.PoisonQueue(t.Publisher, cfg.PoisonTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		router.AddMiddleware(poison)
	}
	retry := middleware.Retry{
		MaxRetries:      cfg.RetryCount,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Logger:          logger,
	}
	router.AddMiddleware(retry.Middleware, middleware.Recoverer)

	w := &Worker{
		router:      router,
		store:       store,
		runner:      runner,
		broadcaster: nopBroadcaster{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	router.AddConsumerHandler(handlerName, cfg.Topic, t.Subscriber, w.handle)
	return w, nil
}

// Serve runs the router until ctx is done. It satisfies suture.Service.
func (w *Worker) Serve(ctx context.Context) error {
	err := w.router.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (w *Worker) String() string { return "job-worker" }

// Running is closed once the router consumes messages.
func (w *Worker) Running() <-chan struct{} {
	return w.router.Running()
}

// Close stops the router.
func (w *Worker) Close() error {
	return w.router.Close()
}

func (w *Worker) handle(msg *message.Message) error {
	var queued Job
	if err := json.Unmarshal(msg.Payload, &queued); err != nil {
		return fmt.Errorf("decode job %s: %w", msg.UUID, err)
	}
	ctx := logging.ContextWithJobID(msg.Context(), queued.ID)
	log := logging.Ctx(ctx)

	job, err := w.store.Get(ctx, queued.ID)
	if errors.Is(err, ErrJobNotFound) {
		job = &queued
	} else if err != nil {
		return fmt.Errorf("load job %s: %w", queued.ID, err)
	}
	if job.Status == StatusCompleted {
		// Redelivery of a finished job.
		log.Debug().Msg("Skipping completed job")
		return nil
	}

	started := w.now().UTC()
	job.Attempts++
	job.StartedAt = &started
	job.Error = ""
	w.transition(ctx, job, StatusRunning)

	req := job.Request
	report, runErr := w.runner.Run(ctx, req.Start, req.End, req.Resolution)
	finished := w.now().UTC()
	job.FinishedAt = &finished
	job.Report = report

	if runErr != nil {
		job.Error = runErr.Error()
		w.transition(ctx, job, StatusFailed)
		log.Error().Err(runErr).Int("attempt", job.Attempts).Msg("Analytics run failed")
		if analytics.IsInputRange(runErr) {
			// Retrying cannot fix bad input.
			return nil
		}
		return runErr
	}

	w.transition(ctx, job, StatusCompleted)
	for _, hook := range w.hooks {
		hook(ctx, report)
	}
	w.broadcaster.BroadcastJSON(MessageViewRefreshed, map[string]interface{}{
		"job_id":    job.ID,
		"view_rows": report.ViewRows,
		"flagged":   report.Flagged,
	})
	log.Info().
		Int("events", report.EventsRead).
		Int64("view_rows", report.ViewRows).
		Int("flagged", report.Flagged).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Analytics run completed")
	return nil
}

// transition records a status change and keeps the in-flight gauge in step:
// leaving a terminal state (a retry) counts the job again.
func (w *Worker) transition(ctx context.Context, job *Job, to Status) {
	from := job.Status
	job.Status = to
	switch {
	case !from.Terminal() && to.Terminal():
		metrics.JobsInFlight.Dec()
	case from.Terminal() && !to.Terminal():
		metrics.JobsInFlight.Inc()
	}
	if err := w.store.Put(ctx, job); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("status", string(to)).Msg("Failed to persist job status")
	}
	w.broadcaster.BroadcastJSON(MessageJobStatus, *job)
}
