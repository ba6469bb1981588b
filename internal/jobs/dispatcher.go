// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/riskgrid/internal/analytics"
	"github.com/tomtom215/riskgrid/internal/config"
	"github.com/tomtom215/riskgrid/internal/logging"
	"github.com/tomtom215/riskgrid/internal/metrics"
)

// Dispatcher accepts run requests and queues them for the worker.
type Dispatcher struct {
	publisher   message.Publisher
	topic       string
	store       StatusStore
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[any]
	broadcaster Broadcaster
	now         func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBroadcaster pushes status changes to b.
func WithBroadcaster(b Broadcaster) DispatcherOption {
	return func(d *Dispatcher) { d.broadcaster = b }
}

// WithDispatcherClock overrides time.Now.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher publishes jobs on cfg.Topic. cfg.SubmitPerMinute of zero
// disables throttling.
func NewDispatcher(pub message.Publisher, store StatusStore, cfg *config.JobsConfig, opts ...DispatcherOption) *Dispatcher {
	limit := rate.Inf
	if cfg.SubmitPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.SubmitPerMinute))
	}
	burst := cfg.SubmitBurst
	if burst < 1 {
		burst = 1
	}

	d := &Dispatcher{
		publisher:   pub,
		topic:       cfg.Topic,
		store:       store,
		limiter:     rate.NewLimiter(limit, burst),
		broadcaster: nopBroadcaster{},
		now:         time.Now,
		breaker: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        "job-publisher",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("Job publisher circuit breaker changed state")
			},
		}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit validates req, records a queued job and publishes it. The job is
// returned as soon as it is queued.
func (d *Dispatcher) Submit(ctx context.Context, req RunRequest) (*Job, error) {
	if err := analytics.ValidateWindow(req.Start, req.End, req.Resolution); err != nil {
		metrics.JobsSubmitted.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if !d.limiter.Allow() {
		metrics.JobsSubmitted.WithLabelValues("rate_limited").Inc()
		return nil, ErrRateLimited
	}

	req.Start = req.Start.UTC()
	req.End = req.End.UTC()
	job := &Job{
		ID:          uuid.NewString(),
		Status:      StatusQueued,
		Request:     req,
		SubmittedAt: d.now().UTC(),
	}
	if err := d.store.Put(ctx, job); err != nil {
		metrics.JobsSubmitted.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("record job: %w", err)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	msg := message.NewMessage(job.ID, payload)
	msg.Metadata.Set(natsgo.MsgIdHdr, job.ID)
	msg.Metadata.Set("source", req.Source)

	if _, err := d.breaker.Execute(func() (any, error) {
		return nil, d.publisher.Publish(d.topic, msg)
	}); err != nil {
		metrics.JobsSubmitted.WithLabelValues("error").Inc()
		job.Status = StatusFailed
		job.Error = "publish failed: " + err.Error()
		finished := d.now().UTC()
		job.FinishedAt = &finished
		if perr := d.store.Put(ctx, job); perr != nil {
			logging.Ctx(ctx).Warn().Err(perr).Str("job_id", job.ID).Msg("Failed to record publish failure")
		}
		return nil, fmt.Errorf("publish job: %w", err)
	}

	metrics.JobsSubmitted.WithLabelValues("queued").Inc()
	metrics.JobsInFlight.Inc()
	d.broadcaster.BroadcastJSON(MessageJobStatus, *job)
	logging.Ctx(ctx).Info().
		Str("job_id", job.ID).
		Time("start", req.Start).
		Time("end", req.End).
		Int("resolution", req.Resolution).
		Str("source", req.Source).
		Msg("Analytics run queued")
	return job, nil
}

// Status returns the current state of a job.
func (d *Dispatcher) Status(ctx context.Context, id string) (*Job, error) {
	return d.store.Get(ctx, id)
}

// Recent lists the latest jobs.
func (d *Dispatcher) Recent(ctx context.Context, limit int) ([]*Job, error) {
	return d.store.List(ctx, limit)
}
