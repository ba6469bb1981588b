// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package analytics

import (
	"context"
	"time"

	"github.com/tomtom215/riskgrid/internal/hexgrid"
	"github.com/tomtom215/riskgrid/internal/logging"
	"github.com/tomtom215/riskgrid/internal/metrics"
)

// Stage identifies a step of the pipeline state machine.
type Stage string

const (
	StagePending     Stage = "pending"
	StageAggregate   Stage = "aggregate"
	StageScore       Stage = "score"
	StageDetect      Stage = "detect"
	StageRefreshView Stage = "refresh_view"
	StageDone        Stage = "done"
)

// StageReport describes one completed (or failed) stage.
type StageReport struct {
	Stage    Stage         `json:"stage"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// RunReport summarizes a pipeline run.
type RunReport struct {
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	Resolution    int           `json:"resolution"`
	State         Stage         `json:"state"`
	EventsRead    int           `json:"events_read"`
	CellsInserted int           `json:"cells_inserted"`
	Aggregates    int           `json:"aggregates"`
	Scores        int           `json:"scores"`
	Flags         int           `json:"flags"`
	Flagged       int           `json:"flagged"`
	ViewRows      int64         `json:"view_rows"`
	Stages        []StageReport `json:"stages"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
}

// StageObserver is notified after every stage, successful or not.
type StageObserver func(ctx context.Context, report StageReport)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the time source used for computed_at columns.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithObserver registers a stage observer.
func WithObserver(obs StageObserver) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, obs) }
}

// Pipeline runs AGGREGATE, SCORE, DETECT and REFRESH_VIEW against a Store.
// Runs are independent; concurrent runs over overlapping windows resolve as
// last writer wins per (cell, day).
type Pipeline struct {
	store     Store
	now       func() time.Time
	observers []StageObserver
}

// NewPipeline creates a pipeline over store.
func NewPipeline(store Store, opts ...Option) *Pipeline {
	p := &Pipeline{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ValidateWindow checks run parameters without touching storage.
func ValidateWindow(start, end time.Time, resolution int) error {
	if err := hexgrid.ValidateResolution(resolution); err != nil {
		return &InputRangeError{Field: "resolution", Reason: "must be 7 or 8", Err: err}
	}
	if start.IsZero() || end.IsZero() {
		return &InputRangeError{Field: "window", Reason: "start and end are required"}
	}
	if end.Before(start) {
		return &InputRangeError{Field: "window", Reason: "end is before start"}
	}
	return nil
}

// Run executes the pipeline for events in [start, end) at the given
// resolution. Derived stages cover UTC days from start to end inclusive.
// The first failure stops the run; the returned report shows how far it got.
func (p *Pipeline) Run(ctx context.Context, start, end time.Time, resolution int) (*RunReport, error) {
	report := &RunReport{
		Start:      start.UTC(),
		End:        end.UTC(),
		Resolution: resolution,
		State:      StagePending,
		StartedAt:  p.now().UTC(),
	}

	if err := ValidateWindow(start, end, resolution); err != nil {
		metrics.RecordPipelineRun("rejected")
		return report, err
	}

	logger := logging.CtxWith(ctx).
		Time("start", report.Start).
		Time("end", report.End).
		Int("resolution", resolution).
		Logger()
	logger.Info().Msg("Pipeline run started")

	firstDay, lastDay := DayOf(start), DayOf(end)

	steps := []struct {
		stage Stage
		fn    func(context.Context) (int, error)
	}{
		{StageAggregate, func(ctx context.Context) (int, error) {
			return p.aggregate(ctx, report, start, end, firstDay, lastDay, resolution)
		}},
		{StageScore, func(ctx context.Context) (int, error) {
			return p.score(ctx, report, firstDay, lastDay)
		}},
		{StageDetect, func(ctx context.Context) (int, error) {
			return p.detect(ctx, report, firstDay, lastDay)
		}},
		{StageRefreshView, func(ctx context.Context) (int, error) {
			return p.refresh(ctx, report)
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			metrics.RecordPipelineRun("failed")
			report.FinishedAt = p.now().UTC()
			return report, err
		}

		report.State = step.stage
		began := time.Now()
		rows, err := step.fn(ctx)
		sr := StageReport{Stage: step.stage, Rows: rows, Duration: time.Since(began)}
		if err != nil {
			sr.Error = err.Error()
		}
		report.Stages = append(report.Stages, sr)
		metrics.RecordPipelineStage(string(step.stage), sr.Duration, rows)
		p.notify(ctx, sr)

		if err != nil {
			report.FinishedAt = p.now().UTC()
			metrics.RecordPipelineRun("failed")
			logger.Error().Err(err).Str("stage", string(step.stage)).Msg("Pipeline run failed")
			return report, err
		}
		logger.Debug().Str("stage", string(step.stage)).Int("rows", rows).Dur("duration", sr.Duration).Msg("Stage complete")
	}

	report.State = StageDone
	report.FinishedAt = p.now().UTC()
	metrics.RecordPipelineRun("completed")
	logger.Info().
		Int("events", report.EventsRead).
		Int("aggregates", report.Aggregates).
		Int("flagged", report.Flagged).
		Int64("view_rows", report.ViewRows).
		Msg("Pipeline run completed")
	return report, nil
}

func (p *Pipeline) notify(ctx context.Context, sr StageReport) {
	for _, obs := range p.observers {
		obs(ctx, sr)
	}
}

func (p *Pipeline) aggregate(ctx context.Context, report *RunReport, start, end, firstDay, lastDay time.Time, resolution int) (int, error) {
	events, err := p.store.EventsInRange(ctx, start, end)
	if err != nil {
		return 0, storageErr(StageAggregate, "read events", err)
	}
	report.EventsRead = len(events)

	counts, cells, err := GroupByCellDay(events, resolution)
	if err != nil {
		return 0, &InputRangeError{Field: "event", Reason: "cannot index event", Err: err}
	}

	if len(cells) > 0 {
		inserted, err := p.store.EnsureCells(ctx, cells)
		if err != nil {
			return 0, storageErr(StageAggregate, "register cells", err)
		}
		report.CellsInserted = inserted
	}

	if len(counts) > 0 {
		if err := p.store.UpsertCounts(ctx, counts, p.now().UTC()); err != nil {
			return 0, storageErr(StageAggregate, "upsert counts", err)
		}
	}

	rows, err := p.store.ListAggregates(ctx, firstDay, lastDay)
	if err != nil {
		return 0, storageErr(StageAggregate, "read aggregates", err)
	}
	windowed := ComputeWindows(rows)
	if len(windowed) > 0 {
		if err := p.store.UpdateWindows(ctx, windowed); err != nil {
			return 0, storageErr(StageAggregate, "update windows", err)
		}
	}
	report.Aggregates = len(windowed)
	return len(counts), nil
}

func (p *Pipeline) score(ctx context.Context, report *RunReport, firstDay, lastDay time.Time) (int, error) {
	rows, err := p.store.ListAggregates(ctx, firstDay, lastDay)
	if err != nil {
		return 0, storageErr(StageScore, "read aggregates", err)
	}
	scores := ScoreBatch(rows, p.now().UTC())
	if len(scores) > 0 {
		if err := p.store.UpsertScores(ctx, scores); err != nil {
			return 0, storageErr(StageScore, "upsert scores", err)
		}
	}
	report.Scores = len(scores)
	return len(scores), nil
}

func (p *Pipeline) detect(ctx context.Context, report *RunReport, firstDay, lastDay time.Time) (int, error) {
	rows, err := p.store.ListAggregates(ctx, firstDay, lastDay)
	if err != nil {
		return 0, storageErr(StageDetect, "read aggregates", err)
	}
	flags := DetectAnomalies(rows, p.now().UTC())
	if len(flags) > 0 {
		if err := p.store.UpsertFlags(ctx, flags); err != nil {
			return 0, storageErr(StageDetect, "upsert flags", err)
		}
	}
	report.Flags = len(flags)
	for _, f := range flags {
		if f.Flagged {
			report.Flagged++
		}
	}
	metrics.AnomaliesFlagged.Add(float64(report.Flagged))
	return len(flags), nil
}

func (p *Pipeline) refresh(ctx context.Context, report *RunReport) (int, error) {
	n, err := p.store.RefreshRiskView(ctx)
	if err != nil {
		return 0, storageErr(StageRefreshView, "refresh risk view", err)
	}
	report.ViewRows = n
	return int(n), nil
}
