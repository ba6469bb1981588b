// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package jobs

import (
	"context"
	"time"

	"github.com/tomtom215/riskgrid/internal/logging"
)

// Submitter queues pipeline runs; *Dispatcher implements it.
type Submitter interface {
	Submit(ctx context.Context, req RunRequest) (*Job, error)
}

// Scheduler submits a run of the trailing window on a fixed interval.
type Scheduler struct {
	submitter  Submitter
	interval   time.Duration
	windowDays int
	resolution int
	now        func() time.Time
}

// NewScheduler creates a scheduler; interval must be positive.
func NewScheduler(s Submitter, interval time.Duration, windowDays, resolution int) *Scheduler {
	return &Scheduler{
		submitter:  s,
		interval:   interval,
		windowDays: windowDays,
		resolution: resolution,
		now:        time.Now,
	}
}

// Serve submits a run every interval until ctx is done. It satisfies
// suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) String() string { return "job-scheduler" }

func (s *Scheduler) tick(ctx context.Context) {
	end := s.now().UTC()
	req := RunRequest{
		Start:      end.AddDate(0, 0, -s.windowDays),
		End:        end,
		Resolution: s.resolution,
		Source:     "scheduler",
	}
	job, err := s.submitter.Submit(ctx, req)
	if err != nil {
		logging.Warn().Err(err).Msg("Scheduled analytics run was not queued")
		return
	}
	logging.Info().Str("job_id", job.ID).Msg("Scheduled analytics run queued")
}
