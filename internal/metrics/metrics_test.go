// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordDBQuery(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		err        error
		wantErrInc float64
	}{
		{"success", "test_ok", nil, 0},
		{"failure", "test_fail", errors.New("connection refused"), 1},
		{"cancelled", "test_cancel", fmt.Errorf("query: %w", context.Canceled), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("duckdb", tt.operation))
			RecordDBQuery("duckdb", tt.operation, 5*time.Millisecond, tt.err)
			after := testutil.ToFloat64(DBQueryErrors.WithLabelValues("duckdb", tt.operation))
			if after-before != tt.wantErrInc {
				t.Errorf("error counter delta = %v, want %v", after-before, tt.wantErrInc)
			}
		})
	}
}

func TestRecordPipelineStage(t *testing.T) {
	before := testutil.ToFloat64(PipelineStageRows.WithLabelValues("test_stage"))
	RecordPipelineStage("test_stage", 20*time.Millisecond, 42)
	RecordPipelineStage("test_stage", 10*time.Millisecond, 0)
	after := testutil.ToFloat64(PipelineStageRows.WithLabelValues("test_stage"))
	if after-before != 42 {
		t.Errorf("rows delta = %v, want 42", after-before)
	}

	m := &dto.Metric{}
	obs, ok := PipelineStageDuration.WithLabelValues("test_stage").(interface{ Write(*dto.Metric) error })
	if !ok {
		t.Fatal("histogram does not implement Write")
	}
	if err := obs.Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := m.GetHistogram().GetSampleCount(); got < 2 {
		t.Errorf("sample count = %d, want >= 2", got)
	}
}

func TestRecordPipelineRun(t *testing.T) {
	before := testutil.ToFloat64(PipelineRuns.WithLabelValues("completed"))
	RecordPipelineRun("completed")
	if got := testutil.ToFloat64(PipelineRuns.WithLabelValues("completed")); got != before+1 {
		t.Errorf("completed runs = %v, want %v", got, before+1)
	}
	if testutil.ToFloat64(PipelineLastSuccess) == 0 {
		t.Error("last success timestamp not set")
	}
}

func TestRecordTileCache(t *testing.T) {
	hits := testutil.ToFloat64(TileCacheHits.WithLabelValues("test"))
	misses := testutil.ToFloat64(TileCacheMisses.WithLabelValues("test"))

	RecordTileCache("test", true)
	RecordTileCache("test", false)
	RecordTileCache("test", false)

	if d := testutil.ToFloat64(TileCacheHits.WithLabelValues("test")) - hits; d != 1 {
		t.Errorf("hits delta = %v", d)
	}
	if d := testutil.ToFloat64(TileCacheMisses.WithLabelValues("test")) - misses; d != 2 {
		t.Errorf("misses delta = %v", d)
	}
}

func TestRecordEvents(t *testing.T) {
	acc := testutil.ToFloat64(EventsIngested.WithLabelValues("test"))
	rej := testutil.ToFloat64(EventsRejected.WithLabelValues("test"))
	RecordEvents("test", 10, 3)
	if d := testutil.ToFloat64(EventsIngested.WithLabelValues("test")) - acc; d != 10 {
		t.Errorf("accepted delta = %v", d)
	}
	if d := testutil.ToFloat64(EventsRejected.WithLabelValues("test")) - rej; d != 3 {
		t.Errorf("rejected delta = %v", d)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("active = %v, want %v", got, before+1)
	}
}
