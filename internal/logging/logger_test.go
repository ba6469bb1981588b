// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func captureGlobal(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := Logger()
	prevLevel := zerolog.GlobalLevel()
	buf := &bytes.Buffer{}
	SetLogger(NewTestLogger(buf))
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() {
		SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})
	return buf
}

func decodeLast(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 0 || lines[0] == "" {
		t.Fatal("no log output")
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("decode %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"DEBUG":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
		"bogus":    zerolog.InfoLevel,
		"":         zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCtx_AddsIdentifiers(t *testing.T) {
	buf := captureGlobal(t)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr1234")
	ctx = ContextWithJobID(ctx, "job-9")
	Ctx(ctx).Info().Msg("hello")

	m := decodeLast(t, buf)
	if m["request_id"] != "req-1" || m["correlation_id"] != "corr1234" || m["job_id"] != "job-9" {
		t.Errorf("missing context fields: %v", m)
	}
	if m["message"] != "hello" {
		t.Errorf("message = %v", m["message"])
	}
}

func TestCtx_EmptyContext(t *testing.T) {
	buf := captureGlobal(t)

	Ctx(context.Background()).Info().Msg("plain")
	m := decodeLast(t, buf)
	if _, ok := m["request_id"]; ok {
		t.Error("unexpected request_id")
	}
}

func TestGenerateIDs(t *testing.T) {
	if got := len(GenerateCorrelationID()); got != 8 {
		t.Errorf("correlation id length = %d", got)
	}
	if GenerateRequestID() == GenerateRequestID() {
		t.Error("request ids should be unique")
	}
}

func TestSlogHandler(t *testing.T) {
	buf := captureGlobal(t)

	logger := slog.New(NewSlogHandler()).With("service", "api").WithGroup("grp")
	logger.Warn("restarting", "attempt", 3, "err", errors.New("boom"))

	m := decodeLast(t, buf)
	if m["level"] != "warn" {
		t.Errorf("level = %v", m["level"])
	}
	if m["service"] != "api" && m["grp.service"] != "api" {
		t.Errorf("service attr missing: %v", m)
	}
	if m["grp.attempt"] != float64(3) {
		t.Errorf("grouped attr missing: %v", m)
	}
}

func TestWatermillAdapter(t *testing.T) {
	buf := &bytes.Buffer{}
	prevLevel := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prevLevel) })

	var a watermill.LoggerAdapter = NewWatermillAdapterWithLogger(NewTestLogger(buf))
	a = a.With(watermill.LogFields{"topic": "analytics.run"})
	a.Error("handler failed", errors.New("boom"), watermill.LogFields{"attempt": 2})

	m := decodeLast(t, buf)
	if m["topic"] != "analytics.run" || m["error"] != "boom" || m["attempt"] != float64(2) {
		t.Errorf("unexpected entry: %v", m)
	}
}
