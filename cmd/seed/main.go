// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

// Command seed loads events from a CSV file into the configured store and
// can run the pipeline over them without a server.
//
//	seed -csv events.csv [-delimiter ';'] [-run -start 2026-01-01 -end 2026-02-01 -resolution 8]
//
// The store is selected the same way as for the server (STORE_BACKEND,
// DUCKDB_PATH, DATABASE_URL).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/tomtom215/riskgrid/internal/analytics"
	"github.com/tomtom215/riskgrid/internal/config"
	"github.com/tomtom215/riskgrid/internal/database"
	"github.com/tomtom215/riskgrid/internal/ingest"
	"github.com/tomtom215/riskgrid/internal/logging"
	"github.com/tomtom215/riskgrid/internal/postgis"
)

type seedStore interface {
	analytics.Store
	ingest.Writer
	Close() error
}

type options struct {
	csvPath    string
	delimiter  rune
	batchSize  int
	run        bool
	start      time.Time
	end        time.Time
	resolution int
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logging.Init(logCfg)

	opts, err := parseFlags(os.Args[1:], cfg.Analytics, time.Now().UTC())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := seed(ctx, cfg, opts); err != nil {
		logging.Error().Err(err).Msg("Seed failed")
		stop()
		os.Exit(1)
	}
}

func parseFlags(args []string, defaults config.AnalyticsConfig, now time.Time) (*options, error) {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	csvPath := fs.String("csv", "", "CSV file with event_type, event_timestamp, longitude, latitude, attributes_json")
	delimiter := fs.String("delimiter", ",", "CSV field delimiter")
	batchSize := fs.Int("batch", ingest.DefaultBatchSize, "rows per insert")
	run := fs.Bool("run", false, "run the pipeline after loading")
	start := fs.String("start", "", "window start (RFC 3339 or YYYY-MM-DD); default end minus the configured window")
	end := fs.String("end", "", "window end (RFC 3339 or YYYY-MM-DD); default now")
	resolution := fs.Int("resolution", defaults.DefaultResolution, "H3 resolution, 7 or 8")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *csvPath == "" && !*run {
		return nil, fmt.Errorf("nothing to do: pass -csv, -run or both")
	}
	if utf8.RuneCountInString(*delimiter) != 1 {
		return nil, fmt.Errorf("-delimiter must be a single character")
	}
	d, _ := utf8.DecodeRuneInString(*delimiter)

	o := &options{
		csvPath:    *csvPath,
		delimiter:  d,
		batchSize:  *batchSize,
		run:        *run,
		end:        now,
		resolution: *resolution,
	}
	if *end != "" {
		t, err := ingest.ParseTimestamp(*end)
		if err != nil {
			return nil, fmt.Errorf("-end: %w", err)
		}
		o.end = t
	}
	o.start = o.end.AddDate(0, 0, -defaults.DefaultWindowDays)
	if *start != "" {
		t, err := ingest.ParseTimestamp(*start)
		if err != nil {
			return nil, fmt.Errorf("-start: %w", err)
		}
		o.start = t
	}
	if o.run {
		if err := analytics.ValidateWindow(o.start, o.end, o.resolution); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func seed(ctx context.Context, cfg *config.Config, opts *options) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close store")
		}
	}()

	if opts.csvPath != "" {
		events, err := ingest.ReadCSVFile(opts.csvPath, opts.delimiter)
		if err != nil {
			return fmt.Errorf("read %s: %w", opts.csvPath, err)
		}
		n, err := ingest.Insert(ctx, st, ingest.SourceCSV, events, opts.batchSize)
		if err != nil {
			return fmt.Errorf("insert after %d rows: %w", n, err)
		}
		logging.Info().Str("file", opts.csvPath).Int("events", n).Msg("Events loaded")
	}

	if !opts.run {
		return nil
	}
	report, err := analytics.NewPipeline(st).Run(ctx, opts.start, opts.end, opts.resolution)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	logging.Info().
		Time("start", report.Start).
		Time("end", report.End).
		Int("resolution", report.Resolution).
		Int("events", report.EventsRead).
		Int("scores", report.Scores).
		Int("flagged", report.Flagged).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Pipeline run completed")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (seedStore, error) {
	if cfg.Database.Backend == config.BackendPostGIS {
		s, err := postgis.New(ctx, &cfg.PostGIS)
		if err != nil {
			return nil, fmt.Errorf("postgis: %w", err)
		}
		return s, nil
	}
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("duckdb: %w", err)
	}
	return db, nil
}
