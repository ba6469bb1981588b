// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

//go:build integration

package postgis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/riskgrid/internal/analytics"
	"github.com/tomtom215/riskgrid/internal/config"
	"github.com/tomtom215/riskgrid/internal/database"
	"github.com/tomtom215/riskgrid/internal/models"
	"github.com/tomtom215/riskgrid/internal/testinfra"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	testinfra.SkipIfNoDocker(t)

	ctx := context.Background()
	pg, err := testinfra.NewPostGISContainer(ctx)
	if err != nil {
		t.Fatalf("start postgis: %v", err)
	}
	t.Cleanup(func() { testinfra.CleanupContainer(t, ctx, pg) })

	store, err := New(ctx, &config.PostGISConfig{URL: pg.URL, MaxConns: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostGIS_PipelineEndToEnd(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	version, err := store.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}

	var events []models.Event
	perDay := []int{10, 10, 10, 10, 10, 10, 50}
	total := 0
	for d, n := range perDay {
		total += n
		for i := 0; i < n; i++ {
			events = append(events, models.Event{
				Type:      "theft",
				Timestamp: base.AddDate(0, 0, d).Add(time.Duration(i) * time.Second),
				Longitude: 2.3522,
				Latitude:  48.8566,
			})
		}
	}
	inserted, err := store.InsertEvents(ctx, events)
	if err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
	if inserted != total {
		t.Errorf("inserted = %d, want %d", inserted, total)
	}

	report, err := analytics.NewPipeline(store).Run(ctx, base, base.AddDate(0, 0, 7), 8)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.CellsInserted != 1 || report.ViewRows != int64(len(perDay)) || report.Flagged != 1 {
		t.Errorf("report = %+v, want 1 cell, %d view rows, 1 flag", report, len(perDay))
	}

	rows, err := store.RiskByDate(ctx, base.AddDate(0, 0, 6))
	if err != nil {
		t.Fatalf("RiskByDate: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].RiskLevel != analytics.RiskCritical || !rows[0].AnomalyFlagged {
		t.Errorf("spike day = %+v, want critical and flagged", rows[0])
	}
	if !strings.Contains(rows[0].BoundaryWKT, "POLYGON") {
		t.Errorf("BoundaryWKT = %q", rows[0].BoundaryWKT)
	}

	hot, err := store.Hotspots(ctx, base, base.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("Hotspots: %v", err)
	}
	if len(hot) == 0 || hot[0].TimeBucket != "2024-05-07" {
		t.Errorf("hotspots = %+v, want 2024-05-07 first", hot)
	}

	// Zoom 10 tile containing central Paris.
	tile, err := store.RenderTile(ctx, 10, 518, 352, database.TileFilter{Day: base.AddDate(0, 0, 6)})
	if err != nil {
		t.Fatalf("RenderTile: %v", err)
	}
	if len(tile) == 0 {
		t.Error("Paris tile is empty")
	}

	empty, err := store.RenderTile(ctx, 10, 0, 0, database.TileFilter{})
	if err != nil {
		t.Fatalf("RenderTile: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("tile without cells has %d bytes", len(empty))
	}

	again, err := analytics.NewPipeline(store).Run(ctx, base, base.AddDate(0, 0, 7), 8)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again.CellsInserted != 0 {
		t.Errorf("second run inserted %d cells", again.CellsInserted)
	}
}

func TestPostGIS_Users(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if _, err := store.GetUser(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUser(missing) err = %v, want ErrUserNotFound", err)
	}

	if err := store.UpsertUser(ctx, &models.User{Username: "ops", PasswordHash: "h", Role: models.RoleAdmin}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	u, err := store.GetUser(ctx, "ops")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Role != models.RoleAdmin {
		t.Errorf("Role = %s, want %s", u.Role, models.RoleAdmin)
	}
}
