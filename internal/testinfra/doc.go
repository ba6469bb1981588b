// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

// Package testinfra starts throwaway containers for integration tests.
//
// Everything here is behind the integration build tag:
//
//	go test -tags integration ./...
//
// Available containers:
//   - PostGISContainer: postgis/postgis with a ready connection URL
//   - RedisContainer: redis for the tile cache
//   - MosquittoContainer: eclipse-mosquitto for MQTT ingestion
//
// Tests call SkipIfNoDocker first so they skip cleanly on machines
// without a Docker daemon.
//
//	func TestStore(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    pg, err := testinfra.NewPostGISContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, pg)
//	    store, err := postgis.New(ctx, &config.PostGISConfig{URL: pg.URL, MaxConns: 4})
//	    ...
//	}
package testinfra
