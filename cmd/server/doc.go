// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

/*
Package main is the riskgrid server.

It bins geolocated events into H3 cells, scores each cell per day, flags
anomalous days and serves the results as JSON and Mapbox vector tiles.

# Process Layout

Long-running components run under a Suture v4 tree:

	RootSupervisor ("riskgrid")
	├── DataSupervisor ("data-layer")
	│   ├── query-cache (janitor stop on shutdown)
	│   └── authz-enforcer (policy reload stop on shutdown)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── websocket-hub
	│   ├── job-worker (Watermill router running the pipeline)
	│   ├── job-scheduler (when JOBS_SCHEDULE_INTERVAL is set)
	│   └── mqtt-ingest (when MQTT_ENABLED=true)
	└── APISupervisor ("api-layer")
	    └── http-server (starts once the job worker is subscribed)

The store, tile cache, job transport and job status store are opened before
the tree starts and closed after it stops.

# Configuration

Koanf v2 merges defaults, an optional config.yaml and environment variables,
highest priority last. Frequently used variables:

	HTTP_PORT=8080
	STORE_BACKEND=duckdb           # duckdb or postgis
	DUCKDB_PATH=/data/riskgrid.duckdb
	DATABASE_URL=postgres://...
	TILE_CACHE_BACKEND=memory      # memory, redis or none
	JOBS_TRANSPORT=memory          # memory or nats
	NATS_EMBEDDED=true
	JWT_SECRET=<32+ chars>
	ADMIN_USERNAME=admin
	ADMIN_PASSWORD=<password>
	LOG_LEVEL=info
	LOG_FORMAT=json

# Shutdown

SIGINT and SIGTERM cancel the root context. The HTTP server drains within
SHUTDOWN_TIMEOUT, the worker finishes its current message and
services that miss the deadline are logged by name.
*/
package main
