// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

/*
Package api serves the Riskgrid HTTP API on a chi router.

Every route lives under /api/v1 and returns the models.APIResponse envelope,
except vector tiles (application/vnd.mapbox-vector-tile), the WebSocket
stream and /metrics.

	GET  /api/v1/health/live
	GET  /api/v1/health/ready
	POST /api/v1/auth/token
	POST /api/v1/analytics/run            analyst, admin (202 Accepted)
	GET  /api/v1/analytics/jobs           analyst, admin
	GET  /api/v1/analytics/jobs/{id}      analyst, admin
	GET  /api/v1/risk/{date}
	GET  /api/v1/hotspots?start_date=&end_date=
	GET  /api/v1/tiles/{z}/{x}/{y}.mvt?risk_date=&risk_level=
	POST /api/v1/events/upload            analyst, admin
	GET  /api/v1/events                   analyst, admin
	GET  /api/v1/ws
	GET  /metrics

Request flow:

	RequestID -> RealIP -> AccessLog -> Recoverer -> CORS -> security headers
	-> Prometheus -> Authenticate (JWT) -> per-role rate limit -> Authorize
	(casbin) -> handler

Risk and hotspot responses are held in a QueryCache and tiles in a
TileCache; both are cleared by InvalidateCaches after every completed
pipeline run.
*/
package api
