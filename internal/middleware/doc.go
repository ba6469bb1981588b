// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

/*
Package middleware provides infrastructure HTTP middleware shared by the API
router: request id propagation into the logging context, structured access
logs, and Prometheus request instrumentation.

All middleware uses the chi signature func(http.Handler) http.Handler.
A typical stack, outermost first:

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

PrometheusMetrics labels requests with the matched chi route pattern rather
than the raw path, so tile and date paths do not create one series per URL.
*/
package middleware
