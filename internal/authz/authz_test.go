// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package authz

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/tomtom215/riskgrid/internal/auth"
	"github.com/tomtom215/riskgrid/internal/models"
)

func newTestEnforcer(t *testing.T) *Enforcer {
	t.Helper()
	e, err := NewEnforcer(nil)
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestEnforcer_EmbeddedPolicy(t *testing.T) {
	e := newTestEnforcer(t)

	tests := []struct {
		role   string
		path   string
		method string
		want   bool
	}{
		{models.RolePublic, "/api/v1/health/live", "GET", true},
		{models.RolePublic, "/api/v1/auth/token", "POST", true},
		{models.RolePublic, "/api/v1/risk/2024-05-01", "GET", true},
		{models.RolePublic, "/api/v1/hotspots", "GET", true},
		{models.RolePublic, "/api/v1/tiles/10/163/395.mvt", "GET", true},
		{models.RolePublic, "/api/v1/ws", "GET", true},
		{models.RolePublic, "/api/v1/analytics/run", "POST", false},
		{models.RolePublic, "/api/v1/events", "GET", false},
		{models.RolePublic, "/api/v1/events/upload", "POST", false},
		{models.RolePublic, "/api/v1/risk/2024-05-01", "DELETE", false},

		{models.RoleAnalyst, "/api/v1/analytics/run", "POST", true},
		{models.RoleAnalyst, "/api/v1/analytics/jobs/abc", "GET", true},
		{models.RoleAnalyst, "/api/v1/events/upload", "POST", true},
		{models.RoleAnalyst, "/api/v1/events", "GET", true},
		{models.RoleAnalyst, "/api/v1/risk/2024-05-01", "GET", true},
		{models.RoleAnalyst, "/api/v1/analytics/run", "DELETE", false},

		{models.RoleAdmin, "/api/v1/analytics/run", "POST", true},
		{models.RoleAdmin, "/api/v1/anything/else", "DELETE", true},

		{"intruder", "/api/v1/health/live", "GET", false},
	}

	for _, tt := range tests {
		t.Run(tt.role+" "+tt.method+" "+tt.path, func(t *testing.T) {
			got, err := e.Enforce(tt.role, tt.path, tt.method)
			if err != nil {
				t.Fatalf("Enforce: %v", err)
			}
			if got != tt.want {
				t.Errorf("Enforce(%s, %s, %s) = %v, want %v", tt.role, tt.path, tt.method, got, tt.want)
			}
		})
	}
}

func TestEnforcer_PolicyFileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.csv")
	if err := os.WriteFile(path, []byte("p, public, /api/v1/events, GET\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	e, err := NewEnforcer(&EnforcerConfig{PolicyPath: path})
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	defer e.Close()

	if ok, _ := e.Enforce(models.RolePublic, "/api/v1/events", "GET"); !ok {
		t.Error("file policy should grant public event listing")
	}
	if ok, _ := e.Enforce(models.RolePublic, "/api/v1/risk/2024-05-01", "GET"); ok {
		t.Error("embedded policy should be replaced, not merged")
	}
}

func TestMiddleware_Authorize(t *testing.T) {
	mw := NewMiddleware(newTestEnforcer(t))
	h := mw.Authorize(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		claims *auth.Claims
		method string
		path   string
		want   int
	}{
		{"public read", nil, http.MethodGet, "/api/v1/hotspots", http.StatusOK},
		{"public head maps to read", nil, http.MethodHead, "/api/v1/hotspots", http.StatusOK},
		{"public run needs login", nil, http.MethodPost, "/api/v1/analytics/run", http.StatusUnauthorized},
		{"analyst run", &auth.Claims{Username: "ana", Role: models.RoleAnalyst}, http.MethodPost, "/api/v1/analytics/run", http.StatusOK},
		{"unknown role forbidden", &auth.Claims{Username: "x", Role: "guest"}, http.MethodPost, "/api/v1/analytics/run", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.claims != nil {
				req = req.WithContext(auth.ContextWithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
