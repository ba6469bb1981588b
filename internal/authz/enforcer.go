// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

// Package authz decides which roles may call which API routes using a
// Casbin RBAC model. Roles inherit: admin > analyst > public.
//
// The model and policy are embedded; EnforcerConfig can point at files on
// disk to override either.
package authz

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// EnforcerConfig selects model and policy sources.
type EnforcerConfig struct {
	// ModelPath overrides the embedded model when the file exists.
	ModelPath string
	// PolicyPath overrides the embedded policy when the file exists.
	PolicyPath string
	// ReloadInterval enables periodic reloads of PolicyPath.
	ReloadInterval time.Duration
}

// Enforcer wraps a synced Casbin enforcer.
type Enforcer struct {
	enforcer   *casbin.SyncedEnforcer
	autoReload bool
}

// NewEnforcer loads the model and policy. A nil config uses the embedded
// files.
func NewEnforcer(cfg *EnforcerConfig) (*Enforcer, error) {
	if cfg == nil {
		cfg = &EnforcerConfig{}
	}

	var m model.Model
	var err error
	if cfg.ModelPath != "" && fileExists(cfg.ModelPath) {
		m, err = model.NewModelFromFile(cfg.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	fromFile := cfg.PolicyPath != "" && fileExists(cfg.PolicyPath)
	var enforcer *casbin.SyncedEnforcer
	if fromFile {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m, stringadapter.NewAdapter(embeddedPolicy))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	e := &Enforcer{enforcer: enforcer}
	if fromFile && cfg.ReloadInterval > 0 {
		enforcer.StartAutoLoadPolicy(cfg.ReloadInterval)
		e.autoReload = true
	}
	recordPolicySize(enforcer)
	return e, nil
}

// Enforce reports whether role may perform action on object.
func (e *Enforcer) Enforce(role, object, action string) (bool, error) {
	start := time.Now()
	allowed, err := e.enforcer.Enforce(role, object, action)
	if err != nil {
		AuthzErrorsTotal.Inc()
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	recordDecision(role, action, allowed, time.Since(start))
	return allowed, nil
}

// Close stops policy reloading.
func (e *Enforcer) Close() {
	if e.autoReload {
		e.enforcer.StopAutoLoadPolicy()
	}
}

func recordPolicySize(enforcer *casbin.SyncedEnforcer) {
	if policies, err := enforcer.GetPolicy(); err == nil {
		AuthzPolicyRules.Set(float64(len(policies)))
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
