// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package services

import (
	"context"
	"sync"
)

// CloserService owns a resource that was started before the tree, such
// as the embedded NATS server. It blocks until shutdown and then releases
// the resource exactly once, so the supervisor controls teardown order.
type CloserService struct {
	name  string
	close func()
	once  sync.Once
}

// NewCloserService returns a service that calls closeFn on shutdown.
func NewCloserService(name string, closeFn func()) *CloserService {
	return &CloserService{name: name, close: closeFn}
}

// Serve implements suture.Service.
func (c *CloserService) Serve(ctx context.Context) error {
	<-ctx.Done()
	c.once.Do(c.close)
	return ctx.Err()
}

func (c *CloserService) String() string { return c.name }
