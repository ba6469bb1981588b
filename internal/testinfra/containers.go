// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SkipIfNoDocker skips the test if Docker is not available.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()

	if !IsDockerAvailable() {
		t.Skip("Skipping test: Docker not available")
	}
}

// IsDockerAvailable checks if Docker daemon is running and accessible.
func IsDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "info")
	return cmd.Run() == nil
}

// CleanupContainer terminates a container and logs failures.
func CleanupContainer(t *testing.T, ctx context.Context, container testcontainers.Container) {
	t.Helper()

	if container != nil {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	}
}

// startContainer runs req and returns the container with host:port of port.
func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port string) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create %s container: %w", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, "", fmt.Errorf("get container host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, "", fmt.Errorf("get mapped port: %w", err)
	}
	return container, fmt.Sprintf("%s:%s", host, mapped.Port()), nil
}

const (
	DefaultPostGISImage   = "postgis/postgis:16-3.4"
	DefaultRedisImage     = "redis:7-alpine"
	DefaultMosquittoImage = "eclipse-mosquitto:2"
)

// PostGISContainer is a running PostGIS server.
type PostGISContainer struct {
	testcontainers.Container
	URL string
}

// NewPostGISContainer starts PostGIS with database riskgrid.
func NewPostGISContainer(ctx context.Context) (*PostGISContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        DefaultPostGISImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "riskgrid",
			"POSTGRES_PASSWORD": "riskgrid",
			"POSTGRES_DB":       "riskgrid",
		},
		// The entrypoint restarts postgres once after init scripts.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(2 * time.Minute),
	}
	container, addr, err := startContainer(ctx, req, "5432")
	if err != nil {
		return nil, err
	}
	return &PostGISContainer{
		Container: container,
		URL:       fmt.Sprintf("postgres://riskgrid:riskgrid@%s/riskgrid?sslmode=disable", addr),
	}, nil
}

// RedisContainer is a running Redis server.
type RedisContainer struct {
	testcontainers.Container
	URL string
}

// NewRedisContainer starts Redis.
func NewRedisContainer(ctx context.Context) (*RedisContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        DefaultRedisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
	}
	container, addr, err := startContainer(ctx, req, "6379")
	if err != nil {
		return nil, err
	}
	return &RedisContainer{Container: container, URL: "redis://" + addr + "/0"}, nil
}

// MosquittoContainer is a running MQTT broker.
type MosquittoContainer struct {
	testcontainers.Container
	BrokerURL string
}

// NewMosquittoContainer starts Mosquitto with anonymous access on 1883.
func NewMosquittoContainer(ctx context.Context) (*MosquittoContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        DefaultMosquittoImage,
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp").WithStartupTimeout(time.Minute),
	}
	container, addr, err := startContainer(ctx, req, "1883")
	if err != nil {
		return nil, err
	}
	return &MosquittoContainer{Container: container, BrokerURL: "tcp://" + addr}, nil
}
