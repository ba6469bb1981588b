// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package websocket

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/tomtom215/riskgrid/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

// startHub runs a hub until the test ends.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func fakeClient(hub *Hub, buf int) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, buf)}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := startHub(t)
	c := fakeClient(hub, 1)

	hub.Register <- c
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.Unregister <- c
	waitFor(t, func() bool { return hub.ClientCount() == 0 })

	if _, ok := <-c.send; ok {
		t.Error("Expected send channel to be closed on unregister")
	}

	// Unregistering twice must not panic on a closed channel.
	hub.Unregister <- c
}

func TestHub_BroadcastJSON(t *testing.T) {
	hub := startHub(t)
	a := fakeClient(hub, 4)
	b := fakeClient(hub, 4)
	hub.Register <- a
	hub.Register <- b
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	hub.BroadcastJSON(MessageTypeJobStatus, map[string]string{"job_id": "j1", "status": "running"})

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			if msg.Type != MessageTypeJobStatus {
				t.Errorf("Expected %s, got %s", MessageTypeJobStatus, msg.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestHub_DropsSlowClients(t *testing.T) {
	hub := startHub(t)
	slow := fakeClient(hub, 0)
	hub.Register <- slow
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.BroadcastJSON(MessageTypeViewRefreshed, nil)
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHub_ServeClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- hub.Serve(ctx) }()

	c := fakeClient(hub, 1)
	hub.Register <- c

	select {
	case err := <-errCh:
		if err != context.DeadlineExceeded {
			t.Errorf("Expected deadline error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("Expected clients closed, got %d", hub.ClientCount())
	}
}

func TestGetShutdownReason(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if got := getShutdownReason(canceled); got != ShutdownReasonContextCanceled {
		t.Errorf("got %s", got)
	}

	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	if got := getShutdownReason(expired); got != ShutdownReasonContextDeadline {
		t.Errorf("got %s", got)
	}
}

func TestHub_BroadcastBufferFull(t *testing.T) {
	hub := NewHub() // not running, so the buffer fills
	for i := 0; i < cap(hub.broadcast)+10; i++ {
		hub.BroadcastJSON(MessageTypeJobStatus, i)
	}
	if len(hub.broadcast) != cap(hub.broadcast) {
		t.Errorf("Expected full buffer, got %d", len(hub.broadcast))
	}
}
