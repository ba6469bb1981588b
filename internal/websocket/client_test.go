// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, server *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return websocket.DefaultDialer.Dial(wsURL, header)
}

func TestHandler_DeliversBroadcasts(t *testing.T) {
	hub := startHub(t)
	server := httptest.NewServer(Handler(hub, nil))
	defer server.Close()

	conn, resp, err := dial(t, server, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.ClientCount() == 1 })
	hub.BroadcastJSON(MessageTypeJobStatus, map[string]string{"status": "completed"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != MessageTypeJobStatus {
		t.Errorf("Expected job_status, got %s", msg.Type)
	}
	data, ok := msg.Data.(map[string]interface{})
	if !ok || data["status"] != "completed" {
		t.Errorf("Unexpected payload %#v", msg.Data)
	}
}

func TestHandler_PingPong(t *testing.T) {
	hub := startHub(t)
	server := httptest.NewServer(Handler(hub, []string{"*"}))
	defer server.Close()

	conn, resp, err := dial(t, server, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != MessageTypePong {
		t.Errorf("Expected pong, got %s", msg.Type)
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	hub := startHub(t)
	server := httptest.NewServer(Handler(hub, []string{"https://maps.example.com"}))
	defer server.Close()

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	conn, resp, err := dial(t, server, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err == nil {
		conn.Close()
		t.Fatal("Expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %+v", resp)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://a.example"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if !check(req) {
		t.Error("Requests without Origin must pass")
	}
	req.Header.Set("Origin", "https://a.example")
	if !check(req) {
		t.Error("Allowed origin rejected")
	}
	req.Header.Set("Origin", "https://b.example")
	if check(req) {
		t.Error("Foreign origin accepted")
	}
}
