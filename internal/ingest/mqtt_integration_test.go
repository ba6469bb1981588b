// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

//go:build integration

package ingest

import (
	"context"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tomtom215/riskgrid/internal/config"
	"github.com/tomtom215/riskgrid/internal/testinfra"
)

func TestMQTTSubscriber_Mosquitto(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	ctx := context.Background()

	broker, err := testinfra.NewMosquittoContainer(ctx)
	if err != nil {
		t.Fatalf("start mosquitto: %v", err)
	}
	testinfra.CleanupContainer(t, ctx, broker)

	cfg := &config.MQTTConfig{
		BrokerURL:     broker.BrokerURL,
		ClientID:      "riskgrid-test-ingest",
		Topic:         "riskgrid/events",
		QoS:           1,
		BatchSize:     10,
		FlushInterval: 50 * time.Millisecond,
	}
	w := newFakeWriter()
	sub := NewMQTTSubscriber(cfg, w)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = sub.Serve(runCtx) }()

	pub := mqtt.NewClient(mqtt.NewClientOptions().AddBroker(broker.BrokerURL).SetClientID("riskgrid-test-pub"))
	token := pub.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		t.Fatal("publisher connect timed out")
	}
	if err := token.Error(); err != nil {
		t.Fatalf("publisher connect: %v", err)
	}
	defer pub.Disconnect(100)

	payload := []byte(`{"event_type":"theft","event_timestamp":"2024-05-01T10:00:00Z","longitude":2.35,"latitude":48.85}`)
	// Publish until the subscriber has connected and the event lands.
	eventually(t, 20*time.Second, 200*time.Millisecond, func() bool {
		pub.Publish(cfg.Topic, 1, false, payload).WaitTimeout(time.Second)
		return w.total() > 0
	})
}
