// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package ingest

import (
	"bytes"
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"

	"github.com/tomtom215/riskgrid/internal/config"
	"github.com/tomtom215/riskgrid/internal/logging"
	"github.com/tomtom215/riskgrid/internal/metrics"
	"github.com/tomtom215/riskgrid/internal/models"
)

const (
	disconnectQuiesceMS = 250
	maxFlushAttempts    = 3
)

// MQTTSubscriber consumes JSON events from a topic and writes them in
// batches. A payload is either one event object or an array of them.
// It is a suture.Service.
type MQTTSubscriber struct {
	cfg      *config.MQTTConfig
	writer   Writer
	incoming chan models.Event
}

// NewMQTTSubscriber creates a subscriber; Serve connects.
func NewMQTTSubscriber(cfg *config.MQTTConfig, writer Writer) *MQTTSubscriber {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	return &MQTTSubscriber{
		cfg:      cfg,
		writer:   writer,
		incoming: make(chan models.Event, batch*4),
	}
}

func (s *MQTTSubscriber) String() string { return "mqtt-ingest" }

// Serve connects, subscribes and flushes batches until ctx is canceled.
// Buffered events are flushed before returning.
func (s *MQTTSubscriber) Serve(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOrderMatters(false)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	// Subscribing in the connect handler restores the subscription after
	// every reconnect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ mqtt.Client, m mqtt.Message) {
			s.handlePayload(ctx, m.Payload())
		})
		token.Wait()
		if err := token.Error(); err != nil {
			logging.Error().Err(err).Str("topic", s.cfg.Topic).Msg("MQTT subscribe failed")
			return
		}
		logging.Info().Str("topic", s.cfg.Topic).Msg("MQTT subscribed")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect %s: %w", s.cfg.BrokerURL, err)
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return ctx.Err()
	}
	defer client.Disconnect(disconnectQuiesceMS)

	logging.Info().Str("broker", s.cfg.BrokerURL).Msg("MQTT ingest started")
	return s.batchLoop(ctx)
}

// handlePayload decodes and validates one message and queues the events.
// Invalid messages are counted and dropped.
func (s *MQTTSubscriber) handlePayload(ctx context.Context, payload []byte) {
	events, err := decodePayload(payload)
	if err != nil {
		metrics.RecordEvents(SourceMQTT, 0, 1)
		logging.Warn().Err(err).Msg("Dropping undecodable MQTT payload")
		return
	}
	for i := range events {
		if verr := ValidateEvent(&events[i]); verr != nil {
			metrics.RecordEvents(SourceMQTT, 0, 1)
			logging.Warn().Err(verr).Msg("Dropping invalid MQTT event")
			continue
		}
		select {
		case s.incoming <- events[i]:
		case <-ctx.Done():
			return
		}
	}
}

func decodePayload(payload []byte) ([]models.Event, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if trimmed[0] == '[' {
		var events []models.Event
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, err
		}
		return events, nil
	}
	var ev models.Event
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return nil, err
	}
	return []models.Event{ev}, nil
}

// batchLoop flushes when a batch fills or the flush interval elapses.
func (s *MQTTSubscriber) batchLoop(ctx context.Context) error {
	interval := s.cfg.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	size := s.cfg.BatchSize
	if size <= 0 {
		size = 500
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]models.Event, 0, size)
	attempts := 0
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if _, err := Insert(ctx, s.writer, SourceMQTT, batch, size); err != nil {
			attempts++
			if attempts < maxFlushAttempts {
				logging.Warn().Err(err).Int("events", len(batch)).Msg("MQTT batch flush failed; will retry")
				return
			}
			logging.Error().Err(err).Int("events", len(batch)).Msg("Dropping MQTT batch after repeated failures")
		}
		attempts = 0
		batch = batch[:0]
	}

	for {
		select {
		case ev := <-s.incoming:
			batch = append(batch, ev)
			if len(batch) >= size {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			s.drain(&batch)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			attempts = maxFlushAttempts - 1
			flush(shutdownCtx)
			cancel()
			return ctx.Err()
		}
	}
}

// drain moves events still queued in the channel into batch.
func (s *MQTTSubscriber) drain(batch *[]models.Event) {
	for {
		select {
		case ev := <-s.incoming:
			*batch = append(*batch, ev)
		default:
			return
		}
	}
}
