// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/riskgrid/internal/config"
	"github.com/tomtom215/riskgrid/internal/logging"
)

// Transport bundles the publisher and subscriber of one backend.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Backend    string

	shared   bool // Publisher and Subscriber are the same value
	embedded *EmbeddedServer
}

// Close releases both ends and stops the embedded server if one runs.
func (t *Transport) Close() error {
	var errs []error
	if err := t.Publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if !t.shared {
		if err := t.Subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	if t.embedded != nil {
		t.embedded.Shutdown()
	}
	return errors.Join(errs...)
}

// NewMemoryTransport returns an in-process Go channel pub/sub. Messages
// published while no worker is subscribed are dropped, so the worker must
// be running before jobs are submitted.
func NewMemoryTransport(logger watermill.LoggerAdapter) *Transport {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
	return &Transport{Publisher: ch, Subscriber: ch, Backend: config.TransportMemory, shared: true}
}

// NewTransport builds the transport named by jobs.transport.
func NewTransport(ctx context.Context, jobsCfg *config.JobsConfig, natsCfg *config.NATSConfig) (*Transport, error) {
	logger := logging.NewWatermillAdapter()
	switch jobsCfg.Transport {
	case "", config.TransportMemory:
		return NewMemoryTransport(logger), nil
	case config.TransportNATS:
		return newNATSTransport(ctx, jobsCfg, natsCfg, logger)
	default:
		return nil, fmt.Errorf("unknown job transport %q", jobsCfg.Transport)
	}
}

func newNATSTransport(ctx context.Context, jobsCfg *config.JobsConfig, natsCfg *config.NATSConfig, logger watermill.LoggerAdapter) (*Transport, error) {
	url := natsCfg.URL
	var embedded *EmbeddedServer
	if natsCfg.EmbeddedServer {
		srv, err := StartEmbeddedServer(natsCfg)
		if err != nil {
			return nil, err
		}
		embedded = srv
		url = srv.ClientURL()
	}
	fail := func(err error) (*Transport, error) {
		if embedded != nil {
			embedded.Shutdown()
		}
		return nil, err
	}

	if err := EnsureStream(ctx, url, natsCfg.StreamName, []string{jobsCfg.Topic, jobsCfg.PoisonTopic}); err != nil {
		return fail(err)
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(natsCfg.MaxReconnects),
		natsgo.ReconnectWait(natsCfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("create nats publisher: %w", err))
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: natsCfg.QueueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     jobsCfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			AckAsync:      false,
			DurablePrefix: natsCfg.DurableName,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.BindStream(natsCfg.StreamName),
				natsgo.MaxDeliver(5),
				natsgo.AckWait(30 * time.Second),
				natsgo.DeliverNew(),
			},
		},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return fail(fmt.Errorf("create nats subscriber: %w", err))
	}

	return &Transport{Publisher: pub, Subscriber: sub, Backend: config.TransportNATS, embedded: embedded}, nil
}

// EnsureStream creates or updates the JetStream stream carrying job topics.
func EnsureStream(ctx context.Context, url, name string, subjects []string) error {
	nc, err := natsgo.Connect(url, natsgo.Timeout(10*time.Second))
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create jetstream context: %w", err)
	}

	streamCfg := jetstream.StreamConfig{
		Name:       name,
		Subjects:   subjects,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Storage:    jetstream.FileStorage,
		Duplicates: 2 * time.Minute,
		Discard:    jetstream.DiscardOld,
	}

	_, err = js.Stream(ctx, name)
	switch {
	case err == nil:
		if _, err := js.UpdateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("update stream %s: %w", name, err)
		}
	case errors.Is(err, jetstream.ErrStreamNotFound):
		if _, err := js.CreateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("create stream %s: %w", name, err)
		}
	default:
		return fmt.Errorf("check stream %s: %w", name, err)
	}
	return nil
}

// EmbeddedServer is an in-process NATS server with JetStream enabled.
type EmbeddedServer struct {
	server *server.Server
}

// StartEmbeddedServer starts NATS and waits until it accepts clients.
func StartEmbeddedServer(cfg *config.NATSConfig) (*EmbeddedServer, error) {
	opts := &server.Options{
		ServerName:         "riskgrid",
		Host:               cfg.Host,
		Port:               cfg.Port,
		JetStream:          true,
		StoreDir:           cfg.StoreDir,
		JetStreamMaxMemory: cfg.MaxMemory,
		JetStreamMaxStore:  cfg.MaxStore,
		NoSigs:             true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("nats server not ready within timeout")
	}
	logging.Info().Str("url", ns.ClientURL()).Msg("Embedded NATS server started")
	return &EmbeddedServer{server: ns}, nil
}

// ClientURL is the URL clients connect to.
func (s *EmbeddedServer) ClientURL() string { return s.server.ClientURL() }

// Shutdown stops the server and waits for it to exit.
func (s *EmbeddedServer) Shutdown() {
	s.server.Shutdown()
	s.server.WaitForShutdown()
}
