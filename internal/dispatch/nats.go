// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

//go:build nats

package dispatch

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	natsgo "github.com/nats-io/nats.go"
)

// NATSConfig configures the shared-queue transport.
type NATSConfig struct {
	URL              string
	QueueGroup       string
	DurableName      string
	SubscribersCount int
	MaxReconnects    int
	ReconnectWait    time.Duration
	AckWait          time.Duration
	CloseTimeout     time.Duration
}

// DefaultNATSConfig returns production defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:              natsgo.DefaultURL,
		QueueGroup:       "svodka-workers",
		DurableName:      "svodka",
		SubscribersCount: 2,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		AckWait:          5 * time.Minute,
		CloseTimeout:     30 * time.Second,
	}
}

// NewNATSTransport creates a JetStream-backed transport so scan jobs
// survive restarts and are distributed across instances via the queue
// group. Message IDs deduplicate re-published jobs broker-side.
func NewNATSTransport(cfg NATSConfig, logger watermill.LoggerAdapter) (*Transport, error) {
	def := DefaultNATSConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = def.QueueGroup
	}
	if cfg.DurableName == "" {
		cfg.DurableName = def.DurableName
	}
	if cfg.SubscribersCount <= 0 {
		cfg.SubscribersCount = def.SubscribersCount
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = def.AckWait
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = def.CloseTimeout
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("nats disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("nats reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("nats publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWait,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			DurablePrefix: cfg.DurableName,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.AckWait(cfg.AckWait),
				natsgo.DeliverNew(),
			},
		},
	}, logger)
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("nats subscriber: %w", err)
	}

	return &Transport{Publisher: pub, Subscriber: sub}, nil
}
