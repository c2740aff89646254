// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package dispatch

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Transport is the queue pair the dispatcher runs on. In-process gochannel
// is the default; a NATS-backed transport is available behind the nats
// build tag for multi-instance deployments.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// NewChannelTransport creates an in-process transport. Published messages
// block until a subscriber picks them up, which gives natural backpressure
// from the worker pool to the dispatch loop.
func NewChannelTransport(logger watermill.LoggerAdapter) *Transport {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 16,
	}, logger)
	return &Transport{Publisher: ch, Subscriber: ch}
}

// Close shuts down both halves. Gochannel shares one value; closing the
// publisher is sufficient but closing both is harmless.
func (t *Transport) Close() error {
	err := t.Publisher.Close()
	if err2 := t.Subscriber.Close(); err == nil {
		err = err2
	}
	return err
}
