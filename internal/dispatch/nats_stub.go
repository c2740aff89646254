// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

//go:build !nats

package dispatch

import (
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill"
)

// NATSConfig configures the shared-queue transport. In builds without the
// nats tag it exists so config plumbing compiles unchanged.
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
func DefaultNATSConfig() NATSConfig { return NATSConfig{} }

// NewNATSTransport is unavailable without the nats build tag.
func NewNATSTransport(_ NATSConfig, _ watermill.LoggerAdapter) (*Transport, error) {
	return nil, errors.New("dispatch: built without nats support (use -tags nats)")
}
