// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServiceFunc adapts a plain run function to suture.Service.
type ServiceFunc struct {
	Name string
	Run  func(ctx context.Context) error
}

func (s ServiceFunc) Serve(ctx context.Context) error { return s.Run(ctx) }
func (s ServiceFunc) String() string                  { return s.Name }

// RouterService runs a watermill router under the supervisor.
type RouterService struct {
	Router *message.Router
}

func (s RouterService) Serve(ctx context.Context) error {
	return s.Router.Run(ctx)
}

func (s RouterService) String() string { return "queue-router" }

// MetricsService serves the prometheus endpoint.
type MetricsService struct {
	Addr string
}

func (s MetricsService) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s MetricsService) String() string { return "metrics-listener" }
