// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

// Command server runs the Svodka engine: the carousel dispatcher, scan
// workers, digest builder, engagement rollup and the metrics listener,
// all under one supervisor tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/okrugmedia/svodka/internal/carousel"
	"github.com/okrugmedia/svodka/internal/config"
	"github.com/okrugmedia/svodka/internal/dispatch"
	"github.com/okrugmedia/svodka/internal/engagement"
	"github.com/okrugmedia/svodka/internal/filter"
	"github.com/okrugmedia/svodka/internal/logging"
	"github.com/okrugmedia/svodka/internal/mixer"
	"github.com/okrugmedia/svodka/internal/rategate"
	"github.com/okrugmedia/svodka/internal/scan"
	"github.com/okrugmedia/svodka/internal/store"
	"github.com/okrugmedia/svodka/internal/supervisor"
	"github.com/okrugmedia/svodka/internal/upstream"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logger := logging.Component("server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store.
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// Rate gate: shared redis budgets when configured, in-process
	// otherwise.
	var gateBackend rategate.Backend
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		gateBackend = rategate.NewRedisBackend(rdb)
	} else {
		logger.Warn().Msg("redis disabled, rate budgets are per-process")
		gateBackend = rategate.NewMemoryBackend()
	}
	gate := rategate.New(gateBackend, rategate.Limits{
		CredentialLimit:  cfg.RateGate.CredentialLimit,
		CredentialWindow: cfg.RateGate.CredentialWindow,
		ClientLimit:      cfg.RateGate.ClientLimit,
		ClientWindow:     cfg.RateGate.ClientWindow,
	}, logging.Logger())

	// Upstream client.
	client := upstream.New(upstream.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		APIVersion:     cfg.Upstream.APIVersion,
		RequestTimeout: cfg.Upstream.RequestTimeout,
		MaxRetries:     cfg.Upstream.MaxRetries,
		BackoffBase:    cfg.Upstream.BackoffBase,
		BackoffMax:     cfg.Upstream.BackoffMax,
	})

	// Filter pipeline.
	moderation := filter.NewModeration(st, cfg.Filter.CacheTTL)
	stages, err := filter.DefaultStages(filter.Options{
		MaxAgeHours:        cfg.Filter.MaxAgeHours,
		MinViews:           cfg.Filter.MinViews,
		MinTextLen:         cfg.Filter.MinTextLen,
		MaxTextLen:         cfg.Filter.MaxTextLen,
		MinRegionHits:      cfg.Filter.MinRegionHits,
		SpamPatterns:       cfg.Filter.SpamPatterns,
		MainNewsOnlyGroups: cfg.Filter.MainNewsOnlyGroups,
	}, st, moderation)
	if err != nil {
		return fmt.Errorf("build filter stages: %w", err)
	}
	pipeline := filter.NewPipeline(stages...)

	// Scan execution and scheduling.
	runner := scan.NewRunner(st, client, gate, pipeline)
	scheduler := carousel.New(st, carousel.Config{
		MinInterval:        cfg.Carousel.MinInterval,
		MinIntervalFloor:   cfg.Carousel.MinIntervalFloor,
		MinIntervalCeil:    cfg.Carousel.MinIntervalCeil,
		MaxConcurrentScans: cfg.Carousel.MaxConcurrentScans,
	})

	// Queue transport: NATS when enabled (requires the nats build tag),
	// in-process channels otherwise.
	transport, err := openTransport(cfg)
	if err != nil {
		return err
	}
	defer transport.Close()

	dispatcher := dispatch.New(dispatch.Config{
		ScanInterval:     cfg.Dispatch.ScanInterval,
		ValidateInterval: cfg.Dispatch.ValidateInterval,
		OptimizeInterval: cfg.Dispatch.OptimizeInterval,
		StatusInterval:   cfg.Dispatch.StatusInterval,
		TickInterval:     cfg.Carousel.TickInterval,
		Workers:          cfg.Dispatch.Workers,
	}, st, scheduler, runner, transport)
	router, err := dispatcher.Router()
	if err != nil {
		return fmt.Errorf("build worker router: %w", err)
	}

	// Output side: engagement rollups and digest assembly.
	scorer := engagement.New(st, engagement.Config{WindowDays: cfg.Engage.WindowDays})
	builder := mixer.NewBuilder(st, mixer.New(mixer.Config{
		DigestSize:       cfg.Mixer.DigestSize,
		NegativeShareCap: cfg.Mixer.NegativeShareCap,
	}), scorer)

	// Supervisor tree.
	tree := supervisor.NewTree(
		slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		supervisor.DefaultTreeConfig(),
	)
	tree.AddIngest(dispatcher)
	tree.AddIngest(supervisor.RouterService{Router: router})
	tree.AddOutput(engagement.NewRollupService(scorer, cfg.Engage.RollupInterval))
	tree.AddOutput(mixer.NewBuilderService(builder, 0))
	if cfg.MetricsAt != "" {
		tree.AddOps(supervisor.MetricsService{Addr: cfg.MetricsAt})
	}

	logger.Info().
		Str("store", cfg.Store.Driver).
		Bool("redis", cfg.Redis.Enabled).
		Bool("nats", cfg.NATS.Enabled).
		Msg("svodka starting")

	err = tree.Root().Serve(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("svodka stopped")
		return nil
	}
	return err
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.OpenPostgres(ctx, cfg.Store.DSN, store.Options{
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Store.MaxIdleConns,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return st, nil
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func openTransport(cfg *config.Config) (*dispatch.Transport, error) {
	wmLogger := dispatch.NewWatermillLogger(logging.Component("queue"))
	if !cfg.NATS.Enabled {
		return dispatch.NewChannelTransport(wmLogger), nil
	}
	transport, err := dispatch.NewNATSTransport(dispatch.NATSConfig{
		URL:              cfg.NATS.URL,
		QueueGroup:       cfg.NATS.QueueGroup,
		DurableName:      cfg.NATS.DurableName,
		SubscribersCount: cfg.Dispatch.Workers,
		MaxReconnects:    cfg.NATS.MaxReconnects,
		ReconnectWait:    cfg.NATS.ReconnectWait,
		AckWait:          cfg.NATS.AckWait,
		CloseTimeout:     cfg.NATS.CloseTimeout,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("open nats transport: %w", err)
	}
	return transport, nil
}
