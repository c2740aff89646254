// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

// Package dispatch binds carousel decisions to queued task executions. A
// single dispatch loop paces the recurring task kinds with per-kind rate
// limits and publishes jobs; a worker router consumes them at-least-once.
// Duplicate dispatches of the same (kind, region, minute) are dropped
// before they reach the queue.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/okrugmedia/svodka/internal/cache"
	"github.com/okrugmedia/svodka/internal/carousel"
	"github.com/okrugmedia/svodka/internal/logging"
	"github.com/okrugmedia/svodka/internal/metrics"
	"github.com/okrugmedia/svodka/internal/models"
	"github.com/okrugmedia/svodka/internal/scan"
	"github.com/okrugmedia/svodka/internal/store"
)

// Config carries dispatcher tunables. Intervals are the minimum spacing
// between dispatches of each task kind.
type Config struct {
	ScanInterval     time.Duration
	ValidateInterval time.Duration
	OptimizeInterval time.Duration
	StatusInterval   time.Duration
	TickInterval     time.Duration
	Workers          int
}

// DefaultConfig returns the production pacing: scans at most once a
// minute, token validation hourly, frequency tuning daily, status four
// times an hour.
func DefaultConfig() Config {
	return Config{
		ScanInterval:     time.Minute,
		ValidateInterval: time.Hour,
		OptimizeInterval: 24 * time.Hour,
		StatusInterval:   15 * time.Minute,
		TickInterval:     5 * time.Second,
		Workers:          2,
	}
}

// Dispatcher owns the dispatch loop and the worker router.
type Dispatcher struct {
	cfg       Config
	store     store.Store
	scheduler *carousel.Scheduler
	runner    *scan.Runner
	transport *Transport

	limiters map[TaskKind]*rate.Limiter
	// seen deduplicates idempotency keys for twice the scan interval.
	seen   *cache.Cache
	logger zerolog.Logger
}

// New wires a dispatcher over the given transport.
func New(cfg Config, st store.Store, scheduler *carousel.Scheduler, runner *scan.Runner, transport *Transport) *Dispatcher {
	def := DefaultConfig()
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = def.ScanInterval
	}
	if cfg.ValidateInterval <= 0 {
		cfg.ValidateInterval = def.ValidateInterval
	}
	if cfg.OptimizeInterval <= 0 {
		cfg.OptimizeInterval = def.OptimizeInterval
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}

	limiter := func(interval time.Duration) *rate.Limiter {
		// Burst 1: the limit is a minimum spacing, not an average.
		return rate.NewLimiter(rate.Every(interval), 1)
	}

	return &Dispatcher{
		cfg:       cfg,
		store:     st,
		scheduler: scheduler,
		runner:    runner,
		transport: transport,
		limiters: map[TaskKind]*rate.Limiter{
			KindScan:     limiter(cfg.ScanInterval),
			KindValidate: limiter(cfg.ValidateInterval),
			KindOptimize: limiter(cfg.OptimizeInterval),
			KindStatus:   limiter(cfg.StatusInterval),
		},
		seen:   cache.New(2 * cfg.ScanInterval),
		logger: logging.Component("dispatch"),
	}
}

// CancelTask flags a running scan for cancellation at its next request
// boundary.
func (d *Dispatcher) CancelTask(taskID string) {
	d.runner.Cancel(taskID)
}

// Serve runs the dispatch loop until the context is cancelled. It
// implements suture.Service.
func (d *Dispatcher) Serve(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.tick(ctx, time.Now())
		}
	}
}

func (d *Dispatcher) String() string { return "dispatcher" }

// tick runs one pass over the task kinds, dispatching whichever are due.
func (d *Dispatcher) tick(ctx context.Context, now time.Time) {
	if d.limiters[KindScan].Allow() {
		if err := d.dispatchScan(ctx, now); err != nil {
			d.logger.Error().Err(err).Msg("scan dispatch failed")
		}
	}
	for _, kind := range []TaskKind{KindValidate, KindOptimize, KindStatus} {
		if d.limiters[kind].Allow() {
			d.publish(ctx, &Job{Kind: kind, ScheduledAt: now})
		}
	}
}

// dispatchScan asks the carousel for work and enqueues it. The task record
// is created before publishing so a worker always finds it.
func (d *Dispatcher) dispatchScan(ctx context.Context, now time.Time) error {
	decision, err := d.scheduler.Next(ctx, now)
	if err != nil {
		return err
	}
	if decision == nil {
		return nil
	}

	task := decision.Task(now)
	job := &Job{
		Kind:         KindScan,
		TaskID:       task.ID,
		RegionID:     decision.Region.ID,
		RegionCode:   decision.Region.Code,
		CredentialID: decision.Credential.ID,
		ScheduledAt:  now,
	}

	if _, dup := d.seen.Get(job.IdempotencyKey()); dup {
		d.scheduler.Release(decision.Region.ID, decision.Credential.ID, now)
		metrics.TasksTotal.WithLabelValues(string(KindScan), "skipped").Inc()
		return nil
	}

	if err := d.store.CreateTask(ctx, task); err != nil {
		d.scheduler.Release(decision.Region.ID, decision.Credential.ID, now)
		return fmt.Errorf("create task: %w", err)
	}
	d.seen.Set(job.IdempotencyKey(), true)
	d.publish(ctx, job)
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, job *Job) {
	msg, err := job.Message()
	if err != nil {
		d.logger.Error().Err(err).Str("kind", string(job.Kind)).Msg("job marshal failed")
		return
	}
	msg.SetContext(ctx)
	if err := d.transport.Publisher.Publish(job.Kind.Topic(), msg); err != nil {
		d.logger.Error().Err(err).Str("kind", string(job.Kind)).Msg("job publish failed")
	}
}

// Router builds the worker router consuming the task topics. The caller
// runs it (directly or under the supervisor).
func (d *Dispatcher) Router() (*message.Router, error) {
	wmLogger := NewWatermillLogger(d.logger)
	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      2,
			InitialInterval: time.Second,
			MaxInterval:     10 * time.Second,
			Logger:          wmLogger,
		}.Middleware,
	)

	router.AddNoPublisherHandler("scan-worker", KindScan.Topic(),
		d.transport.Subscriber, d.handleScan)
	router.AddNoPublisherHandler("validate-worker", KindValidate.Topic(),
		d.transport.Subscriber, d.handleValidate)
	router.AddNoPublisherHandler("optimize-worker", KindOptimize.Topic(),
		d.transport.Subscriber, d.handleOptimize)
	router.AddNoPublisherHandler("status-worker", KindStatus.Topic(),
		d.transport.Subscriber, d.handleStatus)
	return router, nil
}

func (d *Dispatcher) handleScan(msg *message.Message) error {
	job, err := decodeJob(msg)
	if err != nil {
		// A malformed payload never becomes valid; drop it.
		d.logger.Error().Err(err).Msg("dropping malformed scan job")
		return nil
	}
	ctx := msg.Context()
	start := time.Now()

	task, err := d.store.GetTask(ctx, job.TaskID)
	if err != nil {
		d.logger.Error().Err(err).Str("task", job.TaskID).Msg("scan job without task record")
		return nil
	}
	if task.State.Terminal() {
		// Redelivery of an already finished task.
		metrics.TasksTotal.WithLabelValues(string(KindScan), "skipped").Inc()
		return nil
	}

	defer d.scheduler.Release(job.RegionID, job.CredentialID, time.Now())

	if err := d.runner.Run(ctx, task); err != nil {
		metrics.ObserveTask(string(KindScan), "failed", time.Since(start))
		return err
	}
	outcome := "completed"
	if task.State == models.TaskFailed {
		outcome = "failed"
		if task.Error == "cancelled" {
			outcome = "cancelled"
		}
	}
	metrics.ObserveTask(string(KindScan), outcome, time.Since(start))
	return nil
}

func (d *Dispatcher) handleValidate(msg *message.Message) error {
	start := time.Now()
	err := d.runner.ValidateCredentials(msg.Context())
	if err != nil {
		metrics.ObserveTask(string(KindValidate), "failed", time.Since(start))
		return err
	}
	metrics.ObserveTask(string(KindValidate), "completed", time.Since(start))
	return nil
}

func (d *Dispatcher) handleOptimize(msg *message.Message) error {
	start := time.Now()
	err := d.scheduler.Tune(msg.Context(), time.Now())
	if err != nil {
		metrics.ObserveTask(string(KindOptimize), "failed", time.Since(start))
		return err
	}
	metrics.ObserveTask(string(KindOptimize), "completed", time.Since(start))
	return nil
}

func (d *Dispatcher) handleStatus(msg *message.Message) error {
	start := time.Now()
	ctx := msg.Context()

	regions, err := d.store.ListActiveRegions(ctx)
	if err != nil {
		metrics.ObserveTask(string(KindStatus), "failed", time.Since(start))
		return err
	}
	creds, err := d.store.ListCredentials(ctx)
	if err != nil {
		metrics.ObserveTask(string(KindStatus), "failed", time.Since(start))
		return err
	}
	valid := 0
	for i := range creds {
		if creds[i].Eligible() {
			valid++
		}
	}

	d.logger.Info().
		Int("regions", len(regions)).
		Int("credentials_valid", valid).
		Int("credentials_total", len(creds)).
		Int("scans_running", d.scheduler.Running()).
		Dur("scan_interval", d.scheduler.MinInterval()).
		Msg("status")
	metrics.ObserveTask(string(KindStatus), "completed", time.Since(start))
	return nil
}
