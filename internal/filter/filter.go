// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

// Package filter implements the layered moderation pipeline. Stages are
// ordered by priority (low first) so that cheap, decisive checks run before
// expensive store lookups. A stage failure is never fatal to the post: the
// pipeline fails open per stage and logs the fault, so a store outage slows
// moderation down instead of silently rejecting everything.
package filter

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/okrugmedia/svodka/internal/logging"
	"github.com/okrugmedia/svodka/internal/metrics"
	"github.com/okrugmedia/svodka/internal/models"
)

// Kind classifies a stage by its dependencies.
type Kind string

const (
	KindPure   Kind = "pure"   // no I/O
	KindStore  Kind = "store"  // hits the store on every check
	KindCached Kind = "cached" // store-backed through the TTL cache
)

// Result is a single stage's verdict on a post.
type Result struct {
	Passed     bool
	Reason     string
	ScoreDelta int
	// Spam marks a rejection as spam rather than ordinary moderation, so
	// the post lands in the spam status instead of rejected.
	Spam bool
}

func pass() Result                { return Result{Passed: true} }
func passDelta(d int) Result      { return Result{Passed: true, ScoreDelta: d} }
func reject(reason string) Result { return Result{Reason: reason} }
func spam(reason string) Result   { return Result{Reason: reason, Spam: true} }

// Env carries the per-scan context stages evaluate against.
type Env struct {
	Region    *models.Region
	Community *models.Community
	// Neighbor is set when the community belongs to a neighboring region's
	// feed rather than the digest region itself.
	Neighbor bool
	// Allowed and Blocked constrain digest categories for the target
	// digest. An empty Allowed set admits every category.
	Allowed map[models.DigestCategory]bool
	Blocked map[models.DigestCategory]bool
	Now     time.Time
}

// Stage is one check in the pipeline.
type Stage interface {
	Name() string
	Priority() int
	Kind() Kind
	Check(ctx context.Context, post *models.Post, env *Env) (Result, error)
}

// Verdict is the pipeline's final decision for a post.
type Verdict struct {
	Accepted bool
	// Stage and Reason identify the rejecting stage when Accepted is false.
	Stage  string
	Reason string
	Spam   bool
}

// StageStats are per-stage counters, reset on operator command.
type StageStats struct {
	Checked  uint64
	Passed   uint64
	Rejected uint64
	Errors   uint64
}

type stageEntry struct {
	stage Stage

	checked  atomic.Uint64
	passed   atomic.Uint64
	rejected atomic.Uint64
	errors   atomic.Uint64
}

// Pipeline runs stages in priority order and records per-stage statistics.
type Pipeline struct {
	stages []*stageEntry
	logger zerolog.Logger
}

// NewPipeline sorts the stages by priority; equal priorities keep their
// given order, so construction order is the tiebreak.
func NewPipeline(stages ...Stage) *Pipeline {
	entries := make([]*stageEntry, len(stages))
	for i, s := range stages {
		entries[i] = &stageEntry{stage: s}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].stage.Priority() < entries[j].stage.Priority()
	})
	return &Pipeline{
		stages: entries,
		logger: logging.Component("filter"),
	}
}

// Run applies every stage to the post in order. The first rejection wins;
// score deltas from passing stages accumulate on the post, clamped to
// [0, 100]. A stage error counts as a pass with no delta.
func (p *Pipeline) Run(ctx context.Context, post *models.Post, env *Env) Verdict {
	for _, e := range p.stages {
		e.checked.Add(1)

		res, err := e.stage.Check(ctx, post, env)
		if err != nil {
			e.errors.Add(1)
			metrics.FilterStageResults.WithLabelValues(e.stage.Name(), "error").Inc()
			p.logger.Warn().Err(err).
				Str("stage", e.stage.Name()).
				Str("lip", post.FingerprintLIP).
				Msg("stage error, failing open")
			continue
		}

		if !res.Passed {
			e.rejected.Add(1)
			metrics.FilterStageResults.WithLabelValues(e.stage.Name(), "rejected").Inc()
			metrics.PostsFiltered.WithLabelValues("rejected").Inc()
			post.RejectReason = res.Reason
			return Verdict{
				Stage:  e.stage.Name(),
				Reason: res.Reason,
				Spam:   res.Spam,
			}
		}

		e.passed.Add(1)
		metrics.FilterStageResults.WithLabelValues(e.stage.Name(), "passed").Inc()
		if res.ScoreDelta != 0 {
			post.AdjustScore(res.ScoreDelta)
		}
	}

	metrics.PostsFiltered.WithLabelValues("accepted").Inc()
	return Verdict{Accepted: true}
}

// Stats returns a snapshot of per-stage counters keyed by stage name.
func (p *Pipeline) Stats() map[string]StageStats {
	out := make(map[string]StageStats, len(p.stages))
	for _, e := range p.stages {
		out[e.stage.Name()] = StageStats{
			Checked:  e.checked.Load(),
			Passed:   e.passed.Load(),
			Rejected: e.rejected.Load(),
			Errors:   e.errors.Load(),
		}
	}
	return out
}

// ResetStats zeroes all per-stage counters.
func (p *Pipeline) ResetStats() {
	for _, e := range p.stages {
		e.checked.Store(0)
		e.passed.Store(0)
		e.rejected.Store(0)
		e.errors.Store(0)
	}
}

// StageNames returns the stages in execution order.
func (p *Pipeline) StageNames() []string {
	out := make([]string, len(p.stages))
	for i, e := range p.stages {
		out[i] = e.stage.Name()
	}
	return out
}
