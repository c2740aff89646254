// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package mixer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/okrugmedia/svodka/internal/cache"
	"github.com/okrugmedia/svodka/internal/engagement"
	"github.com/okrugmedia/svodka/internal/logging"
	"github.com/okrugmedia/svodka/internal/metrics"
	"github.com/okrugmedia/svodka/internal/models"
)

// candidateWindow is how far back the builder looks for accepted posts.
const candidateWindow = 24 * time.Hour

// defaultTopic keys the template merge when no explicit topic is given.
const defaultTopic = "svodka"

// BuilderStore is the repository subset the digest builder needs.
type BuilderStore interface {
	ListActiveRegions(ctx context.Context) ([]models.Region, error)
	ListAcceptedPosts(ctx context.Context, regionID int64, since time.Time) ([]models.Post, error)
	CreateDigest(ctx context.Context, d *models.Digest) error
	ScheduleDigest(ctx context.Context, id string, at time.Time) error
}

// Builder assembles and schedules digests: candidates from the last day,
// mixed for the slot, scheduled at the region's optimal hour within it.
type Builder struct {
	store  BuilderStore
	mixer  *Mixer
	scorer *engagement.Scorer
	logger zerolog.Logger
}

// NewBuilder wires a digest builder.
func NewBuilder(st BuilderStore, m *Mixer, scorer *engagement.Scorer) *Builder {
	return &Builder{
		store:  st,
		mixer:  m,
		scorer: scorer,
		logger: logging.Component("digest"),
	}
}

// BuildForRegion assembles one digest for the region and slot and
// schedules it. Returns nil with no error when there are no candidates.
func (b *Builder) BuildForRegion(ctx context.Context, region *models.Region, topic string, slot models.TimeSlot, now time.Time) (*models.Digest, error) {
	if topic == "" {
		topic = defaultTopic
	}
	candidates, err := b.store.ListAcceptedPosts(ctx, region.ID, now.Add(-candidateWindow))
	if err != nil {
		return nil, fmt.Errorf("digest candidates for %s: %w", region.Code, err)
	}
	selected, stats := b.mixer.Assemble(candidates, slot)
	if len(selected) == 0 {
		return nil, nil
	}

	postIDs := make([]int64, len(selected))
	for i := range selected {
		postIDs[i] = selected[i].ID
	}
	digest := &models.Digest{
		ID:       uuid.NewString(),
		RegionID: region.ID,
		Topic:    topic,
		PostIDs:  postIDs,
		Template: region.Config.DigestTemplate.EffectiveTemplate(topic),
		Stats:    stats,
	}
	if err := b.store.CreateDigest(ctx, digest); err != nil {
		return nil, fmt.Errorf("create digest for %s: %w", region.Code, err)
	}

	at, err := b.scheduleTime(ctx, region.ID, slot, now)
	if err != nil {
		b.logger.Warn().Err(err).
			Str("region", region.Code).
			Msg("digest left unscheduled")
		return digest, nil
	}
	if err := b.store.ScheduleDigest(ctx, digest.ID, at); err != nil {
		return nil, fmt.Errorf("schedule digest %s: %w", digest.ID, err)
	}
	digest.ScheduledAt = &at

	metrics.DigestsAssembled.WithLabelValues(region.Code).Inc()
	b.logger.Info().
		Str("region", region.Code).
		Str("slot", string(slot)).
		Int("posts", len(postIDs)).
		Time("at", at).
		Msg("digest scheduled")
	return digest, nil
}

// scheduleTime picks the optimal hour within the slot, today if still
// ahead, otherwise tomorrow.
func (b *Builder) scheduleTime(ctx context.Context, regionID int64, slot models.TimeSlot, now time.Time) (time.Time, error) {
	hour, minute, err := b.scorer.OptimalTime(ctx, regionID, slot, now)
	if err != nil {
		return time.Time{}, err
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

// BuilderService periodically assembles a digest per (region, slot, day).
// It implements suture.Service.
type BuilderService struct {
	builder  *Builder
	interval time.Duration
	// built deduplicates per (region, slot, day) across ticks.
	built *cache.Cache
}

// NewBuilderService creates the digest loop, defaulting to a 30 minute
// check interval.
func NewBuilderService(builder *Builder, interval time.Duration) *BuilderService {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &BuilderService{
		builder:  builder,
		interval: interval,
		built:    cache.New(24 * time.Hour),
	}
}

// Serve builds digests for the slot in progress on every tick until the
// context is cancelled.
func (s *BuilderService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.buildDue(ctx, time.Now())
		}
	}
}

func (s *BuilderService) String() string { return "digest-builder" }

func (s *BuilderService) buildDue(ctx context.Context, now time.Time) {
	slot, ok := models.SlotForHour(now.Hour())
	if !ok {
		return
	}
	regions, err := s.builder.store.ListActiveRegions(ctx)
	if err != nil {
		s.builder.logger.Error().Err(err).Msg("digest tick: list regions")
		return
	}
	for i := range regions {
		region := &regions[i]
		key := fmt.Sprintf("%s:%s:%s", region.Code, slot, now.Format("2006-01-02"))
		if _, done := s.built.Get(key); done {
			continue
		}
		if _, err := s.builder.BuildForRegion(ctx, region, defaultTopic, slot, now); err != nil {
			s.builder.logger.Error().Err(err).
				Str("region", region.Code).
				Msg("digest build failed")
			continue
		}
		s.built.Set(key, true)
	}
}
