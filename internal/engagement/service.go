// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package engagement

import (
	"context"
	"time"
)

// RollupService periodically persists every region's engagement matrix.
// It implements suture.Service.
type RollupService struct {
	scorer   *Scorer
	interval time.Duration
}

// NewRollupService creates the rollup loop, defaulting to hourly.
func NewRollupService(scorer *Scorer, interval time.Duration) *RollupService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RollupService{scorer: scorer, interval: interval}
}

// Serve runs one rollup immediately, then on every tick until the context
// is cancelled. Rollup failures are logged by the scorer and retried on
// the next tick rather than crashing the service.
func (s *RollupService) Serve(ctx context.Context) error {
	if err := s.scorer.RollupAll(ctx, time.Now()); err != nil {
		s.scorer.logger.Warn().Err(err).Msg("initial rollup incomplete")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.scorer.RollupAll(ctx, time.Now()); err != nil {
				s.scorer.logger.Warn().Err(err).Msg("rollup incomplete")
			}
		}
	}
}

func (s *RollupService) String() string { return "engagement-rollup" }
