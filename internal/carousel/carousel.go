// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

// Package carousel decides which region to scan next. One logical
// scheduler paces all regions: the region idle longest goes first, paired
// with the least recently used valid credential. A daily self-tuning pass
// widens or narrows the per-region interval based on observed yield.
package carousel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/okrugmedia/svodka/internal/logging"
	"github.com/okrugmedia/svodka/internal/models"
)

// Store is the repository subset the scheduler reads.
type Store interface {
	ListActiveRegions(ctx context.Context) ([]models.Region, error)
	ListCredentials(ctx context.Context) ([]models.Credential, error)
	ListTasksSince(ctx context.Context, since time.Time) ([]models.CarouselTask, error)
}

// Config carries scheduler tunables.
type Config struct {
	// MinInterval is the starting pace between scans of one region.
	MinInterval time.Duration
	// MinIntervalFloor and MinIntervalCeil bound the self-tuning range.
	MinIntervalFloor time.Duration
	MinIntervalCeil  time.Duration
	// MaxConcurrentScans caps simultaneous claims.
	MaxConcurrentScans int
}

// DefaultConfig returns the production defaults: hourly pace, tuning
// bounded to [15m, 240m], two concurrent scans.
func DefaultConfig() Config {
	return Config{
		MinInterval:        60 * time.Minute,
		MinIntervalFloor:   15 * time.Minute,
		MinIntervalCeil:    240 * time.Minute,
		MaxConcurrentScans: 2,
	}
}

// Decision pairs a region with a credential for one scan.
type Decision struct {
	Region     models.Region
	Credential models.Credential
}

// Task materializes the decision as a queued carousel task.
func (d *Decision) Task(now time.Time) *models.CarouselTask {
	return &models.CarouselTask{
		ID:           uuid.NewString(),
		RegionID:     d.Region.ID,
		RegionCode:   d.Region.Code,
		CredentialID: d.Credential.ID,
		State:        models.TaskQueued,
		QueuedAt:     now,
	}
}

// Scheduler holds the pacing state. All state is in-process; on restart
// every region looks idle and the fairness rule re-establishes order
// within one carousel revolution.
type Scheduler struct {
	store Store

	mu          sync.Mutex
	minInterval time.Duration
	lastScan    map[int64]time.Time
	running     map[int64]bool
	credInUse   map[int64]bool

	floor, ceil   time.Duration
	maxConcurrent int
	logger        zerolog.Logger
}

// New creates a scheduler, normalizing config against the defaults.
func New(st Store, cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.MinIntervalFloor <= 0 {
		cfg.MinIntervalFloor = def.MinIntervalFloor
	}
	if cfg.MinIntervalCeil <= 0 {
		cfg.MinIntervalCeil = def.MinIntervalCeil
	}
	if cfg.MaxConcurrentScans <= 0 {
		cfg.MaxConcurrentScans = def.MaxConcurrentScans
	}
	return &Scheduler{
		store:         st,
		minInterval:   cfg.MinInterval,
		lastScan:      make(map[int64]time.Time),
		running:       make(map[int64]bool),
		credInUse:     make(map[int64]bool),
		floor:         cfg.MinIntervalFloor,
		ceil:          cfg.MinIntervalCeil,
		maxConcurrent: cfg.MaxConcurrentScans,
		logger:        logging.Component("carousel"),
	}
}

// Next returns the next (region, credential) pair to scan, claiming both,
// or nil when there is no work. The claim must be released with Release
// when the scan finishes.
func (s *Scheduler) Next(ctx context.Context, now time.Time) (*Decision, error) {
	regions, err := s.store.ListActiveRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("carousel: list regions: %w", err)
	}
	creds, err := s.store.ListCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("carousel: list credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.running) >= s.maxConcurrent {
		return nil, nil
	}

	// Candidates: not running, past the pace interval.
	var candidates []models.Region
	for _, r := range regions {
		if s.running[r.ID] {
			continue
		}
		if now.Sub(s.lastScan[r.ID]) >= s.minInterval {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Oldest last scan first; region code breaks ties deterministically.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := s.lastScan[candidates[i].ID], s.lastScan[candidates[j].ID]
		if !a.Equal(b) {
			return a.Before(b)
		}
		return candidates[i].Code < candidates[j].Code
	})

	cred, ok := s.pickCredential(creds)
	if !ok {
		return nil, nil
	}

	region := candidates[0]
	s.running[region.ID] = true
	s.credInUse[cred.ID] = true
	return &Decision{Region: region, Credential: cred}, nil
}

// pickCredential selects the eligible credential with the earliest
// last-used timestamp. Never-used credentials go first; names break ties.
// Caller holds the lock.
func (s *Scheduler) pickCredential(creds []models.Credential) (models.Credential, bool) {
	var best models.Credential
	found := false
	for _, c := range creds {
		if !c.Eligible() || s.credInUse[c.ID] {
			continue
		}
		if !found || credentialBefore(c, best) {
			best, found = c, true
		}
	}
	return best, found
}

func credentialBefore(a, b models.Credential) bool {
	switch {
	case a.LastUsed == nil && b.LastUsed != nil:
		return true
	case a.LastUsed != nil && b.LastUsed == nil:
		return false
	case a.LastUsed != nil && !a.LastUsed.Equal(*b.LastUsed):
		return a.LastUsed.Before(*b.LastUsed)
	}
	return a.Name < b.Name
}

// Release frees the claim taken by Next and stamps the region's last scan
// time so the pace interval restarts from the scan, successful or not.
func (s *Scheduler) Release(regionID, credentialID int64, finishedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, regionID)
	delete(s.credInUse, credentialID)
	if finishedAt.After(s.lastScan[regionID]) {
		s.lastScan[regionID] = finishedAt
	}
}

// MinInterval returns the current pace between scans of one region.
func (s *Scheduler) MinInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minInterval
}

// Running returns the number of claims currently held.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Tune adjusts the pace from the last 24 hours of completed scans: a
// median yield under 5 posts slows the carousel by 1.25x (capped), over
// 30 speeds it up by 1.25x (floored). Runs daily.
func (s *Scheduler) Tune(ctx context.Context, now time.Time) error {
	tasks, err := s.store.ListTasksSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("carousel: tune: %w", err)
	}
	var yields []int
	for _, t := range tasks {
		if t.State == models.TaskCompleted {
			yields = append(yields, t.PostsFound)
		}
	}
	if len(yields) == 0 {
		return nil
	}
	med := median(yields)

	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.minInterval
	switch {
	case med < 5:
		s.minInterval = time.Duration(float64(s.minInterval) * 1.25)
		if s.minInterval > s.ceil {
			s.minInterval = s.ceil
		}
	case med > 30:
		s.minInterval = time.Duration(float64(s.minInterval) / 1.25)
		if s.minInterval < s.floor {
			s.minInterval = s.floor
		}
	}
	if s.minInterval != old {
		s.logger.Info().
			Int("median_posts", med).
			Dur("old", old).
			Dur("new", s.minInterval).
			Msg("carousel pace adjusted")
	}
	return nil
}

func median(values []int) int {
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
