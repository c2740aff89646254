// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

// Package engagement aggregates historical post engagement per (region,
// hour-of-day, weekday) and recommends publication slots. The matrix is
// regenerable from accepted posts at any time; a periodic rollup persists
// it as engagement samples so other instances read aggregates instead of
// re-scanning posts.
package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/okrugmedia/svodka/internal/logging"
	"github.com/okrugmedia/svodka/internal/models"
)

// coldStartMinPosts is the accepted-post count below which the scorer
// refuses to extrapolate and falls back to the default slot.
const coldStartMinPosts = 20

// defaultHour is the cold-start recommendation: mid-afternoon.
const defaultHour = 14

// Recommendation grades a publication moment against the region average.
type Recommendation string

const (
	StronglyRecommended Recommendation = "strongly recommended" // >= +25%
	Recommended         Recommendation = "recommended"          // >= +10%
	Acceptable          Recommendation = "acceptable"           // >= -10%
	NotRecommended      Recommendation = "not recommended"
)

// recommendFor grades a percentage deviation from the average.
func recommendFor(vsAveragePct float64) Recommendation {
	switch {
	case vsAveragePct >= 25:
		return StronglyRecommended
	case vsAveragePct >= 10:
		return Recommended
	case vsAveragePct >= -10:
		return Acceptable
	default:
		return NotRecommended
	}
}

// Matrix is the per-region engagement aggregate: average engagement and
// sample count per (hour, weekday) bucket.
type Matrix struct {
	Avg   [24][7]float64
	Count [24][7]int64
}

// Overall returns the unweighted mean over non-empty buckets.
func (m *Matrix) Overall() float64 {
	var sum float64
	var n int
	for h := 0; h < 24; h++ {
		for d := 0; d < 7; d++ {
			if m.Count[h][d] > 0 {
				sum += m.Avg[h][d]
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Forecast is the expected engagement for a specific moment.
type Forecast struct {
	Forecast       float64        `json:"forecast"`
	Average        float64        `json:"average"`
	VsAveragePct   float64        `json:"vs_average_pct"`
	Recommendation Recommendation `json:"recommendation"`
}

// CalendarEntry is one recommended publication moment.
type CalendarEntry struct {
	At       time.Time       `json:"at"`
	Slot     models.TimeSlot `json:"slot"`
	Forecast Forecast        `json:"forecast"`
}

// Store is the subset of the repository the scorer needs.
type Store interface {
	ListActiveRegions(ctx context.Context) ([]models.Region, error)
	ListAcceptedPosts(ctx context.Context, regionID int64, since time.Time) ([]models.Post, error)
	CountAcceptedPosts(ctx context.Context, regionID int64, since time.Time) (int, error)
	ReplaceEngagementSamples(ctx context.Context, regionID int64, samples []models.EngagementSample) error
	ListEngagementSamples(ctx context.Context, regionID int64) ([]models.EngagementSample, error)
}

// Config carries scorer tunables.
type Config struct {
	// WindowDays bounds the history considered, default 90, clamped to
	// [7, 365].
	WindowDays int
}

// Scorer computes and serves engagement recommendations.
type Scorer struct {
	store      Store
	windowDays int
	logger     zerolog.Logger
}

// New creates a scorer.
func New(st Store, cfg Config) *Scorer {
	days := cfg.WindowDays
	if days == 0 {
		days = 90
	}
	if days < 7 {
		days = 7
	}
	if days > 365 {
		days = 365
	}
	return &Scorer{
		store:      st,
		windowDays: days,
		logger:     logging.Component("engagement"),
	}
}

func (s *Scorer) windowStart(now time.Time) time.Time {
	return now.AddDate(0, 0, -s.windowDays)
}

// BuildMatrix recomputes the engagement matrix from accepted posts.
func (s *Scorer) BuildMatrix(ctx context.Context, regionID int64, now time.Time) (*Matrix, error) {
	posts, err := s.store.ListAcceptedPosts(ctx, regionID, s.windowStart(now))
	if err != nil {
		return nil, fmt.Errorf("engagement matrix: %w", err)
	}
	var sum [24][7]float64
	m := &Matrix{}
	for i := range posts {
		h := posts[i].PublishedAt.Hour()
		d := int(posts[i].PublishedAt.Weekday())
		sum[h][d] += float64(posts[i].Engagement())
		m.Count[h][d]++
	}
	for h := 0; h < 24; h++ {
		for d := 0; d < 7; d++ {
			if m.Count[h][d] > 0 {
				m.Avg[h][d] = sum[h][d] / float64(m.Count[h][d])
			}
		}
	}
	return m, nil
}

// Rollup recomputes the matrix for one region and persists it as samples.
func (s *Scorer) Rollup(ctx context.Context, regionID int64, now time.Time) error {
	m, err := s.BuildMatrix(ctx, regionID, now)
	if err != nil {
		return err
	}
	var samples []models.EngagementSample
	for h := 0; h < 24; h++ {
		for d := 0; d < 7; d++ {
			if m.Count[h][d] == 0 {
				continue
			}
			samples = append(samples, models.EngagementSample{
				RegionID:  regionID,
				Hour:      h,
				Weekday:   time.Weekday(d),
				Average:   m.Avg[h][d],
				PostCount: m.Count[h][d],
				UpdatedAt: now,
			})
		}
	}
	return s.store.ReplaceEngagementSamples(ctx, regionID, samples)
}

// RollupAll runs Rollup for every active region, continuing past per-region
// failures.
func (s *Scorer) RollupAll(ctx context.Context, now time.Time) error {
	regions, err := s.store.ListActiveRegions(ctx)
	if err != nil {
		return fmt.Errorf("engagement rollup: %w", err)
	}
	var firstErr error
	for _, r := range regions {
		if err := s.Rollup(ctx, r.ID, now); err != nil {
			s.logger.Error().Err(err).Str("region", r.Code).Msg("rollup failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// loadMatrix prefers persisted samples and falls back to recomputing from
// posts when the rollup has not run yet.
func (s *Scorer) loadMatrix(ctx context.Context, regionID int64, now time.Time) (*Matrix, error) {
	samples, err := s.store.ListEngagementSamples(ctx, regionID)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return s.BuildMatrix(ctx, regionID, now)
	}
	m := &Matrix{}
	for _, smp := range samples {
		if smp.Hour < 0 || smp.Hour > 23 || smp.Weekday < 0 || smp.Weekday > 6 {
			continue
		}
		m.Avg[smp.Hour][smp.Weekday] = smp.Average
		m.Count[smp.Hour][smp.Weekday] = smp.PostCount
	}
	return m, nil
}

// coldStart reports whether the region lacks enough accepted posts for a
// meaningful recommendation.
func (s *Scorer) coldStart(ctx context.Context, regionID int64, now time.Time) (bool, error) {
	n, err := s.store.CountAcceptedPosts(ctx, regionID, s.windowStart(now))
	if err != nil {
		return false, err
	}
	return n < coldStartMinPosts, nil
}

// OptimalTime returns the (hour, minute) with maximum expected engagement.
// Minute is always 0. A non-empty slot restricts the hour to its range.
// Cold-start regions get the default afternoon slot.
func (s *Scorer) OptimalTime(ctx context.Context, regionID int64, slot models.TimeSlot, now time.Time) (int, int, error) {
	cold, err := s.coldStart(ctx, regionID, now)
	if err != nil {
		return 0, 0, err
	}
	if cold {
		return defaultHour, 0, nil
	}
	m, err := s.loadMatrix(ctx, regionID, now)
	if err != nil {
		return 0, 0, err
	}

	fromHour, toHour := 0, 23
	if slot != "" {
		if f, t, ok := models.SlotHours(slot); ok {
			fromHour, toHour = f, t
		}
	}

	bestHour, bestVal, found := defaultHour, 0.0, false
	for h := fromHour; h <= toHour; h++ {
		for d := 0; d < 7; d++ {
			if m.Count[h][d] == 0 {
				continue
			}
			if !found || m.Avg[h][d] > bestVal {
				bestHour, bestVal, found = h, m.Avg[h][d], true
			}
		}
	}
	return bestHour, 0, nil
}

// ForecastAt returns the expected engagement for a specific moment,
// graded against the region's overall average.
func (s *Scorer) ForecastAt(ctx context.Context, regionID int64, when time.Time) (Forecast, error) {
	cold, err := s.coldStart(ctx, regionID, when)
	if err != nil {
		return Forecast{}, err
	}
	if cold {
		return Forecast{Recommendation: Acceptable}, nil
	}
	m, err := s.loadMatrix(ctx, regionID, when)
	if err != nil {
		return Forecast{}, err
	}

	avg := m.Overall()
	forecast := m.Avg[when.Hour()][when.Weekday()]
	f := Forecast{Forecast: forecast, Average: avg}
	if avg > 0 {
		f.VsAveragePct = (forecast/avg - 1) * 100
	}
	f.Recommendation = recommendFor(f.VsAveragePct)
	return f, nil
}

// ShouldPublishNow reports whether publishing at this moment is sensible.
// A moment is approved when its own forecast is at least recommended, or
// when it is acceptable and within toleranceHours of the optimal hour.
func (s *Scorer) ShouldPublishNow(ctx context.Context, regionID int64, toleranceHours int, now time.Time) (bool, string, error) {
	f, err := s.ForecastAt(ctx, regionID, now)
	if err != nil {
		return false, "", err
	}
	switch f.Recommendation {
	case StronglyRecommended, Recommended:
		return true, fmt.Sprintf("engagement %.0f%% above average", f.VsAveragePct), nil
	case NotRecommended:
		return false, fmt.Sprintf("engagement %.0f%% below average", -f.VsAveragePct), nil
	}

	hour, _, err := s.OptimalTime(ctx, regionID, "", now)
	if err != nil {
		return false, "", err
	}
	diff := hour - now.Hour()
	if diff < 0 {
		diff = -diff
	}
	if diff <= toleranceHours {
		return true, fmt.Sprintf("within %dh of optimal hour %02d:00", toleranceHours, hour), nil
	}
	return false, fmt.Sprintf("optimal hour is %02d:00", hour), nil
}

// PublicationCalendar returns chronologically ordered recommended slots
// for the next days, at most one per (day, slot), skipping moments graded
// not recommended.
func (s *Scorer) PublicationCalendar(ctx context.Context, regionID int64, days int, now time.Time) ([]CalendarEntry, error) {
	if days <= 0 {
		days = 7
	}
	cold, err := s.coldStart(ctx, regionID, now)
	if err != nil {
		return nil, err
	}
	if cold {
		var out []CalendarEntry
		for day := 0; day < days; day++ {
			at := atHour(now.AddDate(0, 0, day), defaultHour)
			if at.Before(now) {
				continue
			}
			out = append(out, CalendarEntry{
				At:       at,
				Slot:     models.SlotAfternoon,
				Forecast: Forecast{Recommendation: Acceptable},
			})
		}
		return out, nil
	}

	m, err := s.loadMatrix(ctx, regionID, now)
	if err != nil {
		return nil, err
	}
	avg := m.Overall()

	var out []CalendarEntry
	for day := 0; day < days; day++ {
		date := now.AddDate(0, 0, day)
		weekday := int(date.Weekday())
		for _, slot := range []models.TimeSlot{models.SlotMorning, models.SlotAfternoon, models.SlotEvening} {
			from, to, _ := models.SlotHours(slot)
			bestHour, bestVal, found := 0, 0.0, false
			for h := from; h <= to; h++ {
				if m.Count[h][weekday] == 0 {
					continue
				}
				if !found || m.Avg[h][weekday] > bestVal {
					bestHour, bestVal, found = h, m.Avg[h][weekday], true
				}
			}
			if !found {
				continue
			}
			at := atHour(date, bestHour)
			if at.Before(now) {
				continue
			}
			f := Forecast{Forecast: bestVal, Average: avg}
			if avg > 0 {
				f.VsAveragePct = (bestVal/avg - 1) * 100
			}
			f.Recommendation = recommendFor(f.VsAveragePct)
			if f.Recommendation == NotRecommended {
				continue
			}
			out = append(out, CalendarEntry{At: at, Slot: slot, Forecast: f})
		}
	}
	return out, nil
}

func atHour(date time.Time, hour int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, 0, 0, 0, date.Location())
}
