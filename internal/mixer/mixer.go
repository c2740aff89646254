// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

// Package mixer assembles digests from accepted posts. Selection balances
// category proportions per time slot, caps the share of negative-sentiment
// posts, and orders the result for reading variety rather than raw score.
package mixer

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/okrugmedia/svodka/internal/logging"
	"github.com/okrugmedia/svodka/internal/models"
)

// slotMix is the target category fraction table per time slot. Fractions
// sum to 1; quotas are taken by floor and the remainder is filled by
// descending score across all categories.
var slotMix = map[models.TimeSlot]map[models.DigestCategory]float64{
	models.SlotMorning: {
		models.DigestNews:     0.40,
		models.DigestAdmin:    0.20,
		models.DigestCulture:  0.15,
		models.DigestSport:    0.15,
		models.DigestNeighbor: 0.10,
	},
	models.SlotAfternoon: {
		models.DigestNews:     0.35,
		models.DigestAdmin:    0.15,
		models.DigestCulture:  0.20,
		models.DigestSport:    0.20,
		models.DigestNeighbor: 0.10,
	},
	models.SlotEvening: {
		models.DigestNews:     0.30,
		models.DigestAdmin:    0.10,
		models.DigestCulture:  0.25,
		models.DigestSport:    0.25,
		models.DigestNeighbor: 0.10,
	},
}

// Config carries mixer tunables.
type Config struct {
	DigestSize       int
	NegativeShareCap float64
}

// DefaultConfig returns the production defaults: ten posts per digest, at
// most 30% negative.
func DefaultConfig() Config {
	return Config{DigestSize: 10, NegativeShareCap: 0.30}
}

// Mixer assembles digests. It is stateless and safe for concurrent use.
type Mixer struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates a mixer, normalizing nonsense config to the defaults.
func New(cfg Config) *Mixer {
	def := DefaultConfig()
	if cfg.DigestSize <= 0 {
		cfg.DigestSize = def.DigestSize
	}
	if cfg.NegativeShareCap <= 0 || cfg.NegativeShareCap > 1 {
		cfg.NegativeShareCap = def.NegativeShareCap
	}
	return &Mixer{cfg: cfg, logger: logging.Component("mixer")}
}

// Assemble selects up to DigestSize posts from the candidates for the
// given slot and returns them in presentation order along with the digest
// statistics. An unknown slot falls back to the afternoon mix.
func (m *Mixer) Assemble(candidates []models.Post, slot models.TimeSlot) ([]models.Post, models.DigestStats) {
	mix, ok := slotMix[slot]
	if !ok {
		mix = slotMix[models.SlotAfternoon]
	}
	n := m.cfg.DigestSize
	if n > len(candidates) {
		n = len(candidates)
	}
	if n == 0 {
		return nil, models.DigestStats{}
	}

	selected := m.selectByQuota(candidates, mix, n)
	selected = m.rebalanceSentiment(selected, candidates)
	ordered := orderForDiversity(selected)
	return ordered, digestStats(ordered)
}

// selectByQuota takes floor(fraction*n) top-scored posts per category,
// then fills the remainder by descending score from whatever is left.
func (m *Mixer) selectByQuota(candidates []models.Post, mix map[models.DigestCategory]float64, n int) []models.Post {
	byCategory := make(map[models.DigestCategory][]models.Post)
	for _, p := range candidates {
		cat := models.DigestCategory(p.AICategory)
		byCategory[cat] = append(byCategory[cat], p)
	}
	for cat := range byCategory {
		sortByScore(byCategory[cat])
	}

	taken := make(map[string]bool)
	var selected []models.Post
	for _, cat := range models.DigestCategories {
		quota := int(math.Floor(mix[cat] * float64(n)))
		pool := byCategory[cat]
		for i := 0; i < quota && i < len(pool); i++ {
			selected = append(selected, pool[i])
			taken[pool[i].FingerprintLIP] = true
		}
	}

	// Remainder by descending score, regardless of category.
	rest := make([]models.Post, 0, len(candidates))
	for _, p := range candidates {
		if !taken[p.FingerprintLIP] {
			rest = append(rest, p)
		}
	}
	sortByScore(rest)
	for _, p := range rest {
		if len(selected) >= n {
			break
		}
		selected = append(selected, p)
		taken[p.FingerprintLIP] = true
	}
	return selected
}

// rebalanceSentiment enforces the negative share cap. When the selection
// is too gloomy, only the top fifth of the negative posts survive; the
// vacated slots are refilled from unselected positives, then neutrals.
func (m *Mixer) rebalanceSentiment(selected, candidates []models.Post) []models.Post {
	n := len(selected)
	if n == 0 {
		return selected
	}
	var negatives, others []models.Post
	for _, p := range selected {
		if p.SentimentLabel == models.SentimentNegative {
			negatives = append(negatives, p)
		} else {
			others = append(others, p)
		}
	}
	if float64(len(negatives))/float64(n) <= m.cfg.NegativeShareCap {
		return selected
	}

	sortByScore(negatives)
	keep := len(negatives) / 5
	kept := negatives[:keep]

	result := append(others, kept...)
	taken := make(map[string]bool, len(result))
	for _, p := range result {
		taken[p.FingerprintLIP] = true
	}

	// Refill: positives first, then neutrals, never more negatives.
	for _, label := range []models.SentimentLabel{models.SentimentPositive, models.SentimentNeutral} {
		var pool []models.Post
		for _, p := range candidates {
			if p.SentimentLabel == label && !taken[p.FingerprintLIP] {
				pool = append(pool, p)
			}
		}
		sortByScore(pool)
		for _, p := range pool {
			if len(result) >= n {
				break
			}
			result = append(result, p)
			taken[p.FingerprintLIP] = true
		}
	}
	if len(result) < n {
		m.logger.Debug().
			Int("want", n).
			Int("got", len(result)).
			Msg("not enough non-negative candidates to refill digest")
	}
	return result
}

// orderForDiversity emits the highest-scored post first, then repeatedly
// picks the remaining post that maximizes a diversity score against the
// previous pick: +2 for a different category, +1 for a different
// sentiment, +score/100 as tiebreak.
func orderForDiversity(selected []models.Post) []models.Post {
	if len(selected) == 0 {
		return selected
	}
	remaining := make([]models.Post, len(selected))
	copy(remaining, selected)
	sortByScore(remaining)

	ordered := []models.Post{remaining[0]}
	remaining = remaining[1:]

	for len(remaining) > 0 {
		prev := ordered[len(ordered)-1]
		best := 0
		bestScore := diversityScore(remaining[0], prev)
		for i := 1; i < len(remaining); i++ {
			if s := diversityScore(remaining[i], prev); s > bestScore {
				best, bestScore = i, s
			}
		}
		ordered = append(ordered, remaining[best])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return ordered
}

func diversityScore(p, prev models.Post) float64 {
	s := float64(p.AIScore) / 100
	if p.AICategory != prev.AICategory {
		s += 2
	}
	if p.SentimentLabel != prev.SentimentLabel {
		s += 1
	}
	return s
}

// sortByScore orders posts by score descending, newest first on ties, then
// by LIP so the order is fully deterministic.
func sortByScore(posts []models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].AIScore != posts[j].AIScore {
			return posts[i].AIScore > posts[j].AIScore
		}
		if !posts[i].PublishedAt.Equal(posts[j].PublishedAt) {
			return posts[i].PublishedAt.After(posts[j].PublishedAt)
		}
		return posts[i].FingerprintLIP < posts[j].FingerprintLIP
	})
}

func digestStats(posts []models.Post) models.DigestStats {
	stats := models.DigestStats{
		CategoryCounts:  make(map[string]int),
		SentimentCounts: make(map[models.SentimentLabel]int),
	}
	if len(posts) == 0 {
		return stats
	}
	var total int
	for _, p := range posts {
		stats.CategoryCounts[p.AICategory]++
		stats.SentimentCounts[p.SentimentLabel]++
		total += p.AIScore
	}
	stats.AverageScore = float64(total) / float64(len(posts))
	stats.DiversityScore = float64(len(stats.CategoryCounts)) / float64(len(posts))
	return stats
}
