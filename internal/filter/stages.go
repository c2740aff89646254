// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package filter

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/okrugmedia/svodka/internal/fingerprint"
	"github.com/okrugmedia/svodka/internal/models"
	"github.com/okrugmedia/svodka/internal/store"
)

// Stage priorities. The gaps are deliberate: new stages slot between
// existing ones without renumbering.
const (
	prioStructuralDuplicate = 10
	prioDate                = 11
	prioBlacklistID         = 12
	prioOnlyMainNews        = 13
	prioTextLength          = 30
	prioMinimumViews        = 31
	prioTextDuplicateFull   = 40
	prioTextDuplicateCore   = 41
	prioMediaDuplicate      = 42
	prioBlacklistWord       = 50
	prioSpamPattern         = 51
	prioRegionalRelevance   = 60
	prioNeighborRegion      = 61
	prioTextQuality         = 70
	prioCategory            = 71
)

// Options are the pipeline-wide tunables shared by the pure stages.
type Options struct {
	MaxAgeHours   int
	MinViews      int
	MinTextLen    int
	MaxTextLen    int
	MinRegionHits int
	SpamPatterns  []string
	// MainNewsOnlyGroups lists community external ids whose reposts are
	// rejected.
	MainNewsOnlyGroups []int64
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxAgeHours:   72,
		MinViews:      0,
		MinTextLen:    10,
		MaxTextLen:    10000,
		MinRegionHits: 1,
	}
}

// DefaultStages builds the full stage list in its canonical order.
func DefaultStages(opts Options, posts store.PostStore, mod *Moderation) ([]Stage, error) {
	spamPatterns := make([]*regexp.Regexp, 0, len(opts.SpamPatterns))
	for _, p := range opts.SpamPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("spam pattern %q: %w", p, err)
		}
		spamPatterns = append(spamPatterns, re)
	}

	mainNewsOnly := make(map[int64]bool, len(opts.MainNewsOnlyGroups))
	for _, id := range opts.MainNewsOnlyGroups {
		mainNewsOnly[id] = true
	}

	if opts.MaxAgeHours <= 0 {
		opts.MaxAgeHours = 72
	}
	if opts.MinTextLen <= 0 {
		opts.MinTextLen = 10
	}
	if opts.MaxTextLen <= 0 {
		opts.MaxTextLen = 10000
	}
	if opts.MinRegionHits <= 0 {
		opts.MinRegionHits = 1
	}

	return []Stage{
		&structuralDuplicateStage{posts: posts},
		&dateStage{maxAgeHours: opts.MaxAgeHours},
		&blacklistIDStage{mod: mod},
		&onlyMainNewsStage{groups: mainNewsOnly},
		&textLengthStage{min: opts.MinTextLen, max: opts.MaxTextLen},
		&minimumViewsStage{min: opts.MinViews},
		&textDuplicateStage{posts: posts, core: false},
		&textDuplicateStage{posts: posts, core: true},
		&mediaDuplicateStage{posts: posts},
		&blacklistWordStage{mod: mod},
		&spamPatternStage{patterns: spamPatterns},
		&regionalRelevanceStage{mod: mod, minHits: opts.MinRegionHits},
		&neighborRegionStage{},
		&textQualityStage{},
		&categoryStage{},
	}, nil
}

// --- 10 StructuralDuplicate ---

type structuralDuplicateStage struct {
	posts store.PostStore
}

func (s *structuralDuplicateStage) Name() string   { return "structural_duplicate" }
func (s *structuralDuplicateStage) Priority() int  { return prioStructuralDuplicate }
func (s *structuralDuplicateStage) Kind() Kind     { return KindStore }

func (s *structuralDuplicateStage) Check(ctx context.Context, post *models.Post, _ *Env) (Result, error) {
	exists, err := s.posts.LIPExists(ctx, post.FingerprintLIP)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return reject("duplicate post"), nil
	}
	return pass(), nil
}

// --- 11 Date ---

type dateStage struct {
	maxAgeHours int
}

func (s *dateStage) Name() string  { return "date" }
func (s *dateStage) Priority() int { return prioDate }
func (s *dateStage) Kind() Kind    { return KindPure }

// Check rejects stale posts and grants fresh ones a bonus that decays
// linearly from +10 at publication to 0 at the age limit.
func (s *dateStage) Check(_ context.Context, post *models.Post, env *Env) (Result, error) {
	age := env.Now.Sub(post.PublishedAt)
	if age < 0 {
		age = 0
	}
	maxAge := float64(s.maxAgeHours)
	ageHours := age.Hours()
	if ageHours > maxAge {
		return reject(fmt.Sprintf("older than %dh", s.maxAgeHours)), nil
	}
	bonus := int(10 * (1 - ageHours/maxAge))
	return passDelta(bonus), nil
}

// --- 12 BlacklistID ---

type blacklistIDStage struct {
	mod *Moderation
}

func (s *blacklistIDStage) Name() string  { return "blacklist_id" }
func (s *blacklistIDStage) Priority() int { return prioBlacklistID }
func (s *blacklistIDStage) Kind() Kind    { return KindCached }

func (s *blacklistIDStage) Check(ctx context.Context, post *models.Post, _ *Env) (Result, error) {
	set, err := s.mod.IDSet(ctx)
	if err != nil {
		return Result{}, err
	}
	if set[post.ExternalOwnerID] || set[post.ExternalAuthorID] {
		return reject("blacklisted source"), nil
	}
	return pass(), nil
}

// --- 13 OnlyMainNews ---

type onlyMainNewsStage struct {
	groups map[int64]bool
}

func (s *onlyMainNewsStage) Name() string  { return "only_main_news" }
func (s *onlyMainNewsStage) Priority() int { return prioOnlyMainNews }
func (s *onlyMainNewsStage) Kind() Kind    { return KindPure }

// Check rejects reposted content from communities configured to contribute
// only their own posts.
func (s *onlyMainNewsStage) Check(_ context.Context, post *models.Post, env *Env) (Result, error) {
	if env.Community == nil || !s.groups[env.Community.ExternalID] {
		return pass(), nil
	}
	if post.ExternalOwnerID != post.ExternalAuthorID {
		return reject("repost from main-news-only community"), nil
	}
	return pass(), nil
}

// --- 30 TextLength ---

type textLengthStage struct {
	min, max int
}

func (s *textLengthStage) Name() string  { return "text_length" }
func (s *textLengthStage) Priority() int { return prioTextLength }
func (s *textLengthStage) Kind() Kind    { return KindPure }

func (s *textLengthStage) Check(_ context.Context, post *models.Post, _ *Env) (Result, error) {
	n := utf8.RuneCountInString(post.Text)
	if n == 0 {
		if post.HasMedia() {
			return pass(), nil
		}
		return reject("no text and no media"), nil
	}
	if n < s.min {
		return reject(fmt.Sprintf("text shorter than %d", s.min)), nil
	}
	if n > s.max {
		return reject(fmt.Sprintf("text longer than %d", s.max)), nil
	}
	return pass(), nil
}

// --- 31 MinimumViews ---

type minimumViewsStage struct {
	min int
}

func (s *minimumViewsStage) Name() string  { return "minimum_views" }
func (s *minimumViewsStage) Priority() int { return prioMinimumViews }
func (s *minimumViewsStage) Kind() Kind    { return KindPure }

func (s *minimumViewsStage) Check(_ context.Context, post *models.Post, _ *Env) (Result, error) {
	if post.Views < int64(s.min) {
		return reject(fmt.Sprintf("fewer than %d views", s.min)), nil
	}
	switch {
	case post.Views >= 10000:
		return passDelta(15), nil
	case post.Views >= 5000:
		return passDelta(10), nil
	case post.Views >= 1000:
		return passDelta(5), nil
	}
	return pass(), nil
}

// --- 40/41 TextDuplicateFull / TextDuplicateCore ---

type textDuplicateStage struct {
	posts store.PostStore
	core  bool
}

func (s *textDuplicateStage) Name() string {
	if s.core {
		return "text_duplicate_core"
	}
	return "text_duplicate_full"
}

func (s *textDuplicateStage) Priority() int {
	if s.core {
		return prioTextDuplicateCore
	}
	return prioTextDuplicateFull
}

func (s *textDuplicateStage) Kind() Kind { return KindStore }

func (s *textDuplicateStage) Check(ctx context.Context, post *models.Post, _ *Env) (Result, error) {
	fp := post.FingerprintTextFull
	find := s.posts.FindByTextFull
	if s.core {
		fp = post.FingerprintTextCore
		find = s.posts.FindByTextCore
	}
	if fp == "" {
		return pass(), nil
	}
	other, err := find(ctx, fp, post.FingerprintLIP)
	if err != nil {
		return Result{}, err
	}
	if other != "" {
		return reject("duplicate text of " + other), nil
	}
	return pass(), nil
}

// --- 42 MediaDuplicate ---

type mediaDuplicateStage struct {
	posts store.PostStore
}

func (s *mediaDuplicateStage) Name() string  { return "media_duplicate" }
func (s *mediaDuplicateStage) Priority() int { return prioMediaDuplicate }
func (s *mediaDuplicateStage) Kind() Kind    { return KindStore }

func (s *mediaDuplicateStage) Check(ctx context.Context, post *models.Post, _ *Env) (Result, error) {
	if len(post.FingerprintMedia) == 0 {
		return pass(), nil
	}
	other, err := s.posts.FindByMedia(ctx, post.FingerprintMedia, post.FingerprintLIP)
	if err != nil {
		return Result{}, err
	}
	if other != "" {
		return reject("duplicate media of " + other), nil
	}
	return pass(), nil
}

// --- 50 BlacklistWord ---

type blacklistWordStage struct {
	mod *Moderation
}

func (s *blacklistWordStage) Name() string  { return "blacklist_word" }
func (s *blacklistWordStage) Priority() int { return prioBlacklistWord }
func (s *blacklistWordStage) Kind() Kind    { return KindCached }

func (s *blacklistWordStage) Check(ctx context.Context, post *models.Post, _ *Env) (Result, error) {
	matcher, err := s.mod.WordMatcher(ctx)
	if err != nil {
		return Result{}, err
	}
	if word, found := matcher.First(post.Text); found {
		return spam("blacklisted word: " + word), nil
	}
	return pass(), nil
}

// --- 51 SpamPattern ---

type spamPatternStage struct {
	patterns []*regexp.Regexp
}

func (s *spamPatternStage) Name() string  { return "spam_pattern" }
func (s *spamPatternStage) Priority() int { return prioSpamPattern }
func (s *spamPatternStage) Kind() Kind    { return KindPure }

func (s *spamPatternStage) Check(_ context.Context, post *models.Post, _ *Env) (Result, error) {
	for _, re := range s.patterns {
		if re.MatchString(post.Text) {
			return spam("spam pattern: " + re.String()), nil
		}
	}
	return pass(), nil
}

// --- 60 RegionalRelevance ---

type regionalRelevanceStage struct {
	mod     *Moderation
	minHits int
}

func (s *regionalRelevanceStage) Name() string  { return "regional_relevance" }
func (s *regionalRelevanceStage) Priority() int { return prioRegionalRelevance }
func (s *regionalRelevanceStage) Kind() Kind    { return KindStore }

// Check counts keyword hits against the region's combined keyword set
// (operator list, region record, local hashtags). Each hit above the
// required minimum is worth +5, capped at +20.
func (s *regionalRelevanceStage) Check(ctx context.Context, post *models.Post, env *Env) (Result, error) {
	if env.Region == nil {
		return pass(), nil
	}
	stored, err := s.mod.Keywords(ctx, env.Region.ID)
	if err != nil {
		return Result{}, err
	}

	text := fingerprint.Normalize(post.Text)
	hits := 0
	seen := make(map[string]bool)
	for _, kw := range [][]string{stored, env.Region.Keywords, env.Region.LocalHashtags} {
		for _, k := range kw {
			norm := fingerprint.Normalize(k)
			if norm == "" || seen[norm] {
				continue
			}
			seen[norm] = true
			if strings.Contains(text, norm) {
				hits++
			}
		}
	}

	if hits < s.minHits {
		return reject("not regionally relevant"), nil
	}
	bonus := 5 * (hits - s.minHits)
	if bonus > 20 {
		bonus = 20
	}
	return passDelta(bonus), nil
}

// --- 61 NeighborRegion ---

type neighborRegionStage struct{}

func (s *neighborRegionStage) Name() string  { return "neighbor_region" }
func (s *neighborRegionStage) Priority() int { return prioNeighborRegion }
func (s *neighborRegionStage) Kind() Kind    { return KindPure }

// Check requires posts sourced from a neighboring region to carry one of
// the digest region's hashtags. A region with no configured hashtags has
// nothing to require.
func (s *neighborRegionStage) Check(_ context.Context, post *models.Post, env *Env) (Result, error) {
	if !env.Neighbor || env.Region == nil || len(env.Region.LocalHashtags) == 0 {
		return pass(), nil
	}
	text := strings.ToLower(post.Text)
	for _, tag := range env.Region.LocalHashtags {
		if tag != "" && strings.Contains(text, strings.ToLower(tag)) {
			return pass(), nil
		}
	}
	return reject("neighbor post without local hashtag"), nil
}

// --- 70 TextQuality ---

// emojiPatternV1 covers the pictographic planes plus the common symbol
// blocks. Versioned so stored reject reasons stay explainable if the
// character classes are ever widened.
var emojiPatternV1 = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}]`)

type textQualityStage struct{}

func (s *textQualityStage) Name() string  { return "text_quality" }
func (s *textQualityStage) Priority() int { return prioTextQuality }
func (s *textQualityStage) Kind() Kind    { return KindPure }

func (s *textQualityStage) Check(_ context.Context, post *models.Post, _ *Env) (Result, error) {
	if post.Text == "" {
		// Media-only posts were already admitted by the length stage.
		return pass(), nil
	}
	words := strings.Fields(post.Text)
	if len(words) < 3 {
		return reject("too few words"), nil
	}

	emojis := len(emojiPatternV1.FindAllString(post.Text, -1))
	if emojis > 10 {
		return reject("emoji overload"), nil
	}

	total := 0
	symbols := emojis
	for _, r := range post.Text {
		total++
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			symbols++
		}
	}
	if total > 0 && float64(symbols)/float64(total) > 0.5 {
		return reject("punctuation overload"), nil
	}
	return pass(), nil
}

// --- 71 Category ---

type categoryStage struct{}

func (s *categoryStage) Name() string  { return "category" }
func (s *categoryStage) Priority() int { return prioCategory }
func (s *categoryStage) Kind() Kind    { return KindPure }

func (s *categoryStage) Check(_ context.Context, post *models.Post, env *Env) (Result, error) {
	cat := models.DigestCategory(post.AICategory)
	if env.Blocked[cat] {
		return reject("category blocked for digest"), nil
	}
	if len(env.Allowed) > 0 && !env.Allowed[cat] {
		return reject("category not allowed for digest"), nil
	}
	return pass(), nil
}
