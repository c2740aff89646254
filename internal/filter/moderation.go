// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package filter

import (
	"context"
	"fmt"
	"time"

	"github.com/okrugmedia/svodka/internal/cache"
	"github.com/okrugmedia/svodka/internal/metrics"
	"github.com/okrugmedia/svodka/internal/store"
)

const (
	keyBlacklistIDs   = "blacklist:ids"
	keyBlacklistWords = "blacklist:words"
)

// Moderation serves operator-maintained filter data (blacklists, region
// keyword sets) through a TTL cache, so the store-backed stages cost one
// map lookup in the steady state. Writes go through this type so the cache
// entry is invalidated immediately instead of waiting out the TTL.
type Moderation struct {
	store store.ModerationStore
	cache *cache.Cache
}

// NewModeration creates a provider with the given cache TTL (the pipeline
// default is five minutes).
func NewModeration(st store.ModerationStore, ttl time.Duration) *Moderation {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Moderation{store: st, cache: cache.New(ttl)}
}

// IDSet returns the blacklisted external ids as a set.
func (m *Moderation) IDSet(ctx context.Context) (map[int64]bool, error) {
	if v, ok := m.cache.Get(keyBlacklistIDs); ok {
		metrics.CacheHits.WithLabelValues("blacklist_ids").Inc()
		return v.(map[int64]bool), nil
	}
	metrics.CacheMisses.WithLabelValues("blacklist_ids").Inc()

	ids, err := m.store.BlacklistedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load blacklisted ids: %w", err)
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	m.cache.Set(keyBlacklistIDs, set)
	return set, nil
}

// WordMatcher returns an Aho-Corasick matcher over the blacklisted words.
// The matcher is built once per cache fill and shared read-only.
func (m *Moderation) WordMatcher(ctx context.Context) (*cache.WordMatcher, error) {
	if v, ok := m.cache.Get(keyBlacklistWords); ok {
		metrics.CacheHits.WithLabelValues("blacklist_words").Inc()
		return v.(*cache.WordMatcher), nil
	}
	metrics.CacheMisses.WithLabelValues("blacklist_words").Inc()

	words, err := m.store.BlacklistedWords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load blacklisted words: %w", err)
	}
	matcher := cache.NewWordMatcher(words)
	m.cache.Set(keyBlacklistWords, matcher)
	return matcher, nil
}

// Keywords returns the operator-maintained keyword list for a region.
func (m *Moderation) Keywords(ctx context.Context, regionID int64) ([]string, error) {
	key := keywordsKey(regionID)
	if v, ok := m.cache.Get(key); ok {
		metrics.CacheHits.WithLabelValues("region_keywords").Inc()
		return v.([]string), nil
	}
	metrics.CacheMisses.WithLabelValues("region_keywords").Inc()

	kws, err := m.store.RegionKeywords(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("load region keywords: %w", err)
	}
	m.cache.Set(key, kws)
	return kws, nil
}

// AddBlacklistedID writes through and invalidates the cached set.
func (m *Moderation) AddBlacklistedID(ctx context.Context, id int64) error {
	if err := m.store.AddBlacklistedID(ctx, id); err != nil {
		return err
	}
	m.cache.Delete(keyBlacklistIDs)
	return nil
}

// AddBlacklistedWord writes through and invalidates the cached matcher.
func (m *Moderation) AddBlacklistedWord(ctx context.Context, word string) error {
	if err := m.store.AddBlacklistedWord(ctx, word); err != nil {
		return err
	}
	m.cache.Delete(keyBlacklistWords)
	return nil
}

// SetRegionKeywords writes through and invalidates the region's entry.
func (m *Moderation) SetRegionKeywords(ctx context.Context, regionID int64, keywords []string) error {
	if err := m.store.SetRegionKeywords(ctx, regionID, keywords); err != nil {
		return err
	}
	m.cache.Delete(keywordsKey(regionID))
	return nil
}

func keywordsKey(regionID int64) string {
	return cache.GenerateKey("keywords", regionID)
}
