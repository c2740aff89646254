// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package models

import "time"

// Region is a logical grouping of communities with a stable code and a
// primary publication outlet. Regions are never deleted while posts
// reference them; deactivate instead.
type Region struct {
	ID              int64        `json:"id" db:"id"`
	Code            string       `json:"code" db:"code"`
	Name            string       `json:"name" db:"name"`
	PrimaryOutletID int64        `json:"primary_outlet_id" db:"primary_outlet_id"`
	TelegramChannel string       `json:"telegram_channel,omitempty" db:"telegram_channel"`
	Neighbors       []string     `json:"neighbors" db:"-"`
	LocalHashtags   []string     `json:"local_hashtags" db:"-"`
	Keywords        []string     `json:"keywords" db:"-"`
	Config          RegionConfig `json:"config" db:"-"`
	IsActive        bool         `json:"is_active" db:"is_active"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// RegionConfig is the per-region configuration document.
type RegionConfig struct {
	DigestTemplate DigestTemplateConfig `json:"digest_template"`
}

// DigestTemplateConfig holds digest rendering defaults plus per-topic
// overrides.
type DigestTemplateConfig struct {
	Defaults DigestTemplateSettings            `json:"defaults"`
	ByTopic  map[string]DigestTemplateSettings `json:"by_topic,omitempty"`
}

// DigestTemplateSettings controls how a digest is rendered for a topic.
// Pointer fields distinguish "unset" from an explicit false/empty value so
// the three-layer merge can skip them.
type DigestTemplateSettings struct {
	Title                 *string `json:"title,omitempty"`
	Footer                *string `json:"footer,omitempty"`
	IncludeSourceLinks    *bool   `json:"include_source_links,omitempty"`
	IncludeTopicHashtag   *bool   `json:"include_topic_hashtag,omitempty"`
	IncludeRegionHashtags *bool   `json:"include_region_hashtags,omitempty"`
	TopicHashtagOverride  *string `json:"topic_hashtag_override,omitempty"`
}

// EffectiveTemplateSettings is the fully resolved settings record after
// merging built-in defaults, region defaults and the per-topic override.
type EffectiveTemplateSettings struct {
	Title                 string `json:"title"`
	Footer                string `json:"footer"`
	IncludeSourceLinks    bool   `json:"include_source_links"`
	IncludeTopicHashtag   bool   `json:"include_topic_hashtag"`
	IncludeRegionHashtags bool   `json:"include_region_hashtags"`
	TopicHashtagOverride  string `json:"topic_hashtag_override"`
}

// builtinTemplateDefaults are applied before any region configuration.
func builtinTemplateDefaults() EffectiveTemplateSettings {
	return EffectiveTemplateSettings{
		Title:                 "Дайджест",
		Footer:                "",
		IncludeSourceLinks:    true,
		IncludeTopicHashtag:   true,
		IncludeRegionHashtags: true,
	}
}

// EffectiveTemplate resolves settings for a topic by layering
// built-in defaults, then region defaults, then the topic override.
// Later layers override only their non-nil fields.
func (c DigestTemplateConfig) EffectiveTemplate(topic string) EffectiveTemplateSettings {
	out := builtinTemplateDefaults()
	out.apply(c.Defaults)
	if override, ok := c.ByTopic[topic]; ok {
		out.apply(override)
	}
	return out
}

func (e *EffectiveTemplateSettings) apply(s DigestTemplateSettings) {
	if s.Title != nil {
		e.Title = *s.Title
	}
	if s.Footer != nil {
		e.Footer = *s.Footer
	}
	if s.IncludeSourceLinks != nil {
		e.IncludeSourceLinks = *s.IncludeSourceLinks
	}
	if s.IncludeTopicHashtag != nil {
		e.IncludeTopicHashtag = *s.IncludeTopicHashtag
	}
	if s.IncludeRegionHashtags != nil {
		e.IncludeRegionHashtags = *s.IncludeRegionHashtags
	}
	if s.TopicHashtagOverride != nil {
		e.TopicHashtagOverride = *s.TopicHashtagOverride
	}
}
