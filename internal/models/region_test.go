// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package models

import "testing"

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestEffectiveTemplateLayering(t *testing.T) {
	cfg := DigestTemplateConfig{
		Defaults: DigestTemplateSettings{
			Title:              strPtr("Новости округа"),
			IncludeSourceLinks: boolPtr(false),
		},
		ByTopic: map[string]DigestTemplateSettings{
			"sport": {
				Title:                strPtr("Спорт за день"),
				TopicHashtagOverride: strPtr("#спорт"),
			},
		},
	}

	// Unknown topic: built-ins overlaid with region defaults only.
	eff := cfg.EffectiveTemplate("novost")
	if eff.Title != "Новости округа" {
		t.Errorf("title = %q", eff.Title)
	}
	if eff.IncludeSourceLinks {
		t.Error("region default did not override built-in")
	}
	if !eff.IncludeTopicHashtag {
		t.Error("untouched built-in lost")
	}

	// Topic override wins on its fields, inherits the rest.
	eff = cfg.EffectiveTemplate("sport")
	if eff.Title != "Спорт за день" {
		t.Errorf("title = %q", eff.Title)
	}
	if eff.TopicHashtagOverride != "#спорт" {
		t.Errorf("hashtag override = %q", eff.TopicHashtagOverride)
	}
	if eff.IncludeSourceLinks {
		t.Error("topic template dropped the region default")
	}
}

func TestEffectiveTemplateBuiltins(t *testing.T) {
	eff := DigestTemplateConfig{}.EffectiveTemplate("any")
	if eff.Title != "Дайджест" {
		t.Errorf("built-in title = %q", eff.Title)
	}
	if !eff.IncludeSourceLinks || !eff.IncludeTopicHashtag || !eff.IncludeRegionHashtags {
		t.Error("built-in toggles not all on")
	}
}
