// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package filter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/okrugmedia/svodka/internal/models"
	"github.com/okrugmedia/svodka/internal/store"
)

func TestTextLengthStage(t *testing.T) {
	s := &textLengthStage{min: 10, max: 100}
	ctx := context.Background()

	tests := []struct {
		name string
		post models.Post
		pass bool
	}{
		{"normal", models.Post{Text: "десять символов и больше"}, true},
		{"too short", models.Post{Text: "коротко"}, false},
		{"too long", models.Post{Text: strings.Repeat("б", 101)}, false},
		{"empty with media", models.Post{Attachments: []models.Attachment{{Type: models.AttachmentPhoto, RemoteID: "photo-1_1"}}}, true},
		{"empty without media", models.Post{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Check(ctx, &tt.post, nil)
			if err != nil {
				t.Fatal(err)
			}
			if res.Passed != tt.pass {
				t.Errorf("passed = %v (%s), want %v", res.Passed, res.Reason, tt.pass)
			}
		})
	}
}

func TestMinimumViewsStageTiers(t *testing.T) {
	s := &minimumViewsStage{min: 100}
	ctx := context.Background()

	tests := []struct {
		views int64
		pass  bool
		delta int
	}{
		{50, false, 0},
		{100, true, 0},
		{999, true, 0},
		{1000, true, 5},
		{5000, true, 10},
		{10000, true, 15},
		{250000, true, 15},
	}
	for _, tt := range tests {
		res, err := s.Check(ctx, &models.Post{Views: tt.views}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Passed != tt.pass || res.ScoreDelta != tt.delta {
			t.Errorf("views %d: passed=%v delta=%d, want %v/%d", tt.views, res.Passed, res.ScoreDelta, tt.pass, tt.delta)
		}
	}
}

func TestDateStageBonusDecay(t *testing.T) {
	s := &dateStage{maxAgeHours: 72}
	now := time.Now()
	env := &Env{Now: now}
	ctx := context.Background()

	res, _ := s.Check(ctx, &models.Post{PublishedAt: now}, env)
	if !res.Passed || res.ScoreDelta != 10 {
		t.Errorf("fresh post: %+v, want +10", res)
	}

	res, _ = s.Check(ctx, &models.Post{PublishedAt: now.Add(-36 * time.Hour)}, env)
	if !res.Passed || res.ScoreDelta != 5 {
		t.Errorf("half-aged post: %+v, want +5", res)
	}

	res, _ = s.Check(ctx, &models.Post{PublishedAt: now.Add(-73 * time.Hour)}, env)
	if res.Passed {
		t.Errorf("expired post passed: %+v", res)
	}

	// Clock skew: a post "from the future" counts as fresh.
	res, _ = s.Check(ctx, &models.Post{PublishedAt: now.Add(time.Hour)}, env)
	if !res.Passed || res.ScoreDelta != 10 {
		t.Errorf("future post: %+v, want +10", res)
	}
}

func TestTextQualityStage(t *testing.T) {
	s := &textQualityStage{}
	ctx := context.Background()

	res, _ := s.Check(ctx, &models.Post{Text: "всего два"}, nil)
	if res.Passed {
		t.Error("two-word post passed")
	}

	res, _ = s.Check(ctx, &models.Post{Text: "привет " + strings.Repeat("\U0001F600", 11) + " всем тут"}, nil)
	if res.Passed {
		t.Error("emoji overload passed")
	}

	res, _ = s.Check(ctx, &models.Post{Text: "а б !!!!!!!!!!!!!!!!!!!!!!!!!!!!"}, nil)
	if res.Passed {
		t.Error("punctuation overload passed")
	}

	res, _ = s.Check(ctx, &models.Post{Text: "обычный нормальный текст новости"}, nil)
	if !res.Passed {
		t.Errorf("clean text rejected: %s", res.Reason)
	}

	// Media-only posts skip the quality check entirely.
	res, _ = s.Check(ctx, &models.Post{}, nil)
	if !res.Passed {
		t.Error("empty text rejected by quality stage")
	}
}

func TestRegionalRelevanceBonusCap(t *testing.T) {
	region := models.Region{
		ID:       1,
		Keywords: []string{"парк", "сквер", "школа", "музей", "каток", "бассейн", "дорога"},
	}
	env := &Env{Region: &region}
	mod := NewModeration(store.NewMemory(), time.Minute)
	s := &regionalRelevanceStage{mod: mod, minHits: 1}

	post := models.Post{Text: "парк сквер школа музей каток бассейн дорога"}
	res, err := s.Check(context.Background(), &post, env)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Passed {
		t.Fatalf("rejected: %s", res.Reason)
	}
	// 7 hits, 1 required: bonus 5*(7-1)=30, capped at 20.
	if res.ScoreDelta != 20 {
		t.Errorf("delta = %d, want capped 20", res.ScoreDelta)
	}
}
