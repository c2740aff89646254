// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package filter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okrugmedia/svodka/internal/models"
	"github.com/okrugmedia/svodka/internal/store"
)

// testEnv builds a pipeline over a fresh memory store with one region.
func testEnv(t *testing.T, opts Options) (*Pipeline, *store.Memory, *Env) {
	t.Helper()
	st := store.NewMemory()
	region := models.Region{
		Code:          "okr-01",
		Name:          "Первый округ",
		IsActive:      true,
		Keywords:      []string{"балашиха"},
		LocalHashtags: []string{"#балашиха"},
	}
	if err := st.CreateRegion(context.Background(), &region); err != nil {
		t.Fatal(err)
	}

	mod := NewModeration(st, time.Minute)
	stages, err := DefaultStages(opts, st, mod)
	if err != nil {
		t.Fatal(err)
	}
	env := &Env{
		Region:    &region,
		Community: &models.Community{ID: 1, RegionID: region.ID, ExternalID: -100},
		Now:       time.Now(),
	}
	return NewPipeline(stages...), st, env
}

func goodPost() models.Post {
	return models.Post{
		ExternalOwnerID:  -100,
		ExternalPostID:   1,
		ExternalAuthorID: -100,
		FingerprintLIP:   "-100_1",
		Text:             "Балашиха открыла новый парк для всех жителей города",
		PublishedAt:      time.Now(),
		Views:            1500,
		AICategory:       string(models.DigestNews),
	}
}

func TestPipelineStageOrder(t *testing.T) {
	p, _, _ := testEnv(t, DefaultOptions())
	want := []string{
		"structural_duplicate", "date", "blacklist_id", "only_main_news",
		"text_length", "minimum_views",
		"text_duplicate_full", "text_duplicate_core", "media_duplicate",
		"blacklist_word", "spam_pattern",
		"regional_relevance", "neighbor_region",
		"text_quality", "category",
	}
	got := p.StageNames()
	if len(got) != len(want) {
		t.Fatalf("got %d stages, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stage[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPipelineAcceptsRelevantPost(t *testing.T) {
	p, _, env := testEnv(t, DefaultOptions())
	post := goodPost()

	v := p.Run(context.Background(), &post, env)
	if !v.Accepted {
		t.Fatalf("rejected at %q: %s", v.Stage, v.Reason)
	}
	// Fresh post bonus +10, 1500 views +5, exactly-minimum relevance +0.
	if post.AIScore != 15 {
		t.Errorf("score = %d, want 15", post.AIScore)
	}
}

func TestPipelineRejectsStalePost(t *testing.T) {
	p, _, env := testEnv(t, DefaultOptions())
	post := goodPost()
	post.PublishedAt = env.Now.Add(-80 * time.Hour)

	v := p.Run(context.Background(), &post, env)
	if v.Accepted {
		t.Fatal("stale post accepted")
	}
	if v.Stage != "date" {
		t.Errorf("rejecting stage = %q, want date", v.Stage)
	}
	if post.RejectReason == "" {
		t.Error("reject reason not stamped on the post")
	}
	// Rejection short-circuits: no later stage sees the post.
	if stats := p.Stats(); stats["text_length"].Checked != 0 {
		t.Errorf("later stage ran after rejection: %+v", stats["text_length"])
	}
}

func TestPipelineRejectsStructuralDuplicate(t *testing.T) {
	p, st, env := testEnv(t, DefaultOptions())
	existing := goodPost()
	if err := st.InsertPost(context.Background(), &existing); err != nil {
		t.Fatal(err)
	}

	post := goodPost()
	v := p.Run(context.Background(), &post, env)
	if v.Accepted || v.Stage != "structural_duplicate" {
		t.Errorf("verdict = %+v, want structural_duplicate rejection", v)
	}
}

func TestPipelineRejectsTextDuplicate(t *testing.T) {
	p, st, env := testEnv(t, DefaultOptions())
	existing := goodPost()
	existing.FingerprintTextFull = "same-full"
	st.InsertPost(context.Background(), &existing)

	post := goodPost()
	post.FingerprintLIP = "-100_2"
	post.FingerprintTextFull = "same-full"
	v := p.Run(context.Background(), &post, env)
	if v.Accepted || v.Stage != "text_duplicate_full" {
		t.Errorf("verdict = %+v, want text_duplicate_full rejection", v)
	}
}

func TestPipelineRejectsCoreDuplicate(t *testing.T) {
	p, st, env := testEnv(t, DefaultOptions())
	existing := goodPost()
	existing.FingerprintTextFull = "full-a"
	existing.FingerprintTextCore = "same-core"
	st.InsertPost(context.Background(), &existing)

	// Different full text, same core: boilerplate wrapping does not make a
	// post new.
	post := goodPost()
	post.FingerprintLIP = "-100_2"
	post.FingerprintTextFull = "full-b"
	post.FingerprintTextCore = "same-core"
	v := p.Run(context.Background(), &post, env)
	if v.Accepted || v.Stage != "text_duplicate_core" {
		t.Errorf("verdict = %+v, want text_duplicate_core rejection", v)
	}
}

func TestPipelineBlacklistedOwner(t *testing.T) {
	p, st, env := testEnv(t, DefaultOptions())
	st.AddBlacklistedID(context.Background(), -100)

	post := goodPost()
	v := p.Run(context.Background(), &post, env)
	if v.Accepted || v.Stage != "blacklist_id" {
		t.Errorf("verdict = %+v, want blacklist_id rejection", v)
	}
}

func TestPipelineBlacklistedWordIsSpam(t *testing.T) {
	p, st, env := testEnv(t, DefaultOptions())
	st.AddBlacklistedWord(context.Background(), "казино")

	post := goodPost()
	post.Text = "Балашиха: открылось новое казино для всех желающих"
	v := p.Run(context.Background(), &post, env)
	if v.Accepted {
		t.Fatal("spam post accepted")
	}
	if v.Stage != "blacklist_word" || !v.Spam {
		t.Errorf("verdict = %+v, want spam from blacklist_word", v)
	}
}

func TestPipelineSpamPattern(t *testing.T) {
	opts := DefaultOptions()
	opts.SpamPatterns = []string{`(?i)скидка \d+%`}
	p, _, env := testEnv(t, opts)

	post := goodPost()
	post.Text = "Только сегодня скидка 90% на всё подряд в городе"
	v := p.Run(context.Background(), &post, env)
	if v.Accepted || !v.Spam {
		t.Errorf("verdict = %+v, want spam", v)
	}
}

func TestDefaultStagesRejectsBadPattern(t *testing.T) {
	opts := DefaultOptions()
	opts.SpamPatterns = []string{`([`}
	st := store.NewMemory()
	if _, err := DefaultStages(opts, st, NewModeration(st, time.Minute)); err == nil {
		t.Error("invalid spam pattern accepted")
	}
}

func TestPipelineRegionalRelevance(t *testing.T) {
	p, _, env := testEnv(t, DefaultOptions())

	post := goodPost()
	post.Text = "Где-то в другом городе что-то произошло вчера вечером"
	v := p.Run(context.Background(), &post, env)
	if v.Accepted || v.Stage != "regional_relevance" {
		t.Errorf("verdict = %+v, want regional_relevance rejection", v)
	}
}

func TestPipelineNeighborRequiresHashtag(t *testing.T) {
	p, _, env := testEnv(t, DefaultOptions())
	env.Neighbor = true

	post := goodPost()
	post.Text = "Новости: Балашиха без хэштега, но с ключевым словом"
	v := p.Run(context.Background(), &post, env)
	if v.Accepted || v.Stage != "neighbor_region" {
		t.Errorf("verdict = %+v, want neighbor_region rejection", v)
	}

	post = goodPost()
	post.FingerprintLIP = "-100_2"
	post.Text = "Отличные новости #Балашиха снова в деле и в заголовках"
	v = p.Run(context.Background(), &post, env)
	if !v.Accepted {
		t.Errorf("tagged neighbor post rejected at %q: %s", v.Stage, v.Reason)
	}
}

func TestPipelineCategoryGate(t *testing.T) {
	p, _, env := testEnv(t, DefaultOptions())
	env.Blocked = map[models.DigestCategory]bool{models.DigestNews: true}

	post := goodPost()
	v := p.Run(context.Background(), &post, env)
	if v.Accepted || v.Stage != "category" {
		t.Errorf("verdict = %+v, want category rejection", v)
	}

	env.Blocked = nil
	env.Allowed = map[models.DigestCategory]bool{models.DigestSport: true}
	post = goodPost()
	v = p.Run(context.Background(), &post, env)
	if v.Accepted || v.Stage != "category" {
		t.Errorf("verdict = %+v, want category rejection on allowlist", v)
	}
}

func TestPipelineOnlyMainNews(t *testing.T) {
	opts := DefaultOptions()
	opts.MainNewsOnlyGroups = []int64{-100}
	p, _, env := testEnv(t, opts)

	post := goodPost()
	post.ExternalAuthorID = -999 // repost
	v := p.Run(context.Background(), &post, env)
	if v.Accepted || v.Stage != "only_main_news" {
		t.Errorf("verdict = %+v, want only_main_news rejection", v)
	}

	post = goodPost() // own post passes
	if v := p.Run(context.Background(), &post, env); !v.Accepted {
		t.Errorf("own post rejected at %q", v.Stage)
	}
}

type erroringStage struct{}

func (erroringStage) Name() string  { return "erroring" }
func (erroringStage) Priority() int { return 5 }
func (erroringStage) Kind() Kind    { return KindStore }
func (erroringStage) Check(context.Context, *models.Post, *Env) (Result, error) {
	return Result{}, errors.New("store down")
}

func TestPipelineFailsOpenOnStageError(t *testing.T) {
	p := NewPipeline(erroringStage{}, &textLengthStage{min: 3, max: 100})

	post := models.Post{Text: "достаточно длинный текст"}
	v := p.Run(context.Background(), &post, &Env{Now: time.Now()})
	if !v.Accepted {
		t.Fatalf("pipeline rejected on stage error: %+v", v)
	}

	stats := p.Stats()
	if stats["erroring"].Errors != 1 {
		t.Errorf("error count = %d, want 1", stats["erroring"].Errors)
	}
	if stats["text_length"].Passed != 1 {
		t.Errorf("later stage not run: %+v", stats["text_length"])
	}
}

func TestPipelineStatsAndReset(t *testing.T) {
	p, _, env := testEnv(t, DefaultOptions())

	post := goodPost()
	p.Run(context.Background(), &post, env)

	stats := p.Stats()
	if stats["date"].Checked != 1 || stats["date"].Passed != 1 {
		t.Errorf("date stats = %+v", stats["date"])
	}

	p.ResetStats()
	stats = p.Stats()
	if stats["date"].Checked != 0 {
		t.Errorf("stats not reset: %+v", stats["date"])
	}
}
