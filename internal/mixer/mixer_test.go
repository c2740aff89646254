// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package mixer

import (
	"fmt"
	"testing"
	"time"

	"github.com/okrugmedia/svodka/internal/models"
)

func makePost(i int, cat models.DigestCategory, score int, sentiment models.SentimentLabel) models.Post {
	return models.Post{
		FingerprintLIP: fmt.Sprintf("-100_%d", i),
		AICategory:     string(cat),
		AIScore:        score,
		SentimentLabel: sentiment,
		PublishedAt:    time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
}

func TestAssembleSlotQuotas(t *testing.T) {
	var candidates []models.Post
	i := 0
	add := func(cat models.DigestCategory, scores ...int) {
		for _, s := range scores {
			candidates = append(candidates, makePost(i, cat, s, models.SentimentNeutral))
			i++
		}
	}
	add(models.DigestNews, 90, 89, 88, 87, 86, 85, 84, 83, 82, 81, 80, 79)
	add(models.DigestSport, 70, 69, 68, 67)
	add(models.DigestCulture, 65, 64)
	add(models.DigestAdmin, 60, 59)

	m := New(Config{DigestSize: 10, NegativeShareCap: 0.30})
	posts, stats := m.Assemble(candidates, models.SlotAfternoon)

	if len(posts) != 10 {
		t.Fatalf("got %d posts, want 10", len(posts))
	}
	// Afternoon floors: novost 3, admin 1, kultura 2, sport 2; the two
	// remainder slots go to the best unselected scores (both novost).
	if stats.CategoryCounts["novost"] != 5 {
		t.Errorf("novost = %d, want 5", stats.CategoryCounts["novost"])
	}
	if stats.CategoryCounts["sport"] != 2 || stats.CategoryCounts["kultura"] != 2 {
		t.Errorf("sport/kultura = %d/%d, want 2/2", stats.CategoryCounts["sport"], stats.CategoryCounts["kultura"])
	}
	if stats.CategoryCounts["admin"] != 1 {
		t.Errorf("admin = %d, want 1", stats.CategoryCounts["admin"])
	}

	// The opener is the best post overall.
	if posts[0].AIScore != 90 || posts[0].AICategory != "novost" {
		t.Errorf("opener = %+v", posts[0])
	}

	// Diversity ordering avoids back-to-back categories when it can.
	repeats := 0
	for j := 1; j < len(posts); j++ {
		if posts[j].AICategory == posts[j-1].AICategory {
			repeats++
		}
	}
	if repeats != 0 {
		t.Errorf("%d adjacent same-category pairs", repeats)
	}
}

func TestAssembleNegativeShareCap(t *testing.T) {
	var candidates []models.Post
	i := 0
	add := func(sentiment models.SentimentLabel, scores ...int) {
		for _, s := range scores {
			candidates = append(candidates, makePost(i, models.DigestNews, s, sentiment))
			i++
		}
	}
	add(models.SentimentNegative, 90, 89, 88, 87, 86, 85)
	add(models.SentimentNeutral, 80, 79, 78, 77)
	add(models.SentimentPositive, 60, 59, 58, 57, 56)

	m := New(Config{DigestSize: 10, NegativeShareCap: 0.30})
	posts, stats := m.Assemble(candidates, models.SlotAfternoon)

	if len(posts) != 10 {
		t.Fatalf("got %d posts, want 10", len(posts))
	}
	// Six negatives selected on score alone; the cap keeps the top fifth
	// (one) and refills from positives, then neutrals.
	if stats.SentimentCounts[models.SentimentNegative] != 1 {
		t.Errorf("negatives = %d, want 1", stats.SentimentCounts[models.SentimentNegative])
	}
	if stats.SentimentCounts[models.SentimentPositive] != 5 {
		t.Errorf("positives = %d, want 5", stats.SentimentCounts[models.SentimentPositive])
	}

	// The surviving negative is the strongest one.
	for _, p := range posts {
		if p.SentimentLabel == models.SentimentNegative && p.AIScore != 90 {
			t.Errorf("kept negative has score %d, want 90", p.AIScore)
		}
	}
}

func TestAssembleFewerCandidatesThanSize(t *testing.T) {
	candidates := []models.Post{
		makePost(0, models.DigestNews, 50, models.SentimentNeutral),
		makePost(1, models.DigestSport, 40, models.SentimentNeutral),
	}
	m := New(DefaultConfig())
	posts, stats := m.Assemble(candidates, models.SlotMorning)
	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(posts))
	}
	if stats.DiversityScore != 1.0 {
		t.Errorf("diversity = %v, want 1.0", stats.DiversityScore)
	}
}

func TestAssembleEmpty(t *testing.T) {
	m := New(DefaultConfig())
	posts, _ := m.Assemble(nil, models.SlotEvening)
	if posts != nil {
		t.Errorf("posts = %v, want nil", posts)
	}
}

func TestAssembleUnknownSlotFallsBack(t *testing.T) {
	candidates := []models.Post{makePost(0, models.DigestNews, 50, models.SentimentNeutral)}
	m := New(DefaultConfig())
	posts, _ := m.Assemble(candidates, models.TimeSlot("night"))
	if len(posts) != 1 {
		t.Errorf("unknown slot dropped candidates: %v", posts)
	}
}

func TestAssembleDeterministic(t *testing.T) {
	var candidates []models.Post
	for i := 0; i < 20; i++ {
		cat := models.DigestCategories[i%len(models.DigestCategories)]
		candidates = append(candidates, makePost(i, cat, 50, models.SentimentNeutral))
	}
	m := New(DefaultConfig())

	a, _ := m.Assemble(candidates, models.SlotMorning)
	b, _ := m.Assemble(candidates, models.SlotMorning)
	if len(a) != len(b) {
		t.Fatal("non-deterministic length")
	}
	for i := range a {
		if a[i].FingerprintLIP != b[i].FingerprintLIP {
			t.Fatalf("order differs at %d: %s vs %s", i, a[i].FingerprintLIP, b[i].FingerprintLIP)
		}
	}
}

func TestDigestStats(t *testing.T) {
	posts := []models.Post{
		makePost(0, models.DigestNews, 80, models.SentimentPositive),
		makePost(1, models.DigestNews, 60, models.SentimentNeutral),
		makePost(2, models.DigestSport, 40, models.SentimentNegative),
	}
	stats := digestStats(posts)
	if stats.AverageScore != 60 {
		t.Errorf("average = %v, want 60", stats.AverageScore)
	}
	if stats.CategoryCounts["novost"] != 2 || stats.CategoryCounts["sport"] != 1 {
		t.Errorf("categories = %v", stats.CategoryCounts)
	}
	want := 2.0 / 3.0
	if diff := stats.DiversityScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("diversity = %v, want %v", stats.DiversityScore, want)
	}
}
