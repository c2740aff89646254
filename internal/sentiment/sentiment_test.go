// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package sentiment

import (
	"math"
	"testing"

	"github.com/okrugmedia/svodka/internal/models"
)

func TestAnalyzeNoMarkers(t *testing.T) {
	res := Analyze("вчера шёл дождь на улице ленина")
	if res.Label != models.SentimentNeutral {
		t.Errorf("label = %q, want neutral", res.Label)
	}
	if res.Score != 0.5 {
		t.Errorf("score = %v, want 0.5", res.Score)
	}
	if res.Emotions != (Emotions{}) {
		t.Errorf("emotions = %+v, want zero", res.Emotions)
	}
}

func TestAnalyzePositive(t *testing.T) {
	res := Analyze("Поздравляем! Победа и успех нашей команды")
	if res.Label != models.SentimentPositive {
		t.Fatalf("label = %q, want positive", res.Label)
	}
	// Three positive hits out of three total.
	if res.Score != 1.0 {
		t.Errorf("score = %v, want 1.0", res.Score)
	}
	if res.Counts.Positive != 3 {
		t.Errorf("positive count = %d, want 3", res.Counts.Positive)
	}
}

func TestAnalyzeNegative(t *testing.T) {
	res := Analyze("ДТП на трассе: пожар, есть пострадавшие, один ранен")
	if res.Label != models.SentimentNegative {
		t.Errorf("label = %q, want negative", res.Label)
	}
	if res.Counts.Negative < 2 {
		t.Errorf("negative count = %d, want >= 2", res.Counts.Negative)
	}
}

func TestAnalyzeTieResolvesNeutral(t *testing.T) {
	// One positive, one negative, no neutral markers.
	res := Analyze("хорошо и плохо")
	if res.Label != models.SentimentNeutral {
		t.Errorf("label = %q, want neutral on tie", res.Label)
	}
	// The tie scores on neutral hits: 0.5 + 0/2*0.5.
	if res.Score != 0.5 {
		t.Errorf("score = %v, want 0.5", res.Score)
	}
}

func TestAnalyzeDominantBeatsMinority(t *testing.T) {
	res := Analyze("авария и пожар, но спасибо спасателям")
	if res.Label != models.SentimentNegative {
		t.Errorf("label = %q, want negative", res.Label)
	}
	want := 0.5 + 2.0/3.0*0.5
	if math.Abs(res.Score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", res.Score, want)
	}
}

func TestAnalyzeMatchesNormalizedTokens(t *testing.T) {
	// Punctuation and case must not hide a marker.
	res := Analyze("УРА!!!")
	if res.Label != models.SentimentPositive {
		t.Errorf("label = %q, want positive", res.Label)
	}
}

func TestAnalyzeEmotions(t *testing.T) {
	res := Analyze("паника и тревога в городе, всем страшно")
	if res.Emotions.Fear != 1.0 {
		t.Errorf("fear = %v, want 1.0", res.Emotions.Fear)
	}

	res = Analyze("радость и смех, но и слезы прощания")
	sum := res.Emotions.Joy + res.Emotions.Sadness + res.Emotions.Anger + res.Emotions.Fear
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("emotion components sum to %v, want 1.0", sum)
	}
	if res.Emotions.Joy == 0 || res.Emotions.Sadness == 0 {
		t.Errorf("expected mixed joy/sadness, got %+v", res.Emotions)
	}
}
