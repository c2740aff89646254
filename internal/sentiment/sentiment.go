// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

// Package sentiment classifies post text with a lexicon-based analyzer.
// It counts marker hits in three polarity sets and four emotion sets over
// the normalized token stream; no language model is involved.
package sentiment

import (
	"github.com/okrugmedia/svodka/internal/fingerprint"
	"github.com/okrugmedia/svodka/internal/models"

	"strings"
)

// Emotions is the normalized emotion vector. When any emotion marker
// occurs the components sum to 1; otherwise all are zero.
type Emotions struct {
	Joy     float64 `json:"joy"`
	Sadness float64 `json:"sadness"`
	Anger   float64 `json:"anger"`
	Fear    float64 `json:"fear"`
}

// Counts holds raw polarity hit counts.
type Counts struct {
	Positive int `json:"pos"`
	Neutral  int `json:"neu"`
	Negative int `json:"neg"`
}

// Result is the classifier output for one text.
type Result struct {
	Label    models.SentimentLabel `json:"label"`
	Score    float64               `json:"score"`
	Emotions Emotions              `json:"emotions"`
	Counts   Counts                `json:"counts"`
}

// Analyze classifies the text. The label is the polarity with the strictly
// largest hit count; ties resolve to neutral. The score is
// 0.5 + (hits_of_label/total_hits)*0.5, capped at 1.0; with no hits at all
// the result is neutral at 0.5.
func Analyze(text string) Result {
	tokens := strings.Fields(fingerprint.Normalize(text))

	var c Counts
	var joy, sadness, anger, fear int
	for _, tok := range tokens {
		if _, ok := positiveWords[tok]; ok {
			c.Positive++
		}
		if _, ok := negativeWords[tok]; ok {
			c.Negative++
		}
		if _, ok := neutralWords[tok]; ok {
			c.Neutral++
		}
		if _, ok := joyWords[tok]; ok {
			joy++
		}
		if _, ok := sadnessWords[tok]; ok {
			sadness++
		}
		if _, ok := angerWords[tok]; ok {
			anger++
		}
		if _, ok := fearWords[tok]; ok {
			fear++
		}
	}

	res := Result{Counts: c, Emotions: normalizeEmotions(joy, sadness, anger, fear)}

	total := c.Positive + c.Neutral + c.Negative
	if total == 0 {
		res.Label = models.SentimentNeutral
		res.Score = 0.5
		return res
	}

	label, labelHits := dominantPolarity(c)
	res.Label = label
	res.Score = 0.5 + float64(labelHits)/float64(total)*0.5
	if res.Score > 1.0 {
		res.Score = 1.0
	}
	return res
}

// dominantPolarity returns the polarity with the strictly largest count.
// Any tie for the maximum resolves to neutral.
func dominantPolarity(c Counts) (models.SentimentLabel, int) {
	switch {
	case c.Positive > c.Negative && c.Positive > c.Neutral:
		return models.SentimentPositive, c.Positive
	case c.Negative > c.Positive && c.Negative > c.Neutral:
		return models.SentimentNegative, c.Negative
	case c.Neutral > c.Positive && c.Neutral > c.Negative:
		return models.SentimentNeutral, c.Neutral
	default:
		// Tie for the maximum resolves to neutral, scored on the
		// neutral hits themselves.
		return models.SentimentNeutral, c.Neutral
	}
}

func normalizeEmotions(joy, sadness, anger, fear int) Emotions {
	total := joy + sadness + anger + fear
	if total == 0 {
		return Emotions{}
	}
	t := float64(total)
	return Emotions{
		Joy:     float64(joy) / t,
		Sadness: float64(sadness) / t,
		Anger:   float64(anger) / t,
		Fear:    float64(fear) / t,
	}
}
