// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package fingerprint

import (
	"strings"
	"testing"

	"github.com/okrugmedia/svodka/internal/models"
)

func TestLIP(t *testing.T) {
	if got := LIP(-12345, 678); got != "-12345_678" {
		t.Errorf("LIP(-12345, 678) = %q, want %q", got, "-12345_678")
	}
	if got := LIP(100, 42); got != "100_42" {
		t.Errorf("LIP(100, 42) = %q, want %q", got, "100_42")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "ПрИвЕт Mir", "привет mir"},
		{"collapse whitespace", "a  \t b\n\nc", "a b c"},
		{"strip punctuation", "Новость!!! (важно)...", "новость важно"},
		{"strip emoji", "ура \U0001F389\U0001F389 победа", "ура победа"},
		{"keep digits", "дом 25, корпус 3", "дом 25 корпус 3"},
		{"leading trailing space", "  окраина  ", "окраина"},
		{"empty", "", ""},
		{"only symbols", "!!! ??? ...", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	in := "  Сегодня в 14:00 — открытие парка!  \U0001F333 "
	once := Normalize(in)
	twice := Normalize(once)
	if once != twice {
		t.Errorf("Normalize not idempotent: %q then %q", once, twice)
	}
}

func TestTextFull(t *testing.T) {
	a := TextFull("Новость дня")
	b := TextFull("  новость   ДНЯ!!!")
	if a == "" {
		t.Fatal("TextFull returned empty for non-empty text")
	}
	if a != b {
		t.Errorf("equivalent texts hash differently: %q vs %q", a, b)
	}
	if c := TextFull("другая новость"); c == a {
		t.Error("distinct texts produced the same hash")
	}
	if got := TextFull("!!!"); got != "" {
		t.Errorf("TextFull of symbol-only text = %q, want empty", got)
	}
}

func TestTextCoreShortTextHashesInFull(t *testing.T) {
	// Under 50 normalized characters the core equals the full hash.
	short := "короткий анонс"
	if TextCore(short) != TextFull(short) {
		t.Error("short text core hash differs from full hash")
	}
}

func TestTextCoreIgnoresBoilerplate(t *testing.T) {
	// Same middle 20-70% slice, different header and footer.
	a := strings.Repeat("x", 20) + strings.Repeat("m", 50) + strings.Repeat("y", 30)
	b := strings.Repeat("q", 20) + strings.Repeat("m", 50) + strings.Repeat("z", 30)
	if TextCore(a) != TextCore(b) {
		t.Error("core hashes differ despite identical middle slice")
	}
	if TextFull(a) == TextFull(b) {
		t.Error("full hashes equal despite different texts")
	}

	c := strings.Repeat("x", 20) + strings.Repeat("n", 50) + strings.Repeat("y", 30)
	if TextCore(a) == TextCore(c) {
		t.Error("core hashes equal despite different middle slice")
	}
}

func TestMedia(t *testing.T) {
	atts := []models.Attachment{
		{Type: models.AttachmentVideo, RemoteID: "video-100_2"},
		{Type: models.AttachmentPhoto, RemoteID: "photo-100_9"},
		{Type: models.AttachmentPhoto, RemoteID: "photo-100_1"},
		{Type: "doc", RemoteID: "doc-100_5"},
		{Type: models.AttachmentPhoto, RemoteID: ""},
	}
	got := Media(atts)
	want := []string{"photo-100_1", "photo-100_9", "video-100_2"}
	if len(got) != len(want) {
		t.Fatalf("Media returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Media[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if ids := Media(nil); len(ids) != 0 {
		t.Errorf("Media(nil) = %v, want empty", ids)
	}
}

func TestApply(t *testing.T) {
	p := models.Post{
		ExternalOwnerID: -200,
		ExternalPostID:  77,
		Text:            "Открытие нового сквера в центре города",
		Attachments: []models.Attachment{
			{Type: models.AttachmentPhoto, RemoteID: "photo-200_1"},
		},
	}
	Apply(&p)

	if p.FingerprintLIP != "-200_77" {
		t.Errorf("LIP = %q, want -200_77", p.FingerprintLIP)
	}
	if p.FingerprintTextFull == "" || p.FingerprintTextCore == "" {
		t.Error("text fingerprints not stamped")
	}
	if len(p.FingerprintMedia) != 1 || p.FingerprintMedia[0] != "photo-200_1" {
		t.Errorf("media fingerprint = %v", p.FingerprintMedia)
	}
	if p.FingerprintVersion != Version {
		t.Errorf("version = %d, want %d", p.FingerprintVersion, Version)
	}

	// Re-applying is stable.
	lip, full := p.FingerprintLIP, p.FingerprintTextFull
	Apply(&p)
	if p.FingerprintLIP != lip || p.FingerprintTextFull != full {
		t.Error("Apply is not deterministic")
	}
}
