// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package models

import "testing"

func TestEngagement(t *testing.T) {
	p := Post{Views: 100, Likes: 10, Reposts: 5, Comments: 2}
	// views + 2*likes + 3*reposts + 4*comments
	if got := p.Engagement(); got != 143 {
		t.Errorf("Engagement = %d, want 143", got)
	}
	if got := (&Post{}).Engagement(); got != 0 {
		t.Errorf("zero post engagement = %d", got)
	}
}

func TestAdjustScoreClamps(t *testing.T) {
	p := Post{AIScore: 50}
	p.AdjustScore(30)
	if p.AIScore != 80 {
		t.Errorf("score = %d, want 80", p.AIScore)
	}
	p.AdjustScore(100)
	if p.AIScore != 100 {
		t.Errorf("score = %d, want clamped to 100", p.AIScore)
	}
	p.AdjustScore(-250)
	if p.AIScore != 0 {
		t.Errorf("score = %d, want clamped to 0", p.AIScore)
	}
}

func TestPostStatusTerminal(t *testing.T) {
	p := Post{Status: PostStatusNew}
	if err := p.TransitionStatus(PostStatusAccepted); err != nil {
		t.Fatal(err)
	}
	if err := p.TransitionStatus(PostStatusRejected); err == nil {
		t.Error("accepted -> rejected allowed")
	}
	// Self-transition on a terminal status is a no-op, not an error.
	if err := p.TransitionStatus(PostStatusAccepted); err != nil {
		t.Errorf("accepted -> accepted refused: %v", err)
	}

	p = Post{Status: PostStatusSpam}
	if err := p.TransitionStatus(PostStatusRejected); err != nil {
		t.Errorf("spam is not terminal, transition refused: %v", err)
	}
}

func TestHasMedia(t *testing.T) {
	p := Post{Attachments: []Attachment{{Type: AttachmentLink}}}
	if p.HasMedia() {
		t.Error("link attachment counted as media")
	}
	p.Attachments = append(p.Attachments, Attachment{Type: AttachmentPhoto, RemoteID: "photo-1_1"})
	if !p.HasMedia() {
		t.Error("photo attachment not counted as media")
	}
}
