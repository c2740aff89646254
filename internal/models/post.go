// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package models

import (
	"fmt"
	"time"
)

// PostStatus is the moderation state of a post. Accepted and rejected are
// terminal; transitions out of them are refused.
type PostStatus string

const (
	PostStatusNew      PostStatus = "new"
	PostStatusAccepted PostStatus = "accepted"
	PostStatusRejected PostStatus = "rejected"
	PostStatusSpam     PostStatus = "spam"
)

// Terminal reports whether the status admits no further transitions.
func (s PostStatus) Terminal() bool {
	return s == PostStatusAccepted || s == PostStatusRejected
}

// SentimentLabel is the lexicon classifier's polarity verdict.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// AttachmentType distinguishes upstream media attachments. Only photos and
// videos contribute to the media fingerprint.
type AttachmentType string

const (
	AttachmentPhoto AttachmentType = "photo"
	AttachmentVideo AttachmentType = "video"
	AttachmentAudio AttachmentType = "audio"
	AttachmentDoc   AttachmentType = "doc"
	AttachmentLink  AttachmentType = "link"
	AttachmentOther AttachmentType = "other"
)

// Attachment is a remote media object referenced by a post.
type Attachment struct {
	Type AttachmentType `json:"type"`
	// RemoteID identifies the media object upstream, e.g. "photo-100_42".
	RemoteID string `json:"remote_id"`
	URL      string `json:"url,omitempty"`
}

// Post is the canonical post record. It carries both the raw upstream
// fields and the derived filter outputs (fingerprints, score, sentiment).
type Post struct {
	ID              int64        `json:"id" db:"id"`
	CommunityID     int64        `json:"community_id" db:"community_id"`
	RegionID        int64        `json:"region_id" db:"region_id"`
	ExternalOwnerID int64        `json:"external_owner_id" db:"external_owner_id"`
	ExternalPostID  int64        `json:"external_post_id" db:"external_post_id"`
	ExternalAuthorID int64       `json:"external_author_id" db:"external_author_id"`
	PublishedAt     time.Time    `json:"published_at" db:"published_at"`
	Text            string       `json:"text" db:"text"`
	Attachments     []Attachment `json:"attachments" db:"-"`

	Views    int64 `json:"views" db:"views"`
	Likes    int64 `json:"likes" db:"likes"`
	Reposts  int64 `json:"reposts" db:"reposts"`
	Comments int64 `json:"comments" db:"comments"`

	AICategory     string         `json:"ai_category" db:"ai_category"`
	AIScore        int            `json:"ai_score" db:"ai_score"`
	SentimentLabel SentimentLabel `json:"sentiment_label" db:"sentiment_label"`
	Status         PostStatus     `json:"status" db:"status"`
	RejectReason   string         `json:"reject_reason,omitempty" db:"reject_reason"`

	FingerprintLIP      string   `json:"fingerprint_lip" db:"fingerprint_lip"`
	FingerprintTextFull string   `json:"fingerprint_text_full" db:"fingerprint_text_full"`
	FingerprintTextCore string   `json:"fingerprint_text_core" db:"fingerprint_text_core"`
	FingerprintMedia    []string `json:"fingerprint_media" db:"-"`
	FingerprintVersion  int      `json:"fingerprint_version" db:"fingerprint_version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Engagement returns the weighted engagement metric used by the scorer:
// views + 2*likes + 3*reposts + 4*comments.
func (p *Post) Engagement() int64 {
	return p.Views + 2*p.Likes + 3*p.Reposts + 4*p.Comments
}

// TransitionStatus moves the post to the next status. Terminal states are
// immutable; attempting to leave one is an error.
func (p *Post) TransitionStatus(next PostStatus) error {
	if p.Status.Terminal() && next != p.Status {
		return fmt.Errorf("post %s: status %s is terminal, cannot transition to %s",
			p.FingerprintLIP, p.Status, next)
	}
	p.Status = next
	return nil
}

// AdjustScore applies a filter stage's score delta, clamping to [0, 100].
func (p *Post) AdjustScore(delta int) {
	s := p.AIScore + delta
	if s < 0 {
		s = 0
	}
	if s > 100 {
		s = 100
	}
	p.AIScore = s
}

// HasMedia reports whether the post carries photo or video attachments.
func (p *Post) HasMedia() bool {
	for _, a := range p.Attachments {
		if a.Type == AttachmentPhoto || a.Type == AttachmentVideo {
			return true
		}
	}
	return false
}
