// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package models

import "time"

// TimeSlot is a time-of-day bucket for digest assembly and publication.
type TimeSlot string

const (
	SlotMorning   TimeSlot = "morning"   // 06-11
	SlotAfternoon TimeSlot = "afternoon" // 12-17
	SlotEvening   TimeSlot = "evening"   // 18-22
)

// SlotHours returns the inclusive hour range covered by the slot.
func SlotHours(slot TimeSlot) (from, to int, ok bool) {
	switch slot {
	case SlotMorning:
		return 6, 11, true
	case SlotAfternoon:
		return 12, 17, true
	case SlotEvening:
		return 18, 22, true
	}
	return 0, 0, false
}

// SlotForHour returns the slot containing the hour, if any.
func SlotForHour(hour int) (TimeSlot, bool) {
	switch {
	case hour >= 6 && hour <= 11:
		return SlotMorning, true
	case hour >= 12 && hour <= 17:
		return SlotAfternoon, true
	case hour >= 18 && hour <= 22:
		return SlotEvening, true
	}
	return "", false
}

// Digest is an ordered list of post references assembled for a region and
// topic. A digest is immutable once scheduled; cancellation creates a new
// record rather than mutating the scheduled one.
type Digest struct {
	ID          string                    `json:"id" db:"id"`
	RegionID    int64                     `json:"region_id" db:"region_id"`
	Topic       string                    `json:"topic" db:"topic"`
	PostIDs     []int64                   `json:"post_ids" db:"-"`
	ScheduledAt *time.Time                `json:"scheduled_at,omitempty" db:"scheduled_at"`
	Cancelled   bool                      `json:"cancelled" db:"cancelled"`
	Template    EffectiveTemplateSettings `json:"template" db:"-"`
	Stats       DigestStats               `json:"stats" db:"-"`
	CreatedAt   time.Time                 `json:"created_at" db:"created_at"`
}

// Scheduled reports whether the digest has been scheduled and is therefore
// immutable.
func (d *Digest) Scheduled() bool {
	return d.ScheduledAt != nil
}

// DigestStats summarizes an assembled digest.
type DigestStats struct {
	CategoryCounts  map[string]int            `json:"category_counts"`
	SentimentCounts map[SentimentLabel]int    `json:"sentiment_counts"`
	AverageScore    float64                   `json:"average_score"`
	// DiversityScore is distinct categories divided by total posts.
	DiversityScore float64 `json:"diversity_score"`
}

// EngagementSample is a derived aggregate of post engagement for one
// (region, hour-of-day, weekday) bucket. It is regenerable from accepted
// posts at any time.
type EngagementSample struct {
	RegionID  int64        `json:"region_id" db:"region_id"`
	Hour      int          `json:"hour" db:"hour"`
	Weekday   time.Weekday `json:"weekday" db:"weekday"`
	Average   float64      `json:"average" db:"average"`
	PostCount int64        `json:"post_count" db:"post_count"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}
