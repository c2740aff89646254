// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package models

import "time"

// CommunityCategory is the closed taxonomy of upstream source categories.
type CommunityCategory string

const (
	CategoryAdministration     CommunityCategory = "administration"
	CategoryCulture            CommunityCategory = "culture"
	CategoryYouth              CommunityCategory = "youth"
	CategorySports             CommunityCategory = "sports"
	CategoryPreschoolEducation CommunityCategory = "preschool_education"
	CategoryNews               CommunityCategory = "news"
	CategoryOrthodoxNews       CommunityCategory = "orthodox_news"
	CategoryAdvertising        CommunityCategory = "advertising"
	CategoryEntertainment      CommunityCategory = "entertainment"
	CategoryScienceNews        CommunityCategory = "science_news"
)

// ValidCommunityCategories contains every allowed category tag.
var ValidCommunityCategories = []CommunityCategory{
	CategoryAdministration,
	CategoryCulture,
	CategoryYouth,
	CategorySports,
	CategoryPreschoolEducation,
	CategoryNews,
	CategoryOrthodoxNews,
	CategoryAdvertising,
	CategoryEntertainment,
	CategoryScienceNews,
}

// Valid reports whether the category is part of the closed taxonomy.
func (c CommunityCategory) Valid() bool {
	for _, v := range ValidCommunityCategories {
		if c == v {
			return true
		}
	}
	return false
}

// Community is an upstream source bound to exactly one region. ExternalID is
// the upstream identifier; negative values denote group-type sources.
// (ExternalID, RegionID) is unique. Deactivating a community halts scanning
// but preserves history.
type Community struct {
	ID          int64             `json:"id" db:"id"`
	RegionID    int64             `json:"region_id" db:"region_id"`
	ExternalID  int64             `json:"external_id" db:"external_id"`
	ScreenName  string            `json:"screen_name,omitempty" db:"screen_name"`
	Name        string            `json:"name" db:"name"`
	Category    CommunityCategory `json:"category" db:"category"`
	IsActive    bool              `json:"is_active" db:"is_active"`
	LastChecked *time.Time        `json:"last_checked,omitempty" db:"last_checked"`
	PostCount   int64             `json:"post_count" db:"post_count"`
	ErrorCount  int64             `json:"error_count" db:"error_count"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

// IsGroup reports whether the upstream source is a group-type community.
func (c *Community) IsGroup() bool {
	return c.ExternalID < 0
}
