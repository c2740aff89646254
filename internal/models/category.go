// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package models

// DigestCategory is the coarse content category used for digest slot
// allocation. Posts are bucketed into one of five categories derived from
// their source community.
type DigestCategory string

const (
	DigestNews     DigestCategory = "novost"
	DigestAdmin    DigestCategory = "admin"
	DigestCulture  DigestCategory = "kultura"
	DigestSport    DigestCategory = "sport"
	DigestNeighbor DigestCategory = "sosed"
)

// DigestCategories lists every digest category in slot-table order.
var DigestCategories = []DigestCategory{
	DigestNews, DigestAdmin, DigestCulture, DigestSport, DigestNeighbor,
}

// DigestCategoryFor maps a community's taxonomy entry onto the digest
// category. Posts sourced from a neighboring region are always "sosed",
// whatever their community category.
func DigestCategoryFor(c CommunityCategory, neighbor bool) DigestCategory {
	if neighbor {
		return DigestNeighbor
	}
	switch c {
	case CategoryAdministration:
		return DigestAdmin
	case CategorySports:
		return DigestSport
	case CategoryCulture, CategoryYouth, CategoryPreschoolEducation,
		CategoryOrthodoxNews, CategoryEntertainment:
		return DigestCulture
	default:
		return DigestNews
	}
}
