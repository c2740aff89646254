// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

// Package fingerprint derives the four content fingerprints of a post:
//
//   - LIP (structural): "<owner>_<post_id>", unique per upstream post
//   - text-full: hash of the full normalized text
//   - text-core: hash of the middle 20-70% slice of the normalized text,
//     robust to boilerplate headers and footers
//   - media: the sorted set of photo/video attachment identifiers
//
// Fingerprints are deterministic and stable across restarts. Any change to
// the normalization rules must bump Version and re-derive stored
// fingerprints in a migration.
package fingerprint

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/okrugmedia/svodka/internal/models"
)

// Version tags computed fingerprints. Bump when normalization changes.
const Version = 1

// coreSliceStart and coreSliceEnd bound the text-core slice as fractions of
// the normalized character length.
const (
	coreSliceStart = 0.20
	coreSliceEnd   = 0.70
	// coreMinLength is the normalized length below which the full text is
	// used instead of the core slice.
	coreMinLength = 50
)

// LIP returns the structural fingerprint of an upstream post.
func LIP(ownerID, postID int64) string {
	return fmt.Sprintf("%d_%d", ownerID, postID)
}

// Normalize canonicalizes text for hashing: lowercase, whitespace collapsed
// to single spaces, zero-width and control characters stripped, and only
// Cyrillic and Latin letters, digits and spaces kept. Invalid UTF-8
// (unpaired surrogates) is dropped by Go's range-over-string decoding.
// Normalize is idempotent.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		if r == unicode.ReplacementChar {
			continue
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if !keepRune(r) {
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func keepRune(r rune) bool {
	if r >= '0' && r <= '9' {
		return true
	}
	return unicode.In(r, unicode.Cyrillic, unicode.Latin)
}

// TextFull returns the hash of the full normalized text. Empty normalized
// text yields an empty fingerprint.
func TextFull(text string) string {
	n := Normalize(text)
	if n == "" {
		return ""
	}
	return hash(n)
}

// TextCore returns the hash of the middle 20-70% character slice of the
// normalized text (half-open). Texts shorter than 50 normalized characters
// hash in full.
func TextCore(text string) string {
	n := Normalize(text)
	if n == "" {
		return ""
	}
	runes := []rune(n)
	l := len(runes)
	if l < coreMinLength {
		return hash(n)
	}
	from := int(coreSliceStart * float64(l))
	to := int(coreSliceEnd * float64(l))
	return hash(string(runes[from:to]))
}

// Media returns the lexicographically sorted identifiers of photo and video
// attachments. Other attachment types do not contribute.
func Media(attachments []models.Attachment) []string {
	var ids []string
	for _, a := range attachments {
		if a.Type != models.AttachmentPhoto && a.Type != models.AttachmentVideo {
			continue
		}
		if a.RemoteID == "" {
			continue
		}
		ids = append(ids, a.RemoteID)
	}
	sort.Strings(ids)
	return ids
}

// Apply computes all four fingerprints and stamps them onto the post.
func Apply(p *models.Post) {
	p.FingerprintLIP = LIP(p.ExternalOwnerID, p.ExternalPostID)
	p.FingerprintTextFull = TextFull(p.Text)
	p.FingerprintTextCore = TextCore(p.Text)
	p.FingerprintMedia = Media(p.Attachments)
	p.FingerprintVersion = Version
}

func hash(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}
