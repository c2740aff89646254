// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

// Package models provides the canonical data structures for Svodka.
//
// Posts arrive as loose records from the upstream API and also as persisted
// rows; both are represented by the single canonical Post type with explicit
// optional fields. The upstream client decodes raw payloads into this shape
// at the boundary; nothing downstream inspects raw upstream JSON.
package models
