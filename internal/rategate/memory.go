// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package rategate

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps per-key timestamp multisets in process memory. It is
// exact (the denial reports the true oldest timestamp) and is intended for
// tests and single-node deployments; scaled deployments use RedisBackend
// so workers share budgets.
type MemoryBackend struct {
	mu    sync.Mutex
	keys  map[string][]time.Time
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{keys: make(map[string][]time.Time)}
}

// Admit prunes timestamps outside the window, admits when the remaining
// count is strictly below the limit, and records the request timestamp on
// admission. The whole operation holds the lock, so concurrent admissions
// are serialized per backend.
func (m *MemoryBackend) Admit(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-window)
	stamps := m.keys[key]

	// Prune: timestamps are appended in order, so find the first one
	// inside the window.
	keep := 0
	for keep < len(stamps) && !stamps[keep].After(cutoff) {
		keep++
	}
	stamps = stamps[keep:]

	if len(stamps) < limit {
		m.keys[key] = append(stamps, now)
		return Decision{Allowed: true}, nil
	}

	m.keys[key] = stamps
	return Decision{
		Allowed:    false,
		RetryAfter: retryAfter(window, now.Sub(stamps[0])),
	}, nil
}

// Reset clears all recorded timestamps.
func (m *MemoryBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = make(map[string][]time.Time)
}
