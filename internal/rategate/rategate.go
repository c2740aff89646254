// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

// Package rategate enforces sliding-window request budgets for upstream
// credentials and remote clients. The window is a time-ordered multiset of
// request timestamps per key, pruned on each admission; a denial reports
// retry_after = window - (now - oldest), rounded up to whole seconds.
//
// Budgets live in a shared key-value store (redis) so horizontally scaled
// workers share them. If the store is unavailable the gate fails open:
// the request is admitted, a warning is logged and a distinct metric is
// incremented so operators can detect the condition.
package rategate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/okrugmedia/svodka/internal/metrics"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	// Reason is one of "", "allowlisted", "denylisted", "limit", "failopen".
	Reason string
}

// Backend performs the atomic trim-old + count + add operation for a key.
// Implementations must be safe for concurrent admission checks.
type Backend interface {
	Admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Decision, error)
}

// Scope names a budget class for metrics.
const (
	ScopeCredential = "credential"
	ScopeClient     = "client"
)

// Limits holds the two budget scopes of the gate.
type Limits struct {
	CredentialLimit  int
	CredentialWindow time.Duration
	ClientLimit      int
	ClientWindow     time.Duration
}

// DefaultLimits are the documented defaults: 3 requests/second per
// credential, 100 requests/minute per client.
func DefaultLimits() Limits {
	return Limits{
		CredentialLimit:  3,
		CredentialWindow: time.Second,
		ClientLimit:      100,
		ClientWindow:     time.Minute,
	}
}

// Gate combines allow/deny lists with sliding-window budgets. Lists are
// consulted before the window check.
type Gate struct {
	backend Backend
	limits  Limits
	logger  zerolog.Logger

	mu        sync.RWMutex
	allowlist map[string]struct{}
	denylist  map[string]struct{}
}

// New creates a gate over the given backend.
func New(backend Backend, limits Limits, logger zerolog.Logger) *Gate {
	if limits.CredentialLimit <= 0 {
		limits.CredentialLimit = DefaultLimits().CredentialLimit
	}
	if limits.CredentialWindow <= 0 {
		limits.CredentialWindow = DefaultLimits().CredentialWindow
	}
	if limits.ClientLimit <= 0 {
		limits.ClientLimit = DefaultLimits().ClientLimit
	}
	if limits.ClientWindow <= 0 {
		limits.ClientWindow = DefaultLimits().ClientWindow
	}
	return &Gate{
		backend:   backend,
		limits:    limits,
		logger:    logger.With().Str("component", "rategate").Logger(),
		allowlist: make(map[string]struct{}),
		denylist:  make(map[string]struct{}),
	}
}

// Allowlist exempts a key from budget checks.
func (g *Gate) Allowlist(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowlist[key] = struct{}{}
}

// Denylist rejects a key unconditionally.
func (g *Gate) Denylist(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.denylist[key] = struct{}{}
}

// Unlist removes a key from both lists.
func (g *Gate) Unlist(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.allowlist, key)
	delete(g.denylist, key)
}

// AdmitCredential checks the per-credential budget.
func (g *Gate) AdmitCredential(ctx context.Context, name string) Decision {
	return g.admit(ctx, ScopeCredential, "cred:"+name, g.limits.CredentialLimit, g.limits.CredentialWindow)
}

// AdmitClient checks the per-client-ip budget.
func (g *Gate) AdmitClient(ctx context.Context, ip string) Decision {
	return g.admit(ctx, ScopeClient, "client:"+ip, g.limits.ClientLimit, g.limits.ClientWindow)
}

func (g *Gate) admit(ctx context.Context, scope, key string, limit int, window time.Duration) Decision {
	g.mu.RLock()
	_, denied := g.denylist[key]
	_, allowed := g.allowlist[key]
	g.mu.RUnlock()

	if denied {
		metrics.GateDecisions.WithLabelValues(scope, "listed").Inc()
		return Decision{Allowed: false, Reason: "denylisted"}
	}
	if allowed {
		metrics.GateDecisions.WithLabelValues(scope, "listed").Inc()
		return Decision{Allowed: true, Reason: "allowlisted"}
	}

	d, err := g.backend.Admit(ctx, key, limit, window, time.Now())
	if err != nil {
		// Deliberate availability trade: admit on gate store failure.
		metrics.GateFailOpen.Inc()
		g.logger.Warn().Err(err).Str("key", key).Msg("gate store unavailable, failing open")
		return Decision{Allowed: true, Reason: "failopen"}
	}

	if d.Allowed {
		metrics.GateDecisions.WithLabelValues(scope, "admitted").Inc()
	} else {
		metrics.GateDecisions.WithLabelValues(scope, "denied").Inc()
		d.Reason = "limit"
	}
	return d
}

// retryAfter computes the denial backoff: the window minus the age of the
// oldest timestamp still inside it, rounded up to whole seconds.
func retryAfter(window, oldestAge time.Duration) time.Duration {
	remaining := window - oldestAge
	if remaining <= 0 {
		return time.Second
	}
	secs := remaining / time.Second
	if remaining%time.Second != 0 {
		secs++
	}
	return secs * time.Second
}
