// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package rategate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMemoryBackendSlidingWindow(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	base := time.Now()

	// 5 requests per minute, one per second.
	for i := 0; i < 5; i++ {
		d, err := b.Admit(ctx, "cred:a", 5, time.Minute, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied under the limit", i)
		}
	}

	// The 6th at t=5s is denied; the oldest slot frees at t=60s.
	d, err := b.Admit(ctx, "cred:a", 5, time.Minute, base.Add(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("6th request admitted over the limit")
	}
	if d.RetryAfter != 55*time.Second {
		t.Errorf("retry_after = %v, want 55s", d.RetryAfter)
	}
}

func TestMemoryBackendPrunesOldStamps(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		b.Admit(ctx, "cred:a", 5, time.Minute, base.Add(time.Duration(i)*time.Second))
	}

	// At t=61s the stamps at 0s and 1s have left the window.
	d, err := b.Admit(ctx, "cred:a", 5, time.Minute, base.Add(61*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Error("request denied after window slid past old stamps")
	}
}

func TestMemoryBackendKeysIndependent(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		b.Admit(ctx, "cred:a", 3, time.Second, now)
	}
	d, _ := b.Admit(ctx, "cred:a", 3, time.Second, now)
	if d.Allowed {
		t.Fatal("exhausted key still admitted")
	}
	d, _ = b.Admit(ctx, "cred:b", 3, time.Second, now)
	if !d.Allowed {
		t.Error("fresh key denied by another key's budget")
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	tests := []struct {
		window, oldestAge, want time.Duration
	}{
		{time.Minute, 5 * time.Second, 55 * time.Second},
		{time.Minute, 4500 * time.Millisecond, 56 * time.Second},
		{time.Second, 300 * time.Millisecond, time.Second},
		{time.Second, 2 * time.Second, time.Second}, // stale oldest still waits a beat
	}
	for _, tt := range tests {
		if got := retryAfter(tt.window, tt.oldestAge); got != tt.want {
			t.Errorf("retryAfter(%v, %v) = %v, want %v", tt.window, tt.oldestAge, got, tt.want)
		}
	}
}

func TestGateDeniesOverLimit(t *testing.T) {
	g := New(NewMemoryBackend(), Limits{
		CredentialLimit:  3,
		CredentialWindow: time.Minute,
		ClientLimit:      100,
		ClientWindow:     time.Minute,
	}, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if d := g.AdmitCredential(ctx, "main"); !d.Allowed {
			t.Fatalf("request %d denied under the limit", i)
		}
	}
	d := g.AdmitCredential(ctx, "main")
	if d.Allowed {
		t.Fatal("request admitted over the limit")
	}
	if d.Reason != "limit" {
		t.Errorf("reason = %q, want limit", d.Reason)
	}
	if d.RetryAfter <= 0 {
		t.Errorf("retry_after = %v, want positive", d.RetryAfter)
	}
}

func TestGateScopesAreSeparate(t *testing.T) {
	g := New(NewMemoryBackend(), Limits{
		CredentialLimit:  1,
		CredentialWindow: time.Minute,
		ClientLimit:      1,
		ClientWindow:     time.Minute,
	}, zerolog.Nop())
	ctx := context.Background()

	g.AdmitCredential(ctx, "x")
	if d := g.AdmitClient(ctx, "x"); !d.Allowed {
		t.Error("client budget consumed by credential admission")
	}
}

func TestGateAllowlist(t *testing.T) {
	g := New(NewMemoryBackend(), Limits{CredentialLimit: 1, CredentialWindow: time.Minute}, zerolog.Nop())
	ctx := context.Background()
	g.Allowlist("cred:vip")

	for i := 0; i < 10; i++ {
		d := g.AdmitCredential(ctx, "vip")
		if !d.Allowed {
			t.Fatalf("allowlisted credential denied on request %d", i)
		}
		if d.Reason != "allowlisted" {
			t.Fatalf("reason = %q, want allowlisted", d.Reason)
		}
	}
}

func TestGateDenylist(t *testing.T) {
	g := New(NewMemoryBackend(), DefaultLimits(), zerolog.Nop())
	ctx := context.Background()
	g.Denylist("cred:bad")

	d := g.AdmitCredential(ctx, "bad")
	if d.Allowed {
		t.Fatal("denylisted credential admitted")
	}
	if d.Reason != "denylisted" {
		t.Errorf("reason = %q, want denylisted", d.Reason)
	}

	g.Unlist("cred:bad")
	if d := g.AdmitCredential(ctx, "bad"); !d.Allowed {
		t.Error("unlisted credential still denied")
	}
}

type failingBackend struct{}

func (failingBackend) Admit(context.Context, string, int, time.Duration, time.Time) (Decision, error) {
	return Decision{}, errors.New("store down")
}

func TestGateFailsOpen(t *testing.T) {
	g := New(failingBackend{}, DefaultLimits(), zerolog.Nop())

	d := g.AdmitCredential(context.Background(), "main")
	if !d.Allowed {
		t.Fatal("gate denied while store is down")
	}
	if d.Reason != "failopen" {
		t.Errorf("reason = %q, want failopen", d.Reason)
	}
}
