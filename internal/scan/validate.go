// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/okrugmedia/svodka/internal/metrics"
	"github.com/okrugmedia/svodka/internal/models"
	"github.com/okrugmedia/svodka/internal/upstream"
)

// ValidateCredentials revalidates every active credential against the
// upstream. Invalid credentials are excluded from carousel selection until
// a later validation pass restores them. Transport failures leave the
// recorded status untouched.
func (r *Runner) ValidateCredentials(ctx context.Context) error {
	creds, err := r.store.ListCredentials(ctx)
	if err != nil {
		return fmt.Errorf("validate: list credentials: %w", err)
	}

	var firstErr error
	for i := range creds {
		cred := &creds[i]
		if !cred.IsActive {
			continue
		}
		if err := r.validateOne(ctx, cred); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Runner) validateOne(ctx context.Context, cred *models.Credential) error {
	for {
		decision := r.gate.AdmitCredential(ctx, cred.Name)
		if decision.Allowed {
			break
		}
		if decision.Reason == "denylisted" {
			return fmt.Errorf("validate: credential %s is denylisted", cred.Name)
		}
		wait := decision.RetryAfter
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	account, err := r.client.ValidateCredential(ctx, cred.Secret)
	switch {
	case err == nil:
		if err := r.store.SetCredentialStatus(ctx, cred.ID, models.CredentialValid, "", account.Permissions); err != nil {
			return err
		}
		r.logger.Debug().
			Str("credential", cred.Name).
			Int64("user", account.UserID).
			Msg("credential validated")
		return nil
	case upstream.IsAuthFailure(err):
		metrics.CredentialInvalidations.Inc()
		if err := r.store.SetCredentialStatus(ctx, cred.ID, models.CredentialInvalid, err.Error(), nil); err != nil {
			return err
		}
		r.logger.Warn().
			Str("credential", cred.Name).
			Str("secret", cred.MaskedSecret()).
			Msg("credential failed validation")
		return nil
	default:
		// Transport trouble says nothing about the token; keep the last
		// known status.
		r.logger.Warn().Err(err).
			Str("credential", cred.Name).
			Msg("credential validation inconclusive")
		return err
	}
}
