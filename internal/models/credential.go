// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package models

import "time"

// CredentialStatus is the validation state of an upstream access token.
type CredentialStatus string

const (
	CredentialUnknown CredentialStatus = "unknown"
	CredentialValid   CredentialStatus = "valid"
	CredentialInvalid CredentialStatus = "invalid"
)

// Credential is an upstream access token identified by a human-readable
// name. Only credentials with Status=valid and IsActive=true are eligible
// for scans.
type Credential struct {
	ID            int64             `json:"id" db:"id"`
	Name          string            `json:"name" db:"name"`
	Secret        string            `json:"-" db:"secret"`
	IsActive      bool              `json:"is_active" db:"is_active"`
	LastUsed      *time.Time        `json:"last_used,omitempty" db:"last_used"`
	LastValidated *time.Time        `json:"last_validated,omitempty" db:"last_validated"`
	Status        CredentialStatus  `json:"status" db:"status"`
	ErrorMessage  string            `json:"error_message,omitempty" db:"error_message"`
	Permissions   []string          `json:"permissions" db:"-"`
	UserInfo      map[string]string `json:"user_info" db:"-"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}

// Eligible reports whether the credential may be paired with a scan.
func (c *Credential) Eligible() bool {
	return c.IsActive && c.Status == CredentialValid
}

// MaskedSecret returns the secret truncated for operator-facing output.
// Secrets are never returned whole.
func (c *Credential) MaskedSecret() string {
	const visible = 20
	if len(c.Secret) <= visible {
		return c.Secret
	}
	return c.Secret[:visible] + "…"
}
