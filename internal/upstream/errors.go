// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package upstream

import (
	"errors"
	"fmt"
)

// Upstream API error codes we act on. Anything else is reported verbatim.
const (
	codeAuthFailed       = 5
	codeTooManyRequests  = 6
	codePermissionDenied = 7
	codeFloodControl     = 9
	codeAccessDenied     = 15
	codeTokenExpired     = 27
	codeTokenRevoked     = 28
	codeWallDisabled     = 19
)

// APIError is an error reported by the upstream API itself, as opposed to a
// transport failure.
type APIError struct {
	Code    int
	Message string
	Method  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream %s: api error %d: %s", e.Method, e.Code, e.Message)
}

// RateLimited reports whether the error is a throughput rejection. These are
// retried once after a short pause; persistent ones mean the rate gate and
// the upstream budget disagree.
func (e *APIError) RateLimited() bool {
	return e.Code == codeTooManyRequests || e.Code == codeFloodControl
}

// AuthFailure reports whether the credential itself is bad. These are never
// retried; the caller marks the credential invalid and picks another.
func (e *APIError) AuthFailure() bool {
	switch e.Code {
	case codeAuthFailed, codeTokenExpired, codeTokenRevoked:
		return true
	}
	return false
}

// AccessDenied reports whether the target refuses this credential (private
// wall, revoked group access). The community is the problem, not the token.
func (e *APIError) AccessDenied() bool {
	switch e.Code {
	case codePermissionDenied, codeAccessDenied, codeWallDisabled:
		return true
	}
	return false
}

// IsAuthFailure reports whether err is an upstream authentication failure.
func IsAuthFailure(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.AuthFailure()
}

// IsAccessDenied reports whether err is an upstream access refusal.
func IsAccessDenied(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.AccessDenied()
}

// IsRateLimited reports whether err is an upstream throughput rejection.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.RateLimited()
}
