// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

// Package upstream implements the client for the VK-style community wall
// API. All operations go through a shared pooled transport, a circuit
// breaker, and a bounded retry policy; API-level errors are classified so
// callers can distinguish a dead credential from a private wall or an
// upstream outage.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/okrugmedia/svodka/internal/logging"
	"github.com/okrugmedia/svodka/internal/metrics"
)

// Config carries client tunables. Zero values take the defaults below.
type Config struct {
	BaseURL        string
	APIVersion     string
	RequestTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.vk.com/method",
		APIVersion:     "5.131",
		RequestTimeout: 30 * time.Second,
		MaxRetries:     3,
		BackoffBase:    2 * time.Second,
		BackoffMax:     10 * time.Second,
	}
}

// Client is a thread-safe upstream API client. One instance is shared by
// all scan workers; per-credential pacing is the rate gate's job, not ours.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  zerolog.Logger
}

// New creates a client with a pooled transport and a circuit breaker that
// opens after repeated transport failures.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = def.APIVersion
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}

	logger := logging.Component("upstream")
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "upstream",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				// MaxConnsPerHost bounds in-flight connections too, not just
				// the idle pool. DNS caching is the resolver's business.
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				MaxConnsPerHost:     5,
				IdleConnTimeout:     300 * time.Second,
			},
		},
		breaker: breaker,
		logger:  logger,
	}
}

// WallGet fetches one page of a community wall. ownerID is negative for
// groups, per the upstream convention.
func (c *Client) WallGet(ctx context.Context, secret string, ownerID int64, count, offset int) (*WallPage, error) {
	params := url.Values{}
	params.Set("owner_id", strconv.FormatInt(ownerID, 10))
	params.Set("count", strconv.Itoa(count))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("filter", "owner")

	raw, err := c.call(ctx, secret, "wall.get", params)
	if err != nil {
		return nil, err
	}
	var page WallPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("upstream wall.get: decode: %w", err)
	}
	return &page, nil
}

// WallPostByID fetches a single post, used to refresh engagement counters.
func (c *Client) WallPostByID(ctx context.Context, secret string, ownerID, postID int64) (*WallPost, error) {
	params := url.Values{}
	params.Set("posts", fmt.Sprintf("%d_%d", ownerID, postID))

	raw, err := c.call(ctx, secret, "wall.getById", params)
	if err != nil {
		return nil, err
	}
	var posts []WallPost
	if err := json.Unmarshal(raw, &posts); err != nil {
		return nil, fmt.Errorf("upstream wall.getById: decode: %w", err)
	}
	if len(posts) == 0 {
		return nil, &APIError{Code: codeAccessDenied, Message: "post not found or hidden", Method: "wall.getById"}
	}
	return &posts[0], nil
}

// GroupInfo fetches a single community descriptor.
func (c *Client) GroupInfo(ctx context.Context, secret string, groupID int64) (*Group, error) {
	groups, err := c.GroupsBatch(ctx, secret, []int64{groupID})
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, &APIError{Code: codeAccessDenied, Message: "group not found", Method: "groups.getById"}
	}
	return &groups[0], nil
}

// GroupsBatch fetches up to 500 community descriptors in one request.
func (c *Client) GroupsBatch(ctx context.Context, secret string, groupIDs []int64) ([]Group, error) {
	ids := make([]string, len(groupIDs))
	for i, id := range groupIDs {
		if id < 0 {
			id = -id
		}
		ids[i] = strconv.FormatInt(id, 10)
	}
	params := url.Values{}
	params.Set("group_ids", strings.Join(ids, ","))
	params.Set("fields", "members_count")

	raw, err := c.call(ctx, secret, "groups.getById", params)
	if err != nil {
		return nil, err
	}
	var groups []Group
	if err := json.Unmarshal(raw, &groups); err != nil {
		// Newer API versions wrap the list in an object.
		var wrapped struct {
			Groups []Group `json:"groups"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, fmt.Errorf("upstream groups.getById: decode: %w", err)
		}
		groups = wrapped.Groups
	}
	return groups, nil
}

// ValidateCredential checks that the secret still authenticates and
// returns the owning account. An AuthFailure error here means the
// credential should be marked invalid.
func (c *Client) ValidateCredential(ctx context.Context, secret string) (*Account, error) {
	raw, err := c.call(ctx, secret, "users.get", url.Values{})
	if err != nil {
		return nil, err
	}
	var users []wireUser
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("upstream users.get: decode: %w", err)
	}
	if len(users) == 0 {
		return nil, &APIError{Code: codeAuthFailed, Message: "token resolves to no user", Method: "users.get"}
	}

	account := &Account{
		UserID: users[0].ID,
		Name:   strings.TrimSpace(users[0].FirstName + " " + users[0].LastName),
	}

	// Permission bits are informational; a failure here does not fail the
	// validation.
	if raw, err := c.call(ctx, secret, "account.getAppPermissions", url.Values{}); err == nil {
		var mask int64
		if json.Unmarshal(raw, &mask) == nil {
			account.Permissions = decodePermissions(mask)
		}
	}
	return account, nil
}

var permissionBits = []struct {
	bit  int64
	name string
}{
	{1 << 0, "notify"},
	{1 << 1, "friends"},
	{1 << 2, "photos"},
	{1 << 3, "audio"},
	{1 << 4, "video"},
	{1 << 13, "wall"},
	{1 << 17, "groups"},
	{1 << 27, "offline"},
}

func decodePermissions(mask int64) []string {
	var out []string
	for _, p := range permissionBits {
		if mask&p.bit != 0 {
			out = append(out, p.name)
		}
	}
	return out
}

// call runs one API method with the full resilience stack: a rate-limit
// pause-and-retry, transport retries with exponential backoff, and the
// circuit breaker around each attempt. API errors other than rate limits
// are permanent.
func (c *Client) call(ctx context.Context, secret, method string, params url.Values) (rawMessage, error) {
	start := time.Now()
	var out rawMessage

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BackoffBase
	bo.MaxInterval = c.cfg.BackoffMax

	op := func() error {
		raw, err := c.attemptOnce(ctx, secret, method, params)
		if err == nil {
			out = raw
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if apiErr.RateLimited() {
				// The upstream budget disagrees with the gate; pause a
				// second and try again at most once per call.
				select {
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				case <-time.After(time.Second):
				}
				raw, err = c.attemptOnce(ctx, secret, method, params)
				if err == nil {
					out = raw
					return nil
				}
			}
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx))

	metrics.UpstreamRequestDuration.WithLabelValues(method).
		Observe(time.Since(start).Seconds())
	metrics.UpstreamRequests.WithLabelValues(method, outcome(err)).Inc()

	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Msg("upstream call failed")
		return nil, err
	}
	return out, nil
}

// attemptOnce performs a single HTTP round trip through the breaker and
// unwraps the API envelope.
func (c *Client) attemptOnce(ctx context.Context, secret, method string, params url.Values) (rawMessage, error) {
	form := url.Values{}
	for k, vs := range params {
		form[k] = vs
	}
	form.Set("access_token", secret)
	form.Set("v", c.cfg.APIVersion)

	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+"/"+method, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("upstream %s: %w", method, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("upstream %s: http %d", method, resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	})
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("upstream %s: decode envelope: %w", method, err)
	}
	if env.Error != nil {
		return nil, &APIError{Code: env.Error.Code, Message: env.Error.Message, Method: method}
	}
	return env.Response, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsRateLimited(err):
		return "rate_limited"
	case IsAuthFailure(err):
		return "auth"
	case IsAccessDenied(err):
		return "denied"
	default:
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return "api_error"
		}
		return "transport"
	}
}
