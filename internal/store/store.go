// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

// Package store defines the authoritative repositories for Svodka entities.
// Two implementations are provided: Postgres (production) and Memory
// (tests, single-node evaluation). The unique constraint on a post's LIP
// fingerprint is the final authority on deduplication; duplicate inserts
// from concurrent scans surface as ErrDuplicateLIP.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/okrugmedia/svodka/internal/models"
)

// Sentinel errors shared by all implementations.
var (
	ErrNotFound       = errors.New("store: not found")
	ErrDuplicateLIP   = errors.New("store: duplicate post fingerprint")
	ErrImmutable      = errors.New("store: record is immutable")
	ErrConflict       = errors.New("store: transaction conflict")
	ErrInvalidInput   = errors.New("store: invalid input")
)

// PostStats is the refreshable engagement portion of a post.
type PostStats struct {
	Views    int64
	Likes    int64
	Reposts  int64
	Comments int64
}

// Store is the transactional repository surface used by the engine.
type Store interface {
	RegionStore
	CommunityStore
	CredentialStore
	PostStore
	TaskStore
	DigestStore
	EngagementStore
	ModerationStore

	// Close releases the underlying resources.
	Close() error
}

// RegionStore manages regions.
type RegionStore interface {
	CreateRegion(ctx context.Context, r *models.Region) error
	GetRegion(ctx context.Context, id int64) (*models.Region, error)
	GetRegionByCode(ctx context.Context, code string) (*models.Region, error)
	ListActiveRegions(ctx context.Context) ([]models.Region, error)
	UpdateRegionConfig(ctx context.Context, id int64, cfg models.RegionConfig) error
	// AddNeighbor links two regions symmetrically: adding Y to X also adds
	// X to Y, as two writes in one transaction.
	AddNeighbor(ctx context.Context, code, neighborCode string) error
	DeactivateRegion(ctx context.Context, id int64) error
}

// CommunityStore manages upstream sources.
type CommunityStore interface {
	CreateCommunity(ctx context.Context, c *models.Community) error
	GetCommunity(ctx context.Context, id int64) (*models.Community, error)
	ListActiveCommunities(ctx context.Context, regionID int64) ([]models.Community, error)
	SetCommunityActive(ctx context.Context, id int64, active bool) error
	TouchCommunityChecked(ctx context.Context, id int64, at time.Time, postDelta, errorDelta int64) error
	DeleteCommunity(ctx context.Context, id int64) error
}

// CredentialStore manages upstream access tokens.
type CredentialStore interface {
	CreateCredential(ctx context.Context, c *models.Credential) error
	GetCredential(ctx context.Context, id int64) (*models.Credential, error)
	GetCredentialByName(ctx context.Context, name string) (*models.Credential, error)
	ListCredentials(ctx context.Context) ([]models.Credential, error)
	// SetCredentialStatus records a validation outcome.
	SetCredentialStatus(ctx context.Context, id int64, status models.CredentialStatus, errMsg string, permissions []string) error
	TouchCredentialUsed(ctx context.Context, id int64, at time.Time) error
}

// PostStore manages canonical posts and their fingerprints.
type PostStore interface {
	// InsertPost persists a new post. The LIP unique constraint is checked
	// in the same transaction as the insert; a duplicate returns
	// ErrDuplicateLIP.
	InsertPost(ctx context.Context, p *models.Post) error
	GetPostByLIP(ctx context.Context, lip string) (*models.Post, error)
	// RefreshPostStats upserts the engagement counters of an existing post
	// without re-running filters.
	RefreshPostStats(ctx context.Context, lip string, stats PostStats) error
	// SetPostStatus transitions a post's status. Terminal statuses are
	// immutable; violating transitions return ErrImmutable.
	SetPostStatus(ctx context.Context, lip string, status models.PostStatus, reason string) error

	LIPExists(ctx context.Context, lip string) (bool, error)
	// FindByTextFull returns the LIP of another post sharing the text-full
	// fingerprint, excluding excludeLIP.
	FindByTextFull(ctx context.Context, fp, excludeLIP string) (string, error)
	FindByTextCore(ctx context.Context, fp, excludeLIP string) (string, error)
	// FindByMedia returns the LIP of another post whose media fingerprint
	// intersects the given identifiers.
	FindByMedia(ctx context.Context, mediaIDs []string, excludeLIP string) (string, error)

	ListAcceptedPosts(ctx context.Context, regionID int64, since time.Time) ([]models.Post, error)
	CountAcceptedPosts(ctx context.Context, regionID int64, since time.Time) (int, error)
}

// TaskStore manages carousel tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, t *models.CarouselTask) error
	UpdateTask(ctx context.Context, t *models.CarouselTask) error
	GetTask(ctx context.Context, id string) (*models.CarouselTask, error)
	ListTasksSince(ctx context.Context, since time.Time) ([]models.CarouselTask, error)
	DeleteTask(ctx context.Context, id string) error
}

// DigestStore manages assembled digests.
type DigestStore interface {
	// CreateDigest persists a digest. Updates to a scheduled digest are
	// refused with ErrImmutable; cancellation creates a new record.
	CreateDigest(ctx context.Context, d *models.Digest) error
	GetDigest(ctx context.Context, id string) (*models.Digest, error)
	ScheduleDigest(ctx context.Context, id string, at time.Time) error
	CancelDigest(ctx context.Context, id string) (*models.Digest, error)
	ListDigests(ctx context.Context, regionID int64) ([]models.Digest, error)
}

// EngagementStore manages derived engagement samples.
type EngagementStore interface {
	ReplaceEngagementSamples(ctx context.Context, regionID int64, samples []models.EngagementSample) error
	ListEngagementSamples(ctx context.Context, regionID int64) ([]models.EngagementSample, error)
}

// ModerationStore exposes operator-maintained filter data. These tables are
// data, not code; the pipeline reads them through a 5-minute TTL cache.
type ModerationStore interface {
	BlacklistedIDs(ctx context.Context) ([]int64, error)
	AddBlacklistedID(ctx context.Context, id int64) error
	BlacklistedWords(ctx context.Context) ([]string, error)
	AddBlacklistedWord(ctx context.Context, word string) error
	RegionKeywords(ctx context.Context, regionID int64) ([]string, error)
	SetRegionKeywords(ctx context.Context, regionID int64, keywords []string) error
}
