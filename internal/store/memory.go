// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okrugmedia/svodka/internal/models"
)

// Memory is an in-process Store used by tests and single-node evaluation.
// All methods return copies; callers never share memory with the store.
type Memory struct {
	mu sync.RWMutex

	nextID int64

	regions       map[int64]*models.Region
	regionsByCode map[string]int64
	communities   map[int64]*models.Community
	credentials   map[int64]*models.Credential
	posts         map[string]*models.Post // keyed by LIP
	tasks         map[string]*models.CarouselTask
	digests       map[string]*models.Digest
	samples       map[int64][]models.EngagementSample

	blacklistIDs   map[int64]struct{}
	blacklistWords map[string]struct{}
	regionKeywords map[int64][]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		regions:        make(map[int64]*models.Region),
		regionsByCode:  make(map[string]int64),
		communities:    make(map[int64]*models.Community),
		credentials:    make(map[int64]*models.Credential),
		posts:          make(map[string]*models.Post),
		tasks:          make(map[string]*models.CarouselTask),
		digests:        make(map[string]*models.Digest),
		samples:        make(map[int64][]models.EngagementSample),
		blacklistIDs:   make(map[int64]struct{}),
		blacklistWords: make(map[string]struct{}),
		regionKeywords: make(map[int64][]string),
	}
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

func (m *Memory) allocID() int64 {
	m.nextID++
	return m.nextID
}

// --- regions ---

func (m *Memory) CreateRegion(_ context.Context, r *models.Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Code == "" {
		return ErrInvalidInput
	}
	if _, exists := m.regionsByCode[r.Code]; exists {
		return ErrConflict
	}
	if r.ID == 0 {
		r.ID = m.allocID()
	}
	now := time.Now()
	r.CreatedAt, r.UpdatedAt = now, now
	cp := *r
	m.regions[r.ID] = &cp
	m.regionsByCode[r.Code] = r.ID
	return nil
}

func (m *Memory) GetRegion(_ context.Context, id int64) (*models.Region, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.regions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) GetRegionByCode(ctx context.Context, code string) (*models.Region, error) {
	m.mu.RLock()
	id, ok := m.regionsByCode[code]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetRegion(ctx, id)
}

func (m *Memory) ListActiveRegions(_ context.Context) ([]models.Region, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Region
	for _, r := range m.regions {
		if r.IsActive {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) UpdateRegionConfig(_ context.Context, id int64, cfg models.RegionConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[id]
	if !ok {
		return ErrNotFound
	}
	r.Config = cfg
	r.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) AddNeighbor(_ context.Context, code, neighborCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	aID, ok := m.regionsByCode[code]
	if !ok {
		return ErrNotFound
	}
	bID, ok := m.regionsByCode[neighborCode]
	if !ok {
		return ErrNotFound
	}
	a, b := m.regions[aID], m.regions[bID]
	a.Neighbors = appendUnique(a.Neighbors, neighborCode)
	b.Neighbors = appendUnique(b.Neighbors, code)
	now := time.Now()
	a.UpdatedAt, b.UpdatedAt = now, now
	return nil
}

func (m *Memory) DeactivateRegion(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[id]
	if !ok {
		return ErrNotFound
	}
	r.IsActive = false
	r.UpdatedAt = time.Now()
	return nil
}

// --- communities ---

func (m *Memory) CreateCommunity(_ context.Context, c *models.Community) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !c.Category.Valid() {
		return ErrInvalidInput
	}
	for _, existing := range m.communities {
		if existing.ExternalID == c.ExternalID && existing.RegionID == c.RegionID {
			return ErrConflict
		}
	}
	if c.ID == 0 {
		c.ID = m.allocID()
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	cp := *c
	m.communities[c.ID] = &cp
	return nil
}

func (m *Memory) GetCommunity(_ context.Context, id int64) (*models.Community, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.communities[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) ListActiveCommunities(_ context.Context, regionID int64) ([]models.Community, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Community
	for _, c := range m.communities {
		if c.RegionID == regionID && c.IsActive {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetCommunityActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.communities[id]
	if !ok {
		return ErrNotFound
	}
	c.IsActive = active
	c.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) TouchCommunityChecked(_ context.Context, id int64, at time.Time, postDelta, errorDelta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.communities[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	c.LastChecked = &t
	c.PostCount += postDelta
	c.ErrorCount += errorDelta
	c.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) DeleteCommunity(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.communities[id]; !ok {
		return ErrNotFound
	}
	delete(m.communities, id)
	return nil
}

// --- credentials ---

func (m *Memory) CreateCredential(_ context.Context, c *models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.credentials {
		if existing.Name == c.Name {
			return ErrConflict
		}
	}
	if c.ID == 0 {
		c.ID = m.allocID()
	}
	if c.Status == "" {
		c.Status = models.CredentialUnknown
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	cp := *c
	m.credentials[c.ID] = &cp
	return nil
}

func (m *Memory) GetCredential(_ context.Context, id int64) (*models.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credentials[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) GetCredentialByName(_ context.Context, name string) (*models.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.credentials {
		if c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListCredentials(_ context.Context) ([]models.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Credential
	for _, c := range m.credentials {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetCredentialStatus(_ context.Context, id int64, status models.CredentialStatus, errMsg string, permissions []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	c.Status = status
	c.ErrorMessage = errMsg
	if permissions != nil {
		c.Permissions = permissions
	}
	c.LastValidated = &now
	c.UpdatedAt = now
	return nil
}

func (m *Memory) TouchCredentialUsed(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	c.LastUsed = &t
	c.UpdatedAt = time.Now()
	return nil
}

// --- posts ---

func (m *Memory) InsertPost(_ context.Context, p *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.FingerprintLIP == "" {
		return ErrInvalidInput
	}
	if _, exists := m.posts[p.FingerprintLIP]; exists {
		return ErrDuplicateLIP
	}
	if p.ID == 0 {
		p.ID = m.allocID()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := clonePost(p)
	m.posts[p.FingerprintLIP] = cp
	return nil
}

func (m *Memory) GetPostByLIP(_ context.Context, lip string) (*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[lip]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePost(p), nil
}

func (m *Memory) RefreshPostStats(_ context.Context, lip string, stats PostStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[lip]
	if !ok {
		return ErrNotFound
	}
	p.Views = stats.Views
	p.Likes = stats.Likes
	p.Reposts = stats.Reposts
	p.Comments = stats.Comments
	p.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) SetPostStatus(_ context.Context, lip string, status models.PostStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[lip]
	if !ok {
		return ErrNotFound
	}
	if p.Status.Terminal() && status != p.Status {
		return ErrImmutable
	}
	p.Status = status
	p.RejectReason = reason
	p.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) LIPExists(_ context.Context, lip string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.posts[lip]
	return ok, nil
}

func (m *Memory) FindByTextFull(_ context.Context, fp, excludeLIP string) (string, error) {
	if fp == "" {
		return "", nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for lip, p := range m.posts {
		if lip != excludeLIP && p.FingerprintTextFull == fp {
			return lip, nil
		}
	}
	return "", nil
}

func (m *Memory) FindByTextCore(_ context.Context, fp, excludeLIP string) (string, error) {
	if fp == "" {
		return "", nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for lip, p := range m.posts {
		if lip != excludeLIP && p.FingerprintTextCore == fp {
			return lip, nil
		}
	}
	return "", nil
}

func (m *Memory) FindByMedia(_ context.Context, mediaIDs []string, excludeLIP string) (string, error) {
	if len(mediaIDs) == 0 {
		return "", nil
	}
	want := make(map[string]struct{}, len(mediaIDs))
	for _, id := range mediaIDs {
		want[id] = struct{}{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for lip, p := range m.posts {
		if lip == excludeLIP {
			continue
		}
		for _, id := range p.FingerprintMedia {
			if _, ok := want[id]; ok {
				return lip, nil
			}
		}
	}
	return "", nil
}

func (m *Memory) ListAcceptedPosts(_ context.Context, regionID int64, since time.Time) ([]models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Post
	for _, p := range m.posts {
		if p.RegionID == regionID && p.Status == models.PostStatusAccepted && !p.PublishedAt.Before(since) {
			out = append(out, *clonePost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.Before(out[j].PublishedAt) })
	return out, nil
}

func (m *Memory) CountAcceptedPosts(ctx context.Context, regionID int64, since time.Time) (int, error) {
	posts, err := m.ListAcceptedPosts(ctx, regionID, since)
	if err != nil {
		return 0, err
	}
	return len(posts), nil
}

// --- tasks ---

func (m *Memory) CreateTask(_ context.Context, t *models.CarouselTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		return ErrInvalidInput
	}
	if _, exists := m.tasks[t.ID]; exists {
		return ErrConflict
	}
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *Memory) UpdateTask(_ context.Context, t *models.CarouselTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tasks[t.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.State.Terminal() {
		return ErrImmutable
	}
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *Memory) GetTask(_ context.Context, id string) (*models.CarouselTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) ListTasksSince(_ context.Context, since time.Time) ([]models.CarouselTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.CarouselTask
	for _, t := range m.tasks {
		if !t.QueuedAt.Before(since) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.Before(out[j].QueuedAt) })
	return out, nil
}

func (m *Memory) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

// --- digests ---

func (m *Memory) CreateDigest(_ context.Context, d *models.Digest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		return ErrInvalidInput
	}
	if _, exists := m.digests[d.ID]; exists {
		return ErrConflict
	}
	d.CreatedAt = time.Now()
	cp := cloneDigest(d)
	m.digests[d.ID] = cp
	return nil
}

func (m *Memory) GetDigest(_ context.Context, id string) (*models.Digest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.digests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDigest(d), nil
}

func (m *Memory) ScheduleDigest(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.digests[id]
	if !ok {
		return ErrNotFound
	}
	if d.Scheduled() {
		return ErrImmutable
	}
	t := at
	d.ScheduledAt = &t
	return nil
}

// CancelDigest marks the digest cancelled by inserting a replacement
// record; the scheduled original stays untouched.
func (m *Memory) CancelDigest(ctx context.Context, id string) (*models.Digest, error) {
	m.mu.Lock()
	d, ok := m.digests[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	replacement := cloneDigest(d)
	replacement.ID = d.ID + ":cancelled"
	replacement.Cancelled = true
	replacement.ScheduledAt = nil
	m.mu.Unlock()

	if err := m.CreateDigest(ctx, replacement); err != nil {
		return nil, err
	}
	return cloneDigest(replacement), nil
}

func (m *Memory) ListDigests(_ context.Context, regionID int64) ([]models.Digest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Digest
	for _, d := range m.digests {
		if d.RegionID == regionID {
			out = append(out, *cloneDigest(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- engagement samples ---

func (m *Memory) ReplaceEngagementSamples(_ context.Context, regionID int64, samples []models.EngagementSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]models.EngagementSample, len(samples))
	copy(cp, samples)
	m.samples[regionID] = cp
	return nil
}

func (m *Memory) ListEngagementSamples(_ context.Context, regionID int64) ([]models.EngagementSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.samples[regionID]
	out := make([]models.EngagementSample, len(src))
	copy(out, src)
	return out, nil
}

// --- moderation data ---

func (m *Memory) BlacklistedIDs(_ context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int64, 0, len(m.blacklistIDs))
	for id := range m.blacklistIDs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Memory) AddBlacklistedID(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blacklistIDs[id] = struct{}{}
	return nil
}

func (m *Memory) BlacklistedWords(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.blacklistWords))
	for w := range m.blacklistWords {
		out = append(out, w)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) AddBlacklistedWord(_ context.Context, word string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blacklistWords[word] = struct{}{}
	return nil
}

func (m *Memory) RegionKeywords(_ context.Context, regionID int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.regionKeywords[regionID]
	out := make([]string, len(src))
	copy(out, src)
	return out, nil
}

func (m *Memory) SetRegionKeywords(_ context.Context, regionID int64, keywords []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]string, len(keywords))
	copy(cp, keywords)
	m.regionKeywords[regionID] = cp
	return nil
}

// --- helpers ---

func clonePost(p *models.Post) *models.Post {
	cp := *p
	cp.Attachments = append([]models.Attachment(nil), p.Attachments...)
	cp.FingerprintMedia = append([]string(nil), p.FingerprintMedia...)
	return &cp
}

func cloneDigest(d *models.Digest) *models.Digest {
	cp := *d
	cp.PostIDs = append([]int64(nil), d.PostIDs...)
	if d.ScheduledAt != nil {
		t := *d.ScheduledAt
		cp.ScheduledAt = &t
	}
	return &cp
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
