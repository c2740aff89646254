// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/okrugmedia/svodka/internal/models"
)

// Compile-time interface checks.
var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)

// uniqueViolation is the postgres error code for unique-key conflicts. The
// LIP unique index is the final authority on post deduplication.
const uniqueViolation = "23505"

// serializationFailure and deadlockDetected are transient transaction
// conflicts: postgres aborts one participant and a clean retry succeeds.
// AddNeighbor locks two region rows in caller order, so symmetric
// concurrent calls can deadlock against each other.
const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// txMaxAttempts bounds conflict retries: the first run plus two retries,
// then the conflict surfaces.
const txMaxAttempts = 3

// Postgres is the production Store backed by postgres via sqlx.
type Postgres struct {
	db *sqlx.DB
}

// Options tune the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres connects, configures the pool and applies the schema.
func OpenPostgres(ctx context.Context, dsn string, opts Options) (*Postgres, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// Close implements Store.
func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS regions (
    id                BIGSERIAL PRIMARY KEY,
    code              TEXT NOT NULL UNIQUE,
    name              TEXT NOT NULL,
    primary_outlet_id BIGINT NOT NULL DEFAULT 0,
    telegram_channel  TEXT NOT NULL DEFAULT '',
    neighbors         JSONB NOT NULL DEFAULT '[]',
    local_hashtags    JSONB NOT NULL DEFAULT '[]',
    keywords          JSONB NOT NULL DEFAULT '[]',
    config            JSONB NOT NULL DEFAULT '{}',
    is_active         BOOLEAN NOT NULL DEFAULT TRUE,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS communities (
    id           BIGSERIAL PRIMARY KEY,
    region_id    BIGINT NOT NULL REFERENCES regions(id),
    external_id  BIGINT NOT NULL,
    screen_name  TEXT NOT NULL DEFAULT '',
    name         TEXT NOT NULL,
    category     TEXT NOT NULL,
    is_active    BOOLEAN NOT NULL DEFAULT TRUE,
    last_checked TIMESTAMPTZ,
    post_count   BIGINT NOT NULL DEFAULT 0,
    error_count  BIGINT NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (external_id, region_id)
);

CREATE TABLE IF NOT EXISTS credentials (
    id             BIGSERIAL PRIMARY KEY,
    name           TEXT NOT NULL UNIQUE,
    secret         TEXT NOT NULL,
    is_active      BOOLEAN NOT NULL DEFAULT TRUE,
    last_used      TIMESTAMPTZ,
    last_validated TIMESTAMPTZ,
    status         TEXT NOT NULL DEFAULT 'unknown',
    error_message  TEXT NOT NULL DEFAULT '',
    permissions    JSONB NOT NULL DEFAULT '[]',
    user_info      JSONB NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS posts (
    id                    BIGSERIAL PRIMARY KEY,
    community_id          BIGINT NOT NULL,
    region_id             BIGINT NOT NULL,
    external_owner_id     BIGINT NOT NULL,
    external_post_id      BIGINT NOT NULL,
    external_author_id    BIGINT NOT NULL DEFAULT 0,
    published_at          TIMESTAMPTZ NOT NULL,
    text                  TEXT NOT NULL DEFAULT '',
    attachments           JSONB NOT NULL DEFAULT '[]',
    views                 BIGINT NOT NULL DEFAULT 0,
    likes                 BIGINT NOT NULL DEFAULT 0,
    reposts               BIGINT NOT NULL DEFAULT 0,
    comments              BIGINT NOT NULL DEFAULT 0,
    ai_category           TEXT NOT NULL DEFAULT '',
    ai_score              INT NOT NULL DEFAULT 0,
    sentiment_label       TEXT NOT NULL DEFAULT 'neutral',
    status                TEXT NOT NULL DEFAULT 'new',
    reject_reason         TEXT NOT NULL DEFAULT '',
    fingerprint_lip       TEXT NOT NULL UNIQUE,
    fingerprint_text_full TEXT NOT NULL DEFAULT '',
    fingerprint_text_core TEXT NOT NULL DEFAULT '',
    fingerprint_media     JSONB NOT NULL DEFAULT '[]',
    fingerprint_version   INT NOT NULL DEFAULT 1,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_posts_text_full ON posts(fingerprint_text_full) WHERE fingerprint_text_full <> '';
CREATE INDEX IF NOT EXISTS idx_posts_text_core ON posts(fingerprint_text_core) WHERE fingerprint_text_core <> '';
CREATE INDEX IF NOT EXISTS idx_posts_region_status ON posts(region_id, status, published_at);
CREATE INDEX IF NOT EXISTS idx_posts_media ON posts USING GIN (fingerprint_media);

CREATE TABLE IF NOT EXISTS carousel_tasks (
    id            TEXT PRIMARY KEY,
    region_id     BIGINT NOT NULL,
    region_code   TEXT NOT NULL,
    credential_id BIGINT NOT NULL,
    state         TEXT NOT NULL,
    queued_at     TIMESTAMPTZ NOT NULL,
    started_at    TIMESTAMPTZ,
    finished_at   TIMESTAMPTZ,
    posts_found   INT NOT NULL DEFAULT 0,
    posts_kept    INT NOT NULL DEFAULT 0,
    error         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS digests (
    id           TEXT PRIMARY KEY,
    region_id    BIGINT NOT NULL,
    topic        TEXT NOT NULL,
    post_ids     JSONB NOT NULL DEFAULT '[]',
    scheduled_at TIMESTAMPTZ,
    cancelled    BOOLEAN NOT NULL DEFAULT FALSE,
    template     JSONB NOT NULL DEFAULT '{}',
    stats        JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS engagement_samples (
    region_id  BIGINT NOT NULL,
    hour       INT NOT NULL,
    weekday    INT NOT NULL,
    average    DOUBLE PRECISION NOT NULL,
    post_count BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (region_id, hour, weekday)
);

CREATE TABLE IF NOT EXISTS blacklist_ids (
    external_id BIGINT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS blacklist_words (
    word TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS region_keywords (
    region_id BIGINT NOT NULL,
    keyword   TEXT NOT NULL,
    PRIMARY KEY (region_id, keyword)
);
`

// --- regions ---

func (p *Postgres) CreateRegion(ctx context.Context, r *models.Region) error {
	if r.Code == "" {
		return ErrInvalidInput
	}
	cfg, err := json.Marshal(r.Config)
	if err != nil {
		return fmt.Errorf("marshal region config: %w", err)
	}
	err = p.db.QueryRowContext(ctx, `
		INSERT INTO regions (code, name, primary_outlet_id, telegram_channel,
			neighbors, local_hashtags, keywords, config, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, created_at, updated_at`,
		r.Code, r.Name, r.PrimaryOutletID, r.TelegramChannel,
		mustJSON(r.Neighbors), mustJSON(r.LocalHashtags), mustJSON(r.Keywords),
		cfg, r.IsActive,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	return mapPQError(err)
}

func (p *Postgres) GetRegion(ctx context.Context, id int64) (*models.Region, error) {
	return p.scanRegion(p.db.QueryRowxContext(ctx,
		`SELECT * FROM regions WHERE id = $1`, id))
}

func (p *Postgres) GetRegionByCode(ctx context.Context, code string) (*models.Region, error) {
	return p.scanRegion(p.db.QueryRowxContext(ctx,
		`SELECT * FROM regions WHERE code = $1`, code))
}

func (p *Postgres) ListActiveRegions(ctx context.Context) ([]models.Region, error) {
	rows, err := p.db.QueryxContext(ctx,
		`SELECT * FROM regions WHERE is_active ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Region
	for rows.Next() {
		r, err := p.scanRegionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateRegionConfig(ctx context.Context, id int64, cfg models.RegionConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal region config: %w", err)
	}
	return p.execOne(ctx,
		`UPDATE regions SET config = $2, updated_at = now() WHERE id = $1`, id, data)
}

// AddNeighbor performs the symmetric write in one transaction: both rows
// are locked, both neighbor arrays are updated.
func (p *Postgres) AddNeighbor(ctx context.Context, code, neighborCode string) error {
	return p.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, pair := range [][2]string{{code, neighborCode}, {neighborCode, code}} {
			var neighbors jsonStrings
			if err := tx.QueryRowxContext(ctx,
				`SELECT neighbors FROM regions WHERE code = $1 FOR UPDATE`,
				pair[0]).Scan(&neighbors); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrNotFound
				}
				return err
			}
			updated := appendUnique([]string(neighbors), pair[1])
			if _, err := tx.ExecContext(ctx,
				`UPDATE regions SET neighbors = $2, updated_at = now() WHERE code = $1`,
				pair[0], mustJSON(updated)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Postgres) DeactivateRegion(ctx context.Context, id int64) error {
	return p.execOne(ctx,
		`UPDATE regions SET is_active = FALSE, updated_at = now() WHERE id = $1`, id)
}

// --- communities ---

func (p *Postgres) CreateCommunity(ctx context.Context, c *models.Community) error {
	if !c.Category.Valid() {
		return ErrInvalidInput
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO communities (region_id, external_id, screen_name, name, category, is_active)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at, updated_at`,
		c.RegionID, c.ExternalID, c.ScreenName, c.Name, c.Category, c.IsActive,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return mapPQError(err)
}

func (p *Postgres) GetCommunity(ctx context.Context, id int64) (*models.Community, error) {
	var c models.Community
	err := p.db.GetContext(ctx, &c, `SELECT * FROM communities WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *Postgres) ListActiveCommunities(ctx context.Context, regionID int64) ([]models.Community, error) {
	var out []models.Community
	err := p.db.SelectContext(ctx, &out,
		`SELECT * FROM communities WHERE region_id = $1 AND is_active ORDER BY id`, regionID)
	return out, err
}

func (p *Postgres) SetCommunityActive(ctx context.Context, id int64, active bool) error {
	return p.execOne(ctx,
		`UPDATE communities SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
}

func (p *Postgres) TouchCommunityChecked(ctx context.Context, id int64, at time.Time, postDelta, errorDelta int64) error {
	return p.execOne(ctx, `
		UPDATE communities
		SET last_checked = $2, post_count = post_count + $3,
		    error_count = error_count + $4, updated_at = now()
		WHERE id = $1`, id, at, postDelta, errorDelta)
}

func (p *Postgres) DeleteCommunity(ctx context.Context, id int64) error {
	return p.execOne(ctx, `DELETE FROM communities WHERE id = $1`, id)
}

// --- credentials ---

func (p *Postgres) CreateCredential(ctx context.Context, c *models.Credential) error {
	if c.Status == "" {
		c.Status = models.CredentialUnknown
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO credentials (name, secret, is_active, status, permissions, user_info)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at, updated_at`,
		c.Name, c.Secret, c.IsActive, c.Status,
		mustJSON(c.Permissions), mustJSON(c.UserInfo),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return mapPQError(err)
}

func (p *Postgres) GetCredential(ctx context.Context, id int64) (*models.Credential, error) {
	return p.scanCredential(p.db.QueryRowxContext(ctx,
		`SELECT * FROM credentials WHERE id = $1`, id))
}

func (p *Postgres) GetCredentialByName(ctx context.Context, name string) (*models.Credential, error) {
	return p.scanCredential(p.db.QueryRowxContext(ctx,
		`SELECT * FROM credentials WHERE name = $1`, name))
}

func (p *Postgres) ListCredentials(ctx context.Context) ([]models.Credential, error) {
	rows, err := p.db.QueryxContext(ctx, `SELECT * FROM credentials ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Credential
	for rows.Next() {
		c, err := p.scanCredentialRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (p *Postgres) SetCredentialStatus(ctx context.Context, id int64, status models.CredentialStatus, errMsg string, permissions []string) error {
	if permissions == nil {
		return p.execOne(ctx, `
			UPDATE credentials SET status = $2, error_message = $3,
			    last_validated = now(), updated_at = now()
			WHERE id = $1`, id, status, errMsg)
	}
	return p.execOne(ctx, `
		UPDATE credentials SET status = $2, error_message = $3, permissions = $4,
		    last_validated = now(), updated_at = now()
		WHERE id = $1`, id, status, errMsg, mustJSON(permissions))
}

func (p *Postgres) TouchCredentialUsed(ctx context.Context, id int64, at time.Time) error {
	return p.execOne(ctx,
		`UPDATE credentials SET last_used = $2, updated_at = now() WHERE id = $1`, id, at)
}

// --- posts ---

func (p *Postgres) InsertPost(ctx context.Context, post *models.Post) error {
	if post.FingerprintLIP == "" {
		return ErrInvalidInput
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO posts (community_id, region_id, external_owner_id,
			external_post_id, external_author_id, published_at, text,
			attachments, views, likes, reposts, comments, ai_category,
			ai_score, sentiment_label, status, reject_reason,
			fingerprint_lip, fingerprint_text_full, fingerprint_text_core,
			fingerprint_media, fingerprint_version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		RETURNING id, created_at, updated_at`,
		post.CommunityID, post.RegionID, post.ExternalOwnerID,
		post.ExternalPostID, post.ExternalAuthorID, post.PublishedAt, post.Text,
		mustJSON(post.Attachments), post.Views, post.Likes, post.Reposts,
		post.Comments, post.AICategory, post.AIScore, post.SentimentLabel,
		post.Status, post.RejectReason, post.FingerprintLIP,
		post.FingerprintTextFull, post.FingerprintTextCore,
		mustJSON(post.FingerprintMedia), post.FingerprintVersion,
	).Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt)
	return mapPQError(err)
}

func (p *Postgres) GetPostByLIP(ctx context.Context, lip string) (*models.Post, error) {
	return p.scanPost(p.db.QueryRowxContext(ctx,
		`SELECT * FROM posts WHERE fingerprint_lip = $1`, lip))
}

func (p *Postgres) RefreshPostStats(ctx context.Context, lip string, stats PostStats) error {
	return p.execOne(ctx, `
		UPDATE posts SET views = $2, likes = $3, reposts = $4, comments = $5,
		    updated_at = now()
		WHERE fingerprint_lip = $1`,
		lip, stats.Views, stats.Likes, stats.Reposts, stats.Comments)
}

func (p *Postgres) SetPostStatus(ctx context.Context, lip string, status models.PostStatus, reason string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE posts SET status = $2, reject_reason = $3, updated_at = now()
		WHERE fingerprint_lip = $1
		  AND (status NOT IN ('accepted','rejected') OR status = $2)`,
		lip, status, reason)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	exists, err := p.LIPExists(ctx, lip)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrImmutable
}

func (p *Postgres) LIPExists(ctx context.Context, lip string) (bool, error) {
	var exists bool
	err := p.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE fingerprint_lip = $1)`, lip)
	return exists, err
}

func (p *Postgres) FindByTextFull(ctx context.Context, fp, excludeLIP string) (string, error) {
	return p.findLIP(ctx, `
		SELECT fingerprint_lip FROM posts
		WHERE fingerprint_text_full = $1 AND fingerprint_lip <> $2 LIMIT 1`,
		fp, excludeLIP)
}

func (p *Postgres) FindByTextCore(ctx context.Context, fp, excludeLIP string) (string, error) {
	return p.findLIP(ctx, `
		SELECT fingerprint_lip FROM posts
		WHERE fingerprint_text_core = $1 AND fingerprint_lip <> $2 LIMIT 1`,
		fp, excludeLIP)
}

func (p *Postgres) FindByMedia(ctx context.Context, mediaIDs []string, excludeLIP string) (string, error) {
	if len(mediaIDs) == 0 {
		return "", nil
	}
	return p.findLIP(ctx, `
		SELECT fingerprint_lip FROM posts
		WHERE fingerprint_media ?| $1 AND fingerprint_lip <> $2 LIMIT 1`,
		pq.Array(mediaIDs), excludeLIP)
}

func (p *Postgres) findLIP(ctx context.Context, query string, args ...interface{}) (string, error) {
	var lip string
	err := p.db.GetContext(ctx, &lip, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return lip, err
}

func (p *Postgres) ListAcceptedPosts(ctx context.Context, regionID int64, since time.Time) ([]models.Post, error) {
	rows, err := p.db.QueryxContext(ctx, `
		SELECT * FROM posts
		WHERE region_id = $1 AND status = 'accepted' AND published_at >= $2
		ORDER BY published_at`, regionID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Post
	for rows.Next() {
		post, err := p.scanPostRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *post)
	}
	return out, rows.Err()
}

func (p *Postgres) CountAcceptedPosts(ctx context.Context, regionID int64, since time.Time) (int, error) {
	var n int
	err := p.db.GetContext(ctx, &n, `
		SELECT count(*) FROM posts
		WHERE region_id = $1 AND status = 'accepted' AND published_at >= $2`,
		regionID, since)
	return n, err
}

// --- tasks ---

func (p *Postgres) CreateTask(ctx context.Context, t *models.CarouselTask) error {
	if t.ID == "" {
		return ErrInvalidInput
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO carousel_tasks (id, region_id, region_code, credential_id,
			state, queued_at, started_at, finished_at, posts_found, posts_kept, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		t.ID, t.RegionID, t.RegionCode, t.CredentialID, t.State, t.QueuedAt,
		t.StartedAt, t.FinishedAt, t.PostsFound, t.PostsKept, t.Error)
	return mapPQError(err)
}

func (p *Postgres) UpdateTask(ctx context.Context, t *models.CarouselTask) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE carousel_tasks SET state = $2, started_at = $3, finished_at = $4,
		    posts_found = $5, posts_kept = $6, error = $7
		WHERE id = $1 AND state NOT IN ('completed','failed')`,
		t.ID, t.State, t.StartedAt, t.FinishedAt, t.PostsFound, t.PostsKept, t.Error)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := p.GetTask(ctx, t.ID); err != nil {
		return err
	}
	return ErrImmutable
}

func (p *Postgres) GetTask(ctx context.Context, id string) (*models.CarouselTask, error) {
	var t models.CarouselTask
	err := p.db.GetContext(ctx, &t, `SELECT * FROM carousel_tasks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *Postgres) ListTasksSince(ctx context.Context, since time.Time) ([]models.CarouselTask, error) {
	var out []models.CarouselTask
	err := p.db.SelectContext(ctx, &out, `
		SELECT * FROM carousel_tasks WHERE queued_at >= $1 ORDER BY queued_at`, since)
	return out, err
}

func (p *Postgres) DeleteTask(ctx context.Context, id string) error {
	return p.execOne(ctx, `DELETE FROM carousel_tasks WHERE id = $1`, id)
}

// --- digests ---

func (p *Postgres) CreateDigest(ctx context.Context, d *models.Digest) error {
	if d.ID == "" {
		return ErrInvalidInput
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO digests (id, region_id, topic, post_ids, scheduled_at,
			cancelled, template, stats)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		d.ID, d.RegionID, d.Topic, mustJSON(d.PostIDs), d.ScheduledAt,
		d.Cancelled, mustJSON(d.Template), mustJSON(d.Stats),
	).Scan(&d.CreatedAt)
	return mapPQError(err)
}

func (p *Postgres) GetDigest(ctx context.Context, id string) (*models.Digest, error) {
	return p.scanDigest(p.db.QueryRowxContext(ctx,
		`SELECT * FROM digests WHERE id = $1`, id))
}

func (p *Postgres) ScheduleDigest(ctx context.Context, id string, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE digests SET scheduled_at = $2
		WHERE id = $1 AND scheduled_at IS NULL`, id, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := p.GetDigest(ctx, id); err != nil {
		return err
	}
	return ErrImmutable
}

func (p *Postgres) CancelDigest(ctx context.Context, id string) (*models.Digest, error) {
	original, err := p.GetDigest(ctx, id)
	if err != nil {
		return nil, err
	}
	replacement := *original
	replacement.ID = original.ID + ":cancelled"
	replacement.Cancelled = true
	replacement.ScheduledAt = nil
	if err := p.CreateDigest(ctx, &replacement); err != nil {
		return nil, err
	}
	return &replacement, nil
}

func (p *Postgres) ListDigests(ctx context.Context, regionID int64) ([]models.Digest, error) {
	rows, err := p.db.QueryxContext(ctx,
		`SELECT * FROM digests WHERE region_id = $1 ORDER BY created_at`, regionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Digest
	for rows.Next() {
		d, err := p.scanDigestRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// --- engagement samples ---

func (p *Postgres) ReplaceEngagementSamples(ctx context.Context, regionID int64, samples []models.EngagementSample) error {
	return p.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM engagement_samples WHERE region_id = $1`, regionID); err != nil {
			return err
		}
		for _, s := range samples {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO engagement_samples (region_id, hour, weekday, average, post_count, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				regionID, s.Hour, int(s.Weekday), s.Average, s.PostCount, s.UpdatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Postgres) ListEngagementSamples(ctx context.Context, regionID int64) ([]models.EngagementSample, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT region_id, hour, weekday, average, post_count, updated_at
		FROM engagement_samples WHERE region_id = $1`, regionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.EngagementSample
	for rows.Next() {
		var s models.EngagementSample
		var weekday int
		if err := rows.Scan(&s.RegionID, &s.Hour, &weekday, &s.Average, &s.PostCount, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Weekday = time.Weekday(weekday)
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- moderation data ---

func (p *Postgres) BlacklistedIDs(ctx context.Context) ([]int64, error) {
	var out []int64
	err := p.db.SelectContext(ctx, &out,
		`SELECT external_id FROM blacklist_ids ORDER BY external_id`)
	return out, err
}

func (p *Postgres) AddBlacklistedID(ctx context.Context, id int64) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO blacklist_ids (external_id) VALUES ($1) ON CONFLICT DO NOTHING`, id)
	return err
}

func (p *Postgres) BlacklistedWords(ctx context.Context) ([]string, error) {
	var out []string
	err := p.db.SelectContext(ctx, &out,
		`SELECT word FROM blacklist_words ORDER BY word`)
	return out, err
}

func (p *Postgres) AddBlacklistedWord(ctx context.Context, word string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO blacklist_words (word) VALUES ($1) ON CONFLICT DO NOTHING`, word)
	return err
}

func (p *Postgres) RegionKeywords(ctx context.Context, regionID int64) ([]string, error) {
	var out []string
	err := p.db.SelectContext(ctx, &out,
		`SELECT keyword FROM region_keywords WHERE region_id = $1 ORDER BY keyword`, regionID)
	return out, err
}

func (p *Postgres) SetRegionKeywords(ctx context.Context, regionID int64, keywords []string) error {
	return p.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM region_keywords WHERE region_id = $1`, regionID); err != nil {
			return err
		}
		for _, kw := range keywords {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO region_keywords (region_id, keyword) VALUES ($1,$2)`,
				regionID, kw); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- row scanning helpers ---

// jsonStrings scans a jsonb array of strings.
type jsonStrings []string

func (j *jsonStrings) Scan(src interface{}) error {
	return scanJSON(src, (*[]string)(j))
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported jsonb source %T", src)
	}
}

type rowScanner interface {
	MapScan(dest map[string]interface{}) error
}

func (p *Postgres) scanRegion(row *sqlx.Row) (*models.Region, error) {
	m := map[string]interface{}{}
	if err := row.MapScan(m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return regionFromMap(m)
}

func (p *Postgres) scanRegionRow(rows *sqlx.Rows) (*models.Region, error) {
	m := map[string]interface{}{}
	if err := rows.MapScan(m); err != nil {
		return nil, err
	}
	return regionFromMap(m)
}

func regionFromMap(m map[string]interface{}) (*models.Region, error) {
	r := &models.Region{
		ID:              asInt64(m["id"]),
		Code:            asString(m["code"]),
		Name:            asString(m["name"]),
		PrimaryOutletID: asInt64(m["primary_outlet_id"]),
		TelegramChannel: asString(m["telegram_channel"]),
		IsActive:        asBool(m["is_active"]),
		CreatedAt:       asTime(m["created_at"]),
		UpdatedAt:       asTime(m["updated_at"]),
	}
	if err := scanJSON(m["neighbors"], &r.Neighbors); err != nil {
		return nil, err
	}
	if err := scanJSON(m["local_hashtags"], &r.LocalHashtags); err != nil {
		return nil, err
	}
	if err := scanJSON(m["keywords"], &r.Keywords); err != nil {
		return nil, err
	}
	if err := scanJSON(m["config"], &r.Config); err != nil {
		return nil, err
	}
	return r, nil
}

func (p *Postgres) scanCredential(row *sqlx.Row) (*models.Credential, error) {
	m := map[string]interface{}{}
	if err := row.MapScan(m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return credentialFromMap(m)
}

func (p *Postgres) scanCredentialRow(rows *sqlx.Rows) (*models.Credential, error) {
	m := map[string]interface{}{}
	if err := rows.MapScan(m); err != nil {
		return nil, err
	}
	return credentialFromMap(m)
}

func credentialFromMap(m map[string]interface{}) (*models.Credential, error) {
	c := &models.Credential{
		ID:           asInt64(m["id"]),
		Name:         asString(m["name"]),
		Secret:       asString(m["secret"]),
		IsActive:     asBool(m["is_active"]),
		Status:       models.CredentialStatus(asString(m["status"])),
		ErrorMessage: asString(m["error_message"]),
		CreatedAt:    asTime(m["created_at"]),
		UpdatedAt:    asTime(m["updated_at"]),
	}
	c.LastUsed = asTimePtr(m["last_used"])
	c.LastValidated = asTimePtr(m["last_validated"])
	if err := scanJSON(m["permissions"], &c.Permissions); err != nil {
		return nil, err
	}
	if err := scanJSON(m["user_info"], &c.UserInfo); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Postgres) scanPost(row *sqlx.Row) (*models.Post, error) {
	m := map[string]interface{}{}
	if err := row.MapScan(m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return postFromMap(m)
}

func (p *Postgres) scanPostRow(rows *sqlx.Rows) (*models.Post, error) {
	m := map[string]interface{}{}
	if err := rows.MapScan(m); err != nil {
		return nil, err
	}
	return postFromMap(m)
}

func postFromMap(m map[string]interface{}) (*models.Post, error) {
	post := &models.Post{
		ID:                  asInt64(m["id"]),
		CommunityID:         asInt64(m["community_id"]),
		RegionID:            asInt64(m["region_id"]),
		ExternalOwnerID:     asInt64(m["external_owner_id"]),
		ExternalPostID:      asInt64(m["external_post_id"]),
		ExternalAuthorID:    asInt64(m["external_author_id"]),
		PublishedAt:         asTime(m["published_at"]),
		Text:                asString(m["text"]),
		Views:               asInt64(m["views"]),
		Likes:               asInt64(m["likes"]),
		Reposts:             asInt64(m["reposts"]),
		Comments:            asInt64(m["comments"]),
		AICategory:          asString(m["ai_category"]),
		AIScore:             int(asInt64(m["ai_score"])),
		SentimentLabel:      models.SentimentLabel(asString(m["sentiment_label"])),
		Status:              models.PostStatus(asString(m["status"])),
		RejectReason:        asString(m["reject_reason"]),
		FingerprintLIP:      asString(m["fingerprint_lip"]),
		FingerprintTextFull: asString(m["fingerprint_text_full"]),
		FingerprintTextCore: asString(m["fingerprint_text_core"]),
		FingerprintVersion:  int(asInt64(m["fingerprint_version"])),
		CreatedAt:           asTime(m["created_at"]),
		UpdatedAt:           asTime(m["updated_at"]),
	}
	if err := scanJSON(m["attachments"], &post.Attachments); err != nil {
		return nil, err
	}
	if err := scanJSON(m["fingerprint_media"], &post.FingerprintMedia); err != nil {
		return nil, err
	}
	return post, nil
}

func (p *Postgres) scanDigest(row *sqlx.Row) (*models.Digest, error) {
	m := map[string]interface{}{}
	if err := row.MapScan(m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return digestFromMap(m)
}

func (p *Postgres) scanDigestRow(rows *sqlx.Rows) (*models.Digest, error) {
	m := map[string]interface{}{}
	if err := rows.MapScan(m); err != nil {
		return nil, err
	}
	return digestFromMap(m)
}

func digestFromMap(m map[string]interface{}) (*models.Digest, error) {
	d := &models.Digest{
		ID:        asString(m["id"]),
		RegionID:  asInt64(m["region_id"]),
		Topic:     asString(m["topic"]),
		Cancelled: asBool(m["cancelled"]),
		CreatedAt: asTime(m["created_at"]),
	}
	d.ScheduledAt = asTimePtr(m["scheduled_at"])
	if err := scanJSON(m["post_ids"], &d.PostIDs); err != nil {
		return nil, err
	}
	if err := scanJSON(m["template"], &d.Template); err != nil {
		return nil, err
	}
	if err := scanJSON(m["stats"], &d.Stats); err != nil {
		return nil, err
	}
	return d, nil
}

// --- small helpers ---

func (p *Postgres) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return withTxRetry(func() error {
		tx, err := p.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// withTxRetry re-runs the attempt on transient transaction conflicts. A
// conflict that persists through every attempt surfaces as ErrConflict;
// any other error surfaces immediately.
func withTxRetry(attempt func() error) error {
	var err error
	for i := 0; i < txMaxAttempts; i++ {
		if err = attempt(); !isRetryableTx(err) {
			return err
		}
	}
	return mapPQError(err)
}

func isRetryableTx(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == serializationFailure || pqErr.Code == deadlockDetected
}

func mapPQError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case uniqueViolation:
		if pqErr.Constraint == "posts_fingerprint_lip_key" {
			return ErrDuplicateLIP
		}
		return ErrConflict
	case serializationFailure, deadlockDetected:
		return ErrConflict
	}
	return err
}

func mustJSON(v interface{}) []byte {
	if v == nil {
		return []byte("null")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return data
}

func asInt64(v interface{}) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float64:
		return int64(x)
	}
	return 0
}

func asString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	}
	return ""
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asTime(v interface{}) time.Time {
	t, _ := v.(time.Time)
	return t
}

func asTimePtr(v interface{}) *time.Time {
	if t, ok := v.(time.Time); ok {
		return &t
	}
	return nil
}
