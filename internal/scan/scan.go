// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

// Package scan executes one carousel task: fetch the walls of a region's
// communities through the rate gate, fingerprint and classify each post,
// run the filter pipeline, and persist the survivors. A post whose LIP
// already exists gets its engagement counters refreshed and is never
// re-filtered.
package scan

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/okrugmedia/svodka/internal/filter"
	"github.com/okrugmedia/svodka/internal/fingerprint"
	"github.com/okrugmedia/svodka/internal/logging"
	"github.com/okrugmedia/svodka/internal/metrics"
	"github.com/okrugmedia/svodka/internal/models"
	"github.com/okrugmedia/svodka/internal/rategate"
	"github.com/okrugmedia/svodka/internal/sentiment"
	"github.com/okrugmedia/svodka/internal/store"
	"github.com/okrugmedia/svodka/internal/upstream"
)

// wallPageSize is the upstream page size per community.
const wallPageSize = 100

// yieldBatch is the post count after which the worker yields the
// processor, bounding scheduler starvation on large walls.
const yieldBatch = 50

// Runner executes scan tasks. One runner is shared by all workers.
type Runner struct {
	store    store.Store
	client   *upstream.Client
	gate     *rategate.Gate
	pipeline *filter.Pipeline
	logger   zerolog.Logger

	mu        sync.Mutex
	cancelled map[string]bool
}

// NewRunner wires a runner.
func NewRunner(st store.Store, client *upstream.Client, gate *rategate.Gate, pipeline *filter.Pipeline) *Runner {
	return &Runner{
		store:     st,
		client:    client,
		gate:      gate,
		pipeline:  pipeline,
		logger:    logging.Component("scan"),
		cancelled: make(map[string]bool),
	}
}

// Cancel flags a running task. The flag is observed at the next request
// boundary; the scan is not preempted mid-request.
func (r *Runner) Cancel(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled[taskID] = true
}

func (r *Runner) isCancelled(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled[taskID]
}

func (r *Runner) clearCancel(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancelled, taskID)
}

// errCancelled aborts the community loop when the cancel flag is seen.
var errCancelled = errors.New("scan cancelled")

// Run executes the task to completion, updating its state in the store.
// The returned error reflects infrastructure failure; a task that ran and
// failed (bad credential, cancellation) is recorded on the task itself.
func (r *Runner) Run(ctx context.Context, task *models.CarouselTask) error {
	defer r.clearCancel(task.ID)

	region, err := r.store.GetRegion(ctx, task.RegionID)
	if err != nil {
		return fmt.Errorf("scan: load region %d: %w", task.RegionID, err)
	}
	cred, err := r.store.GetCredential(ctx, task.CredentialID)
	if err != nil {
		return fmt.Errorf("scan: load credential %d: %w", task.CredentialID, err)
	}

	if err := task.Transition(models.TaskRunning, time.Now()); err != nil {
		return err
	}
	if err := r.store.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("scan: mark task running: %w", err)
	}

	found, kept, scanErr := r.scanRegion(ctx, task, region, cred)
	task.PostsFound = found
	task.PostsKept = kept
	metrics.ScanPostsRetrieved.Observe(float64(found))

	now := time.Now()
	switch {
	case errors.Is(scanErr, errCancelled):
		task.Fail("cancelled", now)
	case upstream.IsAuthFailure(scanErr):
		r.invalidateCredential(ctx, cred, scanErr)
		task.Fail("token invalid", now)
	case scanErr != nil:
		task.Fail(scanErr.Error(), now)
	default:
		task.Transition(models.TaskCompleted, now)
	}

	if err := r.store.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("scan: finalize task: %w", err)
	}
	r.logger.Info().
		Str("task", task.ID).
		Str("region", task.RegionCode).
		Str("state", string(task.State)).
		Int("found", found).
		Int("kept", kept).
		Msg("scan finished")
	return nil
}

func (r *Runner) scanRegion(ctx context.Context, task *models.CarouselTask, region *models.Region, cred *models.Credential) (found, kept int, err error) {
	communities, err := r.store.ListActiveCommunities(ctx, region.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("scan: list communities: %w", err)
	}

	env := &filter.Env{Region: region, Now: time.Now()}

	for i := range communities {
		if r.isCancelled(task.ID) {
			return found, kept, errCancelled
		}

		community := &communities[i]
		page, err := r.fetchWall(ctx, cred, community)
		if err != nil {
			if upstream.IsAuthFailure(err) {
				return found, kept, err
			}
			if upstream.IsAccessDenied(err) {
				// The community is unreachable, not the credential; record
				// the error and keep scanning the rest.
				r.store.TouchCommunityChecked(ctx, community.ID, time.Now(), 0, 1)
				r.logger.Warn().Err(err).
					Str("community", community.Name).
					Msg("community unreachable")
				continue
			}
			return found, kept, err
		}

		env.Community = community
		env.Neighbor = community.RegionID != region.ID

		communityKept := 0
		for j := range page.Items {
			if j > 0 && j%yieldBatch == 0 {
				if r.isCancelled(task.ID) {
					return found, kept, errCancelled
				}
				runtime.Gosched()
			}
			found++
			ok, err := r.ingest(ctx, &page.Items[j], env)
			if err != nil {
				r.logger.Warn().Err(err).
					Str("community", community.Name).
					Msg("post ingest failed")
				continue
			}
			if ok {
				kept++
				communityKept++
			}
		}

		r.store.TouchCommunityChecked(ctx, community.ID, time.Now(), int64(communityKept), 0)
	}
	return found, kept, nil
}

// fetchWall admits the request through the credential budget, then fetches
// one page. A denied admission waits out the retry-after and tries again;
// the gate's windows are short, so the wait is bounded.
func (r *Runner) fetchWall(ctx context.Context, cred *models.Credential, community *models.Community) (*upstream.WallPage, error) {
	for {
		decision := r.gate.AdmitCredential(ctx, cred.Name)
		if decision.Allowed {
			break
		}
		if decision.Reason == "denylisted" {
			return nil, fmt.Errorf("scan: credential %s is denylisted", cred.Name)
		}
		wait := decision.RetryAfter
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	page, err := r.client.WallGet(ctx, cred.Secret, community.ExternalID, wallPageSize, 0)
	if err != nil {
		return nil, err
	}
	r.store.TouchCredentialUsed(ctx, cred.ID, time.Now())
	return page, nil
}

// ingest processes one wall post: idempotent upsert on a known LIP,
// otherwise fingerprint, classify, filter and insert. Returns whether the
// post was kept (accepted).
func (r *Runner) ingest(ctx context.Context, wp *upstream.WallPost, env *filter.Env) (bool, error) {
	post := wp.AsModel(env.Community)
	fingerprint.Apply(&post)

	exists, err := r.store.LIPExists(ctx, post.FingerprintLIP)
	if err != nil {
		return false, err
	}
	if exists {
		return false, r.refreshStats(ctx, &post)
	}

	res := sentiment.Analyze(post.Text)
	post.SentimentLabel = res.Label
	post.AICategory = string(models.DigestCategoryFor(env.Community.Category, env.Neighbor))

	verdict := r.pipeline.Run(ctx, &post, env)
	switch {
	case verdict.Accepted:
		post.Status = models.PostStatusAccepted
	case verdict.Spam:
		post.Status = models.PostStatusSpam
	default:
		post.Status = models.PostStatusRejected
	}

	if err := r.store.InsertPost(ctx, &post); err != nil {
		if errors.Is(err, store.ErrDuplicateLIP) {
			// A concurrent scan won the insert; fall back to the upsert
			// path. The unique constraint is the authority here.
			return false, r.refreshStats(ctx, &post)
		}
		return false, err
	}
	return post.Status == models.PostStatusAccepted, nil
}

func (r *Runner) refreshStats(ctx context.Context, post *models.Post) error {
	metrics.StoreDuplicateUpserts.Inc()
	return r.store.RefreshPostStats(ctx, post.FingerprintLIP, store.PostStats{
		Views:    post.Views,
		Likes:    post.Likes,
		Reposts:  post.Reposts,
		Comments: post.Comments,
	})
}

func (r *Runner) invalidateCredential(ctx context.Context, cred *models.Credential, cause error) {
	metrics.CredentialInvalidations.Inc()
	if err := r.store.SetCredentialStatus(ctx, cred.ID, models.CredentialInvalid, cause.Error(), nil); err != nil {
		r.logger.Error().Err(err).
			Str("credential", cred.Name).
			Msg("failed to mark credential invalid")
		return
	}
	r.logger.Warn().
		Str("credential", cred.Name).
		Str("secret", cred.MaskedSecret()).
		Msg("credential invalidated after auth failure")
}
