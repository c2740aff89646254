// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the ingestion and scheduling engine:
// - carousel task lifecycle and durations
// - per-stage filter pass/reject rates
// - upstream API errors and rate events
// - rate gate admissions, denials and fail-open occurrences
// - cache efficiency for the store-backed filter stages

var (
	// Carousel / dispatcher metrics.

	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svodka_tasks_total",
			Help: "Total number of dispatched tasks by kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: completed, failed, cancelled, skipped
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "svodka_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	ScanPostsRetrieved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "svodka_scan_posts_retrieved",
			Help:    "Posts retrieved per completed scan",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// Filter pipeline metrics.

	FilterStageResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svodka_filter_stage_results_total",
			Help: "Per-stage filter outcomes",
		},
		[]string{"stage", "result"}, // result: passed, rejected, error
	)

	PostsFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svodka_posts_filtered_total",
			Help: "Posts by final pipeline verdict",
		},
		[]string{"verdict"}, // accepted, rejected
	)

	// Upstream client metrics.

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svodka_upstream_requests_total",
			Help: "Upstream API requests by method and outcome",
		},
		[]string{"method", "outcome"}, // outcome: ok, rate_limited, auth, transport, remote
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "svodka_upstream_request_duration_seconds",
			Help:    "Upstream API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Rate gate metrics.

	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svodka_rategate_decisions_total",
			Help: "Rate gate admission decisions by scope",
		},
		[]string{"scope", "decision"}, // decision: admitted, denied, listed
	)

	// Fail-open admissions are a deliberate availability trade; a non-zero
	// rate here means the gate store is unhealthy and budgets are not
	// being enforced.
	GateFailOpen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "svodka_rategate_failopen_total",
			Help: "Admissions granted because the gate store was unavailable",
		},
	)

	// Cache metrics (blacklists, region keywords).

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svodka_cache_hits_total",
			Help: "Cache hits by cache name",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svodka_cache_misses_total",
			Help: "Cache misses by cache name",
		},
		[]string{"cache"},
	)

	// Store metrics.

	StoreDuplicateUpserts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "svodka_store_duplicate_upserts_total",
			Help: "Posts whose LIP already existed and had stats refreshed",
		},
	)

	// Credential metrics.

	CredentialInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "svodka_credential_invalidations_total",
			Help: "Credentials marked invalid after upstream auth errors",
		},
	)

	// Digest metrics.

	DigestsAssembled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svodka_digests_assembled_total",
			Help: "Digests assembled by region",
		},
		[]string{"region"},
	)
)

// ObserveTask records a completed task execution.
func ObserveTask(kind, outcome string, d time.Duration) {
	TasksTotal.WithLabelValues(kind, outcome).Inc()
	TaskDuration.WithLabelValues(kind).Observe(d.Seconds())
}
