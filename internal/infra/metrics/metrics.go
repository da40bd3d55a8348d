// Package metrics provides Prometheus metrics for MOODI.
// Counters and histograms for the gamification ledger, LLM generation,
// HTTP traffic, and health checks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Gamification ───────────────────────────────────────────────────────────

// MoodsRecorded counts mood submissions applied to game state.
var MoodsRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "moodi",
	Name:      "moods_recorded_total",
	Help:      "Mood submissions applied to game state.",
})

// CoinsAwarded counts MoodCoins granted, by reason.
var CoinsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "moodi",
	Name:      "coins_awarded_total",
	Help:      "MoodCoins granted by reason (daily_post, streak_bonus, referral).",
}, []string{"reason"})

// UnlocksGranted counts feature unlocks, by unlock id.
var UnlocksGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "moodi",
	Name:      "unlocks_granted_total",
	Help:      "Feature unlocks granted.",
}, []string{"unlock"})

// StreakResets counts mood submissions that broke a streak.
var StreakResets = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "moodi",
	Name:      "streak_resets_total",
	Help:      "Mood submissions that reset an existing streak to 1.",
})

// ReferralsAccepted counts credited referrals.
var ReferralsAccepted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "moodi",
	Name:      "referrals_accepted_total",
	Help:      "Referrals accepted and credited to the inviter.",
})

// ─── Generation ─────────────────────────────────────────────────────────────

// GenerationLatency tracks LLM generation duration, by kind.
var GenerationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "moodi",
	Name:      "generation_latency_seconds",
	Help:      "LLM generation duration in seconds.",
	Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
}, []string{"kind"})

// GenerationFailures counts failed generations, by kind and class
// (generation, validation).
var GenerationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "moodi",
	Name:      "generation_failures_total",
	Help:      "Failed generations by kind and error class.",
}, []string{"kind", "class"})

// SafetyElevations counts artifacts or pre-checks flagged "elevate".
var SafetyElevations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "moodi",
	Name:      "safety_elevations_total",
	Help:      "Safety flags raised to elevate, by source (precheck, artifact).",
}, []string{"source"})

// CacheLookups counts artifact cache lookups, by result (hit, miss, error).
var CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "moodi",
	Name:      "artifact_cache_lookups_total",
	Help:      "Artifact cache lookups by result.",
}, []string{"result"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequests counts handled requests by route pattern, method and status.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "moodi",
	Name:      "http_requests_total",
	Help:      "HTTP requests by route, method and status.",
}, []string{"route", "method", "status"})

// HTTPDuration tracks request duration by route pattern and method.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "moodi",
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "method"})

// RateLimited counts requests rejected by the per-client limiter.
var RateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "moodi",
	Name:      "http_rate_limited_total",
	Help:      "Requests rejected with 429.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "moodi",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
