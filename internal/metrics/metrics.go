// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

// Package metrics provides Prometheus instrumentation for Bibliocache:
// cache tier efficiency, provider selection and fallback, quota consumption,
// rate limiting, warming progress, and API latency.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibliocache_cache_hits_total",
			Help: "Total number of cache hits by tier",
		},
		[]string{"tier"}, // "hot", "warm"
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bibliocache_cache_misses_total",
			Help: "Total number of cache misses across both tiers",
		},
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibliocache_cache_writes_total",
			Help: "Total number of cache writes by tier",
		},
		[]string{"tier"},
	)

	CacheWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibliocache_cache_write_errors_total",
			Help: "Total number of swallowed cache write errors by tier",
		},
		[]string{"tier"},
	)

	CachePromotions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibliocache_cache_promotions_total",
			Help: "Total number of warm-to-hot promotions by outcome",
		},
		[]string{"outcome"}, // "success", "failure", "skipped"
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bibliocache_cache_entries",
			Help: "Current number of cache entries by tier",
		},
		[]string{"tier"},
	)

	// Provider Metrics
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibliocache_provider_requests_total",
			Help: "Total number of provider requests by provider and outcome",
		},
		[]string{"provider", "outcome"}, // "success", "not_found", "timeout", "malformed", "error"
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bibliocache_provider_request_duration_seconds",
			Help:    "Provider request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"provider", "operation"}, // "search", "lookup"
	)

	ProviderFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibliocache_provider_fallbacks_total",
			Help: "Total number of fallbacks from one provider to the next",
		},
		[]string{"from"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bibliocache_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibliocache_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"provider", "from", "to"},
	)

	// Quota Metrics
	QuotaUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bibliocache_quota_used",
			Help: "Quota consumed in the current window by provider and tier",
		},
		[]string{"provider", "tier"},
	)

	QuotaExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibliocache_quota_exhausted_total",
			Help: "Total number of requests rejected because all provider quotas were exhausted",
		},
		[]string{"request_type"},
	)

	// Rate Limiter Metrics
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibliocache_rate_limit_decisions_total",
			Help: "Total number of rate limiter decisions by client tier and outcome",
		},
		[]string{"client_tier", "outcome"}, // "allowed", "denied"
	)

	// Warming Metrics
	WarmingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibliocache_warming_runs_total",
			Help: "Total number of warming runs by job type and outcome",
		},
		[]string{"job_type", "outcome"}, // "advanced", "retried", "noop", "error"
	)

	WarmingItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibliocache_warming_items_total",
			Help: "Total number of warmed work-list items by job type and outcome",
		},
		[]string{"job_type", "outcome"}, // "success", "failure"
	)

	WarmingLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bibliocache_warming_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last warming run by job type",
		},
		[]string{"job_type"},
	)

	// Enrichment Metrics
	EnrichmentTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibliocache_enrichment_tasks_total",
			Help: "Total number of enrichment tasks by outcome",
		},
		[]string{"outcome"}, // "published", "processed", "failed", "dropped"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibliocache_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bibliocache_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bibliocache_api_active_requests",
			Help: "Current number of active API requests",
		},
	)
)

// RecordAPIRequest records an API request with its duration.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordProviderRequest records a provider call with its duration and outcome.
func RecordProviderRequest(provider, operation, outcome string, duration time.Duration) {
	ProviderRequests.WithLabelValues(provider, outcome).Inc()
	ProviderRequestDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}
