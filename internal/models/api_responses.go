// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package models

import "time"

// APIResponse represents a standardized API response wrapper used by all HTTP
// endpoints. It provides consistent structure for both successful and error
// responses, with metadata for observability and caching information.
//
// Status field values:
//   - "success": Request completed successfully, see Data field
//   - "partial": Batch request completed with mixed outcomes (HTTP 207)
//   - "error": Request failed, see Error field for details
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
//
// Cache fields:
//   - Cached: whether the response was served from cache (omitted if false)
//   - CacheTier: which tier served it ("hot" or "warm", omitted on miss)
//   - CacheAgeSeconds: how long ago the cached entry was written (cached only)
type Metadata struct {
	Timestamp       time.Time `json:"timestamp"`
	Cached          bool      `json:"cached,omitempty"`
	CacheTier       string    `json:"cache_tier,omitempty"`
	CacheAgeSeconds int64     `json:"cache_age_seconds,omitempty"`
}

// APIError carries a machine-readable code and a human-readable message.
// Upstream provider error details are never exposed verbatim here.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// RetryAfterSeconds is set on rate-limit and quota-exhaustion errors so
	// clients know when to retry.
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
}

// CacheStatus is the payload of GET /api/v1/cache/status.
type CacheStatus struct {
	Hot     TierStatus      `json:"hot"`
	Warm    TierStatus      `json:"warm"`
	Quota   []QuotaStatus   `json:"quota"`
	Warming []WarmingStatus `json:"warming"`
}

// TierStatus summarizes one cache tier.
type TierStatus struct {
	Entries   int64   `json:"entries"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Evictions int64   `json:"evictions"`
}

// QuotaStatus summarizes one provider's availability and quota windows.
type QuotaStatus struct {
	Provider  string            `json:"provider"`
	Available bool              `json:"available"`
	Tiers     []QuotaTierStatus `json:"tiers"`
}

// QuotaTierStatus summarizes one quota tier's current window.
type QuotaTierStatus struct {
	Name      string `json:"name"`
	Period    string `json:"period"`
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
}

// WarmingStatus summarizes one warming job's checkpoint.
type WarmingStatus struct {
	JobType   string     `json:"job_type"`
	Cursor    string     `json:"cursor,omitempty"`
	Processed int        `json:"processed"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	Completed bool       `json:"completed"`
}
