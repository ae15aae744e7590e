// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/bibliocache/bibliocache/internal/cache"
	"github.com/bibliocache/bibliocache/internal/models"
	"github.com/bibliocache/bibliocache/internal/warming"
)

// HandleCacheStatus serves GET /api/v1/cache/status: per-tier cache stats,
// per-provider quota windows, and warming job checkpoints.
func (h *Handler) HandleCacheStatus(w http.ResponseWriter, r *http.Request) {
	hot, warm := h.cache.Status()

	status := models.CacheStatus{
		Hot:     tierStatus(hot),
		Warm:    tierStatus(warm),
		Quota:   h.orch.ProviderStatuses(),
		Warming: []models.WarmingStatus{},
	}
	if h.warming != nil {
		status.Warming = h.warming.Statuses()
	}
	respondJSON(w, http.StatusOK, status, models.Metadata{})
}

func tierStatus(s cache.Stats) models.TierStatus {
	return models.TierStatus{
		Entries:   s.Entries,
		Hits:      s.Hits,
		Misses:    s.Misses,
		HitRate:   s.HitRate(),
		Evictions: s.Evictions,
	}
}

type warmRequest struct {
	JobType string `json:"job_type"`
}

// HandleWarmTrigger serves POST /api/v1/cache/warm: runs the named warming
// job's next slice immediately. Triggering a completed one-shot job is a
// no-op and still returns its final checkpoint.
func (h *Handler) HandleWarmTrigger(w http.ResponseWriter, r *http.Request) {
	if h.warming == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "warming is disabled", 0)
		return
	}

	var req warmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body", 0)
		return
	}
	req.JobType = strings.TrimSpace(req.JobType)
	if req.JobType == "" {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "job_type is required", 0)
		return
	}

	progress, err := h.warming.Trigger(r.Context(), req.JobType)
	if err != nil {
		if errors.Is(err, warming.ErrUnknownJob) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "unknown warming job", 0)
			return
		}
		h.log.Error().Err(err).Str("job", req.JobType).Msg("Manual warming trigger failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "warming run failed", 0)
		return
	}
	respondJSON(w, http.StatusOK, progress, models.Metadata{})
}
