// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package api

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/bibliocache/bibliocache/internal/cache"
	"github.com/bibliocache/bibliocache/internal/middleware"
	"github.com/bibliocache/bibliocache/internal/models"
)

// maxBatchIDs bounds a single batch request. Larger sets should be split by
// the client; the warming scheduler exists for bulk priming.
const maxBatchIDs = 100

type batchRequest struct {
	IDs []string `json:"ids"`
}

// HandleBatch serves POST /api/v1/batch. Each identifier resolves
// independently; one bad ISBN never fails its neighbors. Batch requests
// consume the separate batch budget, weighted by batch size, so a single
// large batch cannot starve interactive traffic.
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body", 0)
		return
	}

	ids := make([]string, 0, len(req.IDs))
	for _, id := range req.IDs {
		id = strings.TrimSpace(id)
		if id == "" || len(id) > maxIDLength {
			respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "ids must be non-empty identifiers", 0)
			return
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "ids is required", 0)
		return
	}
	if len(ids) > maxBatchIDs {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "too many ids in one batch", 0)
		return
	}

	if h.limiter != nil {
		decision := h.limiter.CheckBatch(middleware.ClientFromRequest(r), len(ids))
		if !decision.Allowed {
			respondError(w, http.StatusTooManyRequests, ErrCodeTooManyRequests,
				"batch budget exceeded", decision.RetryAfter)
			return
		}
	}

	result := models.BatchResult{
		Successful: []models.BatchItemResult{},
		Failed:     []models.BatchItemResult{},
	}

	// Serve what the cache already holds; only the rest goes upstream.
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		raw, _, _, err := h.cache.Get(cache.IDKey(id))
		if err != nil {
			missing = append(missing, id)
			continue
		}
		payload, err := cache.DecodePayload(raw)
		if err != nil {
			missing = append(missing, id)
			continue
		}
		if payload.NotFound {
			result.Failed = append(result.Failed, models.BatchItemResult{ID: id, Reason: "not found"})
			continue
		}
		result.Successful = append(result.Successful, models.BatchItemResult{ID: id, Record: payload.Record})
	}

	if len(missing) > 0 {
		upstream := h.orch.ExecuteBatch(r.Context(), missing, models.PriorityInteractive)
		for _, item := range upstream.Successful {
			h.cacheBatchRecord(item)
			result.Successful = append(result.Successful, item)
		}
		result.Failed = append(result.Failed, upstream.Failed...)
	}

	status := http.StatusOK
	switch {
	case len(result.Successful) == 0 && len(result.Failed) > 0:
		// Nothing resolved at all: the batch as a whole is a failure, not a
		// partial result. The per-item reasons still ship in the body.
		status = http.StatusServiceUnavailable
	case len(result.Failed) > 0:
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, result, models.Metadata{})
}

// cacheBatchRecord writes one fresh batch result back to cache and queues it
// for enrichment.
func (h *Handler) cacheBatchRecord(item models.BatchItemResult) {
	if item.Record == nil {
		return
	}
	key := cache.IDKey(item.ID)
	payload, err := cache.EncodeRecord(item.Record, item.Record.Source)
	if err != nil {
		h.log.Error().Err(err).Str("id", item.ID).Msg("Failed to encode batch record")
		return
	}
	h.cache.Set(key, payload, h.cfg.Cache.LookupTTL, 0)
	if h.enrich != nil {
		h.enrich.Submit(key, item.Record, item.Record.Source, h.cfg.Cache.LookupTTL)
	}
}
