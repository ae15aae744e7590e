// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bibliocache/bibliocache/internal/cache"
	"github.com/bibliocache/bibliocache/internal/models"
	"github.com/bibliocache/bibliocache/internal/orchestrator"
	"github.com/bibliocache/bibliocache/internal/provider"
)

const (
	defaultMaxResults = 10
	maxMaxResults     = 40
	maxQueryLength    = 512
	maxIDLength       = 64
)

// HandleSearch serves GET /api/v1/search.
//
// Query parameters: q (required), max_results, sort (relevance|newest),
// lang. Results are served from cache when possible; concurrent identical
// misses collapse into a single upstream call.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "query parameter 'q' is required", 0)
		return
	}
	if len(query) > maxQueryLength {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "query too long", 0)
		return
	}

	maxResults := defaultMaxResults
	if raw := r.URL.Query().Get("max_results"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "max_results must be a positive integer", 0)
			return
		}
		maxResults = parsed
		if maxResults > maxMaxResults {
			maxResults = maxMaxResults
		}
	}

	sortBy := r.URL.Query().Get("sort")
	switch sortBy {
	case "", "relevance":
		sortBy = "relevance"
	case "newest":
	default:
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "sort must be 'relevance' or 'newest'", 0)
		return
	}
	language := r.URL.Query().Get("lang")

	key := cache.SearchKey(query, maxResults, sortBy, language)
	if payload, tier, age, err := h.cache.Get(key); err == nil {
		h.respondFromPayload(w, payload, true, tier, age, models.RequestTypeSearch)
		return
	}

	req := models.LookupRequest{
		Type:       models.RequestTypeSearch,
		Query:      query,
		MaxResults: maxResults,
		SortBy:     sortBy,
		Language:   language,
		Priority:   models.PriorityInteractive,
	}
	payload, err := h.resolve(r, key, req, h.cfg.Cache.SearchTTL)
	if err != nil {
		h.respondResolveError(w, err)
		return
	}
	h.respondFromPayload(w, payload, false, "", 0, models.RequestTypeSearch)
}

// HandleLookup serves GET /api/v1/lookup/{id}. The identifier may be an
// ISBN-10, an ISBN-13, or a provider-native identifier.
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "identifier is required", 0)
		return
	}
	if len(id) > maxIDLength {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "identifier too long", 0)
		return
	}

	key := cache.IDKey(id)
	if payload, tier, age, err := h.cache.Get(key); err == nil {
		h.respondFromPayload(w, payload, true, tier, age, models.RequestTypeLookup)
		return
	}

	req := models.LookupRequest{
		Type:     models.RequestTypeLookup,
		ID:       id,
		Priority: models.PriorityInteractive,
	}
	payload, err := h.resolve(r, key, req, h.cfg.Cache.LookupTTL)
	if err != nil {
		h.respondResolveError(w, err)
		return
	}
	h.respondFromPayload(w, payload, false, "", 0, models.RequestTypeLookup)
}

// resolve executes a cache miss through the orchestrator, collapsing
// concurrent identical requests, and writes the outcome back to cache.
// Definitive not-founds come back as a negative payload, not an error.
func (h *Handler) resolve(r *http.Request, key string, req models.LookupRequest, ttl time.Duration) ([]byte, error) {
	v, err, _ := h.flight.Do(key, func() (interface{}, error) {
		res, execErr := h.orch.ExecuteSingle(r.Context(), req)
		if execErr != nil {
			if errors.Is(execErr, provider.ErrNotFound) {
				payload, encErr := cache.EncodeNegative("")
				if encErr != nil {
					return nil, encErr
				}
				h.cache.Set(key, payload, h.cfg.Cache.NegativeTTL, 0)
				return payload, nil
			}
			return nil, execErr
		}

		var payload []byte
		var encErr error
		if req.Type == models.RequestTypeSearch {
			payload, encErr = cache.EncodeSearch(res.Search, res.Provider)
		} else {
			payload, encErr = cache.EncodeRecord(res.Record, res.Provider)
		}
		if encErr != nil {
			return nil, encErr
		}
		h.cache.Set(key, payload, ttl, 0)

		if req.Type == models.RequestTypeLookup && h.enrich != nil {
			h.enrich.Submit(key, res.Record, res.Provider, ttl)
		}
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// respondFromPayload decodes a cache payload and writes the appropriate
// response, including negative entries.
func (h *Handler) respondFromPayload(w http.ResponseWriter, raw []byte, cached bool, tier cache.Tier, age time.Duration, reqType models.RequestType) {
	payload, err := cache.DecodePayload(raw)
	if err != nil {
		h.log.Error().Err(err).Msg("Corrupt cache payload")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error", 0)
		return
	}

	meta := models.Metadata{Cached: cached, CacheTier: string(tier)}
	if cached {
		meta.CacheAgeSeconds = int64(age / time.Second)
	}
	if payload.NotFound {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "record not found", 0)
		return
	}
	if reqType == models.RequestTypeSearch {
		respondJSON(w, http.StatusOK, payload.Search, meta)
		return
	}
	respondJSON(w, http.StatusOK, payload.Record, meta)
}

// respondResolveError maps orchestration failures to API errors. Raw
// upstream errors are logged but never exposed.
func (h *Handler) respondResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrNoProvidersAvailable):
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
			"all provider quotas exhausted, try again later", h.retryAfterQuota())
	default:
		h.log.Error().Err(err).Msg("Upstream resolution failed")
		respondError(w, http.StatusServiceUnavailable, ErrCodeUpstreamFailed,
			"all providers failed", 0)
	}
}

// retryAfterQuota estimates when quota pressure eases: the next hourly
// window boundary.
func (h *Handler) retryAfterQuota() time.Duration {
	now := time.Now().UTC()
	return now.Truncate(time.Hour).Add(time.Hour).Sub(now)
}
