// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package api

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/bibliocache/bibliocache/internal/cache"
	"github.com/bibliocache/bibliocache/internal/config"
	"github.com/bibliocache/bibliocache/internal/models"
	"github.com/bibliocache/bibliocache/internal/orchestrator"
	"github.com/bibliocache/bibliocache/internal/ratelimit"
	"github.com/bibliocache/bibliocache/internal/warming"
)

// Lookup is the slice of the orchestrator the handlers need.
type Lookup interface {
	ExecuteSingle(ctx context.Context, req models.LookupRequest) (*orchestrator.Result, error)
	ExecuteBatch(ctx context.Context, ids []string, priority models.Priority) *models.BatchResult
	ProviderStatuses() []models.QuotaStatus
}

// CacheStore is the slice of the tiered cache the handlers need.
type CacheStore interface {
	Get(key string) ([]byte, cache.Tier, time.Duration, error)
	Set(key string, payload []byte, ttl time.Duration, popularity int)
	Status() (hot, warm cache.Stats)
}

// WarmingTrigger is the slice of the warming scheduler the handlers need.
type WarmingTrigger interface {
	Trigger(ctx context.Context, jobType string) (warming.Progress, error)
	Statuses() []models.WarmingStatus
}

// Enricher submits records for asynchronous enrichment.
type Enricher interface {
	Submit(cacheKey string, record *models.Record, providerID string, ttl time.Duration)
}

// Handler holds the dependencies for all API endpoints.
type Handler struct {
	cache   CacheStore
	orch    Lookup
	warming WarmingTrigger
	enrich  Enricher
	limiter *ratelimit.Limiter
	cfg     *config.Config
	log     zerolog.Logger

	// flight collapses concurrent identical misses into one upstream call.
	flight singleflight.Group

	// checks are the readiness probes, keyed by dependency name.
	checks map[string]HealthCheck
}

// RegisterCheck adds a named readiness probe. Not safe to call after the
// server starts serving.
func (h *Handler) RegisterCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// NewHandler creates the API handler.
func NewHandler(cacheStore CacheStore, orch Lookup, warming WarmingTrigger, enricher Enricher, limiter *ratelimit.Limiter, cfg *config.Config, log zerolog.Logger) *Handler {
	return &Handler{
		cache:   cacheStore,
		orch:    orch,
		warming: warming,
		enrich:  enricher,
		limiter: limiter,
		cfg:     cfg,
		log:     log.With().Str("component", "api").Logger(),
		checks:  make(map[string]HealthCheck),
	}
}
