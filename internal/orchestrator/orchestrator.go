// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

// Package orchestrator selects among the configured metadata providers and
// executes requests with scored, quota-aware fallback.
//
// Selection excludes providers whose circuit is open or whose quota windows
// are all exhausted, ranks the rest by score, and walks the ranking until one
// returns a terminal outcome (a record, or a definitive not-found). Quota is
// charged exactly once per request, to the provider that produced the
// terminal outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/bibliocache/bibliocache/internal/config"
	"github.com/bibliocache/bibliocache/internal/metrics"
	"github.com/bibliocache/bibliocache/internal/models"
	"github.com/bibliocache/bibliocache/internal/provider"
	"github.com/bibliocache/bibliocache/internal/quota"
)

// ErrNoProvidersAvailable means no provider could even be attempted: every
// enabled provider has an open circuit or exhausted quota. The API layer maps
// this to 503 with a Retry-After.
var ErrNoProvidersAvailable = errors.New("no providers available")

// Registration pairs a wrapped provider client with its config.
type Registration struct {
	client *provider.Resilient
	cfg    config.ProviderConfig
}

// Result is one orchestrated outcome. Exactly one of Record and Search is set
// depending on the request type.
type Result struct {
	Record   *models.Record
	Search   *models.SearchResult
	Provider string
}

// Orchestrator coordinates provider selection, fallback, and quota charging.
type Orchestrator struct {
	registered []Registration
	quota      *quota.Store
	cfg        config.OrchestraConfig
	log        zerolog.Logger

	// batchSem bounds concurrent upstream work across all batch requests.
	batchSem *semaphore.Weighted
}

// New creates an orchestrator over the given providers.
func New(providers []Registration, quotaStore *quota.Store, cfg config.OrchestraConfig, log zerolog.Logger) *Orchestrator {
	maxConcurrency := int64(cfg.MaxConcurrency)
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Orchestrator{
		registered: providers,
		quota:      quotaStore,
		cfg:        cfg,
		log:        log.With().Str("component", "orchestrator").Logger(),
		batchSem:   semaphore.NewWeighted(maxConcurrency),
	}
}

// Register builds the registration list from config, wiring each enabled
// provider client into its resilience wrapper.
func Register(cfg config.ProvidersConfig) []Registration {
	var regs []Registration
	if cfg.GoogleBooks.Enabled {
		regs = append(regs, Registration{
			client: provider.NewResilient(provider.NewGoogleBooks(cfg.GoogleBooks), cfg.GoogleBooks),
			cfg:    cfg.GoogleBooks,
		})
	}
	if cfg.ISBNdb.Enabled {
		regs = append(regs, Registration{
			client: provider.NewResilient(provider.NewISBNdb(cfg.ISBNdb), cfg.ISBNdb),
			cfg:    cfg.ISBNdb,
		})
	}
	if cfg.OpenLibrary.Enabled {
		regs = append(regs, Registration{
			client: provider.NewResilient(provider.NewOpenLibrary(cfg.OpenLibrary), cfg.OpenLibrary),
			cfg:    cfg.OpenLibrary,
		})
	}
	return regs
}

// ExecuteSingle runs one request through the ranked provider list.
//
// Terminal outcomes (success or definitive not-found) stop the walk and
// charge quota to the answering provider. Transient failures fall through to
// the next candidate; if every candidate fails, the aggregate error names
// each attempt.
func (o *Orchestrator) ExecuteSingle(ctx context.Context, req models.LookupRequest) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.SingleTimeout)
	defer cancel()

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityInteractive
	}

	candidates := o.rank(req.Type, priority)
	if len(candidates) == 0 {
		metrics.QuotaExhausted.WithLabelValues(string(req.Type)).Inc()
		return nil, ErrNoProvidersAvailable
	}

	var attempts []string
	for i, cand := range candidates {
		result, err := o.attempt(ctx, cand, req)
		if provider.Terminal(err) {
			o.charge(cand)
			if err != nil {
				return nil, err
			}
			if i > 0 {
				o.log.Debug().
					Str("provider", cand.client.ID()).
					Int("attempt", i+1).
					Msg("Request served by fallback provider")
			}
			return result, nil
		}

		attempts = append(attempts, fmt.Sprintf("%s: %v", cand.client.ID(), err))
		metrics.ProviderFallbacks.WithLabelValues(cand.client.ID()).Inc()
		o.log.Warn().
			Err(err).
			Str("provider", cand.client.ID()).
			Msg("Provider attempt failed, falling back")

		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("all providers failed: %s", strings.Join(attempts, "; "))
}

// ExecuteBatch resolves a list of identifiers with bounded concurrency.
// Items are fully independent: one failure never aborts the others, and the
// result partitions every input into successful or failed.
func (o *Orchestrator) ExecuteBatch(ctx context.Context, ids []string, priority models.Priority) *models.BatchResult {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.BatchTimeout)
	defer cancel()

	results := make([]models.BatchItemResult, len(ids))
	done := make(chan int, len(ids))

	for idx, id := range ids {
		go func(idx int, id string) {
			defer func() { done <- idx }()

			if err := o.batchSem.Acquire(ctx, 1); err != nil {
				results[idx] = models.BatchItemResult{ID: id, Reason: "batch timed out"}
				return
			}
			defer o.batchSem.Release(1)

			res, err := o.ExecuteSingle(ctx, models.LookupRequest{
				Type:     models.RequestTypeLookup,
				ID:       id,
				Priority: priority,
			})
			if err != nil {
				results[idx] = models.BatchItemResult{ID: id, Reason: failureReason(err)}
				return
			}
			results[idx] = models.BatchItemResult{ID: id, Record: res.Record}
		}(idx, id)
	}
	for range ids {
		<-done
	}

	batch := &models.BatchResult{
		Successful: make([]models.BatchItemResult, 0, len(ids)),
		Failed:     make([]models.BatchItemResult, 0),
	}
	for _, item := range results {
		if item.Record != nil {
			batch.Successful = append(batch.Successful, item)
		} else {
			batch.Failed = append(batch.Failed, item)
		}
	}
	return batch
}

// attempt executes the request against one candidate.
func (o *Orchestrator) attempt(ctx context.Context, cand candidate, req models.LookupRequest) (*Result, error) {
	switch req.Type {
	case models.RequestTypeSearch:
		search, err := cand.client.Search(ctx, provider.SearchParams{
			Query:      req.Query,
			MaxResults: req.MaxResults,
			SortBy:     req.SortBy,
			Language:   req.Language,
		})
		if err != nil {
			return nil, err
		}
		return &Result{Search: search, Provider: cand.client.ID()}, nil
	default:
		record, err := cand.client.LookupByID(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		return &Result{Record: record, Provider: cand.client.ID()}, nil
	}
}

// charge records one quota unit against the candidate's selected tier.
// Charged exactly once per request, on the terminal outcome.
func (o *Orchestrator) charge(cand candidate) {
	if _, err := o.quota.Increment(cand.client.ID(), cand.tier); err != nil {
		o.log.Error().
			Err(err).
			Str("provider", cand.client.ID()).
			Str("tier", cand.tier.Name).
			Msg("Failed to record quota usage")
	}
}

// ProviderStatuses reports each registered provider's availability and quota
// usage for the status endpoint.
func (o *Orchestrator) ProviderStatuses() []models.QuotaStatus {
	statuses := make([]models.QuotaStatus, 0, len(o.registered))
	for _, reg := range o.registered {
		tiers := o.quota.Snapshot(reg.client.ID(), reg.cfg.Tiers)
		status := models.QuotaStatus{
			Provider:  reg.client.ID(),
			Available: reg.client.Available(),
		}
		for _, tier := range tiers {
			status.Tiers = append(status.Tiers, models.QuotaTierStatus{
				Name:      tier.Tier,
				Period:    tier.Period,
				Used:      tier.Used,
				Limit:     tier.Limit,
				Remaining: tier.Remaining,
			})
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// failureReason sanitizes an orchestration error for batch item output. Raw
// upstream errors stay in the logs.
func failureReason(err error) string {
	switch {
	case errors.Is(err, provider.ErrNotFound):
		return "not found"
	case errors.Is(err, ErrNoProvidersAvailable):
		return "no providers available"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	default:
		return "lookup failed"
	}
}
