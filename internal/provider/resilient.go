// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/bibliocache/bibliocache/internal/config"
	"github.com/bibliocache/bibliocache/internal/logging"
	"github.com/bibliocache/bibliocache/internal/metrics"
	"github.com/bibliocache/bibliocache/internal/models"
)

// Resilient wraps a Provider with a circuit breaker and outbound request
// pacing. Every provider the orchestrator sees is wrapped in one of these.
//
// The breaker trips on infrastructure failures only. ErrNotFound is a valid
// answer and ErrQuotaExhausted is handled by quota-aware selection, so
// neither counts against the provider's health.
type Resilient struct {
	inner   Provider
	cb      *gobreaker.CircuitBreaker[interface{}]
	limiter *rate.Limiter
}

var _ Provider = (*Resilient)(nil)

// NewResilient wraps a provider client.
//
// Circuit breaker configuration:
// - Max 3 concurrent requests in half-open state
// - 1 minute measurement window
// - 2 minute timeout before attempting recovery
// - Opens after 60% failure rate with minimum 10 requests
func NewResilient(inner Provider, cfg config.ProviderConfig) *Resilient {
	name := inner.ID()
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Str("provider", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},
		IsSuccessful: func(err error) bool {
			// Definitive answers and quota rejections are not provider
			// failures.
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrQuotaExhausted)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().
				Str("provider", name).
				Str("from", fromStr).
				Str("to", toStr).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	return &Resilient{
		inner:   inner,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (r *Resilient) ID() string { return r.inner.ID() }

// Available reports whether the breaker would admit a request right now.
// The orchestrator uses this to skip an open provider during scoring instead
// of burning a fallback attempt on it.
func (r *Resilient) Available() bool {
	return r.cb.State() != gobreaker.StateOpen
}

// Search paces, then executes through the breaker.
func (r *Resilient) Search(ctx context.Context, params SearchParams) (*models.SearchResult, error) {
	result, err := r.execute(ctx, "search", func() (interface{}, error) {
		return r.inner.Search(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.SearchResult), nil
}

// LookupByID paces, then executes through the breaker.
func (r *Resilient) LookupByID(ctx context.Context, id string) (*models.Record, error) {
	result, err := r.execute(ctx, "lookup", func() (interface{}, error) {
		return r.inner.LookupByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Record), nil
}

func (r *Resilient) execute(ctx context.Context, operation string, fn func() (interface{}, error)) (interface{}, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s pacing wait: %w", r.ID(), err)
	}

	start := time.Now()
	result, err := r.cb.Execute(fn)
	metrics.ProviderRequestDuration.WithLabelValues(r.ID(), operation).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.ProviderRequests.WithLabelValues(r.ID(), "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.ProviderRequests.WithLabelValues(r.ID(), "rejected").Inc()
		return nil, fmt.Errorf("%s circuit open: %w: %w", r.ID(), ErrProviderUnavailable, err)
	case errors.Is(err, ErrNotFound):
		metrics.ProviderRequests.WithLabelValues(r.ID(), "not_found").Inc()
	default:
		metrics.ProviderRequests.WithLabelValues(r.ID(), "failure").Inc()
	}
	return result, err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
