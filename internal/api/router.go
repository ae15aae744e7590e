// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bibliocache/bibliocache/internal/config"
	"github.com/bibliocache/bibliocache/internal/middleware"
	"github.com/bibliocache/bibliocache/internal/ratelimit"
)

// Router assembles the HTTP handler tree.
type Router struct {
	handler *Handler
	limiter *ratelimit.Limiter
	cfg     *config.Config
}

// NewRouter creates the router.
func NewRouter(handler *Handler, limiter *ratelimit.Limiter, cfg *config.Config) *Router {
	return &Router{handler: handler, limiter: limiter, cfg: cfg}
}

// Setup wires all routes and middleware.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.CORS.AllowedOrigins,
		AllowedMethods: router.cfg.CORS.AllowedMethods,
		AllowedHeaders: router.cfg.CORS.AllowedHeaders,
		MaxAge:         router.cfg.CORS.MaxAge,
	}))

	// Health endpoints get a permissive per-IP limit instead of the
	// fingerprint limiter so monitoring keeps working when a fingerprint
	// window is exhausted.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/", router.handler.HandleHealth)
		r.Get("/live", router.handler.HandleLive)
		r.Get("/ready", router.handler.HandleReady)
	})

	// Data endpoints share the per-fingerprint interactive budget.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		if router.cfg.RateLimit.Enabled && router.limiter != nil {
			r.Use(middleware.FingerprintLimit(router.limiter, rateLimitDenied))
		}

		r.Get("/search", router.handler.HandleSearch)
		r.Get("/lookup/{id}", router.handler.HandleLookup)
		r.Get("/cache/status", router.handler.HandleCacheStatus)
		r.Post("/cache/warm", router.handler.HandleWarmTrigger)
	})

	// Batch consumes its own weighted budget inside the handler, so it sits
	// outside the interactive fingerprint limit.
	r.Group(func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		r.Post("/api/v1/batch", router.handler.HandleBatch)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// rateLimitDenied renders the fingerprint limiter's 429.
func rateLimitDenied(w http.ResponseWriter, r *http.Request, d ratelimit.Decision) {
	respondError(w, http.StatusTooManyRequests, ErrCodeTooManyRequests,
		"rate limit exceeded for "+string(d.Tier)+" tier", d.RetryAfter)
}
