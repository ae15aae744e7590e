// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

// Package main is the entry point for the Bibliocache server.
//
// Bibliocache is a self-hosted caching proxy for bibliographic metadata. It
// fronts Google Books, ISBNdb, and Open Library behind a single API,
// orchestrating provider selection by quality, quota headroom, and request
// affinity, with a two-tier cache (in-memory hot tier over BadgerDB) so
// repeat lookups never touch the upstreams.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults, YAML file, environment (Koanf v2)
//  2. Storage: one BadgerDB instance shared by the warm cache tier, quota
//     counters, and warming checkpoints
//  3. Cache: hot tier, warm tier, and the promotion pipeline between them
//  4. Providers: per-provider circuit breakers and request pacing
//  5. Orchestrator: scored provider selection with quota-aware fallback
//  6. Warming: resumable curated-list scheduler
//  7. Enrichment: asynchronous post-fetch enrichment pipeline
//  8. HTTP server: REST API under /api/v1 plus /metrics
//
// All long-running components run under a Suture supervisor tree, split into
// storage, background, and API layers for failure isolation.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority
// wins): environment variables (BIBLIOCACHE_ prefix), config file
// (config.yaml), built-in defaults. Example:
//
//	export BIBLIOCACHE_PROVIDERS__ISBNDB__ENABLED=true
//	export BIBLIOCACHE_PROVIDERS__ISBNDB__API_KEY=your-key
//	export BIBLIOCACHE_STORAGE__PATH=/data/bibliocache
//	./bibliocache
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: it stops accepting
// connections, drains in-flight requests within the configured timeout,
// flushes the enrichment pipeline, and closes BadgerDB last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"

	"github.com/bibliocache/bibliocache/internal/api"
	"github.com/bibliocache/bibliocache/internal/cache"
	"github.com/bibliocache/bibliocache/internal/config"
	"github.com/bibliocache/bibliocache/internal/enrich"
	"github.com/bibliocache/bibliocache/internal/logging"
	"github.com/bibliocache/bibliocache/internal/orchestrator"
	"github.com/bibliocache/bibliocache/internal/quota"
	"github.com/bibliocache/bibliocache/internal/ratelimit"
	"github.com/bibliocache/bibliocache/internal/supervisor"
	"github.com/bibliocache/bibliocache/internal/supervisor/services"
	"github.com/bibliocache/bibliocache/internal/warming"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	log := logging.Logger()
	log.Info().
		Str("environment", cfg.Server.Environment).
		Int("port", cfg.Server.Port).
		Msg("Starting Bibliocache")

	// One Badger instance backs the warm cache tier, quota counters, and
	// warming checkpoints, each under its own key prefix.
	db, err := openBadger(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	store := cache.NewStore(
		cache.NewHotTier(cfg.Cache.HotMaxEntries),
		cache.NewWarmTier(db),
		cfg.Cache,
		log,
	)
	defer store.Close()

	quotaStore := quota.NewStore(db)
	orch := orchestrator.New(orchestrator.Register(cfg.Providers), quotaStore, cfg.Orchestra, log)

	scheduler := warming.NewScheduler(
		warming.DefaultJobs(),
		warming.NewProgressStore(db),
		orch,
		store,
		cfg.Warming,
		cfg.Cache.LookupTTL,
		log,
	)

	pipeline := enrich.NewPipeline(enrich.NewHeuristic(), store, log)
	defer func() {
		if err := pipeline.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close enrichment pipeline")
		}
	}()

	limiter := ratelimit.NewLimiter(cfg.RateLimit)

	handler := api.NewHandler(store, orch, scheduler, pipeline, limiter, cfg, log)
	handler.RegisterCheck("storage", func(context.Context) error {
		if db.IsClosed() {
			return errors.New("storage closed")
		}
		return nil
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, limiter, cfg).Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddStorageService(services.NewBadgerGCService(db, cfg.Storage.GCInterval, log))
	tree.AddBackgroundService(services.NewMaintenanceService(store))
	tree.AddBackgroundService(services.NewEnrichmentService(pipeline))
	if cfg.Warming.Enabled {
		tree.AddBackgroundService(services.NewWarmingService(scheduler))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("addr", server.Addr).Msg("Bibliocache ready")
	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			log.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	log.Info().Msg("Bibliocache stopped")
	return nil
}

// openBadger opens the shared Badger instance. Badger's own logger is
// silenced; storage events surface through our metrics and log wrappers.
func openBadger(cfg config.StorageConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	return badger.Open(opts.WithLogger(nil))
}
