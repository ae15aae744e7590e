// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package services

import (
	"context"
)

// WarmingScheduler matches *warming.Scheduler's Run method.
type WarmingScheduler interface {
	Run(ctx context.Context)
}

// WarmingService runs the cache warming scheduler under supervision.
type WarmingService struct {
	scheduler WarmingScheduler
}

// NewWarmingService creates the warming service wrapper.
func NewWarmingService(scheduler WarmingScheduler) *WarmingService {
	return &WarmingService{scheduler: scheduler}
}

// Serve implements suture.Service.
func (w *WarmingService) Serve(ctx context.Context) error {
	w.scheduler.Run(ctx)
	return ctx.Err()
}

func (w *WarmingService) String() string {
	return "warming-scheduler"
}

// EnrichmentPipeline matches *enrich.Pipeline's Run method.
type EnrichmentPipeline interface {
	Run(ctx context.Context) error
}

// EnrichmentService runs the enrichment consumer under supervision.
type EnrichmentService struct {
	pipeline EnrichmentPipeline
}

// NewEnrichmentService creates the enrichment service wrapper.
func NewEnrichmentService(pipeline EnrichmentPipeline) *EnrichmentService {
	return &EnrichmentService{pipeline: pipeline}
}

// Serve implements suture.Service.
func (e *EnrichmentService) Serve(ctx context.Context) error {
	if err := e.pipeline.Run(ctx); err != nil {
		return err
	}
	return ctx.Err()
}

func (e *EnrichmentService) String() string {
	return "enrichment-pipeline"
}

// CacheMaintainer matches *cache.Store's RunMaintenance method.
type CacheMaintainer interface {
	RunMaintenance(ctx context.Context)
}

// MaintenanceService sweeps expired cache entries under supervision.
type MaintenanceService struct {
	store CacheMaintainer
}

// NewMaintenanceService creates the cache maintenance service wrapper.
func NewMaintenanceService(store CacheMaintainer) *MaintenanceService {
	return &MaintenanceService{store: store}
}

// Serve implements suture.Service.
func (m *MaintenanceService) Serve(ctx context.Context) error {
	m.store.RunMaintenance(ctx)
	return ctx.Err()
}

func (m *MaintenanceService) String() string {
	return "cache-maintenance"
}
