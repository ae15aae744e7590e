// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package warming

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bibliocache/bibliocache/internal/cache"
	"github.com/bibliocache/bibliocache/internal/config"
	"github.com/bibliocache/bibliocache/internal/metrics"
	"github.com/bibliocache/bibliocache/internal/models"
)

// ErrUnknownJob is returned by Trigger for a job type no configured job
// matches.
var ErrUnknownJob = errors.New("unknown warming job")

// Lookup is the slice of the orchestrator the scheduler needs. Warming always
// goes through batch execution so its upstream fan-out shares the bounded
// concurrency pool with client batches.
type Lookup interface {
	ExecuteBatch(ctx context.Context, ids []string, priority models.Priority) *models.BatchResult
}

// Cache is the slice of the tiered store the scheduler needs.
type Cache interface {
	Get(key string) ([]byte, cache.Tier, time.Duration, error)
	Set(key string, payload []byte, ttl time.Duration, popularity int)
}

// Scheduler drives warming jobs: on every check interval it runs one due
// job's next work-list slice through the orchestrator at background priority
// and checkpoints the cursor.
//
// A slice only advances when its success ratio meets the configured
// threshold; otherwise the same slice is retried on the next trigger, so a
// provider outage pauses warming instead of burning through the list.
type Scheduler struct {
	jobs     []Job
	progress *ProgressStore
	lookup   Lookup
	cache    Cache
	cfg      config.WarmingConfig
	ttl      time.Duration
	log      zerolog.Logger

	// now is swappable for schedule tests.
	now func() time.Time
}

// NewScheduler creates a warming scheduler.
func NewScheduler(jobs []Job, progress *ProgressStore, lookup Lookup, cacheStore Cache, cfg config.WarmingConfig, lookupTTL time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		progress: progress,
		lookup:   lookup,
		cache:    cacheStore,
		cfg:      cfg,
		ttl:      lookupTTL,
		log:      log.With().Str("component", "warming").Logger(),
		now:      time.Now,
	}
}

// Run evaluates due jobs on the check interval until the context is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info().Msg("Warming disabled by configuration")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue runs one slice of every currently due job.
func (s *Scheduler) RunDue(ctx context.Context) {
	for _, job := range s.jobs {
		progress, err := s.progress.Load(job.Type)
		if err != nil {
			s.log.Error().Err(err).Str("job", job.Type).Msg("Failed to load warming progress")
			metrics.WarmingRuns.WithLabelValues(job.Type, "error").Inc()
			continue
		}
		if !s.due(job, progress) {
			continue
		}
		if err := s.runSlice(ctx, job, progress); err != nil {
			s.log.Error().Err(err).Str("job", job.Type).Msg("Warming run failed")
			metrics.WarmingRuns.WithLabelValues(job.Type, "error").Inc()
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Trigger runs a named job's next slice immediately, regardless of schedule.
// Completed one-shot jobs stay no-ops. Returns the post-run checkpoint.
func (s *Scheduler) Trigger(ctx context.Context, jobType string) (Progress, error) {
	for _, job := range s.jobs {
		if job.Type != jobType {
			continue
		}
		progress, err := s.progress.Load(job.Type)
		if err != nil {
			return Progress{}, err
		}
		if progress.Completed {
			metrics.WarmingRuns.WithLabelValues(job.Type, "noop").Inc()
			return progress, nil
		}
		if err := s.runSlice(ctx, job, progress); err != nil {
			return Progress{}, err
		}
		return s.progress.Load(job.Type)
	}
	return Progress{}, fmt.Errorf("%w: %q", ErrUnknownJob, jobType)
}

// Statuses reports every job's checkpoint for the status endpoint.
func (s *Scheduler) Statuses() []models.WarmingStatus {
	statuses := make([]models.WarmingStatus, 0, len(s.jobs))
	for _, job := range s.jobs {
		progress, err := s.progress.Load(job.Type)
		if err != nil {
			s.log.Warn().Err(err).Str("job", job.Type).Msg("Failed to load warming progress")
			continue
		}
		status := models.WarmingStatus{
			JobType:   job.Type,
			Cursor:    fmt.Sprintf("%d/%d", progress.Cursor, len(job.Items)),
			Processed: progress.Processed,
			Completed: progress.Completed,
		}
		if !progress.LastCycleAt.IsZero() {
			t := progress.LastCycleAt
			status.LastRunAt = &t
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// due reports whether a job should run now. A job mid-list is always due; a
// job between cycles is due one schedule period after its last completed
// cycle. Completed one-shot jobs are never due.
func (s *Scheduler) due(job Job, progress Progress) bool {
	if progress.Completed {
		return false
	}
	if progress.Cursor > 0 {
		return true
	}
	if progress.LastCycleAt.IsZero() {
		return true
	}
	period := job.Schedule.period()
	if period == 0 {
		return false
	}
	return s.now().Sub(progress.LastCycleAt) >= period
}

// runSlice processes the job's next batch of items and checkpoints.
func (s *Scheduler) runSlice(ctx context.Context, job Job, progress Progress) error {
	end := progress.Cursor + s.cfg.BatchSize
	if end > len(job.Items) {
		end = len(job.Items)
	}
	slice := job.Items[progress.Cursor:end]
	if len(slice) == 0 {
		return s.finishCycle(job, progress)
	}

	// Items already cached count as success without an upstream call; only
	// the rest goes through the orchestrator, as one background batch.
	succeeded := 0
	missing := make([]string, 0, len(slice))
	for _, id := range slice {
		if _, _, _, err := s.cache.Get(cache.IDKey(id)); err == nil {
			metrics.WarmingItems.WithLabelValues(job.Type, "success").Inc()
			succeeded++
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 && ctx.Err() == nil {
		result := s.lookup.ExecuteBatch(ctx, missing, models.PriorityBackground)
		for _, item := range result.Successful {
			if s.storeWarmed(job.Type, item) {
				succeeded++
			}
		}
		for _, item := range result.Failed {
			metrics.WarmingItems.WithLabelValues(job.Type, "failure").Inc()
			s.log.Debug().
				Str("job", job.Type).
				Str("id", item.ID).
				Str("reason", item.Reason).
				Msg("Warming item failed")
		}
	}

	ratio := float64(succeeded) / float64(len(slice))
	if ratio < s.cfg.AdvanceThreshold {
		// Below threshold: keep the cursor so the same slice retries on the
		// next trigger.
		metrics.WarmingRuns.WithLabelValues(job.Type, "retried").Inc()
		s.log.Warn().
			Str("job", job.Type).
			Int("cursor", progress.Cursor).
			Float64("success_ratio", ratio).
			Msg("Warming slice below advance threshold, will retry")
		return nil
	}

	progress.Cursor = end
	progress.Processed += succeeded
	metrics.WarmingRuns.WithLabelValues(job.Type, "advanced").Inc()
	metrics.WarmingLastRun.WithLabelValues(job.Type).Set(float64(s.now().Unix()))

	if progress.Cursor >= len(job.Items) {
		return s.finishCycle(job, progress)
	}
	return s.progress.Save(progress)
}

// finishCycle closes out a full pass over the list: one-shot jobs complete
// permanently, periodic jobs reset for the next period.
func (s *Scheduler) finishCycle(job Job, progress Progress) error {
	progress.Cursor = 0
	progress.LastCycleAt = s.now()
	if job.Schedule == ScheduleOnce {
		progress.Completed = true
		s.log.Info().Str("job", job.Type).Int("processed", progress.Processed).Msg("One-shot warming job completed")
	} else {
		s.log.Info().Str("job", job.Type).Msg("Warming cycle completed")
	}
	return s.progress.Save(progress)
}

// storeWarmed writes one fetched record back to cache. Warmed entries share
// the organic key space and TTL; readers cannot tell them apart from
// demand-filled entries.
func (s *Scheduler) storeWarmed(jobType string, item models.BatchItemResult) bool {
	payload, err := cache.EncodeRecord(item.Record, item.Record.Source)
	if err != nil {
		metrics.WarmingItems.WithLabelValues(jobType, "failure").Inc()
		return false
	}
	s.cache.Set(cache.IDKey(item.ID), payload, s.ttl, 0)
	metrics.WarmingItems.WithLabelValues(jobType, "success").Inc()
	return true
}
