// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bibliocache/bibliocache/internal/config"
	"github.com/bibliocache/bibliocache/internal/metrics"
)

// ErrMiss is returned by Store.Get when the key is absent or expired in both
// tiers.
var ErrMiss = errors.New("cache miss")

// Store is the tiered cache facade: a bounded in-memory hot tier in front of
// the durable warm tier, with asynchronous hit-driven promotion.
//
// All read and write failures in the underlying tiers degrade gracefully: a
// read error is treated as a miss, a write error is logged and swallowed. The
// caller never fails because the cache does.
type Store struct {
	hot  *HotTier
	warm *WarmTier
	cfg  config.CacheConfig
	log  zerolog.Logger

	// promotions serializes async promotion work so a burst of hits on the
	// same key does not fan out goroutines. The channel is never closed:
	// shutdown goes through quit, so a read racing Close can still enqueue.
	promotions chan string
	quit       chan struct{}
	closeOnce  sync.Once
}

// NewStore creates a tiered store over the given tiers.
func NewStore(hot *HotTier, warm *WarmTier, cfg config.CacheConfig, log zerolog.Logger) *Store {
	s := &Store{
		hot:        hot,
		warm:       warm,
		cfg:        cfg,
		log:        log.With().Str("component", "cache").Logger(),
		promotions: make(chan string, 256),
		quit:       make(chan struct{}),
	}
	go s.promotionWorker()
	return s
}

// Get looks up a key hot-first, returning the payload, the serving tier, and
// how long ago the entry was written. A warm-tier hit that satisfies the
// promotion criteria is enqueued for asynchronous promotion; the read returns
// without waiting for it.
func (s *Store) Get(key string) ([]byte, Tier, time.Duration, error) {
	if entry, ok := s.hot.Get(key); ok {
		metrics.CacheHits.WithLabelValues(string(TierHot)).Inc()
		return entry.Payload, TierHot, entry.Age(time.Now()), nil
	}

	entry, err := s.warm.Get(key)
	if err != nil {
		if !errors.Is(err, ErrWarmMiss) {
			s.log.Warn().Err(err).Str("key", key).Msg("Warm tier read failed, treating as miss")
		}
		metrics.CacheMisses.Inc()
		return nil, "", 0, ErrMiss
	}

	metrics.CacheHits.WithLabelValues(string(TierWarm)).Inc()

	if s.promotable(entry) {
		select {
		case s.promotions <- key:
		default:
			// Promotion queue full; the entry stays warm until its next hit.
			metrics.CachePromotions.WithLabelValues("deferred").Inc()
		}
	}

	return entry.Payload, TierWarm, entry.Age(time.Now()), nil
}

// Set writes a payload under the given key. The warm tier always receives the
// write; the hot tier additionally receives it when the popularity hint meets
// the configured threshold or the TTL is short enough that the entry would
// never accumulate promotion hits.
//
// Writing the same payload under the same key is idempotent.
func (s *Store) Set(key string, payload []byte, ttl time.Duration, popularity int) {
	now := time.Now()
	entry := Entry{
		Key:          key,
		Payload:      payload,
		CreatedAt:    now,
		TTLSeconds:   int64(ttl / time.Second),
		LastAccessAt: now,
	}

	if err := s.warm.Set(entry); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Warm tier write failed")
		metrics.CacheWriteErrors.WithLabelValues(string(TierWarm)).Inc()
		return
	}
	metrics.CacheWrites.WithLabelValues(string(TierWarm)).Inc()

	if s.hotEligible(entry, popularity) {
		s.hot.Set(entry)
		metrics.CacheWrites.WithLabelValues(string(TierHot)).Inc()
	}
}

// Delete removes a key from both tiers.
func (s *Store) Delete(key string) {
	s.hot.Delete(key)
	if err := s.warm.Delete(key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Warm tier delete failed")
	}
}

// Status returns a point-in-time snapshot of both tiers for the status
// endpoint.
func (s *Store) Status() (hot, warm Stats) {
	hot = s.hot.GetStats()
	warm = s.warm.GetStats()
	if n, err := s.warm.Len(); err == nil {
		warm.Entries = n
	}
	metrics.CacheEntries.WithLabelValues(string(TierHot)).Set(float64(hot.Entries))
	metrics.CacheEntries.WithLabelValues(string(TierWarm)).Set(float64(warm.Entries))
	return hot, warm
}

// RunMaintenance sweeps expired hot entries on the configured interval until
// the context is cancelled. Warm-tier expiry is handled by Badger TTLs plus
// the read-path check, so only the hot map needs an active sweep.
func (s *Store) RunMaintenance(ctx context.Context) {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed := s.hot.RemoveExpired(now)
			if removed > 0 {
				s.log.Debug().Int("removed", removed).Msg("Swept expired hot tier entries")
			}
		}
	}
}

// promotable reports whether a warm-tier entry qualifies for hot promotion:
// enough accumulated hits, recently accessed, and small enough to hold in
// memory. Entries below the hit threshold are never promoted.
func (s *Store) promotable(entry Entry) bool {
	if entry.HitCount < int64(s.cfg.PromoteMinHits) {
		return false
	}
	if time.Since(entry.LastAccessAt) > s.cfg.PromoteMaxIdle {
		return false
	}
	if len(entry.Payload) > s.cfg.HotMaxEntryBytes {
		return false
	}
	return true
}

// hotEligible reports whether a fresh write should also land in the hot tier.
func (s *Store) hotEligible(entry Entry, popularity int) bool {
	if len(entry.Payload) > s.cfg.HotMaxEntryBytes {
		return false
	}
	if popularity >= s.cfg.HotPopularityThreshold {
		return true
	}
	// Short-lived entries (negative results and the like) would expire before
	// earning promotion hits, so they go hot immediately.
	return time.Duration(entry.TTLSeconds)*time.Second < 24*time.Hour
}

// promotionWorker copies qualifying warm entries into the hot tier. Promotion
// re-reads the entry so a concurrent expiry or delete cannot resurrect stale
// data.
func (s *Store) promotionWorker() {
	for {
		select {
		case <-s.quit:
			return
		case key := <-s.promotions:
			entry, err := s.warm.Get(key)
			if err != nil {
				metrics.CachePromotions.WithLabelValues("stale").Inc()
				continue
			}
			if !s.promotable(entry) {
				metrics.CachePromotions.WithLabelValues("skipped").Inc()
				continue
			}
			s.hot.Set(entry)
			metrics.CachePromotions.WithLabelValues("promoted").Inc()
			s.log.Debug().Str("key", key).Int64("hits", entry.HitCount).Msg("Promoted entry to hot tier")
		}
	}
}

// Close stops the promotion worker. Reads remain safe afterwards; enqueued
// promotions are simply never acted on and the entries stay warm.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
}
