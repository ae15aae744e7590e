// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package ratelimit

import (
	"sync"
	"time"

	"github.com/bibliocache/bibliocache/internal/config"
	"github.com/bibliocache/bibliocache/internal/metrics"
)

// Decision is the limiter's verdict for one request.
type Decision struct {
	Allowed   bool
	Tier      ClientTier
	Limit     int64
	Remaining int64

	// RetryAfter is how long until the current window resets. Only meaningful
	// when Allowed is false.
	RetryAfter time.Duration
}

// bucket holds one fingerprint's counters for a single window. Interactive
// and batch usage are tracked separately: batch requests draw from their own,
// stricter budget weighted by batch size.
type bucket struct {
	windowStart time.Time
	count       int64
	batchCount  int64
}

// Limiter enforces fixed-window, per-fingerprint rate limits.
//
// State is in-memory and bounded: when the fingerprint map reaches capacity,
// buckets from completed windows are swept, and as a last resort new
// fingerprints share a degraded deny-free path rather than evicting active
// counters.
type Limiter struct {
	cfg config.RateLimitConfig

	mu      sync.Mutex
	buckets map[string]*bucket

	// now is swappable for window tests.
	now func() time.Time
}

// NewLimiter creates a limiter from config.
func NewLimiter(cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// limitFor returns the per-window ceiling for a tier.
func (l *Limiter) limitFor(tier ClientTier) int64 {
	switch tier {
	case TierTrusted:
		return l.cfg.TrustedLimit
	case TierBot:
		return l.cfg.BotLimit
	default:
		return l.cfg.AnonymousLimit
	}
}

// Check records an interactive request with weight 1 and returns the verdict.
func (l *Limiter) Check(c Client) Decision {
	return l.check(c, 1, false)
}

// CheckBatch records a batch request weighted by its item count against the
// separate batch budget.
func (l *Limiter) CheckBatch(c Client, items int) Decision {
	if items < 1 {
		items = 1
	}
	return l.check(c, int64(items), true)
}

func (l *Limiter) check(c Client, weight int64, batch bool) Decision {
	tier := Classify(c, l.cfg.TrustedIdentities)
	if !l.cfg.Enabled {
		return Decision{Allowed: true, Tier: tier}
	}

	limit := l.limitFor(tier)
	if batch {
		limit = l.cfg.BatchLimit
	}

	now := l.now()
	windowStart := now.Truncate(l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	fp := c.Fingerprint()
	b, ok := l.buckets[fp]
	if !ok {
		if len(l.buckets) >= l.cfg.MaxFingerprints {
			l.sweepLocked(windowStart)
		}
		if len(l.buckets) >= l.cfg.MaxFingerprints {
			// Map saturated with live windows. Failing open keeps an
			// attacker from denying service to everyone else by fingerprint
			// exhaustion.
			metrics.RateLimitDecisions.WithLabelValues(string(tier), "overflow").Inc()
			return Decision{Allowed: true, Tier: tier, Limit: limit}
		}
		b = &bucket{windowStart: windowStart}
		l.buckets[fp] = b
	}

	// Fixed windows: counters reset wholesale at the boundary.
	if b.windowStart.Before(windowStart) {
		b.windowStart = windowStart
		b.count = 0
		b.batchCount = 0
	}

	counter := &b.count
	if batch {
		counter = &b.batchCount
	}

	if *counter+weight > limit {
		metrics.RateLimitDecisions.WithLabelValues(string(tier), "denied").Inc()
		return Decision{
			Allowed:    false,
			Tier:       tier,
			Limit:      limit,
			Remaining:  max64(0, limit-*counter),
			RetryAfter: windowStart.Add(l.cfg.Window).Sub(now),
		}
	}

	*counter += weight
	metrics.RateLimitDecisions.WithLabelValues(string(tier), "allowed").Inc()
	return Decision{
		Allowed:   true,
		Tier:      tier,
		Limit:     limit,
		Remaining: limit - *counter,
	}
}

// sweepLocked drops buckets whose window has ended. Must be called with mu
// held.
func (l *Limiter) sweepLocked(currentWindow time.Time) {
	for fp, b := range l.buckets {
		if b.windowStart.Before(currentWindow) {
			delete(l.buckets, fp)
		}
	}
}

// Len returns the tracked fingerprint count.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
