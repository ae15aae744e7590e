// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

// Package cache implements the two-tier cache store: a capacity-bounded
// in-memory hot tier in front of a durable BadgerDB warm tier, with
// hit-count-driven asynchronous promotion between them.
package cache

import "time"

// Tier identifies which cache tier served or stores an entry.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
)

// Entry is a cached payload with its bookkeeping metadata. The warm tier
// persists the whole entry as JSON; the hot tier keeps a trimmed in-memory
// copy.
type Entry struct {
	Key          string    `json:"key"`
	Payload      []byte    `json:"payload"`
	CreatedAt    time.Time `json:"created_at"`
	TTLSeconds   int64     `json:"ttl_seconds"`
	HitCount     int64     `json:"hit_count"`
	LastAccessAt time.Time `json:"last_access_at"`
}

// Expired reports whether the entry is past its TTL at the given time.
// Expired entries must never be served.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second))
}

// Age returns how long ago the entry was created.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// Stats tracks per-tier cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int64
}

// HitRate returns the hit percentage for the stats snapshot.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total) * 100.0
}
