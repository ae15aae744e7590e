// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package cache

import (
	"fmt"
	"testing"
	"time"
)

func makeEntry(key string, ttl time.Duration) Entry {
	now := time.Now()
	return Entry{
		Key:          key,
		Payload:      []byte("payload-" + key),
		CreatedAt:    now,
		TTLSeconds:   int64(ttl / time.Second),
		LastAccessAt: now,
	}
}

func TestHotTierSetGet(t *testing.T) {
	h := NewHotTier(10)
	h.Set(makeEntry("k1", time.Hour))

	entry, ok := h.Get("k1")
	if !ok {
		t.Fatal("expected hit for k1")
	}
	if string(entry.Payload) != "payload-k1" {
		t.Errorf("unexpected payload: %s", entry.Payload)
	}
	if entry.HitCount != 1 {
		t.Errorf("expected hit count 1, got %d", entry.HitCount)
	}
}

func TestHotTierExpiredEntryNeverServed(t *testing.T) {
	h := NewHotTier(10)
	e := makeEntry("stale", time.Second)
	e.CreatedAt = time.Now().Add(-time.Minute)
	h.Set(e)

	if _, ok := h.Get("stale"); ok {
		t.Fatal("expired entry must not be served")
	}
	if h.Len() != 0 {
		t.Errorf("expired entry should be removed on read, len=%d", h.Len())
	}
}

func TestHotTierCapacityEviction(t *testing.T) {
	h := NewHotTier(3)
	for i := 0; i < 3; i++ {
		h.Set(makeEntry(fmt.Sprintf("k%d", i), time.Duration(i+1)*time.Hour))
	}
	h.Set(makeEntry("k3", 10*time.Hour))

	if h.Len() != 3 {
		t.Fatalf("expected capacity 3, got %d", h.Len())
	}
	// k0 expires soonest and should be the victim.
	if _, ok := h.Get("k0"); ok {
		t.Error("expected soonest-expiring entry to be evicted")
	}
	if _, ok := h.Get("k3"); !ok {
		t.Error("newest entry should survive eviction")
	}
}

func TestHotTierOverwriteDoesNotEvict(t *testing.T) {
	h := NewHotTier(2)
	h.Set(makeEntry("a", time.Hour))
	h.Set(makeEntry("b", time.Hour))
	h.Set(makeEntry("a", 2*time.Hour))

	if h.Len() != 2 {
		t.Errorf("overwrite at capacity should not evict, len=%d", h.Len())
	}
	if _, ok := h.Get("b"); !ok {
		t.Error("unrelated entry was evicted by an overwrite")
	}
}

func TestHotTierSweep(t *testing.T) {
	h := NewHotTier(10)
	live := makeEntry("live", time.Hour)
	h.Set(live)

	dead := makeEntry("dead", time.Second)
	dead.CreatedAt = time.Now().Add(-time.Minute)
	h.Set(dead)

	removed := h.RemoveExpired(time.Now())
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if h.Len() != 1 {
		t.Errorf("expected 1 remaining, got %d", h.Len())
	}
}

func TestStatsHitRate(t *testing.T) {
	s := Stats{Hits: 3, Misses: 1}
	if got := s.HitRate(); got != 75.0 {
		t.Errorf("expected 75.0, got %f", got)
	}
	if got := (Stats{}).HitRate(); got != 0.0 {
		t.Errorf("empty stats should report 0, got %f", got)
	}
}
