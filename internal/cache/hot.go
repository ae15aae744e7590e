// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package cache

import (
	"sync"
	"time"
)

// HotTier is a thread-safe, capacity-bounded in-memory cache. It holds the
// small set of popular or short-lived entries; the warm tier remains the
// canonical backing for everything.
type HotTier struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	maxEntries int

	statsMu sync.Mutex
	stats   Stats
}

// NewHotTier creates a hot tier bounded to maxEntries entries.
func NewHotTier(maxEntries int) *HotTier {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &HotTier{
		entries:    make(map[string]*Entry),
		maxEntries: maxEntries,
	}
}

// Get retrieves an entry by key. Expired entries are removed and counted as
// misses. The returned entry is a copy; callers may not mutate tier state
// through it.
func (h *HotTier) Get(key string) (Entry, bool) {
	now := time.Now()

	h.mu.RLock()
	entry, exists := h.entries[key]
	h.mu.RUnlock()

	if !exists {
		h.recordMiss()
		return Entry{}, false
	}

	if entry.Expired(now) {
		h.mu.Lock()
		delete(h.entries, key)
		h.mu.Unlock()
		h.recordMiss()
		h.recordEviction()
		return Entry{}, false
	}

	h.mu.Lock()
	entry.HitCount++
	entry.LastAccessAt = now
	snapshot := *entry
	h.mu.Unlock()

	h.recordHit()
	return snapshot, true
}

// Set stores an entry, evicting the entry closest to expiry when at capacity.
func (h *HotTier) Set(entry Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.entries[entry.Key]; !exists && len(h.entries) >= h.maxEntries {
		h.evictSoonestExpiringLocked()
	}
	stored := entry
	h.entries[entry.Key] = &stored
}

// Delete removes an entry by key. No-op for missing keys.
func (h *HotTier) Delete(key string) {
	h.mu.Lock()
	delete(h.entries, key)
	h.mu.Unlock()
}

// RemoveExpired drops all expired entries and returns how many were removed.
// Called periodically by the tiered store's maintenance loop.
func (h *HotTier) RemoveExpired(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for key, entry := range h.entries {
		if entry.Expired(now) {
			delete(h.entries, key)
			removed++
		}
	}

	h.statsMu.Lock()
	h.stats.Evictions += int64(removed)
	h.statsMu.Unlock()
	return removed
}

// Len returns the current entry count.
func (h *HotTier) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// GetStats returns a snapshot of the tier's counters.
func (h *HotTier) GetStats() Stats {
	h.statsMu.Lock()
	s := h.stats
	h.statsMu.Unlock()
	s.Entries = int64(h.Len())
	return s
}

// evictSoonestExpiringLocked removes the entry whose TTL expires first.
// Must be called with mu held.
func (h *HotTier) evictSoonestExpiringLocked() {
	var victim string
	var victimExpiry time.Time
	for key, entry := range h.entries {
		expiry := entry.CreatedAt.Add(time.Duration(entry.TTLSeconds) * time.Second)
		if victim == "" || expiry.Before(victimExpiry) {
			victim = key
			victimExpiry = expiry
		}
	}
	if victim != "" {
		delete(h.entries, victim)
		h.statsMu.Lock()
		h.stats.Evictions++
		h.statsMu.Unlock()
	}
}

func (h *HotTier) recordHit() {
	h.statsMu.Lock()
	h.stats.Hits++
	h.statsMu.Unlock()
}

func (h *HotTier) recordMiss() {
	h.statsMu.Lock()
	h.stats.Misses++
	h.statsMu.Unlock()
}

func (h *HotTier) recordEviction() {
	h.statsMu.Lock()
	h.stats.Evictions++
	h.statsMu.Unlock()
}
