// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package cache

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/bibliocache/bibliocache/internal/config"
	"github.com/bibliocache/bibliocache/internal/logging"
)

func testDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open in-memory badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		HotMaxEntries:          100,
		HotMaxEntryBytes:       1024,
		HotPopularityThreshold: 10,
		PromoteMinHits:         5,
		PromoteMaxIdle:         24 * time.Hour,
		SearchTTL:              30 * 24 * time.Hour,
		LookupTTL:              365 * 24 * time.Hour,
		NegativeTTL:            time.Hour,
		CleanupInterval:        time.Minute,
	}
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(NewHotTier(100), NewWarmTier(testDB(t)), testCacheConfig(), logging.NewTestLogger(io.Discard))
	t.Cleanup(s.Close)
	return s
}

// waitForHot polls the hot tier until the key appears or the deadline passes.
// Promotion is asynchronous, so tests have to wait for the worker.
func waitForHot(t *testing.T, s *Store, key string) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.hot.Get(key); ok {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestWarmTierRoundTrip(t *testing.T) {
	w := NewWarmTier(testDB(t))

	entry := makeEntry("k1", time.Hour)
	if err := w.Set(entry); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := w.Get("k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got.Payload, entry.Payload) {
		t.Errorf("payload mismatch: %s", got.Payload)
	}
	if got.HitCount != 1 {
		t.Errorf("expected hit count 1 after first read, got %d", got.HitCount)
	}
}

func TestWarmTierMiss(t *testing.T) {
	w := NewWarmTier(testDB(t))
	if _, err := w.Get("absent"); !errors.Is(err, ErrWarmMiss) {
		t.Fatalf("expected ErrWarmMiss, got %v", err)
	}
}

func TestWarmTierExpiredEntryNeverServed(t *testing.T) {
	w := NewWarmTier(testDB(t))
	e := makeEntry("stale", 10*time.Hour)
	e.CreatedAt = time.Now().Add(-24 * time.Hour)
	if err := w.Set(e); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// The Badger TTL would also drop it, but the explicit check must hold on
	// its own.
	if _, err := w.Get("stale"); !errors.Is(err, ErrWarmMiss) {
		t.Fatalf("expired entry must read as miss, got %v", err)
	}
}

func TestWarmTierHitCountAccumulates(t *testing.T) {
	w := NewWarmTier(testDB(t))
	if err := w.Set(makeEntry("k1", time.Hour)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var last int64
	for i := 0; i < 4; i++ {
		got, err := w.Get("k1")
		if err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
		if got.HitCount <= last {
			t.Errorf("hit count did not advance: %d -> %d", last, got.HitCount)
		}
		last = got.HitCount
	}
}

func TestStoreMissBothTiers(t *testing.T) {
	s := testStore(t)
	if _, _, _, err := s.Get("absent"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestStoreSetWritesWarmAlways(t *testing.T) {
	s := testStore(t)
	// Long TTL, no popularity: warm-only write.
	s.Set("k1", []byte("data"), 48*time.Hour, 0)

	if _, ok := s.hot.Get("k1"); ok {
		t.Error("unpopular long-TTL entry should not be written hot")
	}
	payload, tier, _, err := s.Get("k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tier != TierWarm {
		t.Errorf("expected warm tier hit, got %s", tier)
	}
	if string(payload) != "data" {
		t.Errorf("payload mismatch: %s", payload)
	}
}

func TestStoreSetPopularEntryGoesHot(t *testing.T) {
	s := testStore(t)
	s.Set("pop", []byte("data"), 48*time.Hour, 10)

	_, tier, _, err := s.Get("pop")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tier != TierHot {
		t.Errorf("popular entry should be served hot, got %s", tier)
	}
}

func TestStoreShortTTLGoesHot(t *testing.T) {
	s := testStore(t)
	// Negative-cache style entry: short TTL, zero popularity.
	s.Set("neg", []byte("{}"), time.Hour, 0)

	_, tier, _, err := s.Get("neg")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tier != TierHot {
		t.Errorf("short-TTL entry should be served hot, got %s", tier)
	}
}

func TestStoreOversizedEntryStaysWarm(t *testing.T) {
	s := testStore(t)
	big := make([]byte, 2048) // over the 1KiB test bound
	s.Set("big", big, time.Hour, 100)

	_, tier, _, err := s.Get("big")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tier != TierWarm {
		t.Errorf("oversized entry must stay warm-only, got %s", tier)
	}
}

func TestStorePromotionAfterThreshold(t *testing.T) {
	s := testStore(t)
	s.Set("k1", []byte("data"), 48*time.Hour, 0)

	// PromoteMinHits is 5 in the test config; drive warm hits past it.
	for i := 0; i < 6; i++ {
		if _, _, _, err := s.Get("k1"); err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
	}
	if !waitForHot(t, s, "k1") {
		t.Fatal("entry was not promoted after exceeding the hit threshold")
	}
}

func TestStoreBelowThresholdNeverPromotes(t *testing.T) {
	s := testStore(t)
	s.Set("k1", []byte("data"), 48*time.Hour, 0)

	// Three warm hits, below the threshold of five.
	for i := 0; i < 3; i++ {
		if _, _, _, err := s.Get("k1"); err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
	}
	time.Sleep(50 * time.Millisecond) // give a wrong promotion time to land
	if _, ok := s.hot.Get("k1"); ok {
		t.Fatal("entry below the hit threshold must never be promoted")
	}
}

func TestStoreSetIdempotent(t *testing.T) {
	s := testStore(t)
	s.Set("k1", []byte("same"), 48*time.Hour, 0)
	s.Set("k1", []byte("same"), 48*time.Hour, 0)

	payload, _, _, err := s.Get("k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(payload) != "same" {
		t.Errorf("payload mismatch after repeated set: %s", payload)
	}
	if n, err := s.warm.Len(); err != nil || n != 1 {
		t.Errorf("expected exactly one warm entry, got %d (err %v)", n, err)
	}
}

func TestStoreDeleteRemovesBothTiers(t *testing.T) {
	s := testStore(t)
	s.Set("k1", []byte("data"), time.Hour, 100)
	s.Delete("k1")

	if _, _, _, err := s.Get("k1"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestStoreGetReportsEntryAge(t *testing.T) {
	s := testStore(t)
	e := makeEntry("aged", 10*time.Hour)
	e.CreatedAt = time.Now().Add(-2 * time.Hour)
	if err := s.warm.Set(e); err != nil {
		t.Fatalf("Set: %v", err)
	}

	_, tier, age, err := s.Get("aged")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tier != TierWarm {
		t.Errorf("expected warm tier hit, got %s", tier)
	}
	if age < 2*time.Hour || age > 2*time.Hour+time.Minute {
		t.Errorf("age = %s, want about 2h", age)
	}
}

func TestStoreReadAfterCloseDoesNotPanic(t *testing.T) {
	s := testStore(t)
	s.Set("k1", []byte("data"), 48*time.Hour, 0)

	// Accumulate enough hits that reads keep trying to enqueue promotion.
	for i := 0; i < 6; i++ {
		if _, _, _, err := s.Get("k1"); err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
	}
	s.Close()

	// Reads racing shutdown must still be served, and must not panic on the
	// promotion enqueue.
	for i := 0; i < 10; i++ {
		if _, _, _, err := s.Get("k1"); err != nil {
			t.Fatalf("Get after close: %v", err)
		}
	}
}
