// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package quota

import (
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/bibliocache/bibliocache/internal/config"
)

func testDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open in-memory badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var dailyTier = config.QuotaTierConfig{Name: "free", Period: "daily", Limit: 100}

func TestIncrementAndRead(t *testing.T) {
	s := NewStore(testDB(t))

	for want := int64(1); want <= 3; want++ {
		got, err := s.Increment("googlebooks", dailyTier)
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if got != want {
			t.Errorf("expected counter %d, got %d", want, got)
		}
	}

	used, err := s.Used("googlebooks", dailyTier)
	if err != nil {
		t.Fatalf("Used: %v", err)
	}
	if used != 3 {
		t.Errorf("expected used 3, got %d", used)
	}
}

func TestConcurrentIncrementsNeverLost(t *testing.T) {
	s := NewStore(testDB(t))

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Increment("googlebooks", dailyTier); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Increment failed: %v", err)
	}

	used, err := s.Used("googlebooks", dailyTier)
	if err != nil {
		t.Fatalf("Used: %v", err)
	}
	if used != n {
		t.Errorf("expected %d after %d concurrent increments, got %d", n, n, used)
	}
}

func TestCountersIsolatedByProviderAndTier(t *testing.T) {
	s := NewStore(testDB(t))
	other := config.QuotaTierConfig{Name: "paid", Period: "daily", Limit: 100}

	if _, err := s.Increment("googlebooks", dailyTier); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Increment("openlibrary", dailyTier); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Increment("googlebooks", other); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		provider string
		tier     config.QuotaTierConfig
	}{
		{"googlebooks", dailyTier},
		{"openlibrary", dailyTier},
		{"googlebooks", other},
	} {
		used, err := s.Used(tc.provider, tc.tier)
		if err != nil {
			t.Fatal(err)
		}
		if used != 1 {
			t.Errorf("%s/%s: expected 1, got %d", tc.provider, tc.tier.Name, used)
		}
	}
}

func TestWindowRollover(t *testing.T) {
	s := NewStore(testDB(t))

	base := time.Date(2026, 8, 24, 23, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	if _, err := s.Increment("googlebooks", dailyTier); err != nil {
		t.Fatal(err)
	}

	// Next day: counter starts fresh without any reset job.
	s.now = func() time.Time { return base.Add(time.Hour) }
	used, err := s.Used("googlebooks", dailyTier)
	if err != nil {
		t.Fatal(err)
	}
	if used != 0 {
		t.Errorf("expected fresh window after rollover, got %d", used)
	}
}

func TestHourlyWindowRollover(t *testing.T) {
	s := NewStore(testDB(t))
	hourly := config.QuotaTierConfig{Name: "public", Period: "hourly", Limit: 10}

	base := time.Date(2026, 8, 24, 14, 55, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	if _, err := s.Increment("openlibrary", hourly); err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return base.Add(10 * time.Minute) }
	used, err := s.Used("openlibrary", hourly)
	if err != nil {
		t.Fatal(err)
	}
	if used != 0 {
		t.Errorf("expected fresh hourly window, got %d", used)
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	s := NewStore(testDB(t))
	tiny := config.QuotaTierConfig{Name: "tiny", Period: "daily", Limit: 2}

	for i := 0; i < 5; i++ {
		if _, err := s.Increment("p", tiny); err != nil {
			t.Fatal(err)
		}
	}
	remaining, err := s.Remaining("p", tiny)
	if err != nil {
		t.Fatal(err)
	}
	if remaining != 0 {
		t.Errorf("expected remaining 0, got %d", remaining)
	}
}

func TestHasRemaining(t *testing.T) {
	s := NewStore(testDB(t))
	tiers := []config.QuotaTierConfig{
		{Name: "a", Period: "daily", Limit: 1},
		{Name: "b", Period: "daily", Limit: 1},
	}

	if !s.HasRemaining("p", tiers) {
		t.Fatal("fresh provider should have remaining quota")
	}
	for _, tier := range tiers {
		if _, err := s.Increment("p", tier); err != nil {
			t.Fatal(err)
		}
	}
	if s.HasRemaining("p", tiers) {
		t.Fatal("fully consumed provider should report no remaining quota")
	}
}

func TestSnapshot(t *testing.T) {
	s := NewStore(testDB(t))
	tiers := []config.QuotaTierConfig{dailyTier}

	if _, err := s.Increment("googlebooks", dailyTier); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot("googlebooks", tiers)
	if len(snap) != 1 {
		t.Fatalf("expected 1 tier, got %d", len(snap))
	}
	if snap[0].Used != 1 || snap[0].Remaining != 99 {
		t.Errorf("unexpected snapshot: %+v", snap[0])
	}
}
