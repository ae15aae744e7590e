// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/bibliocache/bibliocache/internal/config"
)

func testLimiterConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:           true,
		Window:            time.Hour,
		TrustedLimit:      2000,
		AnonymousLimit:    100,
		BotLimit:          10,
		BatchLimit:        50,
		TrustedIdentities: []string{"library-app-v2"},
		MaxFingerprints:   1000,
	}
}

func anonClient() Client {
	return Client{IP: "203.0.113.7", UserAgent: "Mozilla/5.0 (X11; Linux x86_64)"}
}

func TestFingerprintStable(t *testing.T) {
	c := Client{IP: "203.0.113.7", Identity: "app", Token: "tok"}
	if c.Fingerprint() != c.Fingerprint() {
		t.Error("fingerprint should be deterministic")
	}
}

func TestFingerprintDistinguishesComponents(t *testing.T) {
	base := Client{IP: "203.0.113.7", Identity: "app", Token: "tok"}
	variants := []Client{
		{IP: "203.0.113.8", Identity: "app", Token: "tok"},
		{IP: "203.0.113.7", Identity: "other", Token: "tok"},
		{IP: "203.0.113.7", Identity: "app", Token: "tok2"},
	}
	for i, v := range variants {
		if v.Fingerprint() == base.Fingerprint() {
			t.Errorf("variant %d should have a distinct fingerprint", i)
		}
	}
	// User agent changes must NOT change the fingerprint.
	withUA := base
	withUA.UserAgent = "rotated/1.0"
	if withUA.Fingerprint() != base.Fingerprint() {
		t.Error("user agent must not affect the fingerprint")
	}
}

func TestClassify(t *testing.T) {
	trusted := []string{"library-app-v2"}

	cases := []struct {
		name string
		c    Client
		want ClientTier
	}{
		{"trusted identity", Client{Identity: "library-app-v2", UserAgent: "app/2.0"}, TierTrusted},
		{"unknown identity is anonymous", Client{Identity: "somebody", UserAgent: "Mozilla/5.0"}, TierAnonymous},
		{"plain browser", Client{UserAgent: "Mozilla/5.0 (Macintosh)"}, TierAnonymous},
		{"crawler UA", Client{UserAgent: "GoogleBot/2.1"}, TierBot},
		{"curl", Client{UserAgent: "curl/8.5.0"}, TierBot},
		{"missing UA", Client{}, TierBot},
		{"bot with fake identity still bot", Client{Identity: "somebody", UserAgent: "scrapy-scraper"}, TierBot},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.c, trusted); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestLimitBoundaryExact(t *testing.T) {
	l := NewLimiter(testLimiterConfig())
	c := anonClient()

	// The 100th request in the window is allowed, the 101st is denied.
	for i := 0; i < 100; i++ {
		d := l.Check(c)
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	d := l.Check(c)
	if d.Allowed {
		t.Fatal("request beyond the limit should be denied")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Hour {
		t.Errorf("retry-after should fall within the window, got %v", d.RetryAfter)
	}
}

func TestWindowReset(t *testing.T) {
	l := NewLimiter(testLimiterConfig())
	c := anonClient()

	base := time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	for i := 0; i < 100; i++ {
		l.Check(c)
	}
	if l.Check(c).Allowed {
		t.Fatal("expected denial at limit")
	}

	// Next fixed window: full budget again.
	l.now = func() time.Time { return base.Add(time.Hour) }
	if !l.Check(c).Allowed {
		t.Fatal("new window should reset the counter")
	}
}

func TestTierCeilings(t *testing.T) {
	l := NewLimiter(testLimiterConfig())

	bot := Client{IP: "198.51.100.1", UserAgent: "curl/8.5.0"}
	for i := 0; i < 10; i++ {
		if !l.Check(bot).Allowed {
			t.Fatalf("bot request %d should be allowed", i+1)
		}
	}
	if l.Check(bot).Allowed {
		t.Fatal("bot should hit its ceiling at 10")
	}

	trusted := Client{IP: "198.51.100.2", Identity: "library-app-v2", UserAgent: "app/2.0"}
	d := l.Check(trusted)
	if !d.Allowed || d.Limit != 2000 {
		t.Errorf("trusted client should get the trusted ceiling, got %+v", d)
	}
}

func TestBatchBudgetSeparate(t *testing.T) {
	l := NewLimiter(testLimiterConfig())
	c := anonClient()

	// Consume the whole batch budget in one weighted request.
	if !l.CheckBatch(c, 50).Allowed {
		t.Fatal("batch within budget should be allowed")
	}
	if l.CheckBatch(c, 1).Allowed {
		t.Fatal("batch budget should be exhausted")
	}
	// Interactive budget is untouched.
	if !l.Check(c).Allowed {
		t.Fatal("interactive budget must be independent of batch usage")
	}
}

func TestBatchWeightedBySize(t *testing.T) {
	l := NewLimiter(testLimiterConfig())
	c := anonClient()

	d := l.CheckBatch(c, 30)
	if !d.Allowed || d.Remaining != 20 {
		t.Errorf("expected 20 remaining after weight-30 batch, got %+v", d)
	}
	if l.CheckBatch(c, 21).Allowed {
		t.Error("batch exceeding the remaining budget should be denied")
	}
	if !l.CheckBatch(c, 20).Allowed {
		t.Error("batch exactly filling the budget should be allowed")
	}
}

func TestDistinctFingerprintsIndependent(t *testing.T) {
	l := NewLimiter(testLimiterConfig())
	a := anonClient()
	b := anonClient()
	b.IP = "203.0.113.99"

	for i := 0; i < 100; i++ {
		l.Check(a)
	}
	if l.Check(a).Allowed {
		t.Fatal("first client should be limited")
	}
	if !l.Check(b).Allowed {
		t.Fatal("second client must have its own budget")
	}
}

func TestDisabledLimiterAllowsAll(t *testing.T) {
	cfg := testLimiterConfig()
	cfg.Enabled = false
	l := NewLimiter(cfg)
	c := anonClient()

	for i := 0; i < 500; i++ {
		if !l.Check(c).Allowed {
			t.Fatal("disabled limiter must allow everything")
		}
	}
}

func TestFingerprintCapSweepsStaleWindows(t *testing.T) {
	cfg := testLimiterConfig()
	cfg.MaxFingerprints = 10
	l := NewLimiter(cfg)

	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	for i := 0; i < 10; i++ {
		l.Check(Client{IP: fmt.Sprintf("10.0.0.%d", i), UserAgent: "Mozilla/5.0"})
	}
	if l.Len() != 10 {
		t.Fatalf("expected 10 tracked fingerprints, got %d", l.Len())
	}

	// Next window: stale buckets are swept to admit the new fingerprint.
	l.now = func() time.Time { return base.Add(time.Hour) }
	d := l.Check(Client{IP: "10.0.1.1", UserAgent: "Mozilla/5.0"})
	if !d.Allowed {
		t.Fatal("new fingerprint should be admitted after sweep")
	}
	if l.Len() != 1 {
		t.Errorf("expected stale buckets swept, got %d", l.Len())
	}
}
