// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package orchestrator

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/bibliocache/bibliocache/internal/config"
	"github.com/bibliocache/bibliocache/internal/logging"
	"github.com/bibliocache/bibliocache/internal/models"
	"github.com/bibliocache/bibliocache/internal/provider"
	"github.com/bibliocache/bibliocache/internal/quota"
)

// fakeProvider is a scriptable provider for orchestration tests.
type fakeProvider struct {
	id    string
	err   error
	calls atomic.Int64
}

var _ provider.Provider = (*fakeProvider)(nil)

func (f *fakeProvider) ID() string { return f.id }

func (f *fakeProvider) Search(_ context.Context, params provider.SearchParams) (*models.SearchResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &models.SearchResult{
		Query:   params.Query,
		Total:   1,
		Records: []models.Record{{ID: "rec-" + f.id, Title: "T", Source: f.id}},
		Source:  f.id,
	}, nil
}

func (f *fakeProvider) LookupByID(_ context.Context, id string) (*models.Record, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Record{ID: id, Title: "T", Source: f.id}, nil
}

func testQuota(t *testing.T) *quota.Store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return quota.NewStore(db)
}

func freeTier(limit int64) []config.QuotaTierConfig {
	return []config.QuotaTierConfig{{Name: "free", Period: "daily", Limit: limit}}
}

func reg(f *fakeProvider, weight int, tiers []config.QuotaTierConfig) Registration {
	cfg := config.ProviderConfig{
		Enabled:           true,
		Weight:            weight,
		RequestsPerSecond: 10000,
		Tiers:             tiers,
	}
	return Registration{client: provider.NewResilient(f, cfg), cfg: cfg}
}

func testOrchestrator(t *testing.T, q *quota.Store, regs ...Registration) *Orchestrator {
	t.Helper()
	return New(regs, q, config.OrchestraConfig{
		MaxConcurrency: 4,
		SingleTimeout:  5 * time.Second,
		BatchTimeout:   10 * time.Second,
	}, logging.NewTestLogger(io.Discard))
}

func TestRegisterBuildsEnabledProviders(t *testing.T) {
	regs := Register(config.ProvidersConfig{
		GoogleBooks: config.ProviderConfig{Enabled: true},
		OpenLibrary: config.ProviderConfig{Enabled: true},
	})
	if len(regs) != 2 {
		t.Fatalf("expected 2 registrations, got %d", len(regs))
	}
	for _, r := range regs {
		if r.client == nil {
			t.Error("registration missing its client")
		}
	}
}

func TestSingleSuccessUsesHighestScored(t *testing.T) {
	q := testQuota(t)
	strong := &fakeProvider{id: "strong"}
	weak := &fakeProvider{id: "weak"}
	o := testOrchestrator(t, q, reg(weak, 10, freeTier(100)), reg(strong, 90, freeTier(100)))

	res, err := o.ExecuteSingle(context.Background(), models.LookupRequest{Type: models.RequestTypeLookup, ID: "9780441172719"})
	if err != nil {
		t.Fatalf("ExecuteSingle: %v", err)
	}
	if res.Provider != "strong" {
		t.Errorf("expected highest-weight provider, got %s", res.Provider)
	}
	if weak.calls.Load() != 0 {
		t.Error("lower-scored provider should not be called on first-try success")
	}
}

func TestFallbackOnTransientFailure(t *testing.T) {
	q := testQuota(t)
	failing := &fakeProvider{id: "failing", err: provider.ErrProviderUnavailable}
	backup := &fakeProvider{id: "backup"}
	o := testOrchestrator(t, q, reg(failing, 90, freeTier(100)), reg(backup, 10, freeTier(100)))

	res, err := o.ExecuteSingle(context.Background(), models.LookupRequest{Type: models.RequestTypeLookup, ID: "x"})
	if err != nil {
		t.Fatalf("ExecuteSingle: %v", err)
	}
	if res.Provider != "backup" {
		t.Errorf("expected fallback provider, got %s", res.Provider)
	}
	if failing.calls.Load() != 1 {
		t.Errorf("primary should be attempted once, got %d", failing.calls.Load())
	}
}

func TestNotFoundIsTerminal(t *testing.T) {
	q := testQuota(t)
	empty := &fakeProvider{id: "empty", err: provider.ErrNotFound}
	backup := &fakeProvider{id: "backup"}
	o := testOrchestrator(t, q, reg(empty, 90, freeTier(100)), reg(backup, 10, freeTier(100)))

	_, err := o.ExecuteSingle(context.Background(), models.LookupRequest{Type: models.RequestTypeLookup, ID: "x"})
	if !errors.Is(err, provider.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if backup.calls.Load() != 0 {
		t.Error("definitive not-found must stop the fallback walk")
	}
}

func TestQuotaChargedOncePerTerminalOutcome(t *testing.T) {
	q := testQuota(t)
	failing := &fakeProvider{id: "failing", err: provider.ErrProviderUnavailable}
	winning := &fakeProvider{id: "winning"}
	failingReg := reg(failing, 90, freeTier(100))
	winningReg := reg(winning, 10, freeTier(100))
	o := testOrchestrator(t, q, failingReg, winningReg)

	if _, err := o.ExecuteSingle(context.Background(), models.LookupRequest{Type: models.RequestTypeLookup, ID: "x"}); err != nil {
		t.Fatalf("ExecuteSingle: %v", err)
	}

	winUsed, _ := q.Used("winning", winningReg.cfg.Tiers[0])
	failUsed, _ := q.Used("failing", failingReg.cfg.Tiers[0])
	if winUsed != 1 {
		t.Errorf("winning provider should be charged once, got %d", winUsed)
	}
	if failUsed != 0 {
		t.Errorf("failed attempt must not consume quota, got %d", failUsed)
	}
}

func TestExhaustedProviderExcluded(t *testing.T) {
	q := testQuota(t)
	only := &fakeProvider{id: "only"}
	tiers := freeTier(1)
	o := testOrchestrator(t, q, reg(only, 50, tiers))

	if _, err := o.ExecuteSingle(context.Background(), models.LookupRequest{Type: models.RequestTypeLookup, ID: "x"}); err != nil {
		t.Fatalf("first request should succeed: %v", err)
	}
	_, err := o.ExecuteSingle(context.Background(), models.LookupRequest{Type: models.RequestTypeLookup, ID: "y"})
	if !errors.Is(err, ErrNoProvidersAvailable) {
		t.Fatalf("expected ErrNoProvidersAvailable after quota exhaustion, got %v", err)
	}
	if only.calls.Load() != 1 {
		t.Errorf("exhausted provider must not be attempted, calls=%d", only.calls.Load())
	}
}

func TestBackgroundPriorityNeverUsesPaidTier(t *testing.T) {
	q := testQuota(t)
	paid := &fakeProvider{id: "paid"}
	paidTiers := []config.QuotaTierConfig{{Name: "basic", Period: "daily", Limit: 100, CostPerCall: 20}}
	o := testOrchestrator(t, q, reg(paid, 50, paidTiers))

	_, err := o.ExecuteSingle(context.Background(), models.LookupRequest{
		Type:     models.RequestTypeLookup,
		ID:       "x",
		Priority: models.PriorityBackground,
	})
	if !errors.Is(err, ErrNoProvidersAvailable) {
		t.Fatalf("background work must not consume paid tiers, got %v", err)
	}

	// The same provider serves interactive work.
	if _, err := o.ExecuteSingle(context.Background(), models.LookupRequest{Type: models.RequestTypeLookup, ID: "x"}); err != nil {
		t.Fatalf("interactive request should use the paid tier: %v", err)
	}
}

func TestSearchAffinityBreaksWeightTie(t *testing.T) {
	q := testQuota(t)
	gb := &fakeProvider{id: provider.GoogleBooksID}
	ol := &fakeProvider{id: provider.OpenLibraryID}
	o := testOrchestrator(t, q, reg(ol, 40, freeTier(100)), reg(gb, 40, freeTier(100)))

	res, err := o.ExecuteSingle(context.Background(), models.LookupRequest{Type: models.RequestTypeSearch, Query: "dune"})
	if err != nil {
		t.Fatalf("ExecuteSingle: %v", err)
	}
	if res.Provider != provider.GoogleBooksID {
		t.Errorf("search affinity should rank googlebooks first at equal weight, got %s", res.Provider)
	}
	if res.Search == nil || res.Search.Source != provider.GoogleBooksID {
		t.Errorf("search result missing or mis-sourced: %+v", res.Search)
	}
}

func TestLookupAffinityFavorsISBNdb(t *testing.T) {
	q := testQuota(t)
	gb := &fakeProvider{id: provider.GoogleBooksID}
	isbndb := &fakeProvider{id: provider.ISBNdbID}
	o := testOrchestrator(t, q, reg(gb, 40, freeTier(100)), reg(isbndb, 40, freeTier(100)))

	res, err := o.ExecuteSingle(context.Background(), models.LookupRequest{Type: models.RequestTypeLookup, ID: "9780441172719"})
	if err != nil {
		t.Fatalf("ExecuteSingle: %v", err)
	}
	if res.Provider != provider.ISBNdbID {
		t.Errorf("lookup affinity should rank isbndb first at equal weight, got %s", res.Provider)
	}
}

func TestAllProvidersFailedAggregatesAttempts(t *testing.T) {
	q := testQuota(t)
	a := &fakeProvider{id: "a", err: provider.ErrProviderUnavailable}
	b := &fakeProvider{id: "b", err: provider.ErrMalformedResponse}
	o := testOrchestrator(t, q, reg(a, 50, freeTier(100)), reg(b, 40, freeTier(100)))

	_, err := o.ExecuteSingle(context.Background(), models.LookupRequest{Type: models.RequestTypeLookup, ID: "x"})
	if err == nil {
		t.Fatal("expected aggregate failure")
	}
	if a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Errorf("every candidate should be attempted once: a=%d b=%d", a.calls.Load(), b.calls.Load())
	}
}

func TestBatchPartitionsOutcomes(t *testing.T) {
	q := testQuota(t)
	p := &fakeProvider{id: "p"}
	o := testOrchestrator(t, q, reg(p, 50, freeTier(100)))

	batch := o.ExecuteBatch(context.Background(), []string{"a", "b", "c"}, models.PriorityInteractive)
	if len(batch.Successful) != 3 || len(batch.Failed) != 0 {
		t.Fatalf("expected 3 successes, got %d/%d", len(batch.Successful), len(batch.Failed))
	}
}

func TestBatchFailureIsolation(t *testing.T) {
	q := testQuota(t)
	notFound := &fakeProvider{id: "empty", err: provider.ErrNotFound}
	o := testOrchestrator(t, q, reg(notFound, 50, freeTier(100)))

	batch := o.ExecuteBatch(context.Background(), []string{"a", "b"}, models.PriorityInteractive)
	if len(batch.Successful) != 0 {
		t.Fatalf("expected no successes, got %d", len(batch.Successful))
	}
	if len(batch.Failed) != 2 {
		t.Fatalf("every item should appear in failed, got %d", len(batch.Failed))
	}
	for _, item := range batch.Failed {
		if item.Reason != "not found" {
			t.Errorf("failed item should carry a sanitized reason, got %q", item.Reason)
		}
	}
}

func TestProviderStatuses(t *testing.T) {
	q := testQuota(t)
	p := &fakeProvider{id: "p"}
	r := reg(p, 50, freeTier(10))
	o := testOrchestrator(t, q, r)

	if _, err := o.ExecuteSingle(context.Background(), models.LookupRequest{Type: models.RequestTypeLookup, ID: "x"}); err != nil {
		t.Fatal(err)
	}
	statuses := o.ProviderStatuses()
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	s := statuses[0]
	if s.Provider != "p" || !s.Available {
		t.Errorf("unexpected status: %+v", s)
	}
	if len(s.Tiers) != 1 || s.Tiers[0].Used != 1 || s.Tiers[0].Remaining != 9 {
		t.Errorf("unexpected tier status: %+v", s.Tiers)
	}
}
