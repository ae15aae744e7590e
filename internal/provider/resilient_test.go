// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/bibliocache/bibliocache/internal/config"
	"github.com/bibliocache/bibliocache/internal/models"
)

// stubProvider returns canned responses for resilience tests.
type stubProvider struct {
	id        string
	searchErr error
	lookupErr error
	record    models.Record
}

var _ Provider = (*stubProvider)(nil)

func (s *stubProvider) ID() string { return s.id }

func (s *stubProvider) Search(_ context.Context, params SearchParams) (*models.SearchResult, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return &models.SearchResult{Query: params.Query, Records: []models.Record{s.record}, Source: s.id}, nil
}

func (s *stubProvider) LookupByID(context.Context, string) (*models.Record, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	rec := s.record
	return &rec, nil
}

func fastConfig() config.ProviderConfig {
	// High pacing rate so tests never block on the limiter.
	return config.ProviderConfig{RequestsPerSecond: 10000}
}

func TestResilientPassesThroughSuccess(t *testing.T) {
	stub := &stubProvider{id: "stub", record: models.Record{ID: "x", Title: "T"}}
	r := NewResilient(stub, fastConfig())

	result, err := r.Search(context.Background(), SearchParams{Query: "q"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Records[0].Title != "T" {
		t.Errorf("unexpected result: %+v", result)
	}

	rec, err := r.LookupByID(context.Background(), "x")
	if err != nil {
		t.Fatalf("LookupByID: %v", err)
	}
	if rec.ID != "x" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestResilientOpensAfterRepeatedFailures(t *testing.T) {
	stub := &stubProvider{id: "failing", lookupErr: ErrProviderUnavailable}
	r := NewResilient(stub, fastConfig())

	// The breaker needs 10 observed requests at >= 60% failure to trip.
	for i := 0; i < 10; i++ {
		if _, err := r.LookupByID(context.Background(), "x"); !errors.Is(err, ErrProviderUnavailable) {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
	}

	if r.Available() {
		t.Fatal("breaker should be open after sustained failures")
	}
	if _, err := r.LookupByID(context.Background(), "x"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("open breaker should reject with ErrProviderUnavailable, got %v", err)
	}
}

func TestResilientNotFoundDoesNotTrip(t *testing.T) {
	stub := &stubProvider{id: "empty", lookupErr: ErrNotFound}
	r := NewResilient(stub, fastConfig())

	for i := 0; i < 20; i++ {
		if _, err := r.LookupByID(context.Background(), "x"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
	}
	if !r.Available() {
		t.Fatal("not-found responses must not open the breaker")
	}
}

func TestResilientQuotaRejectionDoesNotTrip(t *testing.T) {
	stub := &stubProvider{id: "metered", lookupErr: ErrQuotaExhausted}
	r := NewResilient(stub, fastConfig())

	for i := 0; i < 20; i++ {
		if _, err := r.LookupByID(context.Background(), "x"); !errors.Is(err, ErrQuotaExhausted) {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
	}
	if !r.Available() {
		t.Fatal("quota rejections must not open the breaker")
	}
}
