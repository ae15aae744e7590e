// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

// Package provider implements the upstream metadata provider clients and their
// shared resilience wrapper (circuit breaker plus request pacing).
//
// Each client maps its provider's response shape into the normalized
// models.Record form, so nothing above this package ever sees an upstream
// format. Error returns are classified into the shared taxonomy below; the
// orchestrator's fallback decisions depend on that classification.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bibliocache/bibliocache/internal/models"
)

// Provider error taxonomy.
//
// ErrNotFound is a terminal outcome: the item does not exist upstream and
// asking another provider the same authoritative question is pointless for
// identifier lookups. Every other error is transient or provider-local and
// makes the orchestrator fall through to the next candidate.
var (
	ErrNotFound            = errors.New("record not found")
	ErrMalformedResponse   = errors.New("malformed provider response")
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrQuotaExhausted marks an upstream 429/403 quota rejection. The local
	// counters should have prevented this; when it happens anyway the provider
	// is skipped for the rest of the window.
	ErrQuotaExhausted = errors.New("provider quota exhausted")
)

// SearchParams carries a normalized search request to a provider.
type SearchParams struct {
	Query      string
	MaxResults int
	SortBy     string
	Language   string
}

// Provider is one upstream bibliographic metadata source.
type Provider interface {
	// ID returns the stable provider identifier used in config, quota keys,
	// scoring, and record provenance.
	ID() string

	Search(ctx context.Context, params SearchParams) (*models.SearchResult, error)
	LookupByID(ctx context.Context, id string) (*models.Record, error)
}

// Terminal reports whether an error is a definitive answer rather than a
// provider failure. Terminal outcomes consume quota and stop fallback.
func Terminal(err error) bool {
	return err == nil || errors.Is(err, ErrNotFound)
}

// classifyStatus maps a non-2xx upstream status to the error taxonomy.
func classifyStatus(providerID string, status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests, status == http.StatusForbidden:
		return fmt.Errorf("%s returned status %d: %w", providerID, status, ErrQuotaExhausted)
	case status >= 500:
		return fmt.Errorf("%s returned status %d: %w", providerID, status, ErrProviderUnavailable)
	default:
		return fmt.Errorf("%s returned unexpected status %d: %w", providerID, status, ErrMalformedResponse)
	}
}

// drainAndClose discards the rest of a response body so the connection can be
// reused, then closes it.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

// NormalizeISBN strips hyphens and spaces and upcases the check digit.
func NormalizeISBN(isbn string) string {
	return strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(isbn))
}

// IsISBN reports whether an identifier looks like an ISBN-10 or ISBN-13 after
// normalization. Character-level validity only; no checksum verification,
// since providers reject invalid ISBNs themselves.
func IsISBN(id string) bool {
	n := NormalizeISBN(id)
	if len(n) != 10 && len(n) != 13 {
		return false
	}
	for i, r := range n {
		if r >= '0' && r <= '9' {
			continue
		}
		// ISBN-10 allows X as the final check digit.
		if r == 'X' && len(n) == 10 && i == 9 {
			continue
		}
		return false
	}
	return true
}
