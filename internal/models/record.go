// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

// Package models defines the shared domain types for Bibliocache: bibliographic
// records, search results, and the standardized API response envelope.
package models

import "time"

// Record is a normalized bibliographic record as returned by any provider.
// Provider-specific response shapes are mapped into this form by the provider
// clients so the cache and API layers never see upstream formats.
type Record struct {
	// ID is the canonical identifier (ISBN-13 where available, otherwise the
	// provider's own identifier prefixed with the provider ID).
	ID string `json:"id"`

	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle,omitempty"`
	Authors       []string `json:"authors,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	PublishedYear int      `json:"published_year,omitempty"`
	Language      string   `json:"language,omitempty"`
	PageCount     int      `json:"page_count,omitempty"`
	Subjects      []string `json:"subjects,omitempty"`
	Description   string   `json:"description,omitempty"`
	CoverURL      string   `json:"cover_url,omitempty"`

	ISBN10 string `json:"isbn10,omitempty"`
	ISBN13 string `json:"isbn13,omitempty"`

	// Source is the provider ID that produced this record.
	Source string `json:"source"`

	// Enrichment holds optional best-effort enrichment data. It is populated
	// asynchronously and may be absent from any given response.
	Enrichment map[string]string `json:"enrichment,omitempty"`
}

// SearchResult is an ordered page of records for a search query.
type SearchResult struct {
	Query       string    `json:"query"`
	Total       int       `json:"total"`
	Records     []Record  `json:"records"`
	Source      string    `json:"source"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// RequestType distinguishes full-text search from identifier lookup.
// Providers score differently per request type (request-type affinity).
type RequestType string

const (
	RequestTypeSearch RequestType = "search"
	RequestTypeLookup RequestType = "lookup"
)

// Priority expresses how urgent a lookup is. Background work (warming) favors
// zero-cost provider tiers; interactive work favors quality.
type Priority string

const (
	PriorityInteractive Priority = "interactive"
	PriorityBackground  Priority = "background"
)

// LookupRequest is a single orchestrated request.
type LookupRequest struct {
	Type       RequestType `json:"type"`
	Query      string      `json:"query,omitempty"`
	ID         string      `json:"id,omitempty"`
	MaxResults int         `json:"max_results,omitempty"`
	SortBy     string      `json:"sort_by,omitempty"`
	Language   string      `json:"language,omitempty"`
	Priority   Priority    `json:"priority,omitempty"`
}

// BatchItemResult pairs one batch input with its outcome. Failed items carry a
// sanitized reason, never the raw upstream error.
type BatchItemResult struct {
	ID     string  `json:"id"`
	Record *Record `json:"record,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// BatchResult partitions a batch into independent per-item outcomes.
type BatchResult struct {
	Successful []BatchItemResult `json:"successful"`
	Failed     []BatchItemResult `json:"failed"`
}
