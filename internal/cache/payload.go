// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package cache

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/bibliocache/bibliocache/internal/models"
)

// Payload is the serialized form every cache entry stores. A single envelope
// covers search pages, single records, and negative (not-found) results, so
// all writers (request handlers, the warming scheduler, the enrichment
// worker) stay interchangeable with all readers.
type Payload struct {
	NotFound bool                 `json:"not_found,omitempty"`
	Record   *models.Record       `json:"record,omitempty"`
	Search   *models.SearchResult `json:"search,omitempty"`
	Provider string               `json:"provider,omitempty"`
}

// EncodeRecord serializes a single-record payload.
func EncodeRecord(record *models.Record, providerID string) ([]byte, error) {
	return encode(Payload{Record: record, Provider: providerID})
}

// EncodeSearch serializes a search-page payload.
func EncodeSearch(search *models.SearchResult, providerID string) ([]byte, error) {
	return encode(Payload{Search: search, Provider: providerID})
}

// EncodeNegative serializes a definitive not-found payload. Negative entries
// are cached briefly so repeated misses for the same item don't burn provider
// quota.
func EncodeNegative(providerID string) ([]byte, error) {
	return encode(Payload{NotFound: true, Provider: providerID})
}

func encode(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode cache payload: %w", err)
	}
	return data, nil
}

// DecodePayload deserializes a cache entry payload.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decode cache payload: %w", err)
	}
	return p, nil
}
