// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package cache

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Key namespaces. Warmed entries share the same key space as organically
// cached ones, so they are indistinguishable to readers.
const (
	NamespaceSearch = "search"
	NamespaceID     = "id"
)

// searchKeyParams is the canonical parameter tuple for a search key. Hashing
// the serialized tuple (rather than concatenating raw strings) rules out
// delimiter-collision bugs between adjacent fields.
type searchKeyParams struct {
	Query      string `json:"q"`
	MaxResults int    `json:"max"`
	SortBy     string `json:"sort"`
	Language   string `json:"lang"`
}

// SearchKey derives the deterministic cache key for a normalized search
// request. Equivalent logical requests (same normalized query, result count,
// sort order, language filter) always map to the same key.
func SearchKey(query string, maxResults int, sortBy, language string) string {
	params := searchKeyParams{
		Query:      normalizeQuery(query),
		MaxResults: maxResults,
		SortBy:     strings.ToLower(strings.TrimSpace(sortBy)),
		Language:   strings.ToLower(strings.TrimSpace(language)),
	}
	return hashKey(NamespaceSearch, params)
}

// IDKey derives the deterministic cache key for an identifier lookup.
// ISBNs are normalized by stripping hyphens and spaces.
func IDKey(id string) string {
	normalized := strings.ToLower(strings.NewReplacer("-", "", " ", "").Replace(id))
	return hashKey(NamespaceID, normalized)
}

// hashKey serializes params to canonical JSON and hashes them into a compact,
// collision-resistant key under the given namespace.
func hashKey(namespace string, params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		// Marshal of plain structs and strings cannot fail in practice;
		// fall back to a printable key rather than panicking.
		return fmt.Sprintf("%s/%v", namespace, params)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s/%x", namespace, hash[:16])
}

// normalizeQuery collapses case and interior whitespace so trivially different
// spellings of the same query share a cache entry.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
