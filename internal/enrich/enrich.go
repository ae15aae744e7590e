// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

// Package enrich computes best-effort enrichment for cached records on an
// in-process pub/sub pipeline. Enrichment is fire-and-forget: responses never
// wait for it, and a failed task is logged and dropped, leaving the record
// un-enriched but intact.
package enrich

import (
	"fmt"
	"strings"

	"github.com/bibliocache/bibliocache/internal/models"
)

// Enricher derives supplementary fields for a record.
type Enricher interface {
	Enrich(record *models.Record) (map[string]string, error)
}

// Heuristic is the built-in enricher. It derives sort keys and coarse
// classification facets from fields already on the record, with no network
// calls.
type Heuristic struct{}

var _ Enricher = (*Heuristic)(nil)

// NewHeuristic creates the built-in enricher.
func NewHeuristic() *Heuristic { return &Heuristic{} }

// Enrich computes the enrichment map.
func (h *Heuristic) Enrich(record *models.Record) (map[string]string, error) {
	if record == nil {
		return nil, fmt.Errorf("nil record")
	}
	out := make(map[string]string)

	if sort := titleSortKey(record.Title); sort != "" {
		out["title_sort"] = sort
	}
	if len(record.Authors) > 0 {
		out["primary_author"] = record.Authors[0]
		if key := authorSortKey(record.Authors[0]); key != "" {
			out["author_sort"] = key
		}
	}
	if record.PublishedYear > 0 {
		out["decade"] = fmt.Sprintf("%ds", record.PublishedYear/10*10)
	}
	if record.PageCount > 0 {
		out["length_class"] = lengthClass(record.PageCount)
	}
	return out, nil
}

// leading articles stripped for title sorting, per common catalog practice.
var leadingArticles = []string{"the ", "a ", "an "}

func titleSortKey(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	for _, article := range leadingArticles {
		if strings.HasPrefix(t, article) {
			return strings.TrimSpace(t[len(article):])
		}
	}
	return t
}

// authorSortKey converts "First Last" to "last, first".
func authorSortKey(author string) string {
	fields := strings.Fields(strings.ToLower(author))
	if len(fields) < 2 {
		return strings.ToLower(author)
	}
	last := fields[len(fields)-1]
	return last + ", " + strings.Join(fields[:len(fields)-1], " ")
}

func lengthClass(pages int) string {
	switch {
	case pages < 150:
		return "short"
	case pages < 450:
		return "standard"
	default:
		return "long"
	}
}
