// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/bibliocache/bibliocache/internal/config"
	"github.com/bibliocache/bibliocache/internal/models"
)

// ISBNdbID is the stable provider identifier.
const ISBNdbID = "isbndb"

// ISBNdb is the ISBNdb REST API client. ISBNdb requires an API key on every
// request and meters calls against a paid plan, which is why its tiers carry a
// nonzero cost per call.
//
// API reference: https://isbndb.com/apidocs/v2
type ISBNdb struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Provider = (*ISBNdb)(nil)

// NewISBNdb creates an ISBNdb client from provider config.
func NewISBNdb(cfg config.ProviderConfig) *ISBNdb {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ISBNdb{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (i *ISBNdb) ID() string { return ISBNdbID }

// isbndbBook is the subset of ISBNdb's book object we consume.
type isbndbBook struct {
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Publisher     string   `json:"publisher"`
	DatePublished string   `json:"date_published"`
	Language      string   `json:"language"`
	Pages         int      `json:"pages"`
	Subjects      []string `json:"subjects"`
	Synopsis      string   `json:"synopsis"`
	Image         string   `json:"image"`
	ISBN          string   `json:"isbn"`
	ISBN13        string   `json:"isbn13"`
}

type isbndbBookResponse struct {
	Book isbndbBook `json:"book"`
}

type isbndbSearchResponse struct {
	Total int          `json:"total"`
	Books []isbndbBook `json:"books"`
}

// Search queries the books endpoint. ISBNdb has no sort or language
// parameters; those are applied only through the scoring affinity upstream.
func (i *ISBNdb) Search(ctx context.Context, params SearchParams) (*models.SearchResult, error) {
	q := url.Values{}
	if params.MaxResults > 0 {
		q.Set("pageSize", strconv.Itoa(params.MaxResults))
	}
	path := "/books/" + url.PathEscape(params.Query)
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var parsed isbndbSearchResponse
	if err := i.getJSON(ctx, path, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Books) == 0 {
		return nil, ErrNotFound
	}

	records := make([]models.Record, 0, len(parsed.Books))
	for _, book := range parsed.Books {
		records = append(records, i.mapBook(book))
	}
	return &models.SearchResult{
		Query:       params.Query,
		Total:       parsed.Total,
		Records:     records,
		Source:      ISBNdbID,
		RetrievedAt: time.Now().UTC(),
	}, nil
}

// LookupByID resolves an ISBN via the book endpoint. Non-ISBN identifiers are
// not resolvable against ISBNdb.
func (i *ISBNdb) LookupByID(ctx context.Context, id string) (*models.Record, error) {
	if !IsISBN(id) {
		return nil, fmt.Errorf("isbndb resolves ISBNs only: %w", ErrNotFound)
	}

	var parsed isbndbBookResponse
	if err := i.getJSON(ctx, "/book/"+NormalizeISBN(id), &parsed); err != nil {
		return nil, err
	}
	if parsed.Book.Title == "" {
		return nil, ErrNotFound
	}
	record := i.mapBook(parsed.Book)
	return &record, nil
}

func (i *ISBNdb) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build isbndb request: %w", err)
	}
	req.Header.Set("Authorization", i.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("isbndb request failed: %w: %w", ErrProviderUnavailable, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(ISBNdbID, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode isbndb response: %w: %w", ErrMalformedResponse, err)
	}
	return nil
}

func (i *ISBNdb) mapBook(book isbndbBook) models.Record {
	record := models.Record{
		Title:         book.Title,
		Authors:       book.Authors,
		Publisher:     book.Publisher,
		PublishedYear: parseYear(book.DatePublished),
		Language:      book.Language,
		PageCount:     book.Pages,
		Subjects:      book.Subjects,
		Description:   book.Synopsis,
		CoverURL:      book.Image,
		ISBN13:        book.ISBN13,
		Source:        ISBNdbID,
	}
	if len(book.ISBN) == 10 {
		record.ISBN10 = book.ISBN
	}
	record.ID = canonicalID(record.ISBN13, ISBNdbID, book.ISBN)
	return record
}
