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

// OpenLibraryID is the stable provider identifier.
const OpenLibraryID = "openlibrary"

// OpenLibrary is the Open Library API client. No authentication, no hard
// quota, modest rate expectations; it serves as the free fallback of last
// resort.
//
// API reference: https://openlibrary.org/developers/api
type OpenLibrary struct {
	baseURL    string
	httpClient *http.Client
}

var _ Provider = (*OpenLibrary)(nil)

// NewOpenLibrary creates an Open Library client from provider config.
func NewOpenLibrary(cfg config.ProviderConfig) *OpenLibrary {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenLibrary{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (o *OpenLibrary) ID() string { return OpenLibraryID }

type openLibrarySearchResponse struct {
	NumFound int              `json:"numFound"`
	Docs     []openLibraryDoc `json:"docs"`
}

type openLibraryDoc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	Subtitle         string   `json:"subtitle"`
	AuthorName       []string `json:"author_name"`
	Publisher        []string `json:"publisher"`
	FirstPublishYear int      `json:"first_publish_year"`
	Language         []string `json:"language"`
	NumberOfPages    int      `json:"number_of_pages_median"`
	Subject          []string `json:"subject"`
	ISBN             []string `json:"isbn"`
	CoverID          int      `json:"cover_i"`
}

// openLibraryEdition is the /isbn/{isbn}.json edition shape.
type openLibraryEdition struct {
	Key           string   `json:"key"`
	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle"`
	Publishers    []string `json:"publishers"`
	PublishDate   string   `json:"publish_date"`
	NumberOfPages int      `json:"number_of_pages"`
	ISBN10        []string `json:"isbn_10"`
	ISBN13        []string `json:"isbn_13"`
	Covers        []int    `json:"covers"`
}

// Search queries the search endpoint. Open Library supports sorting by
// edition recency via sort=new.
func (o *OpenLibrary) Search(ctx context.Context, params SearchParams) (*models.SearchResult, error) {
	q := url.Values{}
	q.Set("q", params.Query)
	if params.MaxResults > 0 {
		q.Set("limit", strconv.Itoa(params.MaxResults))
	}
	if params.SortBy == "newest" {
		q.Set("sort", "new")
	}
	if params.Language != "" {
		q.Set("lang", params.Language)
	}

	var parsed openLibrarySearchResponse
	if err := o.getJSON(ctx, "/search.json?"+q.Encode(), &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Docs) == 0 {
		return nil, ErrNotFound
	}

	records := make([]models.Record, 0, len(parsed.Docs))
	for _, doc := range parsed.Docs {
		records = append(records, o.mapDoc(doc))
	}
	return &models.SearchResult{
		Query:       params.Query,
		Total:       parsed.NumFound,
		Records:     records,
		Source:      OpenLibraryID,
		RetrievedAt: time.Now().UTC(),
	}, nil
}

// LookupByID resolves an ISBN through the edition endpoint. Open Library
// work/edition keys (e.g. "OL12345M") are fetched directly.
func (o *OpenLibrary) LookupByID(ctx context.Context, id string) (*models.Record, error) {
	var path string
	switch {
	case IsISBN(id):
		path = "/isbn/" + NormalizeISBN(id) + ".json"
	case strings.HasPrefix(id, "OL"):
		path = "/books/" + url.PathEscape(id) + ".json"
	default:
		return nil, fmt.Errorf("openlibrary cannot resolve identifier %q: %w", id, ErrNotFound)
	}

	var edition openLibraryEdition
	if err := o.getJSON(ctx, path, &edition); err != nil {
		return nil, err
	}
	if edition.Title == "" {
		return nil, ErrNotFound
	}
	record := o.mapEdition(edition)
	return &record, nil
}

func (o *OpenLibrary) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build openlibrary request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openlibrary request failed: %w: %w", ErrProviderUnavailable, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(OpenLibraryID, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode openlibrary response: %w: %w", ErrMalformedResponse, err)
	}
	return nil
}

func (o *OpenLibrary) mapDoc(doc openLibraryDoc) models.Record {
	record := models.Record{
		Title:         doc.Title,
		Subtitle:      doc.Subtitle,
		Authors:       doc.AuthorName,
		PublishedYear: doc.FirstPublishYear,
		PageCount:     doc.NumberOfPages,
		Subjects:      doc.Subject,
		Source:        OpenLibraryID,
	}
	if len(doc.Publisher) > 0 {
		record.Publisher = doc.Publisher[0]
	}
	if len(doc.Language) > 0 {
		record.Language = doc.Language[0]
	}
	for _, isbn := range doc.ISBN {
		assignISBN(&record, isbn)
		if record.ISBN10 != "" && record.ISBN13 != "" {
			break
		}
	}
	if doc.CoverID > 0 {
		record.CoverURL = coverURL(doc.CoverID)
	}
	record.ID = canonicalID(record.ISBN13, OpenLibraryID, strings.TrimPrefix(doc.Key, "/works/"))
	return record
}

func (o *OpenLibrary) mapEdition(edition openLibraryEdition) models.Record {
	record := models.Record{
		Title:         edition.Title,
		Subtitle:      edition.Subtitle,
		PublishedYear: parseEditionYear(edition.PublishDate),
		PageCount:     edition.NumberOfPages,
		Source:        OpenLibraryID,
	}
	if len(edition.Publishers) > 0 {
		record.Publisher = edition.Publishers[0]
	}
	if len(edition.ISBN10) > 0 {
		record.ISBN10 = edition.ISBN10[0]
	}
	if len(edition.ISBN13) > 0 {
		record.ISBN13 = edition.ISBN13[0]
	}
	if len(edition.Covers) > 0 && edition.Covers[0] > 0 {
		record.CoverURL = coverURL(edition.Covers[0])
	}
	record.ID = canonicalID(record.ISBN13, OpenLibraryID, strings.TrimPrefix(edition.Key, "/books/"))
	return record
}

func assignISBN(record *models.Record, isbn string) {
	normalized := NormalizeISBN(isbn)
	switch len(normalized) {
	case 10:
		if record.ISBN10 == "" {
			record.ISBN10 = normalized
		}
	case 13:
		if record.ISBN13 == "" {
			record.ISBN13 = normalized
		}
	}
}

func coverURL(coverID int) string {
	return fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-M.jpg", coverID)
}

// parseEditionYear extracts a year from Open Library's free-form publish
// dates ("1979", "Oct 01, 1979", "October 1979").
func parseEditionYear(date string) int {
	for _, field := range strings.Fields(strings.NewReplacer(",", " ").Replace(date)) {
		if len(field) == 4 {
			if year, err := strconv.Atoi(field); err == nil && year > 1000 {
				return year
			}
		}
	}
	return 0
}
