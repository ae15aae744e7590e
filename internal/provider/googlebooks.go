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

// GoogleBooksID is the stable provider identifier.
const GoogleBooksID = "googlebooks"

// GoogleBooks is the Google Books Volumes API client.
//
// API reference: https://developers.google.com/books/docs/v1/using
type GoogleBooks struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time interface check.
var _ Provider = (*GoogleBooks)(nil)

// NewGoogleBooks creates a Google Books client from provider config.
func NewGoogleBooks(cfg config.ProviderConfig) *GoogleBooks {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GoogleBooks{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (g *GoogleBooks) ID() string { return GoogleBooksID }

// volumesResponse is the subset of the Volumes list response we consume.
type volumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
}

type volume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title               string   `json:"title"`
		Subtitle            string   `json:"subtitle"`
		Authors             []string `json:"authors"`
		Publisher           string   `json:"publisher"`
		PublishedDate       string   `json:"publishedDate"`
		Description         string   `json:"description"`
		PageCount           int      `json:"pageCount"`
		Categories          []string `json:"categories"`
		Language            string   `json:"language"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
		ImageLinks struct {
			Thumbnail string `json:"thumbnail"`
		} `json:"imageLinks"`
	} `json:"volumeInfo"`
}

// Search queries the Volumes endpoint.
func (g *GoogleBooks) Search(ctx context.Context, params SearchParams) (*models.SearchResult, error) {
	q := url.Values{}
	q.Set("q", params.Query)
	if params.MaxResults > 0 {
		// The API caps maxResults at 40.
		q.Set("maxResults", strconv.Itoa(min(params.MaxResults, 40)))
	}
	if params.SortBy == "newest" {
		q.Set("orderBy", "newest")
	}
	if params.Language != "" {
		q.Set("langRestrict", params.Language)
	}
	if g.apiKey != "" {
		q.Set("key", g.apiKey)
	}

	var parsed volumesResponse
	if err := g.getJSON(ctx, "/volumes?"+q.Encode(), &parsed); err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		records = append(records, g.mapVolume(item))
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}

	return &models.SearchResult{
		Query:       params.Query,
		Total:       parsed.TotalItems,
		Records:     records,
		Source:      GoogleBooksID,
		RetrievedAt: time.Now().UTC(),
	}, nil
}

// LookupByID resolves an identifier to a single record. ISBNs go through the
// isbn: query qualifier; anything else is treated as a Google volume ID.
func (g *GoogleBooks) LookupByID(ctx context.Context, id string) (*models.Record, error) {
	if IsISBN(id) {
		q := url.Values{}
		q.Set("q", "isbn:"+NormalizeISBN(id))
		if g.apiKey != "" {
			q.Set("key", g.apiKey)
		}
		var parsed volumesResponse
		if err := g.getJSON(ctx, "/volumes?"+q.Encode(), &parsed); err != nil {
			return nil, err
		}
		if len(parsed.Items) == 0 {
			return nil, ErrNotFound
		}
		record := g.mapVolume(parsed.Items[0])
		return &record, nil
	}

	path := "/volumes/" + url.PathEscape(id)
	if g.apiKey != "" {
		path += "?key=" + url.QueryEscape(g.apiKey)
	}
	var item volume
	if err := g.getJSON(ctx, path, &item); err != nil {
		return nil, err
	}
	if item.VolumeInfo.Title == "" {
		return nil, ErrNotFound
	}
	record := g.mapVolume(item)
	return &record, nil
}

func (g *GoogleBooks) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build googlebooks request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("googlebooks request failed: %w: %w", ErrProviderUnavailable, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(GoogleBooksID, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode googlebooks response: %w: %w", ErrMalformedResponse, err)
	}
	return nil
}

func (g *GoogleBooks) mapVolume(v volume) models.Record {
	info := v.VolumeInfo
	record := models.Record{
		Title:       info.Title,
		Subtitle:    info.Subtitle,
		Authors:     info.Authors,
		Publisher:   info.Publisher,
		Language:    info.Language,
		PageCount:   info.PageCount,
		Subjects:    info.Categories,
		Description: info.Description,
		CoverURL:    info.ImageLinks.Thumbnail,
		Source:      GoogleBooksID,
	}
	for _, ident := range info.IndustryIdentifiers {
		switch ident.Type {
		case "ISBN_10":
			record.ISBN10 = ident.Identifier
		case "ISBN_13":
			record.ISBN13 = ident.Identifier
		}
	}
	record.ID = canonicalID(record.ISBN13, GoogleBooksID, v.ID)
	record.PublishedYear = parseYear(info.PublishedDate)
	return record
}

// parseYear extracts the year from Google's variable-precision date strings
// ("2006", "2006-01", "2006-01-02").
func parseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

// canonicalID prefers the ISBN-13 and falls back to a provider-prefixed
// native identifier.
func canonicalID(isbn13, providerID, nativeID string) string {
	if isbn13 != "" {
		return isbn13
	}
	return providerID + ":" + nativeID
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
