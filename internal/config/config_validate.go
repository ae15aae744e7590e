// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validation errors for semantic checks the struct tags cannot express.
var (
	// ErrNoProviderEnabled indicates every upstream provider is disabled.
	ErrNoProviderEnabled = errors.New("at least one provider must be enabled")

	// ErrISBNdbKeyRequired indicates ISBNdb is enabled without an API key.
	ErrISBNdbKeyRequired = errors.New("isbndb requires an api_key when enabled")

	// ErrNoTiers indicates an enabled provider has no quota tiers.
	ErrNoTiers = errors.New("enabled provider must declare at least one quota tier")
)

// validate is the shared validator instance. go-playground/validator caches
// struct metadata, so a single instance is the intended usage.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for correctness. Struct tags cover range
// and enum constraints; the rest are semantic cross-field checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			ve := verrs[0]
			return fmt.Errorf("field %s failed %q validation", ve.Namespace(), ve.Tag())
		}
		return err
	}

	enabled := 0
	for name, p := range map[string]ProviderConfig{
		"googlebooks": c.Providers.GoogleBooks,
		"isbndb":      c.Providers.ISBNdb,
		"openlibrary": c.Providers.OpenLibrary,
	} {
		if !p.Enabled {
			continue
		}
		enabled++
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s: base_url is required when enabled", name)
		}
		if len(p.Tiers) == 0 {
			return fmt.Errorf("provider %s: %w", name, ErrNoTiers)
		}
	}
	if enabled == 0 {
		return ErrNoProviderEnabled
	}

	if c.Providers.ISBNdb.Enabled && c.Providers.ISBNdb.APIKey == "" {
		return ErrISBNdbKeyRequired
	}

	// Negative results must expire faster than positive ones, otherwise a
	// transient outage poisons the cache.
	if c.Cache.NegativeTTL > c.Cache.SearchTTL {
		return fmt.Errorf("cache: negative_ttl (%s) must not exceed search_ttl (%s)",
			c.Cache.NegativeTTL, c.Cache.SearchTTL)
	}

	return nil
}
