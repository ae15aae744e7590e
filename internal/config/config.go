// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

// Package config loads and validates the Bibliocache configuration.
//
// Configuration is layered: struct defaults, then an optional YAML file, then
// environment variables (BIBLIOCACHE_ prefix, "__" as section separator).
package config

import "time"

// Config is the root configuration for the Bibliocache server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Storage   StorageConfig   `koanf:"storage"`
	Cache     CacheConfig     `koanf:"cache"`
	Providers ProvidersConfig `koanf:"providers"`
	Orchestra OrchestraConfig `koanf:"orchestrator"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Warming   WarmingConfig   `koanf:"warming"`
	CORS      CORSConfig      `koanf:"cors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment" validate:"oneof=development production"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// StorageConfig holds BadgerDB settings. The warm cache tier, quota counters,
// and warming checkpoints all share one Badger instance.
type StorageConfig struct {
	Path string `koanf:"path" validate:"required"`

	// InMemory runs Badger without disk persistence. Test use only.
	InMemory bool `koanf:"in_memory"`

	// GCInterval controls how often value-log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// CacheConfig holds tiered cache settings. The promotion thresholds mirror the
// tuned constants of the original deployment but are deliberately
// configurable.
type CacheConfig struct {
	// HotMaxEntries bounds the hot tier's entry count.
	HotMaxEntries int `koanf:"hot_max_entries" validate:"min=1"`

	// HotMaxEntryBytes bounds the serialized size of a single hot entry.
	// Larger entries stay warm-only.
	HotMaxEntryBytes int `koanf:"hot_max_entry_bytes" validate:"min=1"`

	// HotPopularityThreshold is the popularity hint at or above which a Set
	// also writes to the hot tier.
	HotPopularityThreshold int `koanf:"hot_popularity_threshold"`

	// PromoteMinHits is the minimum warm-tier hit count before promotion.
	PromoteMinHits int `koanf:"promote_min_hits" validate:"min=1"`

	// PromoteMaxIdle is the maximum time since last access for promotion.
	PromoteMaxIdle time.Duration `koanf:"promote_max_idle"`

	// TTLs by content class.
	SearchTTL   time.Duration `koanf:"search_ttl"`
	LookupTTL   time.Duration `koanf:"lookup_ttl"`
	NegativeTTL time.Duration `koanf:"negative_ttl"`

	// CleanupInterval controls the expired-entry sweep on both tiers.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// ProvidersConfig configures the three upstream metadata providers.
type ProvidersConfig struct {
	GoogleBooks ProviderConfig `koanf:"googlebooks"`
	ISBNdb      ProviderConfig `koanf:"isbndb"`
	OpenLibrary ProviderConfig `koanf:"openlibrary"`
}

// ProviderConfig configures one upstream provider.
type ProviderConfig struct {
	Enabled bool   `koanf:"enabled"`
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`

	// Weight is the base quality weight used by the orchestrator's scoring.
	Weight int `koanf:"weight" validate:"min=0,max=100"`

	// RequestsPerSecond paces outbound calls to the provider.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// Timeout bounds a single upstream call.
	Timeout time.Duration `koanf:"timeout"`

	// Tiers lists the provider's quota tiers, cheapest last. A provider with
	// no remaining quota in any tier is excluded from selection.
	Tiers []QuotaTierConfig `koanf:"tiers" validate:"dive"`
}

// QuotaTierConfig describes one quota tier of a provider.
type QuotaTierConfig struct {
	Name string `koanf:"name" validate:"required"`

	// Period is the quota window: "daily" or "hourly".
	Period string `koanf:"period" validate:"oneof=daily hourly"`

	Limit int64 `koanf:"limit" validate:"min=1"`

	// CostPerCall in micro-units; zero marks a free tier, favored for
	// background work.
	CostPerCall int `koanf:"cost_per_call" validate:"min=0"`
}

// OrchestraConfig holds orchestrator execution settings.
type OrchestraConfig struct {
	// MaxConcurrency bounds concurrent workers per provider queue in batch
	// execution.
	MaxConcurrency int `koanf:"max_concurrency" validate:"min=1,max=64"`

	// SingleTimeout bounds a single orchestrated lookup end to end.
	SingleTimeout time.Duration `koanf:"single_timeout"`

	// BatchTimeout bounds a whole batch execution.
	BatchTimeout time.Duration `koanf:"batch_timeout"`
}

// RateLimitConfig holds fingerprint rate limiter settings.
type RateLimitConfig struct {
	Enabled bool `koanf:"enabled"`

	// Window is the fixed rate-limit window.
	Window time.Duration `koanf:"window"`

	// Per-window ceilings by client tier.
	TrustedLimit   int64 `koanf:"trusted_limit" validate:"min=1"`
	AnonymousLimit int64 `koanf:"anonymous_limit" validate:"min=1"`
	BotLimit       int64 `koanf:"bot_limit" validate:"min=1"`

	// BatchLimit is the separate, stricter per-window budget that batch
	// requests consume with weight = batch size.
	BatchLimit int64 `koanf:"batch_limit" validate:"min=1"`

	// TrustedIdentities lists first-party client identity strings granted the
	// trusted ceiling.
	TrustedIdentities []string `koanf:"trusted_identities"`

	// MaxFingerprints bounds limiter memory.
	MaxFingerprints int `koanf:"max_fingerprints" validate:"min=1"`
}

// WarmingConfig holds warming scheduler settings.
type WarmingConfig struct {
	Enabled bool `koanf:"enabled"`

	// CheckInterval is how often due jobs are evaluated.
	CheckInterval time.Duration `koanf:"check_interval"`

	// BatchSize is the work-list slice size per run.
	BatchSize int `koanf:"batch_size" validate:"min=1"`

	// AdvanceThreshold is the minimum success ratio for a segment to advance
	// instead of being retried on the next trigger.
	AdvanceThreshold float64 `koanf:"advance_threshold" validate:"min=0,max=1"`
}

// CORSConfig holds CORS settings. Origins default to empty, requiring
// explicit configuration before cross-origin access works.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
	AllowedMethods []string `koanf:"allowed_methods"`
	AllowedHeaders []string `koanf:"allowed_headers"`
	MaxAge         int      `koanf:"max_age"`
}

// defaultConfig returns a Config struct with all default values. These are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8280,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Storage: StorageConfig{
			Path:       "/data/bibliocache",
			InMemory:   false,
			GCInterval: 10 * time.Minute,
		},
		Cache: CacheConfig{
			HotMaxEntries:          10000,
			HotMaxEntryBytes:       256 << 10, // 256KiB
			HotPopularityThreshold: 10,
			PromoteMinHits:         5,
			PromoteMaxIdle:         24 * time.Hour,
			SearchTTL:              30 * 24 * time.Hour,
			LookupTTL:              365 * 24 * time.Hour,
			NegativeTTL:            time.Hour,
			CleanupInterval:        5 * time.Minute,
		},
		Providers: ProvidersConfig{
			GoogleBooks: ProviderConfig{
				Enabled:           true,
				BaseURL:           "https://www.googleapis.com/books/v1",
				Weight:            40,
				RequestsPerSecond: 5,
				Timeout:           15 * time.Second,
				Tiers: []QuotaTierConfig{
					{Name: "free", Period: "daily", Limit: 1000, CostPerCall: 0},
				},
			},
			ISBNdb: ProviderConfig{
				Enabled:           false, // Requires an API key
				BaseURL:           "https://api2.isbndb.com",
				Weight:            35,
				RequestsPerSecond: 1,
				Timeout:           15 * time.Second,
				Tiers: []QuotaTierConfig{
					{Name: "basic", Period: "daily", Limit: 500, CostPerCall: 20},
				},
			},
			OpenLibrary: ProviderConfig{
				Enabled:           true,
				BaseURL:           "https://openlibrary.org",
				Weight:            25,
				RequestsPerSecond: 2,
				Timeout:           15 * time.Second,
				Tiers: []QuotaTierConfig{
					{Name: "public", Period: "hourly", Limit: 500, CostPerCall: 0},
				},
			},
		},
		Orchestra: OrchestraConfig{
			MaxConcurrency: 4,
			SingleTimeout:  20 * time.Second,
			BatchTimeout:   2 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			Window:            time.Hour,
			TrustedLimit:      2000,
			AnonymousLimit:    200,
			BotLimit:          50,
			BatchLimit:        500,
			TrustedIdentities: []string{},
			MaxFingerprints:   100000,
		},
		Warming: WarmingConfig{
			Enabled:          true,
			CheckInterval:    time.Minute,
			BatchSize:        25,
			AdvanceThreshold: 0.8,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Client-Identity"},
			MaxAge:         86400,
		},
	}
}
