// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

// Package quota tracks per-provider, per-tier API usage counters in BadgerDB.
//
// Counters are keyed by a date-stamped window identifier, so window rollover
// needs no reset job: a new window simply starts a new key, and stale keys age
// out through Badger TTLs.
package quota

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/bibliocache/bibliocache/internal/config"
	"github.com/bibliocache/bibliocache/internal/metrics"
)

const keyPrefix = "quota:"

// counterTTL keeps stale window counters around long enough for status
// inspection before Badger reclaims them.
const counterTTL = 72 * time.Hour

// maxRetries bounds optimistic-transaction retries on write conflicts. Each
// conflict means another increment committed in the meantime, so the bound
// has to cover the largest plausible concurrent burst (batch fan-out times
// worker count).
const maxRetries = 256

// ErrTooManyConflicts is returned when an increment could not be committed
// within the retry budget.
var ErrTooManyConflicts = errors.New("quota increment exceeded conflict retries")

// Store persists quota counters.
type Store struct {
	db *badger.DB

	// now is swappable for window-rollover tests.
	now func() time.Time
}

// NewStore creates a quota store over an open Badger instance.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// windowKey returns the counter key for the provider tier's current window.
// Daily windows roll at midnight UTC, hourly windows on the hour.
func (s *Store) windowKey(provider, tier, period string) string {
	now := s.now().UTC()
	var window string
	switch period {
	case "hourly":
		window = now.Format("2006-01-02T15")
	default:
		window = now.Format("2006-01-02")
	}
	return fmt.Sprintf("%s%s/%s/%s", keyPrefix, provider, tier, window)
}

// Increment adds one to the current window counter for a provider tier and
// returns the new value. The read-modify-write runs in an optimistic
// transaction retried on conflict, so concurrent increments are never lost.
func (s *Store) Increment(provider string, tier config.QuotaTierConfig) (int64, error) {
	key := []byte(s.windowKey(provider, tier.Name, tier.Period))

	var updated int64
	for i := 0; i < maxRetries; i++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			current, err := readCounter(txn, key)
			if err != nil {
				return err
			}
			updated = current + 1
			e := badger.NewEntry(key, []byte(strconv.FormatInt(updated, 10))).WithTTL(counterTTL)
			return txn.SetEntry(e)
		})
		if err == nil {
			metrics.QuotaUsed.WithLabelValues(provider, tier.Name).Set(float64(updated))
			return updated, nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return 0, fmt.Errorf("increment quota %s/%s: %w", provider, tier.Name, err)
		}
	}
	return 0, ErrTooManyConflicts
}

// Used returns the current window's usage for a provider tier. A missing
// counter reads as zero.
func (s *Store) Used(provider string, tier config.QuotaTierConfig) (int64, error) {
	key := []byte(s.windowKey(provider, tier.Name, tier.Period))

	var used int64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		used, err = readCounter(txn, key)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("read quota %s/%s: %w", provider, tier.Name, err)
	}
	return used, nil
}

// Remaining returns how many calls are left in the provider tier's current
// window. Never negative.
func (s *Store) Remaining(provider string, tier config.QuotaTierConfig) (int64, error) {
	used, err := s.Used(provider, tier)
	if err != nil {
		return 0, err
	}
	remaining := tier.Limit - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// TierUsage is one tier's usage snapshot for the status endpoint.
type TierUsage struct {
	Tier      string `json:"tier"`
	Period    string `json:"period"`
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
}

// Snapshot returns the usage of every configured tier of a provider. Read
// errors for individual tiers degrade to zero usage rather than failing the
// whole snapshot.
func (s *Store) Snapshot(provider string, tiers []config.QuotaTierConfig) []TierUsage {
	out := make([]TierUsage, 0, len(tiers))
	for _, tier := range tiers {
		used, err := s.Used(provider, tier)
		if err != nil {
			used = 0
		}
		remaining := tier.Limit - used
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, TierUsage{
			Tier:      tier.Name,
			Period:    tier.Period,
			Used:      used,
			Limit:     tier.Limit,
			Remaining: remaining,
		})
	}
	return out
}

// HasRemaining reports whether any tier of the provider still has quota.
func (s *Store) HasRemaining(provider string, tiers []config.QuotaTierConfig) bool {
	for _, tier := range tiers {
		if remaining, err := s.Remaining(provider, tier); err == nil && remaining > 0 {
			return true
		}
	}
	return false
}

func readCounter(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var value int64
	err = item.Value(func(val []byte) error {
		parsed, perr := strconv.ParseInt(string(val), 10, 64)
		if perr != nil {
			return fmt.Errorf("corrupt quota counter: %w", perr)
		}
		value = parsed
		return nil
	})
	return value, err
}
