// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// warmKeyPrefix namespaces cache entries within the shared Badger instance
// (quota counters and warming checkpoints live under their own prefixes).
const warmKeyPrefix = "cache:"

// maxTxnRetries bounds optimistic-transaction retries on SSI conflicts.
const maxTxnRetries = 5

// ErrWarmMiss is returned when a key is absent or expired in the warm tier.
var ErrWarmMiss = errors.New("warm tier miss")

// WarmTier is the durable, larger cache tier backed by BadgerDB. It is the
// canonical backing store: every cache write lands here, and hot-tier content
// is always a subset of it.
type WarmTier struct {
	db *badger.DB

	statsMu sync.Mutex
	stats   Stats
}

// NewWarmTier creates a warm tier on top of an open Badger instance.
func NewWarmTier(db *badger.DB) *WarmTier {
	return &WarmTier{db: db}
}

// Get retrieves an entry and bumps its hit counters. Expired entries return
// ErrWarmMiss. The counter update is best-effort: a conflicting concurrent
// update loses the bump but never the read.
func (w *WarmTier) Get(key string) (Entry, error) {
	now := time.Now()
	var entry Entry

	err := w.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(warmKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrWarmMiss
		}
		if err != nil {
			return fmt.Errorf("get cache entry: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		w.recordMiss()
		return Entry{}, err
	}

	// Badger TTL lags ours by a grace period, so re-check explicitly.
	if entry.Expired(now) {
		w.recordMiss()
		return Entry{}, ErrWarmMiss
	}

	w.recordHit()
	w.bumpCounters(key, now)

	entry.HitCount++
	entry.LastAccessAt = now
	return entry, nil
}

// Set stores an entry with Badger-level TTL matching the entry TTL. A write
// replaces any previous entry under the same key in one operation, so readers
// never observe a partial update.
func (w *WarmTier) Set(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	ttl := time.Duration(entry.TTLSeconds) * time.Second
	err = w.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(warmKeyPrefix+entry.Key), data).WithTTL(ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

// Delete removes an entry. Missing keys are not an error.
func (w *WarmTier) Delete(key string) error {
	err := w.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(warmKeyPrefix + key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	w.recordEviction()
	return nil
}

// Len counts live cache entries with a keys-only prefix scan.
func (w *WarmTier) Len() (int64, error) {
	var count int64
	err := w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(warmKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return count, nil
}

// GetStats returns a snapshot of the tier's counters. Entries is filled
// lazily by callers that also need the count, since it requires a scan.
func (w *WarmTier) GetStats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// bumpCounters persists hitCount++ and lastAccessAt for a read hit. Runs as
// an optimistic transaction with bounded retries; giving up only costs
// promotion freshness, never correctness.
func (w *WarmTier) bumpCounters(key string, now time.Time) {
	fullKey := []byte(warmKeyPrefix + key)
	for i := 0; i < maxTxnRetries; i++ {
		err := w.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(fullKey)
			if err != nil {
				return err
			}
			var entry Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}

			entry.HitCount++
			entry.LastAccessAt = now

			data, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			remaining := time.Until(entry.CreatedAt.Add(time.Duration(entry.TTLSeconds) * time.Second))
			if remaining <= 0 {
				return nil
			}
			return txn.SetEntry(badger.NewEntry(fullKey, data).WithTTL(remaining))
		})
		if !errors.Is(err, badger.ErrConflict) {
			return
		}
	}
}

func (w *WarmTier) recordHit() {
	w.statsMu.Lock()
	w.stats.Hits++
	w.statsMu.Unlock()
}

func (w *WarmTier) recordMiss() {
	w.statsMu.Lock()
	w.stats.Misses++
	w.statsMu.Unlock()
}

func (w *WarmTier) recordEviction() {
	w.statsMu.Lock()
	w.stats.Evictions++
	w.statsMu.Unlock()
}
