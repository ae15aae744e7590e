// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

// Package warming proactively populates the cache from curated work lists on
// a resumable schedule. Progress is checkpointed per job in BadgerDB, so a
// restart resumes mid-list instead of starting over.
package warming

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const progressKeyPrefix = "warming:"

// Progress is one job's persisted checkpoint.
type Progress struct {
	JobType string `json:"job_type"`

	// Cursor is the index of the next unprocessed work-list item.
	Cursor int `json:"cursor"`

	// Processed counts items completed successfully over the job's lifetime.
	Processed int `json:"processed"`

	// LastCycleAt is when the job last finished a full pass over its list.
	// Periodic jobs become due again one period after this.
	LastCycleAt time.Time `json:"last_cycle_at"`

	// Completed marks a one-shot job as done. Completed jobs are never
	// triggered again, manually or on schedule.
	Completed bool `json:"completed"`
}

// ProgressStore persists warming checkpoints.
type ProgressStore struct {
	db *badger.DB
}

// NewProgressStore creates a progress store over an open Badger instance.
func NewProgressStore(db *badger.DB) *ProgressStore {
	return &ProgressStore{db: db}
}

// Load reads a job's checkpoint. A job that has never run returns a zero
// Progress with the type filled in.
func (s *ProgressStore) Load(jobType string) (Progress, error) {
	progress := Progress{JobType: jobType}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(progressKeyPrefix + jobType))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &progress)
		})
	})
	if err != nil {
		return Progress{}, fmt.Errorf("load warming progress %s: %w", jobType, err)
	}
	return progress, nil
}

// Save writes a job's checkpoint.
func (s *ProgressStore) Save(progress Progress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal warming progress: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(progressKeyPrefix+progress.JobType), data)
	})
	if err != nil {
		return fmt.Errorf("save warming progress %s: %w", progress.JobType, err)
	}
	return nil
}
