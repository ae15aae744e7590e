// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package services

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// BadgerGCService runs Badger value-log garbage collection on an interval.
// Badger never reclaims value-log space on its own; without this loop the
// warm tier grows monotonically.
type BadgerGCService struct {
	db       *badger.DB
	interval time.Duration
	log      zerolog.Logger
}

// NewBadgerGCService creates the GC service.
func NewBadgerGCService(db *badger.DB, interval time.Duration, log zerolog.Logger) *BadgerGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &BadgerGCService{
		db:       db,
		interval: interval,
		log:      log.With().Str("component", "badger-gc").Logger(),
	}
}

// Serve implements suture.Service.
func (g *BadgerGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.collect()
		}
	}
}

// collect reclaims value-log files until a pass finds nothing to rewrite.
func (g *BadgerGCService) collect() {
	for {
		err := g.db.RunValueLogGC(0.5)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
			g.log.Warn().Err(err).Msg("Value log GC failed")
		}
		return
	}
}

func (g *BadgerGCService) String() string {
	return "badger-gc"
}
