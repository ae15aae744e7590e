// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package orchestrator

import (
	"sort"

	"github.com/bibliocache/bibliocache/internal/config"
	"github.com/bibliocache/bibliocache/internal/models"
	"github.com/bibliocache/bibliocache/internal/provider"
)

// affinityBonus rewards providers on the request types they answer best:
// Google Books has the strongest full-text search corpus, ISBNdb is an
// ISBN-first database.
const affinityBonus = 15.0

// quotaBonusMax scales the remaining-quota headroom contribution. A provider
// with a full window gets the whole bonus, one near exhaustion gets almost
// none, so load spreads before any provider runs dry.
const quotaBonusMax = 20.0

// candidate is one provider admitted to selection for a request, with its
// computed score and the quota tier the call will be charged to.
type candidate struct {
	client *provider.Resilient
	cfg    config.ProviderConfig
	tier   config.QuotaTierConfig
	score  float64
}

// rank scores every usable provider for the request and returns them in
// descending score order. Providers with an open circuit or no remaining
// quota in any tier are excluded entirely.
func (o *Orchestrator) rank(reqType models.RequestType, priority models.Priority) []candidate {
	candidates := make([]candidate, 0, len(o.registered))
	for _, reg := range o.registered {
		if !reg.client.Available() {
			continue
		}
		tier, ok := o.pickTier(reg.client.ID(), reg.cfg.Tiers, priority)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{
			client: reg.client,
			cfg:    reg.cfg,
			tier:   tier,
			score:  o.score(reg, tier, reqType, priority),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	return candidates
}

// score computes the selection score for one provider:
//
//	base weight
//	+ remaining-quota headroom (0..quotaBonusMax)
//	+ request-type affinity
//	- per-call cost penalty (doubled for background work)
func (o *Orchestrator) score(reg Registration, tier config.QuotaTierConfig, reqType models.RequestType, priority models.Priority) float64 {
	s := float64(reg.cfg.Weight)

	if tier.Limit > 0 {
		remaining, err := o.quota.Remaining(reg.client.ID(), tier)
		if err == nil {
			s += quotaBonusMax * float64(remaining) / float64(tier.Limit)
		}
	}

	switch {
	case reqType == models.RequestTypeSearch && reg.client.ID() == provider.GoogleBooksID:
		s += affinityBonus
	case reqType == models.RequestTypeLookup && reg.client.ID() == provider.ISBNdbID:
		s += affinityBonus
	}

	costPenalty := float64(tier.CostPerCall) / 10.0
	if priority == models.PriorityBackground {
		costPenalty *= 2
	}
	return s - costPenalty
}

// pickTier chooses which quota tier a call will be charged to. Background
// work only ever consumes free tiers; interactive work takes the first tier
// with remaining quota in config order, preferring free tiers when one still
// has headroom.
func (o *Orchestrator) pickTier(providerID string, tiers []config.QuotaTierConfig, priority models.Priority) (config.QuotaTierConfig, bool) {
	var fallback *config.QuotaTierConfig
	for idx := range tiers {
		tier := tiers[idx]
		remaining, err := o.quota.Remaining(providerID, tier)
		if err != nil || remaining <= 0 {
			continue
		}
		if tier.CostPerCall == 0 {
			return tier, true
		}
		if fallback == nil {
			fallback = &tiers[idx]
		}
	}
	if fallback != nil && priority != models.PriorityBackground {
		return *fallback, true
	}
	return config.QuotaTierConfig{}, false
}
