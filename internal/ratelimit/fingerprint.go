// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

// Package ratelimit implements fingerprint-based client rate limiting with
// fixed windows and per-tier ceilings.
package ratelimit

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// ClientTier classifies a caller for rate-limit purposes.
type ClientTier string

const (
	TierTrusted   ClientTier = "trusted"
	TierAnonymous ClientTier = "anonymous"
	TierBot       ClientTier = "bot"
)

// Client carries the request attributes the limiter keys on.
type Client struct {
	// IP is the remote address after proxy-header resolution.
	IP string

	// Identity is the self-declared client identity header, empty when absent.
	Identity string

	// Token is the API token when supplied. Participates in the fingerprint
	// so distinct authenticated clients behind one NAT get separate budgets.
	Token string

	// UserAgent is used only for bot classification, not for the fingerprint:
	// user agents are trivially rotated.
	UserAgent string
}

// Fingerprint derives the stable limiter key for a client. The hash keeps raw
// IPs and tokens out of limiter state and log output.
func (c Client) Fingerprint() string {
	h := sha256.Sum256([]byte(c.IP + "\x00" + c.Identity + "\x00" + c.Token))
	return fmt.Sprintf("%x", h[:16])
}

// botMarkers are substrings that classify a user agent as an automated
// client. Matching is case-insensitive.
var botMarkers = []string{
	"bot", "crawler", "spider", "scraper",
	"curl/", "wget/", "python-requests", "go-http-client",
}

// Classify assigns the client to a rate tier.
//
// Trusted requires a recognized identity string. Bots are detected from the
// user agent; an absent user agent is also treated as a bot, since every real
// library client sends one. Everyone else is anonymous.
func Classify(c Client, trustedIdentities []string) ClientTier {
	if c.Identity != "" {
		for _, id := range trustedIdentities {
			if c.Identity == id {
				return TierTrusted
			}
		}
	}

	ua := strings.ToLower(c.UserAgent)
	if ua == "" {
		return TierBot
	}
	for _, marker := range botMarkers {
		if strings.Contains(ua, marker) {
			return TierBot
		}
	}
	return TierAnonymous
}
