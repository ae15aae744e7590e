// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package middleware

import (
	"net"
	"net/http"

	"github.com/bibliocache/bibliocache/internal/ratelimit"
)

// ClientIdentityHeader is the self-declared client identity header checked
// against the configured trusted list.
const ClientIdentityHeader = "X-Client-Identity"

// ClientFromRequest derives the rate-limit client attributes from a request.
// Expects chi's RealIP middleware to have already resolved RemoteAddr.
func ClientFromRequest(r *http.Request) ratelimit.Client {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ratelimit.Client{
		IP:        ip,
		Identity:  r.Header.Get(ClientIdentityHeader),
		Token:     r.Header.Get("Authorization"),
		UserAgent: r.UserAgent(),
	}
}

// FingerprintLimit enforces the per-fingerprint interactive rate limit.
// Batch requests are weighed against their own budget by the batch handler,
// not here.
//
// denied renders the 429; it receives the limiter's decision so the response
// can carry Retry-After.
func FingerprintLimit(limiter *ratelimit.Limiter, denied func(w http.ResponseWriter, r *http.Request, d ratelimit.Decision)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := limiter.Check(ClientFromRequest(r))
			if !decision.Allowed {
				denied(w, r, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
