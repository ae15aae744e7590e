// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/bibliocache/bibliocache/internal/models"
)

// HealthCheck probes a dependency. Returning nil means healthy.
type HealthCheck func(ctx context.Context) error

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleLive serves GET /api/v1/health/live. Process-up only, no dependency
// probes; suitable for container liveness.
func (h *Handler) HandleLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthReport{Status: "alive"}, models.Metadata{})
}

// HandleReady serves GET /api/v1/health/ready: 200 once storage answers,
// 503 otherwise.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	h.runChecks(w, r, "ready")
}

// HandleHealth serves GET /api/v1/health with per-dependency detail.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.runChecks(w, r, "healthy")
}

func (h *Handler) runChecks(w http.ResponseWriter, r *http.Request, okLabel string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report := healthReport{Status: okLabel, Checks: make(map[string]string, len(h.checks))}
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			healthy = false
			report.Checks[name] = err.Error()
			continue
		}
		report.Checks[name] = "ok"
	}
	if !healthy {
		report.Status = "unhealthy"
		respondJSON(w, http.StatusServiceUnavailable, report, models.Metadata{})
		return
	}
	respondJSON(w, http.StatusOK, report, models.Metadata{})
}
