// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

// Package api implements the HTTP surface: search, lookup, batch, cache
// status and warming triggers, and the health endpoints. All responses use
// the standardized models.APIResponse envelope.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/bibliocache/bibliocache/internal/logging"
	"github.com/bibliocache/bibliocache/internal/models"
)

// Machine-readable error codes.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodeUpstreamFailed     = "UPSTREAM_FAILED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// respondJSON writes a success envelope.
func respondJSON(w http.ResponseWriter, status int, data interface{}, meta models.Metadata) {
	meta.Timestamp = time.Now().UTC()
	body := models.APIResponse{
		Status:   statusLabel(status),
		Data:     data,
		Metadata: meta,
	}
	writeBody(w, status, body)
}

// respondError writes an error envelope. retryAfter > 0 additionally sets the
// Retry-After header for rate-limit and quota responses.
func respondError(w http.ResponseWriter, status int, code, message string, retryAfter time.Duration) {
	apiErr := &models.APIError{Code: code, Message: message}
	if retryAfter > 0 {
		seconds := int(retryAfter.Round(time.Second).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		apiErr.RetryAfterSeconds = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	body := models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error:    apiErr,
	}
	writeBody(w, status, body)
}

func statusLabel(httpStatus int) string {
	switch {
	case httpStatus == http.StatusMultiStatus:
		return "partial"
	case httpStatus >= 400:
		return "error"
	default:
		return "success"
	}
}

func writeBody(w http.ResponseWriter, status int, body models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Failed to encode API response")
	}
}
