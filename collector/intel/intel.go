// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

// Package intel abstracts the LLM providers that synthesize intelligence
// reports about African AI activity. Each provider variant lives in its own
// subpackage with its own wire client; this package defines the common
// Provider interface, the report request/response shapes, and the Registry
// that picks a variant by name at runtime.
package intel

import (
	"context"
	"fmt"
	"net/http"
)

// ReportSpec describes one intelligence synthesis request. ReportType and
// GeographicFocus drive the prompt template; Model, MaxTokens, and
// Temperature override the provider defaults when non-zero. Subject names a
// single entity for the field_* report types used by the backfill engine.
type ReportSpec struct {
	ReportType      string
	TimePeriod      string
	GeographicFocus []string
	Subject         string
	Model           string
	MaxTokens       int
	Temperature     float64
}

// ReportPayload is the raw provider output. Text is the untouched prose;
// downstream extraction imposes structure on it, never the provider layer.
// Citations carries source URLs for search-grounded models that return them
// out of band (empty for providers that only cite inline).
type ReportPayload struct {
	Text       string
	ResponseID string
	Model      string
	TokensUsed int
	Citations  []string
}

// Provider is one LLM backend capable of producing intelligence reports.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, spec ReportSpec) (*ReportPayload, error)
	HealthCheck(ctx context.Context) error
	EstimateCost(spec ReportSpec) float64
}

// APIError is the provider-independent classification of an upstream LLM
// failure. Registry adapters convert each variant's native error into this
// shape so callers can branch on status without knowing the provider.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("intel provider error (status %d, %s): %s", e.StatusCode, e.Type, e.Message)
}

// IsRateLimit reports whether the provider asked us to back off.
func (e *APIError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Type == "rate_limit_error"
}

// IsAuth reports whether the credentials were rejected.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode == http.StatusForbidden ||
		e.Type == "authentication_error" ||
		e.Type == "permission_error"
}
