// Package models - API response types and error handling.
// This file defines the outgoing API response structures.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Optional fields use omitempty to reduce response size
// - Rate limit rejections carry enough data for a client to back off
// - Timestamps are RFC3339 in UTC
package models

import (
	"time"
)

// ErrorResponse provides structured error information.
type ErrorResponse struct {
	Error     string            `json:"error"`                // Error type (always "error")
	Message   string            `json:"message"`              // Human-readable error description
	Code      string            `json:"code,omitempty"`       // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"`    // Field-specific error details
	Timestamp time.Time         `json:"timestamp"`            // Error occurrence time
	RequestID string            `json:"request_id,omitempty"` // Unique request identifier
}

// RateLimitErrorResponse is the body of every 429 response.
//
// Client Usage:
// - Wait RetryAfter seconds (also sent as the Retry-After header)
// - ResetTime is when the counter is next expected to allow a request
type RateLimitErrorResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	RetryAfter int64  `json:"retryAfter"`
	Remaining  int64  `json:"remaining"`
	ResetTime  string `json:"resetTime"`
	Limit      int64  `json:"limit,omitempty"`
	Scope      string `json:"scope,omitempty"`
}

// isoMillis matches JavaScript's Date.toISOString output.
const isoMillis = "2006-01-02T15:04:05.000Z"

func NewRateLimitErrorResponse(retryAfter, remaining int64, resetTime time.Time) *RateLimitErrorResponse {
	return &RateLimitErrorResponse{
		Success:    false,
		Error:      "Too Many Requests",
		Message:    "Rate limit exceeded. Please try again later.",
		Code:       ErrorCodeRateLimitExceeded,
		RetryAfter: retryAfter,
		Remaining:  remaining,
		ResetTime:  resetTime.UTC().Format(isoMillis),
	}
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]interface{}     `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// CheckRequest asks the service for a rate limit decision on behalf of a
// caller that enforces limits itself.
type CheckRequest struct {
	Identifier string `json:"identifier"`
	Scope      string `json:"scope"`
	Tier       string `json:"tier"`
	Algorithm  string `json:"algorithm,omitempty"`
}

// ResetResponse reports the outcome of an admin reset.
type ResetResponse struct {
	Reset bool   `json:"reset"`
	Key   string `json:"key"`
}

// PolicyInfo is the wire form of a tier policy.
type PolicyInfo struct {
	Tier          string `json:"tier"`
	Window        string `json:"window"`
	WindowMs      int64  `json:"windowMs"`
	MaxRequests   int64  `json:"maxRequests"`
	Algorithm     string `json:"algorithm"`
	BlockDuration string `json:"blockDuration,omitempty"`
}

type ListPoliciesResponse struct {
	Policies []PolicyInfo `json:"policies"`
}

type ListViolationsResponse struct {
	Violations []*Violation `json:"violations"`
	Count      int          `json:"count"`
}

// StoreStatusResponse reports shared store availability.
type StoreStatusResponse struct {
	Available bool   `json:"available"`
	Mode      string `json:"mode"`
	Error     string `json:"error,omitempty"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Serving from the local fallback
	StatusUnknown   = "unknown"   // Status indeterminate
)

// Standard HTTP Error Codes
const (
	ErrorCodeNotFound           = "NOT_FOUND"           // 404: Resource doesn't exist
	ErrorCodeBadRequest         = "BAD_REQUEST"         // 400: Invalid request format
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"     // 400: Invalid request data
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeUnauthorized       = "UNAUTHORIZED"        // 401: Authentication required
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503: Store temporarily down
	ErrorCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED" // 429: Too many requests
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Metrics:    make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddMetric(name string, value interface{}) {
	h.Metrics[name] = value
}
