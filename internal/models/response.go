// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Optional fields use omitempty to reduce response size
// - Machine-readable error codes alongside human-readable messages
// - RFC3339 timestamps for international compatibility
package models

import (
	"encoding/json"
	"time"
)

// RPCResponse is what the upstream returned for an admitted call: either a
// result or the upstream's JSON-RPC error object. The limiter never inspects
// either.
type RPCResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCErrorObject `json:"error,omitempty"`
}

// RPCErrorObject is a JSON-RPC error passed through from the upstream.
type RPCErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// BlacklistEntry is a persisted block with its absolute expiry.
type BlacklistEntry struct {
	Identifier string    `json:"identifier"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the entry no longer blocks at the given instant.
func (e BlacklistEntry) Expired(now time.Time) bool {
	return e.ExpiresAt.Before(now)
}

type ErrorResponse struct {
	Error      string            `json:"error"`                 // Error type (always "error")
	Message    string            `json:"message"`               // Human-readable error description
	Code       string            `json:"code,omitempty"`        // Machine-readable error code
	Details    map[string]string `json:"details,omitempty"`     // Extra context (identifier, etc.)
	RetryAfter int               `json:"retry_after,omitempty"` // Seconds until a retry may succeed
	Timestamp  time.Time         `json:"timestamp"`             // Error occurrence time
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]interface{}     `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BucketStatusResponse is the admin view of one tracked identifier.
type BucketStatusResponse struct {
	Identifier      string  `json:"identifier"`
	Kind            string  `json:"kind"`
	AvailableTokens float64 `json:"available_tokens"`
	Capacity        int     `json:"capacity"`
	InBurst         bool    `json:"in_burst"`
	RequestCount    int64   `json:"request_count"`
	LimitedCount    int64   `json:"limited_count"`
	IsWhitelisted   bool    `json:"is_whitelisted"`
	IsBlacklisted   bool    `json:"is_blacklisted"`
}

// MetricsResponse mirrors the limiter's aggregated counters and gauges.
type MetricsResponse struct {
	TotalRequests      int64   `json:"total_requests"`
	LimitedRequests    int64   `json:"limited_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	BurstActivations   int64   `json:"burst_activations"`
	BlacklistHits      int64   `json:"blacklist_hits"`
	AnonymousRequests  int64   `json:"anonymous_requests"`
	ActiveUsers        int     `json:"active_users"`
	ActiveIPs          int     `json:"active_ips"`
	AverageTokensUsed  float64 `json:"average_tokens_used"`
}

type EventResponse struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Identifier string                 `json:"identifier"`
	Kind       string                 `json:"kind"`
	Timestamp  time.Time              `json:"timestamp"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

type EventsResponse struct {
	Events []EventResponse `json:"events"`
	Count  int             `json:"count"`
}

// AccessListResponse acknowledges a whitelist/blacklist mutation.
type AccessListResponse struct {
	Identifier string     `json:"identifier"`
	List       string     `json:"list"`
	Action     string     `json:"action"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
// - Machine-readable for client error handling
const (
	ErrorCodeNotFound           = "NOT_FOUND"           // 404: Resource doesn't exist
	ErrorCodeBadRequest         = "BAD_REQUEST"         // 400: Invalid request format
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"     // 400: Invalid request data
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeUnauthorized       = "UNAUTHORIZED"        // 401: Authentication required
	ErrorCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED" // 429: No token available
	ErrorCodeBlacklisted        = "BLACKLISTED"         // 403: Identifier is blocked
	ErrorCodeUpstreamError      = "UPSTREAM_ERROR"      // 502: RPC backend failed
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503: Service temporarily down
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
	}
}

func (h *HealthCheckResponse) AddMetric(name string, value interface{}) {
	h.Metrics[name] = value
}
