// Package models - API request types and input validation.
// This file defines the incoming request structures: the RPC call descriptor
// that flows through the rate limiter and the admin access-list requests.
//
// Validation Philosophy:
// - Fail fast with clear error messages for invalid input
// - Normalize input data for consistent processing (trimmed identifiers)
// - Separate validation from normalization for clear error reporting
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxMethodLength bounds RPC method names accepted from clients.
const MaxMethodLength = 256

// RPCRequest describes one RPC call. UserID and ClientIP are optional and only
// used to derive the rate limit identity; Method and Params are opaque to the
// limiter and forwarded unchanged to the upstream.
type RPCRequest struct {
	UserID   string          `json:"user_id,omitempty"`
	ClientIP string          `json:"-"`
	Method   string          `json:"method"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// Validate checks the request shape. It does not look at Params.
func (r *RPCRequest) Validate() error {
	method := strings.TrimSpace(r.Method)
	if method == "" {
		return errors.New("method is required")
	}
	if len(method) > MaxMethodLength {
		return fmt.Errorf("method must be at most %d characters", MaxMethodLength)
	}
	if len(r.Params) > 0 && !json.Valid(r.Params) {
		return errors.New("params must be valid JSON")
	}
	return nil
}

// Normalize trims identity fields so that " alice" and "alice" share a bucket.
func (r *RPCRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	r.ClientIP = strings.TrimSpace(r.ClientIP)
	r.Method = strings.TrimSpace(r.Method)
}

// BlacklistRequest is the optional body of a blacklist PUT. Duration uses Go
// duration syntax ("15m", "2h"); empty means DefaultBlacklistDuration.
type BlacklistRequest struct {
	Duration string `json:"duration,omitempty"`
}

// ParseDuration returns the requested block duration.
func (r *BlacklistRequest) ParseDuration() (time.Duration, error) {
	if r == nil || strings.TrimSpace(r.Duration) == "" {
		return DefaultBlacklistDuration, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(r.Duration))
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("duration must be positive")
	}
	return d, nil
}

// ValidateIdentifier checks an identifier taken from a URL path segment.
func ValidateIdentifier(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("identifier is required")
	}
	if len(id) > 512 {
		return errors.New("identifier must be at most 512 characters")
	}
	return nil
}
