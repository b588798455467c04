package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Package-level error definitions for rate limiter operations.
var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrRateLimitExceeded matches every *RateLimitExceededError.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrBlacklisted matches every *BlacklistedError.
	ErrBlacklisted = errors.New("identifier is blacklisted")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("rate limiter closed")
)

// RateLimitExceededError is returned when no token, burst or grace admission
// is available. The caller may retry after RetryAfter.
type RateLimitExceededError struct {
	Identifier string
	Kind       Kind
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s %q, retry after %v", e.Kind, e.Identifier, e.RetryAfter)
}

func (e *RateLimitExceededError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, as used by the
// Retry-After header.
func (e *RateLimitExceededError) RetryAfterSeconds() int {
	return CeilSeconds(e.RetryAfter)
}

// BlacklistedError is returned for identifiers on the blacklist. The bucket is
// never consulted.
type BlacklistedError struct {
	Identifier string
	Remaining  time.Duration
}

func (e *BlacklistedError) Error() string {
	return fmt.Sprintf("identifier %q is blacklisted for another %v", e.Identifier, e.Remaining)
}

func (e *BlacklistedError) Is(target error) bool {
	return target == ErrBlacklisted
}

// CeilSeconds rounds d up to whole seconds for Retry-After values. Zero and
// negative durations are 0.
func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
