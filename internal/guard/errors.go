package guard

import (
	"errors"
	"fmt"
	"net/http"
	"rpcguard/internal/models"
	"rpcguard/internal/ratelimit"
	"time"
)

// ServiceError represents errors from the guard service with HTTP context
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	// RetryAfter is set for rate limit and blacklist rejections.
	RetryAfter time.Duration
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, the same way the
// limiter's Retry-After header does.
func (e *ServiceError) RetryAfterSeconds() int {
	return ratelimit.CeilSeconds(e.RetryAfter)
}

// Error constructors for common service errors

func NewRateLimitedError(err *ratelimit.RateLimitExceededError) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeRateLimitExceeded,
		Message:    fmt.Sprintf("rate limit exceeded for %s", err.Identifier),
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: err.RetryAfter,
		Err:        err,
	}
}

func NewBlacklistedError(err *ratelimit.BlacklistedError) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeBlacklisted,
		Message:    fmt.Sprintf("identifier '%s' is blacklisted", err.Identifier),
		StatusCode: http.StatusForbidden,
		RetryAfter: err.Remaining,
		Err:        err,
	}
}

func NewInvalidRequestError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewUpstreamError(err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeUpstreamError,
		Message:    "upstream call failed",
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

func NewInternalError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewNotFoundError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// callError maps an error returned by RateLimiter.Call. Anything that is not
// a limiter rejection came from the executor.
func callError(err error) *ServiceError {
	var limited *ratelimit.RateLimitExceededError
	if errors.As(err, &limited) {
		return NewRateLimitedError(limited)
	}
	var blocked *ratelimit.BlacklistedError
	if errors.As(err, &blocked) {
		return NewBlacklistedError(blocked)
	}
	return NewUpstreamError(err)
}
