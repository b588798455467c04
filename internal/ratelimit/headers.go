package ratelimit

import (
	"math"
	"net/http"
	"rpcguard/internal/models"
	"strconv"
	"time"
)

// BuildHeaders renders the rate limit response headers for a bucket snapshot.
// It is a pure function of its arguments. burstCapacity is only reported in
// the policy header and may be zero. An empty header set is returned when
// headers are disabled.
func BuildHeaders(cfg models.HeaderConfig, snap BucketSnapshot, burstCapacity int, now time.Time) http.Header {
	h := make(http.Header)
	if !cfg.Enabled {
		return h
	}

	prefix := cfg.HeaderPrefix
	remaining := int(math.Max(0, math.Floor(snap.Tokens)))

	h.Set(prefix+"-Limit", strconv.Itoa(snap.Capacity))
	h.Set(prefix+"-Remaining", strconv.Itoa(remaining))
	h.Set(prefix+"-Reset", strconv.FormatInt(resetAt(snap, now).Unix(), 10))

	if cfg.IncludeRetryAfter && snap.Tokens < 1 {
		wait := retryAfter(snap.Tokens, snap.RefillRate, snap.RefillInterval)
		h.Set("Retry-After", strconv.Itoa(CeilSeconds(wait)))
	}

	if cfg.IncludePolicy {
		policy := strconv.Itoa(snap.Capacity) + ";w=" + strconv.FormatFloat(snap.RefillInterval.Seconds(), 'f', -1, 64)
		if burstCapacity > 0 {
			policy += ";burst=" + strconv.Itoa(burstCapacity)
		}
		h.Set(prefix+"-Policy", policy)
	}
	return h
}

// retryAfter is the wait until the next whole token: enough refill intervals
// to cover the missing fraction of a token.
func retryAfter(tokens float64, rate int, interval time.Duration) time.Duration {
	if tokens >= 1 || rate <= 0 {
		return 0
	}
	steps := math.Ceil((1 - tokens) / float64(rate))
	return time.Duration(steps) * interval
}

// resetAt is when the bucket will be full again, assuming no further
// consumption.
func resetAt(snap BucketSnapshot, now time.Time) time.Time {
	missing := float64(snap.Capacity) - snap.Tokens
	if missing <= 0 || snap.RefillRate <= 0 {
		return now
	}
	steps := math.Ceil(missing / float64(snap.RefillRate))
	at := snap.LastRefill.Add(time.Duration(steps) * snap.RefillInterval)
	if at.Before(now) {
		return now
	}
	return at
}

// projectTokens returns the token count a bucket would hold after the
// stepwise refill pending at now, without touching the bucket.
func projectTokens(snap BucketSnapshot, now time.Time) float64 {
	if snap.RefillInterval <= 0 || snap.RefillRate <= 0 {
		return snap.Tokens
	}
	intervals := int64(now.Sub(snap.LastRefill) / snap.RefillInterval)
	if intervals <= 0 {
		return snap.Tokens
	}
	if maxIntervals := int64(snap.Capacity/snap.RefillRate) + 1; intervals > maxIntervals {
		intervals = maxIntervals
	}
	return math.Min(snap.Tokens+float64(intervals)*float64(snap.RefillRate), float64(snap.Capacity))
}
