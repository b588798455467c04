package ratelimit

import (
	"rpcguard/internal/models"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func headerSnap(capacity int, tokens float64, rate int, interval time.Duration) BucketSnapshot {
	return BucketSnapshot{
		Identifier:     "alice",
		Kind:           KindUser,
		Capacity:       capacity,
		Tokens:         tokens,
		LastRefill:     epoch,
		RefillRate:     rate,
		RefillInterval: interval,
	}
}

func TestBuildHeaders_Disabled(t *testing.T) {
	h := BuildHeaders(models.HeaderConfig{Enabled: false, HeaderPrefix: "X-RateLimit"}, headerSnap(10, 3, 1, time.Second), 0, epoch)
	assert.Empty(t, h)
}

func TestBuildHeaders(t *testing.T) {
	cfg := models.HeaderConfig{Enabled: true, HeaderPrefix: "X-RateLimit", IncludeRetryAfter: true}

	t.Run("tokens available", func(t *testing.T) {
		h := BuildHeaders(cfg, headerSnap(10, 4.7, 2, time.Second), 0, epoch)
		assert.Equal(t, "10", h.Get("X-RateLimit-Limit"))
		assert.Equal(t, "4", h.Get("X-RateLimit-Remaining"))
		// 5.3 missing tokens at 2 per second: 3 intervals.
		assert.Equal(t, strconv.FormatInt(epoch.Add(3*time.Second).Unix(), 10), h.Get("X-RateLimit-Reset"))
		assert.Empty(t, h.Get("Retry-After"))
		assert.Empty(t, h.Get("X-RateLimit-Policy"))
	})

	t.Run("exhausted", func(t *testing.T) {
		h := BuildHeaders(cfg, headerSnap(10, 0, 1, 1500*time.Millisecond), 0, epoch)
		assert.Equal(t, "0", h.Get("X-RateLimit-Remaining"))
		assert.Equal(t, "2", h.Get("Retry-After"))
	})

	t.Run("retry after disabled", func(t *testing.T) {
		noRetry := cfg
		noRetry.IncludeRetryAfter = false
		h := BuildHeaders(noRetry, headerSnap(10, 0, 1, time.Second), 0, epoch)
		assert.Empty(t, h.Get("Retry-After"))
	})

	t.Run("full bucket resets now", func(t *testing.T) {
		now := epoch.Add(time.Hour)
		h := BuildHeaders(cfg, headerSnap(10, 10, 1, time.Second), 0, now)
		assert.Equal(t, strconv.FormatInt(now.Unix(), 10), h.Get("X-RateLimit-Reset"))
	})

	t.Run("custom prefix", func(t *testing.T) {
		custom := cfg
		custom.HeaderPrefix = "RateLimit"
		h := BuildHeaders(custom, headerSnap(5, 5, 1, time.Second), 0, epoch)
		assert.Equal(t, "5", h.Get("RateLimit-Limit"))
		assert.Empty(t, h.Get("X-RateLimit-Limit"))
	})
}

func TestBuildHeaders_Policy(t *testing.T) {
	cfg := models.HeaderConfig{Enabled: true, HeaderPrefix: "X-RateLimit", IncludePolicy: true}

	h := BuildHeaders(cfg, headerSnap(100, 50, 10, time.Second), 150, epoch)
	assert.Equal(t, "100;w=1;burst=150", h.Get("X-RateLimit-Policy"))

	h = BuildHeaders(cfg, headerSnap(100, 50, 10, 100*time.Millisecond), 0, epoch)
	assert.Equal(t, "100;w=0.1", h.Get("X-RateLimit-Policy"))
}

func TestBuildHeaders_IsPure(t *testing.T) {
	cfg := models.HeaderConfig{Enabled: true, HeaderPrefix: "X-RateLimit", IncludeRetryAfter: true, IncludePolicy: true}
	snap := headerSnap(10, 0.5, 1, time.Second)

	first := BuildHeaders(cfg, snap, 20, epoch)
	second := BuildHeaders(cfg, snap, 20, epoch)
	assert.Equal(t, first, second)
	assert.Equal(t, 0.5, snap.Tokens)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryAfter(1, 1, time.Second))
	assert.Equal(t, time.Second, retryAfter(0, 1, time.Second))
	assert.Equal(t, 100*time.Millisecond, retryAfter(0, 10, 100*time.Millisecond))
	assert.Equal(t, time.Second, retryAfter(0.5, 2, time.Second))
}

func TestCeilSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{-time.Second, 0},
		{0, 0},
		{time.Nanosecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CeilSeconds(tt.in), tt.in.String())
	}
}
