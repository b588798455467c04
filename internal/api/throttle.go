package api

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"rpcguard/internal/models"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttleEntry holds a limiter and its last access time for eviction.
type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle is a per-client request throttle for the admin API, backed by
// golang.org/x/time/rate. It is independent of the RPC token buckets so that
// operators cannot lock themselves out by exhausting their own RPC quota.
type Throttle struct {
	rate            rate.Limit
	burst           int
	perMinute       int
	cleanupInterval time.Duration

	mu      sync.Mutex
	entries map[string]*throttleEntry
	done    chan struct{}
	closed  bool
}

// NewThrottle creates a throttle allowing requestsPerMinute with the given
// burst per client and starts a goroutine that evicts idle clients.
func NewThrottle(requestsPerMinute, burst int, cleanupInterval time.Duration) *Throttle {
	if burst <= 0 {
		burst = 1
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	t := &Throttle{
		rate:            rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:           burst,
		perMinute:       requestsPerMinute,
		cleanupInterval: cleanupInterval,
		entries:         make(map[string]*throttleEntry),
		done:            make(chan struct{}),
	}
	go t.cleanup()
	return t
}

// Allow reports whether a request from key may proceed and, if not, how long
// to wait.
func (t *Throttle) Allow(key string) (bool, time.Duration) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.entries[key] = e
	}
	e.lastSeen = time.Now()
	t.mu.Unlock()

	if e.limiter.Allow() {
		return true, 0
	}
	reservation := e.limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return false, delay
}

// Remaining returns the whole tokens currently available to key.
func (t *Throttle) Remaining(key string) int {
	t.mu.Lock()
	e, ok := t.entries[key]
	t.mu.Unlock()
	if !ok {
		return t.burst
	}
	return int(math.Max(0, math.Floor(e.limiter.Tokens())))
}

// Middleware rejects clients that exceed the admin request rate with 429.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		allowed, wait := t.Allow(key)
		w.Header().Set("X-Admin-RateLimit-Limit", strconv.Itoa(t.perMinute))
		w.Header().Set("X-Admin-RateLimit-Remaining", strconv.Itoa(t.Remaining(key)))
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := int(math.Ceil(wait.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		slog.Warn("Admin rate limit exceeded", "client_ip", key, "retry_after", retryAfter)

		errorResp := models.NewErrorResponse("Admin rate limit exceeded", models.ErrorCodeRateLimitExceeded)
		errorResp.RetryAfter = retryAfter
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(errorResp)
	})
}

// Close stops the eviction goroutine.
func (t *Throttle) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.done)
	}
}

func (t *Throttle) cleanup() {
	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.evictStale()
		}
	}
}

// evictStale removes clients not seen within two cleanup intervals.
func (t *Throttle) evictStale() {
	cutoff := time.Now().Add(-2 * t.cleanupInterval)
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, e := range t.entries {
		if e.lastSeen.Before(cutoff) {
			delete(t.entries, key)
		}
	}
}

// clientIP extracts the caller address, preferring proxy headers. The headers
// are trusted as sent, so a reverse proxy in front must overwrite
// X-Forwarded-For.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
