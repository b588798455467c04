package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"rpcguard/internal/models"
	"time"

	"github.com/jonboulle/clockwork"
)

// refillLocked applies the stepwise refill for every whole interval elapsed
// since the last refill. Refill is never fractional: a bucket refilled at
// 1.5 intervals receives one step and restarts its interval at now. The
// caller must hold st.mu; returned events are published after unlocking.
func refillLocked(st *BucketStatus, now time.Time, normalCapacity int, burst models.BurstConfig) []Event {
	b := &st.Bucket
	if b.RefillInterval <= 0 || b.RefillRate <= 0 {
		return nil
	}
	elapsed := now.Sub(b.LastRefill)
	if elapsed < b.RefillInterval {
		return nil
	}

	intervals := int64(elapsed / b.RefillInterval)
	// More intervals than it takes to fill the bucket add nothing.
	maxIntervals := int64(b.Capacity/b.RefillRate) + 1
	if intervals > maxIntervals {
		intervals = maxIntervals
	}

	var events []Event
	before := b.Tokens

	if st.InBurst && now.Sub(st.BurstStartedAt) > burst.BurstRecoveryTime {
		st.InBurst = false
		st.BurstStartedAt = time.Time{}
		b.Capacity = normalCapacity
		b.Tokens = math.Min(b.Tokens, float64(b.Capacity))
		events = append(events, newEvent(EventRecovered, st.Identifier, st.Kind, now, map[string]any{
			"reason":   "burst_ended",
			"capacity": b.Capacity,
			"tokens":   b.Tokens,
		}))
	} else {
		added := float64(intervals) * float64(b.RefillRate)
		b.Tokens = math.Min(b.Tokens+added, float64(b.Capacity))
		if before == 0 && b.Tokens > 0 {
			events = append(events, newEvent(EventRecovered, st.Identifier, st.Kind, now, map[string]any{
				"reason": "refilled",
				"tokens": b.Tokens,
			}))
		}
	}
	b.LastRefill = now
	return events
}

// RefillScheduler periodically tops up every bucket in the store.
type RefillScheduler struct {
	store  *BucketStore
	events *EventLog
	clock  clockwork.Clock
	bucket models.BucketConfig
	burst  models.BurstConfig
	logger *slog.Logger
}

// NewRefillScheduler creates a scheduler that ticks every bucket.RefillInterval.
func NewRefillScheduler(store *BucketStore, events *EventLog, clock clockwork.Clock, bucket models.BucketConfig, burst models.BurstConfig, logger *slog.Logger) *RefillScheduler {
	return &RefillScheduler{
		store:  store,
		events: events,
		clock:  clock,
		bucket: bucket,
		burst:  burst,
		logger: logger,
	}
}

// Run ticks until ctx is cancelled.
func (r *RefillScheduler) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.bucket.RefillInterval)
	defer ticker.Stop()

	r.logger.Debug("refill scheduler started", "interval", r.bucket.RefillInterval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("refill scheduler stopped")
			return
		case <-ticker.Chan():
			r.Tick()
		}
	}
}

// Tick refills every bucket once and returns how many buckets changed.
func (r *RefillScheduler) Tick() int {
	now := r.clock.Now()
	refilled := 0
	var pending []Event

	r.store.Range(func(st *BucketStatus) bool {
		st.mu.Lock()
		if st.evicted {
			st.mu.Unlock()
			return true
		}
		last := st.Bucket.LastRefill
		pending = append(pending, refillLocked(st, now, r.bucket.Capacity, r.burst)...)
		if !st.Bucket.LastRefill.Equal(last) {
			refilled++
		}
		st.mu.Unlock()
		return true
	})

	r.events.Append(pending...)
	return refilled
}
