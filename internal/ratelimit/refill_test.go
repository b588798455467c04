package ratelimit

import (
	"rpcguard/internal/models"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStatus(capacity int, tokens float64, rate int, interval time.Duration) *BucketStatus {
	return &BucketStatus{
		Identifier: "test",
		Kind:       KindUser,
		Bucket: TokenBucket{
			Capacity:       capacity,
			Tokens:         tokens,
			LastRefill:     epoch,
			RefillRate:     rate,
			RefillInterval: interval,
		},
		LastRequestAt: epoch,
		CreatedAt:     epoch,
	}
}

func TestRefill_Stepwise(t *testing.T) {
	st := newStatus(10, 0, 2, time.Second)

	events := refillLocked(st, epoch.Add(900*time.Millisecond), 10, models.BurstConfig{})
	assert.Empty(t, events)
	assert.Equal(t, 0.0, st.Bucket.Tokens, "partial intervals add nothing")
	assert.Equal(t, epoch, st.Bucket.LastRefill)

	events = refillLocked(st, epoch.Add(2500*time.Millisecond), 10, models.BurstConfig{})
	assert.Equal(t, 4.0, st.Bucket.Tokens)
	assert.Equal(t, epoch.Add(2500*time.Millisecond), st.Bucket.LastRefill)
	require.Len(t, events, 1)
	assert.Equal(t, EventRecovered, events[0].Type)
	assert.Equal(t, "refilled", events[0].Details["reason"])

	events = refillLocked(st, epoch.Add(3600*time.Millisecond), 10, models.BurstConfig{})
	assert.Equal(t, 6.0, st.Bucket.Tokens)
	assert.Empty(t, events, "recovered only fires on the empty to non-empty transition")
}

func TestRefill_NeverExceedsCapacity(t *testing.T) {
	st := newStatus(5, 4, 3, time.Second)

	refillLocked(st, epoch.Add(24*time.Hour), 5, models.BurstConfig{})
	assert.Equal(t, 5.0, st.Bucket.Tokens)
}

func TestRefill_BurstExit(t *testing.T) {
	st := newStatus(150, 120, 10, time.Second)
	st.InBurst = true
	st.BurstStartedAt = epoch
	burst := models.BurstConfig{Enabled: true, BurstCapacity: 150, BurstRecoveryTime: 5 * time.Second}

	refillLocked(st, epoch.Add(3*time.Second), 100, burst)
	assert.True(t, st.InBurst)
	assert.Equal(t, 150.0, st.Bucket.Tokens)

	events := refillLocked(st, epoch.Add(6*time.Second), 100, burst)
	assert.False(t, st.InBurst)
	assert.Equal(t, 100, st.Bucket.Capacity)
	assert.Equal(t, 100.0, st.Bucket.Tokens, "tokens are clamped to the normal capacity")
	require.Len(t, events, 1)
	assert.Equal(t, EventRecovered, events[0].Type)
	assert.Equal(t, "burst_ended", events[0].Details["reason"])
}

func TestRefillScheduler_Tick(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	bucket := models.BucketConfig{Capacity: 4, RefillRate: 1, RefillInterval: time.Second}
	store := NewBucketStore(bucket, clock)
	events := NewEventLog(10)
	sched := NewRefillScheduler(store, events, clock, bucket, models.BurstConfig{}, quietLogger())

	empty := store.GetOrCreate("empty", KindIP)
	empty.Bucket.Tokens = 0
	store.GetOrCreate("full", KindUser)

	assert.Equal(t, 0, sched.Tick(), "nothing elapsed yet")

	clock.Advance(2 * time.Second)
	assert.Equal(t, 2, sched.Tick())
	assert.Equal(t, 2.0, empty.Snapshot().Tokens)
	assert.Equal(t, 4.0, store.GetOrCreate("full", KindUser).Snapshot().Tokens)

	all := events.Events()
	require.Len(t, all, 1)
	assert.Equal(t, "empty", all[0].Identifier)
}
