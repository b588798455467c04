package ratelimit

import (
	"rpcguard/internal/models"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestBucketStore_GetOrCreate(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	store := NewBucketStore(models.BucketConfig{Capacity: 7, RefillRate: 1, RefillInterval: time.Second}, clock)

	st := store.GetOrCreate("alice", KindUser)
	snap := st.Snapshot()
	assert.Equal(t, 7, snap.Capacity)
	assert.Equal(t, 7.0, snap.Tokens)
	assert.Equal(t, epoch, snap.LastRefill)
	assert.Equal(t, epoch, snap.CreatedAt)
	assert.Equal(t, KindUser, snap.Kind)

	assert.Same(t, st, store.GetOrCreate("alice", KindUser))

	got, ok := store.Get("alice")
	assert.True(t, ok)
	assert.Same(t, st, got)

	_, ok = store.Get("bob")
	assert.False(t, ok)
}

func TestBucketStore_CountAndRange(t *testing.T) {
	store := NewBucketStore(models.BucketConfig{Capacity: 1, RefillRate: 1, RefillInterval: time.Second}, clockwork.NewFakeClockAt(epoch))

	store.GetOrCreate("u1", KindUser)
	store.GetOrCreate("u2", KindUser)
	store.GetOrCreate("10.0.0.1", KindIP)

	assert.Equal(t, 3, store.Len())
	counts := store.CountByKind()
	assert.Equal(t, 2, counts[KindUser])
	assert.Equal(t, 1, counts[KindIP])

	visited := 0
	store.Range(func(*BucketStatus) bool {
		visited++
		return visited < 2
	})
	assert.Equal(t, 2, visited, "range stops when fn returns false")
}

func TestBucketStore_DeleteMarksEvicted(t *testing.T) {
	store := NewBucketStore(models.BucketConfig{Capacity: 3, RefillRate: 1, RefillInterval: time.Second}, clockwork.NewFakeClockAt(epoch))

	stale := store.GetOrCreate("racer", KindUser)
	assert.True(t, store.Delete("racer"))
	assert.False(t, store.Delete("racer"))

	fresh := store.GetOrCreate("racer", KindUser)
	assert.NotSame(t, stale, fresh)
	assert.True(t, stale.evicted)
	assert.False(t, fresh.evicted)
}
