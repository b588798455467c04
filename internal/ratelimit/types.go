package ratelimit

import (
	"sync"
	"time"
)

// Kind says which request attribute an identifier was derived from. Users and
// IPs are evicted on separate TTLs.
type Kind string

const (
	KindUser      Kind = "user"
	KindIP        Kind = "ip"
	KindAnonymous Kind = "anonymous"
)

// AnonymousID is the identifier used when no tracked attribute is present.
// It never gets a bucket.
const AnonymousID = "anonymous"

// Identity is the tracking key derived from a request.
type Identity struct {
	ID   string
	Kind Kind
}

// TokenBucket holds the token pool for one identifier. Tokens never exceeds
// Capacity.
type TokenBucket struct {
	Capacity       int
	Tokens         float64
	LastRefill     time.Time
	RefillRate     int
	RefillInterval time.Duration
}

// BucketStatus is the per-identifier state owned by BucketStore. Every field
// is guarded by mu; the limiter and the schedulers take it before touching
// the bucket.
type BucketStatus struct {
	mu sync.Mutex

	Identifier     string
	Kind           Kind
	Bucket         TokenBucket
	InBurst        bool
	BurstStartedAt time.Time
	RequestCount   int64
	LimitedCount   int64
	LastRequestAt  time.Time
	CreatedAt      time.Time

	// evicted is set by the store when the entry is removed so that a caller
	// holding a stale pointer fetches a fresh bucket.
	evicted bool
}

// BucketSnapshot is an immutable copy of a bucket taken under its lock.
type BucketSnapshot struct {
	Identifier     string
	Kind           Kind
	Capacity       int
	Tokens         float64
	LastRefill     time.Time
	RefillRate     int
	RefillInterval time.Duration
	InBurst        bool
	RequestCount   int64
	LimitedCount   int64
	LastRequestAt  time.Time
	CreatedAt      time.Time
}

func (s *BucketStatus) snapshotLocked() BucketSnapshot {
	return BucketSnapshot{
		Identifier:     s.Identifier,
		Kind:           s.Kind,
		Capacity:       s.Bucket.Capacity,
		Tokens:         s.Bucket.Tokens,
		LastRefill:     s.Bucket.LastRefill,
		RefillRate:     s.Bucket.RefillRate,
		RefillInterval: s.Bucket.RefillInterval,
		InBurst:        s.InBurst,
		RequestCount:   s.RequestCount,
		LimitedCount:   s.LimitedCount,
		LastRequestAt:  s.LastRequestAt,
		CreatedAt:      s.CreatedAt,
	}
}

// Snapshot copies the bucket state.
func (s *BucketStatus) Snapshot() BucketSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// BucketView is the read-only status returned to callers of
// RateLimiter.BucketStatus.
type BucketView struct {
	BucketSnapshot
	AvailableTokens float64
	IsWhitelisted   bool
	IsBlacklisted   bool
}
