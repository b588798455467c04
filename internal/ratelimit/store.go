package ratelimit

import (
	"rpcguard/internal/models"
	"sync"

	"github.com/jonboulle/clockwork"
)

// BucketStore owns every BucketStatus. The map is guarded by mu; each entry
// carries its own lock for token mutations.
type BucketStore struct {
	bucket models.BucketConfig
	clock  clockwork.Clock

	mu      sync.RWMutex
	buckets map[string]*BucketStatus
}

// NewBucketStore creates an empty store whose buckets start from cfg.
func NewBucketStore(cfg models.BucketConfig, clock clockwork.Clock) *BucketStore {
	return &BucketStore{
		bucket:  cfg,
		clock:   clock,
		buckets: make(map[string]*BucketStatus),
	}
}

// GetOrCreate returns the bucket for id, creating a full one on first use.
func (s *BucketStore) GetOrCreate(id string, kind Kind) *BucketStatus {
	s.mu.RLock()
	st, ok := s.buckets[id]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.buckets[id]; ok {
		return st
	}
	now := s.clock.Now()
	st = &BucketStatus{
		Identifier: id,
		Kind:       kind,
		Bucket: TokenBucket{
			Capacity:       s.bucket.Capacity,
			Tokens:         float64(s.bucket.Capacity),
			LastRefill:     now,
			RefillRate:     s.bucket.RefillRate,
			RefillInterval: s.bucket.RefillInterval,
		},
		LastRequestAt: now,
		CreatedAt:     now,
	}
	s.buckets[id] = st
	return st
}

// Get returns the bucket for id without creating one.
func (s *BucketStore) Get(id string) (*BucketStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.buckets[id]
	return st, ok
}

// Delete removes id and marks the entry evicted. It reports whether the
// bucket existed.
func (s *BucketStore) Delete(id string) bool {
	s.mu.Lock()
	st, ok := s.buckets[id]
	delete(s.buckets, id)
	s.mu.Unlock()
	if ok {
		st.mu.Lock()
		st.evicted = true
		st.mu.Unlock()
	}
	return ok
}

// deleteIf removes id only if it is still the given entry and pred holds
// under the bucket lock. Used by cleanup so that a bucket touched between the
// scan and the eviction survives.
func (s *BucketStore) deleteIf(st *BucketStatus, pred func(*BucketStatus) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.buckets[st.Identifier]; !ok || cur != st {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !pred(st) {
		return false
	}
	st.evicted = true
	delete(s.buckets, st.Identifier)
	return true
}

// Range calls fn for every bucket until fn returns false. fn runs without the
// store lock held, so it may lock the bucket.
func (s *BucketStore) Range(fn func(*BucketStatus) bool) {
	for _, st := range s.list() {
		if !fn(st) {
			return
		}
	}
}

func (s *BucketStore) list() []*BucketStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*BucketStatus, 0, len(s.buckets))
	for _, st := range s.buckets {
		out = append(out, st)
	}
	return out
}

// Len returns the number of tracked buckets.
func (s *BucketStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}

// CountByKind returns the number of buckets per kind.
func (s *BucketStore) CountByKind() map[Kind]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[Kind]int, 2)
	for _, st := range s.buckets {
		counts[st.Kind]++
	}
	return counts
}
