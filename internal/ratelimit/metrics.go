package ratelimit

import "sync/atomic"

// Metrics is a point-in-time snapshot of the limiter counters and gauges.
type Metrics struct {
	TotalRequests      int64
	LimitedRequests    int64
	SuccessfulRequests int64
	FailedRequests     int64
	BurstActivations   int64
	BlacklistHits      int64
	AnonymousRequests  int64

	ActiveUsers       int
	ActiveIPs         int
	AverageTokensUsed float64
}

// collector holds the monotonic counters. Gauges are recomputed from the
// store on every snapshot.
type collector struct {
	total      atomic.Int64
	limited    atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64
	bursts     atomic.Int64
	blacklist  atomic.Int64
	anonymous  atomic.Int64
}

func (c *collector) snapshot(store *BucketStore) Metrics {
	m := Metrics{
		TotalRequests:      c.total.Load(),
		LimitedRequests:    c.limited.Load(),
		SuccessfulRequests: c.successful.Load(),
		FailedRequests:     c.failed.Load(),
		BurstActivations:   c.bursts.Load(),
		BlacklistHits:      c.blacklist.Load(),
		AnonymousRequests:  c.anonymous.Load(),
	}

	var used float64
	var n int
	store.Range(func(st *BucketStatus) bool {
		st.mu.Lock()
		if !st.evicted {
			switch st.Kind {
			case KindUser:
				m.ActiveUsers++
			case KindIP:
				m.ActiveIPs++
			}
			used += float64(st.Bucket.Capacity) - st.Bucket.Tokens
			n++
		}
		st.mu.Unlock()
		return true
	})
	if n > 0 {
		m.AverageTokensUsed = used / float64(n)
	}
	return m
}
