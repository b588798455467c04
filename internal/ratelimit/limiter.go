// Package ratelimit implements the token bucket admission controller that sits
// in front of the RPC executor. Each tracked identity (user or client IP) owns
// a bucket that is refilled stepwise on a fixed interval. When the bucket is
// empty a one-time burst ceiling and an idle grace admission may still let a
// call through; otherwise the call is rejected with a retry delay.
//
// Whitelisted identities bypass the bucket and blacklisted ones are rejected
// before it is consulted. Idle buckets are evicted by a cleanup scheduler and
// every notable decision is recorded in a bounded event log.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"rpcguard/internal/models"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Executor performs an admitted RPC call. The limiter forwards its result and
// error unchanged.
type Executor interface {
	Execute(ctx context.Context, req models.RPCRequest) (*models.RPCResponse, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req models.RPCRequest) (*models.RPCResponse, error)

func (f ExecutorFunc) Execute(ctx context.Context, req models.RPCRequest) (*models.RPCResponse, error) {
	return f(ctx, req)
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithClock replaces the wall clock. Tests pass a clockwork fake clock.
func WithClock(clock clockwork.Clock) Option {
	return func(l *RateLimiter) {
		l.clock = clock
	}
}

// WithLogger sets the logger used for denials and scheduler lifecycle.
func WithLogger(logger *slog.Logger) Option {
	return func(l *RateLimiter) {
		l.logger = logger
	}
}

// RateLimiter admits or denies RPC calls. It is safe for concurrent use.
type RateLimiter struct {
	cfg    models.LimiterConfig
	exec   Executor
	clock  clockwork.Clock
	logger *slog.Logger

	store    *BucketStore
	access   *AccessList
	events   *EventLog
	counters collector
	refill   *RefillScheduler
	cleanup  *CleanupScheduler

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// New validates cfg and builds a limiter. Schedulers are not started until
// Start is called.
func New(cfg models.LimiterConfig, exec Executor, opts ...Option) (*RateLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if exec == nil {
		return nil, fmt.Errorf("%w: executor is required", ErrInvalidConfig)
	}

	l := &RateLimiter{
		cfg:    cfg,
		exec:   exec,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.store = NewBucketStore(cfg.Bucket, l.clock)
	l.access = NewAccessList(l.clock, cfg.Whitelist)
	l.events = NewEventLog(cfg.Tracking.MaxEvents)
	l.refill = NewRefillScheduler(l.store, l.events, l.clock, cfg.Bucket, cfg.Burst, l.logger)
	l.cleanup = NewCleanupScheduler(l.store, l.access, l.events, l.clock, cfg.Tracking, l.logger)
	return l, nil
}

// Start launches the refill and cleanup schedulers. They stop when ctx is
// cancelled or Close is called. Calling Start twice is a no-op.
func (l *RateLimiter) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.started {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.started = true

	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		l.refill.Run(ctx)
	}()
	go func() {
		defer l.wg.Done()
		l.cleanup.Run(ctx)
	}()

	l.logger.Info("rate limiter started",
		"capacity", l.cfg.Bucket.Capacity,
		"refill_rate", l.cfg.Bucket.RefillRate,
		"refill_interval", l.cfg.Bucket.RefillInterval,
		"burst_enabled", l.cfg.Burst.Enabled,
	)
	return nil
}

// Close stops the schedulers and waits for them to exit.
func (l *RateLimiter) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
}

// Call runs req through the access lists and the caller's bucket and, when
// admitted, forwards it to the executor.
func (l *RateLimiter) Call(ctx context.Context, req models.RPCRequest) (*models.RPCResponse, error) {
	l.counters.total.Add(1)
	id := ResolveIdentifier(req, l.cfg.Tracking)

	if remaining, blocked := l.access.BlacklistRemaining(id.ID); blocked {
		l.counters.blacklist.Add(1)
		l.events.Append(newEvent(EventBlacklisted, id.ID, id.Kind, l.clock.Now(), map[string]any{
			"remaining_ms": remaining.Milliseconds(),
			"method":       req.Method,
		}))
		l.logger.Warn("blacklisted identifier rejected", "identifier", id.ID, "kind", id.Kind, "remaining", remaining)
		return nil, &BlacklistedError{Identifier: id.ID, Remaining: remaining}
	}

	if l.access.IsWhitelisted(id.ID) {
		return l.execute(ctx, req)
	}

	if id.Kind == KindAnonymous {
		l.counters.anonymous.Add(1)
		return l.execute(ctx, req)
	}

	var d decision
	for {
		st := l.store.GetOrCreate(id.ID, id.Kind)
		d = l.consumeToken(st)
		if !d.evicted {
			break
		}
	}
	l.events.Append(d.events...)

	if !d.admitted {
		l.logger.Warn("rate limit exceeded",
			"identifier", id.ID,
			"kind", id.Kind,
			"method", req.Method,
			"retry_after", d.retryAfter,
		)
		return nil, &RateLimitExceededError{Identifier: id.ID, Kind: id.Kind, RetryAfter: d.retryAfter}
	}
	return l.execute(ctx, req)
}

func (l *RateLimiter) execute(ctx context.Context, req models.RPCRequest) (*models.RPCResponse, error) {
	resp, err := l.exec.Execute(ctx, req)
	if err != nil {
		l.counters.failed.Add(1)
		return resp, err
	}
	l.counters.successful.Add(1)
	return resp, nil
}

// decision is the outcome of consumeToken.
type decision struct {
	admitted   bool
	evicted    bool
	retryAfter time.Duration
	events     []Event
}

// consumeToken applies the pending refill and then tries, in order, a regular
// token, burst activation and grace admission.
func (l *RateLimiter) consumeToken(st *BucketStatus) decision {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.evicted {
		return decision{evicted: true}
	}

	now := l.clock.Now()
	d := decision{events: refillLocked(st, now, l.cfg.Bucket.Capacity, l.cfg.Burst)}
	b := &st.Bucket
	burstTokens := l.cfg.Burst.BurstCapacity - l.cfg.Bucket.Capacity
	grace := l.cfg.Burst.GracePeriod

	switch {
	case b.Tokens >= 1:
		b.Tokens--

	case l.cfg.Burst.Enabled && !st.InBurst && burstTokens > 0:
		st.InBurst = true
		st.BurstStartedAt = now
		b.Capacity = l.cfg.Burst.BurstCapacity
		b.Tokens = float64(burstTokens - 1)
		l.counters.bursts.Add(1)
		d.events = append(d.events, newEvent(EventBurstActivated, st.Identifier, st.Kind, now, map[string]any{
			"burst_capacity": b.Capacity,
			"tokens":         b.Tokens,
		}))

	case grace > 0 && now.Sub(st.LastRequestAt) > grace:
		// Courtesy admission for a client returning after being idle; the
		// bucket stays empty.

	default:
		st.LimitedCount++
		l.counters.limited.Add(1)
		d.retryAfter = retryAfter(b.Tokens, b.RefillRate, b.RefillInterval)
		d.events = append(d.events, newEvent(EventLimited, st.Identifier, st.Kind, now, map[string]any{
			"retry_after_ms": d.retryAfter.Milliseconds(),
			"tokens":         b.Tokens,
			"limited_count":  st.LimitedCount,
		}))
		if b.Tokens == 0 {
			d.events = append(d.events, newEvent(EventExhausted, st.Identifier, st.Kind, now, map[string]any{
				"capacity": b.Capacity,
			}))
		}
		return d
	}

	st.RequestCount++
	st.LastRequestAt = now
	d.admitted = true
	return d
}

// AddWhitelist lets id bypass the bucket.
func (l *RateLimiter) AddWhitelist(id string) {
	l.access.AddWhitelist(id)
	l.logger.Info("identifier whitelisted", "identifier", id)
}

// RemoveWhitelist reports whether id was whitelisted.
func (l *RateLimiter) RemoveWhitelist(id string) bool {
	removed := l.access.RemoveWhitelist(id)
	if removed {
		l.logger.Info("identifier removed from whitelist", "identifier", id)
	}
	return removed
}

// AddBlacklist blocks id for d (models.DefaultBlacklistDuration when d <= 0)
// and returns the expiry.
func (l *RateLimiter) AddBlacklist(id string, d time.Duration) time.Time {
	until := l.access.AddBlacklist(id, d)
	l.logger.Info("identifier blacklisted", "identifier", id, "expires_at", until)
	return until
}

// RestoreBlacklist blocks id until an absolute expiry. Entries already
// expired are ignored and reported as false.
func (l *RateLimiter) RestoreBlacklist(id string, until time.Time) bool {
	if until.Before(l.clock.Now()) {
		return false
	}
	l.access.AddBlacklistUntil(id, until)
	return true
}

// RemoveBlacklist reports whether id had a blacklist entry.
func (l *RateLimiter) RemoveBlacklist(id string) bool {
	removed := l.access.RemoveBlacklist(id)
	if removed {
		l.logger.Info("identifier removed from blacklist", "identifier", id)
	}
	return removed
}

// BucketStatus returns a read-only view of id's bucket, or false if id has
// none. AvailableTokens includes refill that is due but not yet applied. It
// never mutates limiter state.
func (l *RateLimiter) BucketStatus(id string) (*BucketView, bool) {
	st, ok := l.store.Get(id)
	if !ok {
		return nil, false
	}
	snap := st.Snapshot()
	_, blocked := l.access.Peek(id)
	return &BucketView{
		BucketSnapshot:  snap,
		AvailableTokens: projectTokens(snap, l.clock.Now()),
		IsWhitelisted:   l.access.IsWhitelisted(id),
		IsBlacklisted:   blocked,
	}, true
}

// Headers renders the rate limit headers for the identity behind req. An
// identity without a bucket is reported as a full bucket.
func (l *RateLimiter) Headers(req models.RPCRequest) http.Header {
	now := l.clock.Now()
	id := ResolveIdentifier(req, l.cfg.Tracking)

	var snap BucketSnapshot
	if st, ok := l.store.Get(id.ID); ok {
		snap = st.Snapshot()
		snap.Tokens = projectTokens(snap, now)
	} else {
		snap = BucketSnapshot{
			Identifier:     id.ID,
			Kind:           id.Kind,
			Capacity:       l.cfg.Bucket.Capacity,
			Tokens:         float64(l.cfg.Bucket.Capacity),
			LastRefill:     now,
			RefillRate:     l.cfg.Bucket.RefillRate,
			RefillInterval: l.cfg.Bucket.RefillInterval,
		}
	}

	burst := 0
	if l.cfg.Burst.Enabled {
		burst = l.cfg.Burst.BurstCapacity
	}
	return BuildHeaders(l.cfg.Headers, snap, burst, now)
}

// Metrics returns the current counters and recomputed gauges.
func (l *RateLimiter) Metrics() Metrics {
	return l.counters.snapshot(l.store)
}

// Events returns the retained event history, oldest first.
func (l *RateLimiter) Events() []Event {
	return l.events.Events()
}

// Subscribe registers an observer for every future event.
func (l *RateLimiter) Subscribe(fn func(Event)) func() {
	return l.events.Subscribe(fn)
}

// OnCleanup registers a hook run after every cleanup cycle.
func (l *RateLimiter) OnCleanup(hook CleanupHook) {
	l.cleanup.OnCleanup(hook)
}

// RunRefill performs one refill pass immediately.
func (l *RateLimiter) RunRefill() int {
	return l.refill.Tick()
}

// RunCleanup performs one cleanup cycle immediately.
func (l *RateLimiter) RunCleanup(ctx context.Context) CleanupReport {
	return l.cleanup.Tick(ctx)
}

// AccessListSize returns the number of whitelist and blacklist entries.
func (l *RateLimiter) AccessListSize() (whitelisted, blacklisted int) {
	return l.access.Counts()
}

// Config returns the configuration the limiter was built with.
func (l *RateLimiter) Config() models.LimiterConfig {
	return l.cfg
}
