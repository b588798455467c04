package ratelimit

import (
	"context"
	"log/slog"
	"rpcguard/internal/models"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CleanupReport summarizes one cleanup cycle.
type CleanupReport struct {
	At              time.Time
	EvictedUsers    int
	EvictedIPs      int
	PurgedBlacklist []string
	DroppedEvents   int
}

// CleanupHook runs after each cleanup cycle, outside every limiter lock.
type CleanupHook func(ctx context.Context, report CleanupReport)

// CleanupScheduler evicts idle buckets, purges expired blacklist entries and
// truncates the event log.
type CleanupScheduler struct {
	store    *BucketStore
	access   *AccessList
	events   *EventLog
	clock    clockwork.Clock
	tracking models.TrackingConfig
	logger   *slog.Logger

	mu    sync.Mutex
	hooks []CleanupHook
}

func NewCleanupScheduler(store *BucketStore, access *AccessList, events *EventLog, clock clockwork.Clock, tracking models.TrackingConfig, logger *slog.Logger) *CleanupScheduler {
	return &CleanupScheduler{
		store:    store,
		access:   access,
		events:   events,
		clock:    clock,
		tracking: tracking,
		logger:   logger,
	}
}

// OnCleanup registers a hook invoked after every cycle.
func (c *CleanupScheduler) OnCleanup(hook CleanupHook) {
	c.mu.Lock()
	c.hooks = append(c.hooks, hook)
	c.mu.Unlock()
}

// Run ticks every tracking.CleanupInterval until ctx is cancelled.
func (c *CleanupScheduler) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.tracking.CleanupInterval)
	defer ticker.Stop()

	c.logger.Debug("cleanup scheduler started", "interval", c.tracking.CleanupInterval)
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("cleanup scheduler stopped")
			return
		case <-ticker.Chan():
			c.Tick(ctx)
		}
	}
}

// Tick runs one cleanup cycle.
func (c *CleanupScheduler) Tick(ctx context.Context) CleanupReport {
	now := c.clock.Now()
	report := CleanupReport{At: now}

	c.store.Range(func(st *BucketStatus) bool {
		ttl := c.ttl(st.Kind)
		if ttl <= 0 {
			return true
		}
		idle := func(s *BucketStatus) bool { return now.Sub(s.LastRequestAt) > ttl }
		if c.store.deleteIf(st, idle) {
			switch st.Kind {
			case KindUser:
				report.EvictedUsers++
			case KindIP:
				report.EvictedIPs++
			}
		}
		return true
	})

	report.PurgedBlacklist = c.access.PurgeExpired(now)
	report.DroppedEvents = c.events.Truncate(c.tracking.MaxEvents)

	if report.EvictedUsers+report.EvictedIPs+len(report.PurgedBlacklist)+report.DroppedEvents > 0 {
		c.logger.Info("rate limiter cleanup",
			"evicted_users", report.EvictedUsers,
			"evicted_ips", report.EvictedIPs,
			"purged_blacklist", len(report.PurgedBlacklist),
			"dropped_events", report.DroppedEvents,
		)
	}

	c.mu.Lock()
	hooks := append([]CleanupHook(nil), c.hooks...)
	c.mu.Unlock()
	for _, hook := range hooks {
		hook(ctx, report)
	}
	return report
}

func (c *CleanupScheduler) ttl(kind Kind) time.Duration {
	switch kind {
	case KindUser:
		return c.tracking.UserTTL
	case KindIP:
		return c.tracking.IPTTL
	default:
		return 0
	}
}
