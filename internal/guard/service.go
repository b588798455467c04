// Package guard is the application service in front of the rate limiter. It
// validates incoming calls, keeps the persisted access lists in step with the
// in-memory ones and translates limiter rejections into HTTP-aware errors.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"rpcguard/internal/models"
	"rpcguard/internal/ratelimit"
	"rpcguard/internal/storage"
	"rpcguard/internal/upstream"
	"rpcguard/internal/version"
	"strings"
	"time"
)

const (
	listWhitelist = "whitelist"
	listBlacklist = "blacklist"

	actionAdded   = "added"
	actionRemoved = "removed"
)

// Service composes the rate limiter with access-list storage
type Service struct {
	limiter *ratelimit.RateLimiter
	storage storage.Storage
	logger  *slog.Logger
}

// NewService creates a guard service and registers a cleanup hook that
// purges expired blacklist rows from storage.
func NewService(limiter *ratelimit.RateLimiter, store storage.Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		limiter: limiter,
		storage: store,
		logger:  logger,
	}
	limiter.OnCleanup(s.purgeStorage)
	return s
}

// Restore loads the persisted access lists into the limiter. Blacklist
// entries that have already expired are skipped.
func (s *Service) Restore(ctx context.Context) (whitelisted, blacklisted int, err error) {
	ids, err := s.storage.Whitelist(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load whitelist: %w", err)
	}
	for _, id := range ids {
		s.limiter.AddWhitelist(id)
		whitelisted++
	}

	entries, err := s.storage.Blacklist(ctx)
	if err != nil {
		return whitelisted, 0, fmt.Errorf("failed to load blacklist: %w", err)
	}
	for _, entry := range entries {
		if s.limiter.RestoreBlacklist(entry.Identifier, entry.ExpiresAt) {
			blacklisted++
		}
	}

	s.logger.Info("access lists restored",
		"whitelisted", whitelisted,
		"blacklisted", blacklisted,
		"skipped_expired", len(entries)-blacklisted,
	)
	return whitelisted, blacklisted, nil
}

// Call validates req and runs it through the limiter. A JSON-RPC error from
// the upstream is returned in the response, other executor failures as an
// upstream ServiceError.
func (s *Service) Call(ctx context.Context, req *models.RPCRequest) (*models.RPCResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, NewInvalidRequestError("invalid request", err)
	}
	req.Normalize()

	resp, err := s.limiter.Call(ctx, *req)
	if err != nil {
		// An RPC-level error is the upstream's answer, not a gateway failure.
		var rpcErr *upstream.RPCError
		if errors.As(err, &rpcErr) {
			s.logger.Debug("upstream returned rpc error",
				"method", req.Method,
				"code", rpcErr.Code,
				"message", rpcErr.Message,
			)
			return rpcErr.Response(), nil
		}
		return nil, callError(err)
	}
	return resp, nil
}

// Headers renders the rate limit headers for the identity behind req
func (s *Service) Headers(req models.RPCRequest) http.Header {
	req.Normalize()
	return s.limiter.Headers(req)
}

// AddWhitelist whitelists id in the limiter and then persists it
func (s *Service) AddWhitelist(ctx context.Context, id string) (*models.AccessListResponse, error) {
	id, err := normalizeIdentifier(id)
	if err != nil {
		return nil, err
	}

	s.limiter.AddWhitelist(id)
	if err := s.storage.SaveWhitelist(ctx, id); err != nil {
		return nil, NewInternalError("failed to persist whitelist entry", err)
	}

	return &models.AccessListResponse{Identifier: id, List: listWhitelist, Action: actionAdded}, nil
}

// RemoveWhitelist removes id from the limiter and storage
func (s *Service) RemoveWhitelist(ctx context.Context, id string) (*models.AccessListResponse, error) {
	id, err := normalizeIdentifier(id)
	if err != nil {
		return nil, err
	}

	removed := s.limiter.RemoveWhitelist(id)
	if err := s.storage.DeleteWhitelist(ctx, id); err != nil {
		return nil, NewInternalError("failed to delete whitelist entry", err)
	}
	if !removed {
		return nil, NewNotFoundError(fmt.Sprintf("identifier '%s' is not whitelisted", id))
	}

	return &models.AccessListResponse{Identifier: id, List: listWhitelist, Action: actionRemoved}, nil
}

// AddBlacklist blocks id and persists the absolute expiry. A nil req uses
// models.DefaultBlacklistDuration.
func (s *Service) AddBlacklist(ctx context.Context, id string, req *models.BlacklistRequest) (*models.AccessListResponse, error) {
	id, err := normalizeIdentifier(id)
	if err != nil {
		return nil, err
	}
	duration, err := req.ParseDuration()
	if err != nil {
		return nil, NewInvalidRequestError("invalid blacklist duration", err)
	}

	until := s.limiter.AddBlacklist(id, duration)
	entry := models.BlacklistEntry{Identifier: id, ExpiresAt: until}
	if err := s.storage.SaveBlacklist(ctx, entry); err != nil {
		return nil, NewInternalError("failed to persist blacklist entry", err)
	}

	return &models.AccessListResponse{Identifier: id, List: listBlacklist, Action: actionAdded, ExpiresAt: &until}, nil
}

// RemoveBlacklist lifts the block on id in the limiter and storage
func (s *Service) RemoveBlacklist(ctx context.Context, id string) (*models.AccessListResponse, error) {
	id, err := normalizeIdentifier(id)
	if err != nil {
		return nil, err
	}

	removed := s.limiter.RemoveBlacklist(id)
	if err := s.storage.DeleteBlacklist(ctx, id); err != nil {
		return nil, NewInternalError("failed to delete blacklist entry", err)
	}
	if !removed {
		return nil, NewNotFoundError(fmt.Sprintf("identifier '%s' is not blacklisted", id))
	}

	return &models.AccessListResponse{Identifier: id, List: listBlacklist, Action: actionRemoved}, nil
}

// BucketStatus reports the bucket of a tracked identifier
func (s *Service) BucketStatus(ctx context.Context, id string) (*models.BucketStatusResponse, error) {
	id, err := normalizeIdentifier(id)
	if err != nil {
		return nil, err
	}

	view, ok := s.limiter.BucketStatus(id)
	if !ok {
		return nil, NewNotFoundError(fmt.Sprintf("no bucket for identifier '%s'", id))
	}

	return &models.BucketStatusResponse{
		Identifier:      view.Identifier,
		Kind:            string(view.Kind),
		AvailableTokens: view.AvailableTokens,
		Capacity:        view.Capacity,
		InBurst:         view.InBurst,
		RequestCount:    view.RequestCount,
		LimitedCount:    view.LimitedCount,
		IsWhitelisted:   view.IsWhitelisted,
		IsBlacklisted:   view.IsBlacklisted,
	}, nil
}

// Metrics returns the limiter counters and gauges
func (s *Service) Metrics(ctx context.Context) *models.MetricsResponse {
	m := s.limiter.Metrics()
	return &models.MetricsResponse{
		TotalRequests:      m.TotalRequests,
		LimitedRequests:    m.LimitedRequests,
		SuccessfulRequests: m.SuccessfulRequests,
		FailedRequests:     m.FailedRequests,
		BurstActivations:   m.BurstActivations,
		BlacklistHits:      m.BlacklistHits,
		AnonymousRequests:  m.AnonymousRequests,
		ActiveUsers:        m.ActiveUsers,
		ActiveIPs:          m.ActiveIPs,
		AverageTokensUsed:  m.AverageTokensUsed,
	}
}

// Events returns the most recent events, oldest first. A limit <= 0 returns
// every retained event.
func (s *Service) Events(ctx context.Context, limit int) *models.EventsResponse {
	events := s.limiter.Events()
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}

	out := make([]models.EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, models.EventResponse{
			ID:         e.ID,
			Type:       string(e.Type),
			Identifier: e.Identifier,
			Kind:       string(e.Kind),
			Timestamp:  e.Timestamp,
			Details:    e.Details,
		})
	}
	return &models.EventsResponse{Events: out, Count: len(out)}
}

// Health reports storage reachability together with limiter gauges. A
// storage failure degrades the service; admission keeps working without it.
func (s *Service) Health(ctx context.Context) *models.HealthCheckResponse {
	health := models.NewHealthCheckResponse(models.StatusHealthy)
	health.Version = version.GetInfo().Version

	if err := s.storage.Ping(ctx); err != nil {
		health.Status = models.StatusDegraded
		health.AddComponent("storage", models.StatusUnhealthy, err.Error())
	} else {
		health.AddComponent("storage", models.StatusHealthy, "")
	}
	health.AddComponent("limiter", models.StatusHealthy, "")

	m := s.limiter.Metrics()
	whitelisted, blacklisted := s.limiter.AccessListSize()
	health.AddMetric("active_users", m.ActiveUsers)
	health.AddMetric("active_ips", m.ActiveIPs)
	health.AddMetric("whitelisted", whitelisted)
	health.AddMetric("blacklisted", blacklisted)
	return health
}

// purgeStorage removes persisted blacklist rows that expired before the
// cleanup cycle ran.
func (s *Service) purgeStorage(ctx context.Context, report ratelimit.CleanupReport) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := s.storage.PurgeExpiredBlacklist(ctx, report.At)
	if err != nil {
		s.logger.Error("failed to purge expired blacklist entries", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("purged expired blacklist entries from storage", "count", n)
	}
}

func normalizeIdentifier(id string) (string, error) {
	if err := models.ValidateIdentifier(id); err != nil {
		return "", NewInvalidRequestError("invalid identifier", err)
	}
	return strings.TrimSpace(id), nil
}
