package guard

import (
	"context"
	"net/http"
	"rpcguard/internal/models"
)

// ServiceInterface defines the operations the HTTP layer needs from the guard
type ServiceInterface interface {
	// Call admits req through the rate limiter and forwards it upstream
	Call(ctx context.Context, req *models.RPCRequest) (*models.RPCResponse, error)

	// Headers renders the rate limit headers for the identity behind req
	Headers(req models.RPCRequest) http.Header

	// AddWhitelist whitelists id and persists the entry
	AddWhitelist(ctx context.Context, id string) (*models.AccessListResponse, error)

	// RemoveWhitelist removes id from the whitelist
	RemoveWhitelist(ctx context.Context, id string) (*models.AccessListResponse, error)

	// AddBlacklist blocks id for the requested duration and persists the entry
	AddBlacklist(ctx context.Context, id string, req *models.BlacklistRequest) (*models.AccessListResponse, error)

	// RemoveBlacklist lifts a block on id
	RemoveBlacklist(ctx context.Context, id string) (*models.AccessListResponse, error)

	// BucketStatus reports the bucket of a tracked identifier
	BucketStatus(ctx context.Context, id string) (*models.BucketStatusResponse, error)

	// Metrics returns the limiter counters and gauges
	Metrics(ctx context.Context) *models.MetricsResponse

	// Events returns up to limit of the most recent events, oldest first
	Events(ctx context.Context, limit int) *models.EventsResponse

	// Health reports the state of the limiter and the storage backend
	Health(ctx context.Context) *models.HealthCheckResponse
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
