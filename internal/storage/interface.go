package storage

import (
	"context"
	"rpcguard/internal/models"
	"time"
)

// Storage persists the access lists so that whitelist and blacklist entries
// survive restarts. Bucket state is never persisted. Implementations must be
// safe for concurrent use.
type Storage interface {
	// Whitelist returns every whitelisted identifier
	Whitelist(ctx context.Context) ([]string, error)

	// SaveWhitelist adds an identifier; saving an existing one is a no-op
	SaveWhitelist(ctx context.Context, identifier string) error

	// DeleteWhitelist removes an identifier; deleting a missing one is a no-op
	DeleteWhitelist(ctx context.Context, identifier string) error

	// Blacklist returns every stored blacklist entry, expired or not
	Blacklist(ctx context.Context) ([]models.BlacklistEntry, error)

	// SaveBlacklist stores or replaces the entry for entry.Identifier
	SaveBlacklist(ctx context.Context, entry models.BlacklistEntry) error

	// DeleteBlacklist removes an identifier; deleting a missing one is a no-op
	DeleteBlacklist(ctx context.Context, identifier string) error

	// PurgeExpiredBlacklist deletes entries that expired before now and
	// returns how many were removed
	PurgeExpiredBlacklist(ctx context.Context, now time.Time) (int, error)

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close releases connections and other resources
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// MaxOpenConns and ConnMaxLifetime tune database connection pools
	MaxOpenConns    int           `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"`

	// MigrationsTable is the goose version table name
	MigrationsTable string `json:"migrations_table,omitempty" yaml:"migrations_table,omitempty"`

	// Redis connection settings
	RedisAddr      string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisPassword  string `json:"-" yaml:"-"`
	RedisDB        int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
	RedisPoolSize  int    `json:"redis_pool_size,omitempty" yaml:"redis_pool_size,omitempty"`
	RedisKeyPrefix string `json:"redis_key_prefix,omitempty" yaml:"redis_key_prefix,omitempty"`
}
