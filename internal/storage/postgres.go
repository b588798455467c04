package storage

import (
	"context"
	"fmt"
	"rpcguard/internal/models"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// PostgresStorage implements the Storage interface using PostgreSQL through a
// pgx connection pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a new PostgreSQL storage instance and applies
// pending migrations.
func NewPostgresStorage(config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// goose needs database/sql; the bridge shares the pool's connections.
	db := stdlib.OpenDBFromPool(pool)
	err = migrate(ctx, db, "postgres", "postgres", config.MigrationsTable)
	db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStorage{pool: pool}, nil
}

func (ps *PostgresStorage) Whitelist(ctx context.Context) ([]string, error) {
	rows, err := ps.pool.Query(ctx, `SELECT identifier FROM whitelist ORDER BY identifier`)
	if err != nil {
		return nil, fmt.Errorf("failed to query whitelist: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan whitelist row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (ps *PostgresStorage) SaveWhitelist(ctx context.Context, identifier string) error {
	if err := checkIdentifier(identifier); err != nil {
		return err
	}
	_, err := ps.pool.Exec(ctx,
		`INSERT INTO whitelist (identifier) VALUES ($1) ON CONFLICT (identifier) DO NOTHING`,
		identifier,
	)
	if err != nil {
		return fmt.Errorf("failed to save whitelist entry: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) DeleteWhitelist(ctx context.Context, identifier string) error {
	if _, err := ps.pool.Exec(ctx, `DELETE FROM whitelist WHERE identifier = $1`, identifier); err != nil {
		return fmt.Errorf("failed to delete whitelist entry %s: %w", identifier, err)
	}
	return nil
}

func (ps *PostgresStorage) Blacklist(ctx context.Context) ([]models.BlacklistEntry, error) {
	rows, err := ps.pool.Query(ctx, `SELECT identifier, expires_at FROM blacklist ORDER BY identifier`)
	if err != nil {
		return nil, fmt.Errorf("failed to query blacklist: %w", err)
	}
	defer rows.Close()

	entries := []models.BlacklistEntry{}
	for rows.Next() {
		var entry models.BlacklistEntry
		if err := rows.Scan(&entry.Identifier, &entry.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist row: %w", err)
		}
		entry.ExpiresAt = entry.ExpiresAt.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (ps *PostgresStorage) SaveBlacklist(ctx context.Context, entry models.BlacklistEntry) error {
	if err := checkIdentifier(entry.Identifier); err != nil {
		return err
	}
	_, err := ps.pool.Exec(ctx,
		`INSERT INTO blacklist (identifier, expires_at) VALUES ($1, $2)
		 ON CONFLICT (identifier) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		entry.Identifier, entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save blacklist entry: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) DeleteBlacklist(ctx context.Context, identifier string) error {
	if _, err := ps.pool.Exec(ctx, `DELETE FROM blacklist WHERE identifier = $1`, identifier); err != nil {
		return fmt.Errorf("failed to delete blacklist entry %s: %w", identifier, err)
	}
	return nil
}

func (ps *PostgresStorage) PurgeExpiredBlacklist(ctx context.Context, now time.Time) (int, error) {
	tag, err := ps.pool.Exec(ctx, `DELETE FROM blacklist WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge blacklist: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}
