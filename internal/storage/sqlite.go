package storage

import (
	"context"
	"database/sql"
	"fmt"
	"rpcguard/internal/models"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage implements the Storage interface on an embedded SQLite
// database. The schema is applied with goose on open.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if needed) the database at
// config.ConnectionString and migrates it.
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; a single connection also keeps ":memory:"
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, db, "sqlite3", "sqlite", config.MigrationsTable); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStorage{db: db}, nil
}

func (ss *SQLiteStorage) Whitelist(ctx context.Context) ([]string, error) {
	rows, err := ss.db.QueryContext(ctx, `SELECT identifier FROM whitelist ORDER BY identifier`)
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

func (ss *SQLiteStorage) SaveWhitelist(ctx context.Context, identifier string) error {
	if err := checkIdentifier(identifier); err != nil {
		return err
	}
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO whitelist (identifier, created_at) VALUES (?, ?) ON CONFLICT (identifier) DO NOTHING`,
		identifier, timeToSQLite(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save whitelist entry: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) DeleteWhitelist(ctx context.Context, identifier string) error {
	if _, err := ss.db.ExecContext(ctx, `DELETE FROM whitelist WHERE identifier = ?`, identifier); err != nil {
		return fmt.Errorf("failed to delete whitelist entry: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) Blacklist(ctx context.Context) ([]models.BlacklistEntry, error) {
	rows, err := ss.db.QueryContext(ctx, `SELECT identifier, expires_at FROM blacklist ORDER BY identifier`)
	if err != nil {
		return nil, fmt.Errorf("failed to query blacklist: %w", err)
	}
	defer rows.Close()

	entries := []models.BlacklistEntry{}
	for rows.Next() {
		var entry models.BlacklistEntry
		var expiresAt int64
		if err := rows.Scan(&entry.Identifier, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist row: %w", err)
		}
		entry.ExpiresAt = sqliteToTime(expiresAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (ss *SQLiteStorage) SaveBlacklist(ctx context.Context, entry models.BlacklistEntry) error {
	if err := checkIdentifier(entry.Identifier); err != nil {
		return err
	}
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO blacklist (identifier, expires_at, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (identifier) DO UPDATE SET expires_at = excluded.expires_at`,
		entry.Identifier, timeToSQLite(entry.ExpiresAt), timeToSQLite(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save blacklist entry: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) DeleteBlacklist(ctx context.Context, identifier string) error {
	if _, err := ss.db.ExecContext(ctx, `DELETE FROM blacklist WHERE identifier = ?`, identifier); err != nil {
		return fmt.Errorf("failed to delete blacklist entry: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) PurgeExpiredBlacklist(ctx context.Context, now time.Time) (int, error) {
	res, err := ss.db.ExecContext(ctx, `DELETE FROM blacklist WHERE expires_at < ?`, timeToSQLite(now))
	if err != nil {
		return 0, fmt.Errorf("failed to purge blacklist: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged rows: %w", err)
	}
	return int(n), nil
}

func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}
