package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

const defaultMigrationsTable = "rpcguard_migrations"

// goose keeps dialect, table name and base FS in package globals.
var gooseMu sync.Mutex

// migrate applies the embedded migrations for dialect ("sqlite3" or
// "postgres") from migrations/<dir>.
func migrate(ctx context.Context, db *sql.DB, dialect, dir, table string) error {
	if table == "" {
		table = defaultMigrationsTable
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseSlogAdapter{log: slog.Default()})
	goose.SetTableName(table)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations/"+dir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// gooseSlogAdapter routes goose's Printf-style logging through slog.
type gooseSlogAdapter struct {
	log *slog.Logger
}

func (a gooseSlogAdapter) Fatalf(format string, v ...any) {
	a.log.Error(fmt.Sprintf(format, v...), "component", "migrations")
}

func (a gooseSlogAdapter) Printf(format string, v ...any) {
	a.log.Debug(fmt.Sprintf(format, v...), "component", "migrations")
}
