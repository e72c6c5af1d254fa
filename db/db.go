// Package db holds the embedded schema migrations, one directory per dialect.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations
var Migrations embed.FS

const migrationsTable = "schema_migrations"

// dialects maps the configured driver to goose's dialect and migration directory.
var dialects = map[string]struct {
	goose string
	dir   string
}{
	"postgres":  {goose: "postgres", dir: "migrations/postgres"},
	"sqlserver": {goose: "mssql", dir: "migrations/sqlserver"},
	"sqlite":    {goose: "sqlite3", dir: "migrations/sqlite"},
}

// Migrate applies every pending migration, or rolls back the latest one.
func Migrate(ctx context.Context, conn *sql.DB, driver string, rollback bool) error {
	d, ok := dialects[driver]
	if !ok {
		return fmt.Errorf("no migrations for driver %q", driver)
	}

	goose.SetBaseFS(Migrations)
	goose.SetTableName(migrationsTable)
	if err := goose.SetDialect(d.goose); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	if rollback {
		if err := goose.DownContext(ctx, conn, d.dir); err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
		return nil
	}
	if err := goose.UpContext(ctx, conn, d.dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
