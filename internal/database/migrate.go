package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/mysql/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Migrate applies the embedded schema migrations for driver.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var dialect string
	switch driver {
	case DriverMySQL:
		dialect = "mysql"
	case DriverSQLite:
		dialect = "sqlite3"
	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUp(ctx, db, "migrations/"+driver); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
