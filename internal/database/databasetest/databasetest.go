// Package databasetest opens throwaway SQLite databases with the production
// schema applied, for tests of packages that talk to the store.
package databasetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/selenly/selenly-api/internal/database"
)

// Open returns a migrated SQLite database living in t.TempDir. It is closed
// when the test finishes.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth.db")
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"

	db, err := database.Open(database.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))
	return db
}
