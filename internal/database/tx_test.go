package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selenly/selenly-api/internal/database"
	"github.com/selenly/selenly-api/internal/database/databasetest"
)

const insertUser = `INSERT INTO users (email, hashed_password, created_at) VALUES (?, 'x', CURRENT_TIMESTAMP)`

func countUsers(t *testing.T, db database.DBTX) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM users`).Scan(&n))
	return n
}

func TestWithTx_Commit(t *testing.T) {
	db := databasetest.Open(t)

	err := database.WithTx(context.Background(), db, nil, func(ctx context.Context, tx database.DBTX) error {
		_, err := tx.ExecContext(ctx, insertUser, "a@b.com")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countUsers(t, db))
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := databasetest.Open(t)
	boom := errors.New("boom")

	err := database.WithTx(context.Background(), db, nil, func(ctx context.Context, tx database.DBTX) error {
		if _, err := tx.ExecContext(ctx, insertUser, "a@b.com"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countUsers(t, db))
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := databasetest.Open(t)

	assert.Panics(t, func() {
		_ = database.WithTx(context.Background(), db, nil, func(ctx context.Context, tx database.DBTX) error {
			_, _ = tx.ExecContext(ctx, insertUser, "a@b.com")
			panic("kaboom")
		})
	})
	assert.Equal(t, 0, countUsers(t, db))
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := databasetest.Open(t)
	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))
}

func TestMigrate_UnknownDriver(t *testing.T) {
	db := databasetest.Open(t)
	assert.Error(t, database.Migrate(context.Background(), db, "postgres"))
}

func TestTxOptions(t *testing.T) {
	assert.Nil(t, database.TxOptions(database.DriverSQLite))
	require.NotNil(t, database.TxOptions(database.DriverMySQL))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := database.Open("oracle", "whatever")
	assert.Error(t, err)
}
