package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{
		Driver: DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	m := NewMigrator(db, zap.NewNop())
	require.NoError(t, m.RunMigrations(ctx))
	require.NoError(t, m.RunMigrations(ctx))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)

	for _, table := range []string{"employees", "attendance", "claim_history", "claim_members", "extracted_bills", "claim_status_history"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestLoadMigrations_SortedForEachDriver(t *testing.T) {
	for _, driver := range []string{DriverSQLite, DriverMySQL} {
		t.Run(driver, func(t *testing.T) {
			m := NewMigrator(&DB{driver: driver, logger: zap.NewNop()}, zap.NewNop())
			migrations, err := m.loadMigrations()
			require.NoError(t, err)
			require.Len(t, migrations, 2)
			assert.Equal(t, 1, migrations[0].Version)
			assert.Equal(t, "initial_schema", migrations[0].Name)
			assert.Equal(t, 2, migrations[1].Version)
		})
	}
}

func TestWithTransaction(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, "CREATE TABLE items (name TEXT PRIMARY KEY)")
	require.NoError(t, err)

	countItems := func() int {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&n))
		return n
	}

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTransaction(ctx, func(txCtx context.Context) error {
			_, err := ExecutorFrom(txCtx, db.DB).ExecContext(txCtx, "INSERT INTO items (name) VALUES ('a')")
			require.NoError(t, err)
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, countItems())
	})

	t.Run("nested calls share the outer transaction", func(t *testing.T) {
		err := db.WithTransaction(ctx, func(outer context.Context) error {
			outerTx := TxFromContext(outer)
			return db.WithTransaction(outer, func(inner context.Context) error {
				assert.Same(t, outerTx, TxFromContext(inner))
				_, err := ExecutorFrom(inner, db.DB).ExecContext(inner, "INSERT INTO items (name) VALUES ('b')")
				return err
			})
		})
		require.NoError(t, err)
		assert.Equal(t, 1, countItems())
	})

	t.Run("unique violation is detected", func(t *testing.T) {
		_, err := db.ExecContext(ctx, "INSERT INTO items (name) VALUES ('b')")
		require.Error(t, err)
		assert.True(t, IsUniqueViolation(err))
		assert.False(t, IsUniqueViolation(errors.New("other")))
	})
}

func TestBuildDSN(t *testing.T) {
	dsn, err := buildDSN(DriverSQLite, Config{Path: "data/claims.db"})
	require.NoError(t, err)
	assert.Contains(t, dsn, "file:data/claims.db")
	assert.Contains(t, dsn, "_foreign_keys=on")

	dsn, err = buildDSN(DriverMySQL, Config{DSN: "user:pass@tcp(localhost:3306)/claims"})
	require.NoError(t, err)
	assert.Contains(t, dsn, "multiStatements=true")

	_, err = buildDSN(DriverSQLite, Config{})
	assert.Error(t, err)

	_, err = buildDSN("postgres", Config{})
	assert.Error(t, err)
}
