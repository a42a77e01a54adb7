package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), name+".db"), Name: name})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "catalog.db")
	db, err := New(Config{Path: path, Name: "catalog"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path())
	assert.Equal(t, "catalog", db.Name())
	assert.NoError(t, db.QuickCheck(context.Background()))
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := newTestDB(t, "catalog")

	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate())

	var count int
	err := db.Conn().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='qpus'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db := newTestDB(t, "scratch")
	assert.NoError(t, db.Migrate())
}

func TestWithTransaction(t *testing.T) {
	db := newTestDB(t, "scratch")
	_, err := db.Conn().Exec("CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)")
	require.NoError(t, err)

	count := func() int {
		var n int
		require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM kv").Scan(&n))
		return n
	}

	t.Run("commits on success", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			_, err := tx.Exec("INSERT INTO kv VALUES ('a', '1')")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			if _, err := tx.Exec("INSERT INTO kv VALUES ('b', '2')"); err != nil {
				return err
			}
			return boom
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
		assert.Equal(t, 1, count())
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			_, _ = tx.Exec("INSERT INTO kv VALUES ('c', '3')")
			panic("unexpected")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic in transaction")
		assert.Equal(t, 1, count())
	})

	t.Run("nil connection", func(t *testing.T) {
		assert.Error(t, WithTransaction(nil, func(*sql.Tx) error { return nil }))
	})
}

func TestGetStats(t *testing.T) {
	db := newTestDB(t, "catalog")
	require.NoError(t, db.Migrate())

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.PageSize, int64(0))
}

func TestIntegrityCheck(t *testing.T) {
	db := newTestDB(t, "catalog")
	require.NoError(t, db.Migrate())
	assert.NoError(t, db.IntegrityCheck(context.Background()))
}
