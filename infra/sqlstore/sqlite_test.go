package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rescue.db")
	s, err := Open(context.Background(), "sqlite", path)
	require.NoError(t, err)
	s.now = steppingClock()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreContract(t *testing.T) {
	runContract(t, openSQLite)
}

func TestSQLiteMigrateIsIdempotent(t *testing.T) {
	s := openSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestDialectByName(t *testing.T) {
	d, err := DialectByName("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)
	d, err = DialectByName("sqlite")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)
	_, err = DialectByName("mysql")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := `UPDATE t SET a = ? WHERE id = ? AND status = ?`
	assert.Equal(t, q, SQLite.rebind(q))
	assert.Equal(t, `UPDATE t SET a = $1 WHERE id = $2 AND status = $3`, Postgres.rebind(q))
}
