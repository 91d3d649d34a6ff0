//go:build integration

package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/floodrescue/test/util"
)

func TestPostgresStoreContract(t *testing.T) {
	ctx := context.Background()
	dsn, cleanup, err := util.StartPostgres(ctx)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	defer cleanup()

	runContract(t, func(t *testing.T) *Store {
		s, err := Open(ctx, "postgres", dsn)
		require.NoError(t, err)
		s.now = steppingClock()
		_, err = s.db.ExecContext(ctx, `TRUNCATE tickets, rescuers`)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
