package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/itchan-dev/itforum/backend/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newSQLite(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "itforum.sqlite"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.IndexStore { return newSQLite(t) })
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newSQLite(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestWindow(t *testing.T) {
	s := &Store{dialect: sqlite}

	clause, args, ok := s.window(0, -1)
	require.True(t, ok)
	assert.Equal(t, " LIMIT -1 OFFSET ?", clause)
	assert.Equal(t, []any{0}, args)

	clause, args, ok = s.window(20, 39)
	require.True(t, ok)
	assert.Equal(t, " LIMIT ? OFFSET ?", clause)
	assert.Equal(t, []any{20, 20}, args)

	_, _, ok = s.window(5, 4)
	assert.False(t, ok)

	pg := &Store{dialect: postgres}
	clause, _, ok = pg.window(3, -1)
	require.True(t, ok)
	assert.Equal(t, " OFFSET ?", clause)
}

func TestPostgresContract(t *testing.T) {
	if testing.Short() {
		t.Skip("postgres container test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:15.3-alpine",
		tcpostgres.WithDatabase("itforum"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			// the server restarts once after init
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	s, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))

	// the suite namespaces its keys per subtest, so one database is enough
	storetest.Run(t, func(t *testing.T) store.IndexStore { return s })
}
