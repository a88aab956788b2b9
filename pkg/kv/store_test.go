package kv

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/campusgraph/coursesync/pkg/db"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("coursesync_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(pool))
	return pool
}

func TestStore_GetUnsetKeyReturnsFalse(t *testing.T) {
	store := New(newTestPool(t))
	_, ok, err := store.Get(context.Background(), "unset.key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SetThenGetRoundTrips(t *testing.T) {
	store := New(newTestPool(t))
	require.NoError(t, store.Set(context.Background(), KeyRefScrape, "hello"))

	got, ok, err := store.Get(context.Background(), KeyRefScrape)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", got)
}

func TestStore_SetOverwritesExistingValue(t *testing.T) {
	store := New(newTestPool(t))
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, KeyRefScrape, "first"))
	require.NoError(t, store.Set(ctx, KeyRefScrape, "second"))

	got, ok, err := store.Get(ctx, KeyRefScrape)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", got)
}

func TestStore_TimestampRoundTrip(t *testing.T) {
	store := New(newTestPool(t))
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, store.SetTimestamp(ctx, KeyTermSync, ts))

	got, ok, err := store.GetTimestamp(ctx, KeyTermSync)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ts.Equal(got))
}

func TestStore_GetTimestampCorruptValueLooksLikeNeverRan(t *testing.T) {
	store := New(newTestPool(t))
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, KeyBluebook, "not-a-timestamp"))

	_, ok, err := store.GetTimestamp(ctx, KeyBluebook)
	require.NoError(t, err)
	assert.False(t, ok)
}
