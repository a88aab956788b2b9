package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgraph/coursesync/pkg/refcache"
)

func TestReferenceStore_UpsertReferenceDataThenLoaderRoundTrips(t *testing.T) {
	pool := newTestPool(t)
	store := NewReferenceStore(pool)
	ctx := context.Background()

	require.NoError(t, store.UpsertReferenceData(ctx, []refcache.Row{
		{Category: "campus", Code: "MAIN", Description: "Main Campus"},
	}))

	loader := ReferenceLoader(pool)
	rows, err := loader(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Main Campus", rows[0].Description)
}

func TestReferenceStore_UpsertReferenceDataOverwritesOnConflict(t *testing.T) {
	pool := newTestPool(t)
	store := NewReferenceStore(pool)
	ctx := context.Background()

	require.NoError(t, store.UpsertReferenceData(ctx, []refcache.Row{
		{Category: "campus", Code: "MAIN", Description: "stale"},
	}))
	require.NoError(t, store.UpsertReferenceData(ctx, []refcache.Row{
		{Category: "campus", Code: "MAIN", Description: "fresh"},
	}))

	rows, err := ReferenceLoader(pool)(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "fresh", rows[0].Description)
}

func TestReferenceStore_UpsertReferenceDataEmptyInputIsNoop(t *testing.T) {
	pool := newTestPool(t)
	store := NewReferenceStore(pool)

	require.NoError(t, store.UpsertReferenceData(context.Background(), nil))
}

func TestReferenceLoader_EmptyTableReturnsNoRows(t *testing.T) {
	pool := newTestPool(t)
	rows, err := ReferenceLoader(pool)(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}
