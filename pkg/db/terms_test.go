package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgraph/coursesync/pkg/model"
)

func TestTermStore_UpsertAndLoadTermsRoundTrip(t *testing.T) {
	pool := newTestPool(t)
	store := NewTermStore(pool)

	terms := []model.Term{
		{Code: "202620", Description: "Fall 2026", IsEnabledForScraping: true},
		{Code: "202510", Description: "Spring 2025", IsArchived: true},
	}
	require.NoError(t, store.UpsertTerms(context.Background(), terms))

	loaded, err := store.LoadTerms(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	byCode := make(map[string]model.Term, len(loaded))
	for _, t := range loaded {
		byCode[t.Code] = t
	}
	assert.Equal(t, "Fall 2026", byCode["202620"].Description)
	assert.True(t, byCode["202510"].IsArchived)
}

func TestTermStore_CachedSubjectsEmptyWhenNeverCached(t *testing.T) {
	pool := newTestPool(t)
	store := NewTermStore(pool)

	subjects, err := store.CachedSubjects(context.Background(), "202620")
	require.NoError(t, err)
	assert.Empty(t, subjects)
}

func TestTermStore_CacheSubjectsThenCachedSubjectsRoundTrips(t *testing.T) {
	pool := newTestPool(t)
	store := NewTermStore(pool)
	require.NoError(t, store.UpsertTerms(context.Background(), []model.Term{{Code: "202620"}}))

	require.NoError(t, store.CacheSubjects(context.Background(), "202620", []string{"MA", "CS"}))

	subjects, err := store.CachedSubjects(context.Background(), "202620")
	require.NoError(t, err)
	assert.Equal(t, []string{"CS", "MA"}, subjects)
}

func TestTermStore_CacheSubjectsReplacesPreviousList(t *testing.T) {
	pool := newTestPool(t)
	store := NewTermStore(pool)
	ctx := context.Background()
	require.NoError(t, store.UpsertTerms(ctx, []model.Term{{Code: "202620"}}))

	require.NoError(t, store.CacheSubjects(ctx, "202620", []string{"CS", "MA"}))
	require.NoError(t, store.CacheSubjects(ctx, "202620", []string{"PHYS"}))

	subjects, err := store.CachedSubjects(ctx, "202620")
	require.NoError(t, err)
	assert.Equal(t, []string{"PHYS"}, subjects)
}

func TestTermStore_CacheSubjectsEmptyListIsNoop(t *testing.T) {
	pool := newTestPool(t)
	store := NewTermStore(pool)
	ctx := context.Background()
	require.NoError(t, store.UpsertTerms(ctx, []model.Term{{Code: "202620"}}))
	require.NoError(t, store.CacheSubjects(ctx, "202620", []string{"CS"}))

	require.NoError(t, store.CacheSubjects(ctx, "202620", nil))

	subjects, err := store.CachedSubjects(ctx, "202620")
	require.NoError(t, err)
	assert.Equal(t, []string{"CS"}, subjects, "an empty list must not wipe a previously cached one")
}
