package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgraph/coursesync/pkg/model"
)

func TestRatingSiteStore_ReplaceProfilesUpsertsAndStampsRefresh(t *testing.T) {
	pool := newTestPool(t)
	store := NewRatingSiteStore(pool)
	ctx := context.Background()

	profile := model.RatingProfile{
		LegacyID: 1, FirstName: "Ada", LastName: "Lovelace", Department: "CS",
		AvgRating: 4.2, AvgDifficulty: 2.1, NumRatings: 12, WouldTakeAgainPct: 80,
		CoursePrefixes: []string{"CS"}, RefreshCadenceDays: 14,
	}
	require.NoError(t, store.ReplaceProfiles(ctx, []model.RatingProfile{profile}))

	due, err := store.ProfilesDueForReviewRefresh(ctx)
	require.NoError(t, err)
	require.Len(t, due, 0, "a just-refreshed profile is not yet due")

	updated := profile
	updated.NumRatings = 20
	require.NoError(t, store.ReplaceProfiles(ctx, []model.RatingProfile{updated}))

	var numRatings int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT num_ratings FROM rating_profiles WHERE legacy_id = 1`).Scan(&numRatings))
	assert.Equal(t, 20, numRatings)
}

func TestRatingSiteStore_ReplaceProfilesEmptyInputIsNoop(t *testing.T) {
	pool := newTestPool(t)
	store := NewRatingSiteStore(pool)

	require.NoError(t, store.ReplaceProfiles(context.Background(), nil))
}

func TestRatingSiteStore_ProfilesDueForReviewRefreshIncludesNeverRefreshed(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	_, err := pool.Exec(ctx, `
		INSERT INTO rating_profiles (legacy_id, first_name, last_name, refresh_cadence_days)
		VALUES (2, 'Grace', 'Hopper', 14)
	`)
	require.NoError(t, err)

	store := NewRatingSiteStore(pool)
	due, err := store.ProfilesDueForReviewRefresh(ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, int32(2), due[0].LegacyID)
}
