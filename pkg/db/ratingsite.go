package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgraph/coursesync/pkg/model"
)

// RatingSiteStore implements ratingsite.Store against rating_profiles.
type RatingSiteStore struct {
	pool *pgxpool.Pool
}

// NewRatingSiteStore wraps a pool.
func NewRatingSiteStore(pool *pgxpool.Pool) *RatingSiteStore {
	return &RatingSiteStore{pool: pool}
}

// ReplaceProfiles upserts every profile, then stamps reviews_refreshed_at
// for every profile present in this batch (a full directory sync always
// also refetches course prefixes, which is as close as a profile gets to a
// review refresh outside its own cadence window).
func (s *RatingSiteStore) ReplaceProfiles(ctx context.Context, profiles []model.RatingProfile) error {
	if len(profiles) == 0 {
		return nil
	}
	n := len(profiles)
	legacyIDs := make([]int32, n)
	firstNames := make([]string, n)
	lastNames := make([]string, n)
	departments := make([]string, n)
	avgRatings := make([]float64, n)
	avgDifficulties := make([]float64, n)
	numRatings := make([]int, n)
	wouldTakeAgain := make([]float64, n)
	prefixesArr := make([][]byte, n)
	cadences := make([]int, n)

	for i, p := range profiles {
		legacyIDs[i] = p.LegacyID
		firstNames[i] = p.FirstName
		lastNames[i] = p.LastName
		departments[i] = p.Department
		avgRatings[i] = p.AvgRating
		avgDifficulties[i] = p.AvgDifficulty
		numRatings[i] = p.NumRatings
		wouldTakeAgain[i] = p.WouldTakeAgainPct
		raw, err := encodeStrings(p.CoursePrefixes)
		if err != nil {
			return fmt.Errorf("encoding course prefixes for profile %d: %w", p.LegacyID, err)
		}
		prefixesArr[i] = raw
		cadences[i] = p.RefreshCadenceDays
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO rating_profiles (
			legacy_id, first_name, last_name, department, avg_rating, avg_difficulty,
			num_ratings, would_take_again_pct, course_prefixes, refresh_cadence_days, reviews_refreshed_at
		)
		SELECT *, now() FROM unnest(
			$1::int[], $2::text[], $3::text[], $4::text[], $5::float8[], $6::float8[],
			$7::int[], $8::float8[], $9::jsonb[], $10::int[]
		)
		ON CONFLICT (legacy_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			department = EXCLUDED.department,
			avg_rating = EXCLUDED.avg_rating,
			avg_difficulty = EXCLUDED.avg_difficulty,
			num_ratings = EXCLUDED.num_ratings,
			would_take_again_pct = EXCLUDED.would_take_again_pct,
			course_prefixes = EXCLUDED.course_prefixes,
			refresh_cadence_days = EXCLUDED.refresh_cadence_days,
			reviews_refreshed_at = EXCLUDED.reviews_refreshed_at
	`, legacyIDs, firstNames, lastNames, departments, avgRatings, avgDifficulties,
		numRatings, wouldTakeAgain, prefixesArr, cadences)
	if err != nil {
		return fmt.Errorf("upserting rating profiles: %w", err)
	}
	return nil
}

// ProfilesDueForReviewRefresh returns every profile whose cadence window
// has elapsed since its last review refresh (spec §4.10).
func (s *RatingSiteStore) ProfilesDueForReviewRefresh(ctx context.Context) ([]model.RatingProfile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT legacy_id, first_name, last_name, department, avg_rating, avg_difficulty,
		       num_ratings, would_take_again_pct, course_prefixes, refresh_cadence_days
		FROM rating_profiles
		WHERE reviews_refreshed_at IS NULL
		   OR reviews_refreshed_at <= now() - (refresh_cadence_days || ' days')::interval
	`)
	if err != nil {
		return nil, fmt.Errorf("loading profiles due for refresh: %w", err)
	}
	defer rows.Close()

	var out []model.RatingProfile
	for rows.Next() {
		var p model.RatingProfile
		var prefixesRaw []byte
		if err := rows.Scan(&p.LegacyID, &p.FirstName, &p.LastName, &p.Department, &p.AvgRating,
			&p.AvgDifficulty, &p.NumRatings, &p.WouldTakeAgainPct, &prefixesRaw, &p.RefreshCadenceDays); err != nil {
			return nil, fmt.Errorf("scanning rating profile row: %w", err)
		}
		prefixes, err := decodeStrings(prefixesRaw)
		if err != nil {
			return nil, fmt.Errorf("decoding course prefixes for profile %d: %w", p.LegacyID, err)
		}
		p.CoursePrefixes = prefixes
		out = append(out, p)
	}
	return out, rows.Err()
}
