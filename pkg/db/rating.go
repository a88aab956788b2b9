package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgraph/coursesync/pkg/model"
	"github.com/campusgraph/coursesync/pkg/rating"
)

// RatingStore implements rating.Store against rmp_links/rating_profiles and
// eval_links/evaluations, with score replacement done as a single
// TRUNCATE+INSERT transaction.
type RatingStore struct {
	pool *pgxpool.Pool
}

// NewRatingStore wraps a pool.
func NewRatingStore(pool *pgxpool.Pool) *RatingStore {
	return &RatingStore{pool: pool}
}

// StreamRatingInputs aggregates, per instructor, its linked rating-site
// profile (if any) and a response-count-weighted average of every approved
// or auto-linked evaluation row.
func (s *RatingStore) StreamRatingInputs(ctx context.Context) ([]rating.SourceRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.id,
		       COALESCE(rp.avg_rating, 0), COALESCE(rp.num_ratings, 0),
		       COALESCE(bb.bb_raw, 0), COALESCE(bb.bb_n, 0)
		FROM instructors i
		LEFT JOIN rmp_links rl ON rl.instructor_id = i.id
		LEFT JOIN rating_profiles rp ON rp.legacy_id = rl.rating_legacy_id
		LEFT JOIN LATERAL (
			SELECT SUM(e.rating * e.response_count) / NULLIF(SUM(e.response_count), 0) AS bb_raw,
			       SUM(e.response_count) AS bb_n
			FROM evaluations e
			JOIN eval_links el ON el.instructor_name = e.instructor_name
			                  AND (el.subject = '' OR el.subject = e.subject)
			WHERE el.instructor_id = i.id AND el.status IN ('approved', 'auto')
		) bb ON true
		WHERE rl.instructor_id IS NOT NULL OR bb.bb_n > 0
	`)
	if err != nil {
		return nil, fmt.Errorf("streaming rating inputs: %w", err)
	}
	defer rows.Close()

	var out []rating.SourceRow
	for rows.Next() {
		var r rating.SourceRow
		if err := rows.Scan(&r.InstructorID, &r.Inputs.RmpRating, &r.Inputs.NumRmp,
			&r.Inputs.BBRaw, &r.Inputs.NumBB); err != nil {
			return nil, fmt.Errorf("scanning rating input row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceScores truncates and rewrites the whole scores table in one
// transaction, so concurrent readers never see a partially-rebuilt table.
func (s *RatingStore) ReplaceScores(ctx context.Context, scores []model.Score) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace-scores tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE TABLE scores`); err != nil {
		return fmt.Errorf("truncating scores: %w", err)
	}

	if len(scores) > 0 {
		n := len(scores)
		instructorIDs := make([]int32, n)
		display := make([]float64, n)
		sort := make([]float64, n)
		ciLower := make([]float64, n)
		ciUpper := make([]float64, n)
		confidence := make([]float64, n)
		sources := make([]string, n)
		rmpRating := make([]float64, n)
		rmpCount := make([]int, n)
		bbRating := make([]float64, n)
		bbCount := make([]int, n)
		calibrated := make([]float64, n)
		computedAt := make([]interface{}, n)
		for i, sc := range scores {
			instructorIDs[i] = sc.InstructorID
			display[i] = sc.DisplayScore
			sort[i] = sc.SortScore
			ciLower[i] = sc.CILower
			ciUpper[i] = sc.CIUpper
			confidence[i] = sc.Confidence
			sources[i] = string(sc.Source)
			rmpRating[i] = sc.RmpRating
			rmpCount[i] = sc.RmpCount
			bbRating[i] = sc.BbRating
			bbCount[i] = sc.BbCount
			calibrated[i] = sc.CalibratedBB
			computedAt[i] = sc.ComputedAt
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO scores (
				instructor_id, display_score, sort_score, ci_lower, ci_upper, confidence,
				source, rmp_rating, rmp_count, bb_rating, bb_count, calibrated_bb, computed_at
			)
			SELECT * FROM unnest(
				$1::int[], $2::float8[], $3::float8[], $4::float8[], $5::float8[], $6::float8[],
				$7::text[], $8::float8[], $9::int[], $10::float8[], $11::int[], $12::float8[], $13::timestamptz[]
			)
		`, instructorIDs, display, sort, ciLower, ciUpper, confidence,
			sources, rmpRating, rmpCount, bbRating, bbCount, calibrated, computedAt)
		if err != nil {
			return fmt.Errorf("inserting scores: %w", err)
		}
	}

	return tx.Commit(ctx)
}
