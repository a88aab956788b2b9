package rating

import (
	"context"
	"fmt"

	"github.com/campusgraph/coursesync/pkg/model"
)

// SourceRow is one instructor's raw rating aggregates, as streamed from
// storage ahead of a recompute pass.
type SourceRow struct {
	InstructorID int32
	Inputs       Inputs
}

// Store is the transactional dependency RecomputeAll needs: a streaming
// source read, and a single bulk write that replaces the whole scores
// table.
type Store interface {
	StreamRatingInputs(ctx context.Context) ([]SourceRow, error)
	ReplaceScores(ctx context.Context, scores []model.Score) error
}

// RecomputeAll streams (rmp_rating, rmp_n, bb_avg, bb_n) per instructor,
// computes every Score, and replaces the whole scores table in one
// TRUNCATE+INSERT transaction (spec §4.6). Triggered at startup and after
// every scrape completion.
func RecomputeAll(ctx context.Context, store Store) (int, error) {
	rows, err := store.StreamRatingInputs(ctx)
	if err != nil {
		return 0, fmt.Errorf("stream rating inputs: %w", err)
	}

	scores := make([]model.Score, 0, len(rows))
	for _, r := range rows {
		score, ok := Compute(r.Inputs)
		if !ok {
			continue // property P10: no row for instructors with zero inputs
		}
		score.InstructorID = r.InstructorID
		scores = append(scores, score)
	}

	if err := store.ReplaceScores(ctx, scores); err != nil {
		return 0, fmt.Errorf("replace scores: %w", err)
	}
	return len(scores), nil
}
