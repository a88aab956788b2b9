package rating

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgraph/coursesync/pkg/model"
)

type fakeRecomputeStore struct {
	rows       []SourceRow
	streamErr  error
	replaced   []model.Score
	replaceErr error
}

func (f *fakeRecomputeStore) StreamRatingInputs(ctx context.Context) ([]SourceRow, error) {
	return f.rows, f.streamErr
}

func (f *fakeRecomputeStore) ReplaceScores(ctx context.Context, scores []model.Score) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced = scores
	return nil
}

func TestRecomputeAll_SkipsInstructorsWithZeroInputs(t *testing.T) {
	store := &fakeRecomputeStore{rows: []SourceRow{
		{InstructorID: 1, Inputs: Inputs{}},
		{InstructorID: 2, Inputs: Inputs{RmpRating: 4.2, NumRmp: 30}},
	}}

	n, err := RecomputeAll(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, store.replaced, 1)
	assert.Equal(t, int32(2), store.replaced[0].InstructorID)
}

func TestRecomputeAll_EmptyInputYieldsEmptyReplace(t *testing.T) {
	store := &fakeRecomputeStore{}

	n, err := RecomputeAll(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, store.replaced)
}

func TestRecomputeAll_StreamErrorPropagatesWithoutReplacing(t *testing.T) {
	store := &fakeRecomputeStore{streamErr: assert.AnError}

	_, err := RecomputeAll(context.Background(), store)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, store.replaced)
}

func TestRecomputeAll_ReplaceErrorPropagates(t *testing.T) {
	store := &fakeRecomputeStore{
		rows:       []SourceRow{{InstructorID: 1, Inputs: Inputs{RmpRating: 4.0, NumRmp: 10}}},
		replaceErr: assert.AnError,
	}

	_, err := RecomputeAll(context.Background(), store)
	assert.ErrorIs(t, err, assert.AnError)
}
