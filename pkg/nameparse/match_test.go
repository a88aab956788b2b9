package nameparse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgraph/coursesync/pkg/model"
)

type fakeEvalStore struct {
	groups      []EvalNameGroup
	directory   []model.Instructor
	byCRNTerm   map[string][]model.Instructor
	upserted    []model.EvalLink
	deleteCalls int
}

func (f *fakeEvalStore) DeleteAutoAndPendingEvalLinks(ctx context.Context) error {
	f.deleteCalls++
	return nil
}

func (f *fakeEvalStore) DistinctEvalNamesWithoutDecision(ctx context.Context) ([]EvalNameGroup, error) {
	return f.groups, nil
}

func (f *fakeEvalStore) InstructorsByCRNTerm(ctx context.Context, crnTerms [][2]string) ([]model.Instructor, error) {
	if len(crnTerms) == 0 {
		return nil, nil
	}
	return f.byCRNTerm[crnTerms[0][0]+"/"+crnTerms[0][1]], nil
}

func (f *fakeEvalStore) AllInstructors(ctx context.Context) ([]model.Instructor, error) {
	return f.directory, nil
}

func (f *fakeEvalStore) UpsertEvalLink(ctx context.Context, link model.EvalLink) error {
	f.upserted = append(f.upserted, link)
	return nil
}

func TestRunEvaluationMatch_UniqueCRNJoinAutoLinks(t *testing.T) {
	store := &fakeEvalStore{
		groups: []EvalNameGroup{{Name: "Garcia, Maria Isabel", Subject: "CS", CRNTerms: [][2]string{{"10001", "202620"}}}},
		byCRNTerm: map[string][]model.Instructor{
			"10001/202620": {{ID: 7, FirstName: "Maria Isabel", LastName: "Garcia"}},
		},
	}
	require.NoError(t, RunEvaluationMatch(context.Background(), store))

	require.Len(t, store.upserted, 1)
	link := store.upserted[0]
	assert.Equal(t, model.EvalAuto, link.Status)
	require.NotNil(t, link.InstructorID)
	assert.Equal(t, int32(7), *link.InstructorID)
	assert.Equal(t, 1, store.deleteCalls)
}

func TestRunEvaluationMatch_UnparseableNameRecordsPendingLink(t *testing.T) {
	store := &fakeEvalStore{
		groups: []EvalNameGroup{{Name: "not-a-name", Subject: "CS"}},
	}
	require.NoError(t, RunEvaluationMatch(context.Background(), store))

	require.Len(t, store.upserted, 1)
	assert.Equal(t, model.EvalPending, store.upserted[0].Status)
	assert.Nil(t, store.upserted[0].InstructorID)
}

func TestRunEvaluationMatch_AmbiguousJoinFallsBackToPending(t *testing.T) {
	// Scenario 2: two equally-plausible ERP candidates for the same CRN+term
	// joined set must not auto-link.
	store := &fakeEvalStore{
		groups: []EvalNameGroup{{Name: "Garcia, Maria Isabel", Subject: "CS", CRNTerms: [][2]string{{"10001", "202620"}}}},
		byCRNTerm: map[string][]model.Instructor{
			"10001/202620": {
				{ID: 1, FirstName: "Maria", LastName: "Garcia"},
				{ID: 2, FirstName: "Maria Elena", LastName: "Garcia"},
			},
		},
	}
	require.NoError(t, RunEvaluationMatch(context.Background(), store))

	require.Len(t, store.upserted, 1)
	assert.Equal(t, model.EvalPending, store.upserted[0].Status)
}

func TestRunEvaluationMatch_NoCRNJoinFallsBackToDirectory(t *testing.T) {
	store := &fakeEvalStore{
		groups:    []EvalNameGroup{{Name: "Garcia, Maria Isabel", Subject: "CS"}},
		directory: []model.Instructor{{ID: 9, FirstName: "Maria Isabel", LastName: "Garcia"}},
	}
	require.NoError(t, RunEvaluationMatch(context.Background(), store))

	require.Len(t, store.upserted, 1)
	link := store.upserted[0]
	assert.Equal(t, model.EvalPending, link.Status)
	require.NotNil(t, link.InstructorID)
	assert.Equal(t, int32(9), *link.InstructorID)
}

type fakeRmpStore struct {
	profiles     []model.RatingProfile
	instructors  []model.Instructor
	candidates   []model.RmpCandidate
	autoLinks    map[int32]int32
	deleteCalls  int
	resetCalls   int
}

func (f *fakeRmpStore) DeletePendingCandidatesAndAutoLinks(ctx context.Context) error {
	f.deleteCalls++
	return nil
}

func (f *fakeRmpStore) ResetAutoInstructorsToUnmatched(ctx context.Context) error {
	f.resetCalls++
	return nil
}

func (f *fakeRmpStore) AllRatingProfiles(ctx context.Context) ([]model.RatingProfile, error) {
	return f.profiles, nil
}

func (f *fakeRmpStore) MatchableInstructors(ctx context.Context) ([]model.Instructor, error) {
	return f.instructors, nil
}

func (f *fakeRmpStore) UpsertCandidate(ctx context.Context, c model.RmpCandidate) error {
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeRmpStore) AutoLinkInstructor(ctx context.Context, instructorID, ratingLegacyID int32) error {
	if f.autoLinks == nil {
		f.autoLinks = make(map[int32]int32)
	}
	f.autoLinks[instructorID] = ratingLegacyID
	return nil
}

func TestRunRatingMatch_HighScoringUniqueMatchAutoLinks(t *testing.T) {
	store := &fakeRmpStore{
		profiles: []model.RatingProfile{
			{LegacyID: 101, FirstName: "Maria Isabel", LastName: "Garcia", Department: "CS", NumRatings: 100},
		},
		instructors: []model.Instructor{
			{ID: 7, FirstName: "Maria Isabel", LastName: "Garcia", Subjects: []string{"CS"}},
		},
	}
	require.NoError(t, RunRatingMatch(context.Background(), store))

	require.Len(t, store.candidates, 1)
	assert.Equal(t, model.RmpCandidateAccepted, store.candidates[0].Status)
	assert.Equal(t, int32(101), store.autoLinks[7])
	assert.Equal(t, 1, store.deleteCalls)
	assert.Equal(t, 1, store.resetCalls)
}

func TestRunRatingMatch_NoKeyOverlapProducesNoCandidates(t *testing.T) {
	store := &fakeRmpStore{
		profiles:    []model.RatingProfile{{LegacyID: 101, FirstName: "John", LastName: "Smith"}},
		instructors: []model.Instructor{{ID: 7, FirstName: "Maria Isabel", LastName: "Garcia"}},
	}
	require.NoError(t, RunRatingMatch(context.Background(), store))
	assert.Empty(t, store.candidates)
}

func TestRunRatingMatch_StoredCandidatesAlwaysMeetMinThreshold(t *testing.T) {
	store := &fakeRmpStore{
		profiles: []model.RatingProfile{
			{LegacyID: 101, FirstName: "Maria Isabel", LastName: "Garcia", NumRatings: 0},
			{LegacyID: 102, FirstName: "Maria Isabel", LastName: "Garcia", NumRatings: 0},
			{LegacyID: 103, FirstName: "Maria Isabel", LastName: "Garcia", NumRatings: 0},
		},
		instructors: []model.Instructor{
			{ID: 7, FirstName: "Maria Isabel", LastName: "Garcia"},
		},
	}
	require.NoError(t, RunRatingMatch(context.Background(), store))
	for _, c := range store.candidates {
		assert.GreaterOrEqual(t, c.Score, MinCandidateThreshold)
	}
}
