package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/campusgraph/coursesync/pkg/model"
)

func TestCompute_NoInputsReturnsUnrated(t *testing.T) {
	// Property P10: zero inputs yields no row.
	_, ok := Compute(Inputs{})
	assert.False(t, ok)
}

func TestCompute_RmpOnlySourceIsRMP(t *testing.T) {
	score, ok := Compute(Inputs{RmpRating: 4.2, NumRmp: 30})
	assert.True(t, ok)
	assert.Equal(t, model.SourceRMP, score.Source)
	assert.Zero(t, score.BbCount)
}

func TestCompute_BluebookOnlySourceIsBluebook(t *testing.T) {
	score, ok := Compute(Inputs{BBRaw: 4.0, NumBB: 50})
	assert.True(t, ok)
	assert.Equal(t, model.SourceBluebook, score.Source)
	assert.Zero(t, score.RmpCount)
}

func TestCompute_BothSourcesSourceIsBoth(t *testing.T) {
	score, ok := Compute(Inputs{RmpRating: 4.2, NumRmp: 30, BBRaw: 4.0, NumBB: 50})
	assert.True(t, ok)
	assert.Equal(t, model.SourceBoth, score.Source)
}

func TestCompute_DisplayScoreWithinBounds(t *testing.T) {
	score, ok := Compute(Inputs{RmpRating: 5.0, NumRmp: 500})
	assert.True(t, ok)
	assert.GreaterOrEqual(t, score.DisplayScore, 1.0)
	assert.LessOrEqual(t, score.DisplayScore, 5.0)
	assert.LessOrEqual(t, score.CILower, score.CIUpper)
	assert.Equal(t, score.CILower, score.SortScore)
}

func TestCompute_MoreObservationsNarrowsConfidenceInterval(t *testing.T) {
	few, _ := Compute(Inputs{RmpRating: 4.0, NumRmp: 2})
	many, _ := Compute(Inputs{RmpRating: 4.0, NumRmp: 400})
	assert.Greater(t, many.Confidence, few.Confidence)
	assert.Less(t, many.CIUpper-many.CILower, few.CIUpper-few.CILower)
}

func TestCalibrateBluebook_ClampsToRange(t *testing.T) {
	assert.Equal(t, 1.0, CalibrateBluebook(0))
	assert.Equal(t, 5.0, CalibrateBluebook(10))
}

func TestCalibrateBluebook_LinearMapping(t *testing.T) {
	got := CalibrateBluebook(4.0)
	assert.InDelta(t, -2.58+1.45*4.0, got, 1e-9)
}
