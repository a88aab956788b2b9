package nameparse

import (
	"math"
	"strings"

	"github.com/campusgraph/coursesync/pkg/model"
)

// MinCandidateThreshold and AutoAcceptThreshold are the rating-site
// auto-match pipeline's stable cutoffs (spec §4.5).
const (
	MinCandidateThreshold = 0.40
	AutoAcceptThreshold   = 0.85
)

// nameWeight scores how the matched key resolved: a full-strength primary
// key vs. a weaker nickname-derived one.
func nameWeight(origin KeyOrigin) float64 {
	if origin == OriginNickname {
		return 0.7
	}
	return 1.0
}

// ScoreInputs bundles the per-candidate data the composite score depends
// on: which key matched, the instructor's taught subjects, the rating
// profile's free-text department and course prefixes, and how many profiles
// the instructor's directory entry could plausibly map to (uniqueness).
type ScoreInputs struct {
	MatchedKeyOrigin   KeyOrigin
	InstructorSubjects []string
	ProfileDepartment  string
	ProfileCoursePrefs []string
	NumRatings         int
	CandidateCount     int // how many profiles matched this instructor's keys
}

// CompositeScore computes the rating-site match score from spec §4.5: five
// weighted components summing to at most 1.0.
func CompositeScore(in ScoreInputs) (float64, model.MatchBreakdown) {
	name := nameWeight(in.MatchedKeyOrigin)

	dept := 0.5 // unknown by default
	for _, subj := range in.InstructorSubjects {
		if departmentMatches(subj, in.ProfileDepartment) {
			dept = 1.0
			break
		}
	}
	if dept != 1.0 && in.ProfileDepartment != "" && len(in.InstructorSubjects) > 0 {
		dept = 0.2 // a department was stated and matched nothing known
	}

	var uniqueness float64
	switch {
	case in.CandidateCount <= 1:
		uniqueness = 1.0
	case in.CandidateCount == 2:
		uniqueness = 0.5
	default:
		uniqueness = 0.2
	}

	volume := math.Min(1, math.Log(1+float64(in.NumRatings))/math.Log(1+5))

	reviewCourses := 0.2
	switch {
	case len(in.InstructorSubjects) == 0 || len(in.ProfileCoursePrefs) == 0:
		reviewCourses = 0.5
	default:
		for _, subj := range in.InstructorSubjects {
			for _, pref := range in.ProfileCoursePrefs {
				if strings.HasPrefix(strings.ToUpper(pref), strings.ToUpper(subj)) {
					reviewCourses = 1.0
				}
			}
		}
	}

	breakdown := model.MatchBreakdown{
		Name:          name,
		Department:    dept,
		Uniqueness:    uniqueness,
		Volume:        volume,
		ReviewCourses: reviewCourses,
	}
	score := name*0.45 + dept*0.20 + uniqueness*0.10 + volume*0.10 + reviewCourses*0.15
	return score, breakdown
}
