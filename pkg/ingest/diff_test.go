package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/campusgraph/coursesync/pkg/model"
)

func TestDiffCourse_NilPreviousReportsEveryNonEmptyField(t *testing.T) {
	next := model.Course{Title: "Intro to Go", Campus: "Main", EnrollmentCurrent: 10}
	changes := diffCourse(nil, next)

	var fields []string
	for _, c := range changes {
		fields = append(fields, c.Field)
	}
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "campus")
	assert.Contains(t, fields, "enrollment_current")
}

func TestDiffCourse_NoChangesReturnsEmpty(t *testing.T) {
	course := model.Course{Title: "Intro to Go", EnrollmentCurrent: 10}
	changes := diffCourse(&course, course)
	assert.Empty(t, changes)
}

func TestDiffCourse_ChangedFieldReportsOldAndNew(t *testing.T) {
	prev := model.Course{EnrollmentCurrent: 10}
	next := model.Course{EnrollmentCurrent: 15}
	changes := diffCourse(&prev, next)

	require := assert.New(t)
	require.Len(changes, 1)
	require.Equal("enrollment_current", changes[0].Field)
	require.Equal("10", changes[0].Old)
	require.Equal("15", changes[0].New)
	require.True(changes[0].IsMetric)
	require.Equal(15.0, changes[0].Value)
}

func TestDiffCourse_UnchangedNumericFieldIsNotMetric(t *testing.T) {
	prev := model.Course{Title: "Old Title", EnrollmentCurrent: 10}
	next := model.Course{Title: "New Title", EnrollmentCurrent: 10}
	changes := diffCourse(&prev, next)

	require := assert.New(t)
	require.Len(changes, 1)
	require.Equal("title", changes[0].Field)
	require.False(changes[0].IsMetric)
}

func TestDedupCourses_KeepsRicherRow(t *testing.T) {
	sparse := model.Course{TermCode: "202620", CRN: "10001"}
	rich := model.Course{
		TermCode: "202620", CRN: "10001",
		Meetings:   []model.MeetingTime{{}},
		Attributes: []string{"WI"},
	}
	deduped := dedupCourses([]model.Course{sparse, rich})

	require := assert.New(t)
	require.Len(deduped, 1)
	got := deduped[CourseKey{TermCode: "202620", CRN: "10001"}]
	require.Len(got.Meetings, 1)
}

func TestDedupCourses_DistinctKeysBothSurvive(t *testing.T) {
	a := model.Course{TermCode: "202620", CRN: "10001"}
	b := model.Course{TermCode: "202620", CRN: "10002"}
	deduped := dedupCourses([]model.Course{a, b})
	assert.Len(t, deduped, 2)
}
