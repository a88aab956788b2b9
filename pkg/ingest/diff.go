package ingest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/campusgraph/coursesync/pkg/model"
)

// fieldChange is one changed field on one course, destined for a
// CourseAudit row and, if numeric, a CourseMetric row.
type fieldChange struct {
	Field    string
	Old      string
	New      string
	IsMetric bool
	Value    float64
}

// diffCourse compares a freshly-fetched course against its previously
// stored row (if any) and returns every changed field. A nil previous
// value means the course is new: every field that differs from its zero
// value is reported as a change from that zero value ("" for text fields,
// "0" for numeric fields and credits) so the audit trail has a complete
// initial record.
func diffCourse(prev *model.Course, next model.Course) []fieldChange {
	var changes []fieldChange

	str := func(name, oldV, newV string) {
		if oldV != newV {
			changes = append(changes, fieldChange{Field: name, Old: oldV, New: newV})
		}
	}
	num := func(name string, oldV, newV int) {
		if oldV != newV {
			changes = append(changes, fieldChange{
				Field: name, Old: strconv.Itoa(oldV), New: strconv.Itoa(newV),
				IsMetric: true, Value: float64(newV),
			})
		}
	}

	var old model.Course
	if prev != nil {
		old = *prev
	}

	str("title", old.Title, next.Title)
	str("instructional_method", old.InstructionalMethod, next.InstructionalMethod)
	str("campus", old.Campus, next.Campus)
	str("part_of_term", old.PartOfTerm, next.PartOfTerm)
	str("link_id", old.LinkID, next.LinkID)
	str("credits", formatCredits(old.Credits), formatCredits(next.Credits))
	str("meetings", formatMeetings(old.Meetings), formatMeetings(next.Meetings))
	str("attributes", formatAttributes(old.Attributes), formatAttributes(next.Attributes))
	str("cross_list", formatCrossList(old.CrossList), formatCrossList(next.CrossList))

	num("enrollment_current", old.EnrollmentCurrent, next.EnrollmentCurrent)
	num("enrollment_max", old.EnrollmentMax, next.EnrollmentMax)
	num("wait_count", old.WaitCount, next.WaitCount)
	num("wait_capacity", old.WaitCapacity, next.WaitCapacity)

	return changes
}

func formatCredits(c model.CreditHours) string {
	if c.Fixed() {
		return strconv.FormatFloat(c.Low, 'f', -1, 64)
	}
	return strconv.FormatFloat(c.Low, 'f', -1, 64) + "-" + strconv.FormatFloat(c.High, 'f', -1, 64)
}

func formatAttributes(attrs []string) string {
	if len(attrs) == 0 {
		return ""
	}
	sorted := append([]string(nil), attrs...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func formatCrossList(cl *model.CrossList) string {
	if cl == nil {
		return ""
	}
	return fmt.Sprintf("%s:%d/%d", cl.ID, cl.Count, cl.Capacity)
}

func formatMeetings(meetings []model.MeetingTime) string {
	if len(meetings) == 0 {
		return ""
	}
	parts := make([]string, len(meetings))
	for i, m := range meetings {
		parts[i] = fmt.Sprintf("%d|%d|%d|%s|%s|%s|%s|%s",
			m.Days, m.BeginMinutes, m.EndMinutes,
			m.StartDate.Format("2006-01-02"), m.EndDate.Format("2006-01-02"),
			m.Building, m.Room, m.Campus)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
