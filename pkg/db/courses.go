package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgraph/coursesync/pkg/ingest"
	"github.com/campusgraph/coursesync/pkg/model"
	"github.com/campusgraph/coursesync/pkg/snapshot"
)

// CourseStore implements ingest.Store against the courses/course_audits/
// course_metrics tables.
type CourseStore struct {
	pool *pgxpool.Pool
}

// NewCourseStore wraps a pool.
func NewCourseStore(pool *pgxpool.Pool) *CourseStore {
	return &CourseStore{pool: pool}
}

// meetingJSON is the on-disk shape of one MeetingTime inside the courses
// table's jsonb meetings column; field names match what pkg/db/snapshot.go
// and the ERP adapter's meetingDTO both read back.
type meetingJSON struct {
	DaysMask  uint8  `json:"days_mask"`
	Begin     string `json:"begin"`
	End       string `json:"end"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Building  string `json:"building"`
	Room      string `json:"room"`
	Campus    string `json:"campus"`
}

func encodeMeetings(meetings []model.MeetingTime) ([]byte, error) {
	out := make([]meetingJSON, len(meetings))
	for i, m := range meetings {
		out[i] = meetingJSON{
			DaysMask:  uint8(m.Days),
			Begin:     snapshot.FormatTime(m.BeginMinutes),
			End:       snapshot.FormatTime(m.EndMinutes),
			StartDate: m.StartDate.Format("2006-01-02"),
			EndDate:   m.EndDate.Format("2006-01-02"),
			Building:  m.Building,
			Room:      m.Room,
			Campus:    m.Campus,
		}
	}
	return json.Marshal(out)
}

func encodeStrings(vals []string) ([]byte, error) {
	if vals == nil {
		vals = []string{}
	}
	return json.Marshal(vals)
}

func decodeStrings(raw []byte) ([]string, error) {
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeInt32s(vals []int32) ([]byte, error) {
	if vals == nil {
		vals = []int32{}
	}
	return json.Marshal(vals)
}

func decodeInt32s(raw []byte) ([]int32, error) {
	var out []int32
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeMeetings(raw []byte) ([]model.MeetingTime, error) {
	var dtos []meetingJSON
	if err := json.Unmarshal(raw, &dtos); err != nil {
		return nil, err
	}
	out := make([]model.MeetingTime, len(dtos))
	for i, d := range dtos {
		begin, _ := snapshot.ParseTime(d.Begin)
		end, _ := snapshot.ParseTime(d.End)
		start, _ := snapshot.ParseDate(d.StartDate)
		stop, _ := snapshot.ParseDate(d.EndDate)
		out[i] = model.MeetingTime{
			Days:         model.WeekdayMask(d.DaysMask),
			BeginMinutes: begin,
			EndMinutes:   end,
			StartDate:    start,
			EndDate:      stop,
			Building:     d.Building,
			Room:         d.Room,
			Campus:       d.Campus,
		}
	}
	return out, nil
}

// ExistingCourses fetches the current stored row for every requested key.
func (s *CourseStore) ExistingCourses(ctx context.Context, keys []ingest.CourseKey) (map[ingest.CourseKey]model.Course, error) {
	out := make(map[ingest.CourseKey]model.Course, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	terms := make([]string, len(keys))
	crns := make([]string, len(keys))
	for i, k := range keys {
		terms[i] = k.TermCode
		crns[i] = k.CRN
	}

	rows, err := s.pool.Query(ctx, `
		SELECT term_code, crn, subject, course_number, title, sequence,
		       enrollment_current, enrollment_max, wait_count, wait_capacity,
		       credits_low, credits_high, instructional_method, campus, part_of_term,
		       cross_list_id, cross_list_capacity, cross_list_count, link_id,
		       meetings, attributes, instructor_ids, last_scraped_at
		FROM courses
		WHERE (term_code, crn) IN (SELECT * FROM unnest($1::text[], $2::text[]))
	`, terms, crns)
	if err != nil {
		return nil, fmt.Errorf("loading existing courses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out[ingest.CourseKey{TermCode: c.TermCode, CRN: c.CRN}] = c
	}
	return out, rows.Err()
}

func scanCourse(rows pgx.Rows) (model.Course, error) {
	var c model.Course
	var meetingsRaw, attributesRaw, instructorIDsRaw []byte
	var crossID *string
	var crossCap, crossCount *int
	if err := rows.Scan(&c.TermCode, &c.CRN, &c.Subject, &c.CourseNumber, &c.Title, &c.Sequence,
		&c.EnrollmentCurrent, &c.EnrollmentMax, &c.WaitCount, &c.WaitCapacity,
		&c.Credits.Low, &c.Credits.High, &c.InstructionalMethod, &c.Campus, &c.PartOfTerm,
		&crossID, &crossCap, &crossCount, &c.LinkID,
		&meetingsRaw, &attributesRaw, &instructorIDsRaw, &c.LastScrapedAt); err != nil {
		return c, fmt.Errorf("scanning course row: %w", err)
	}
	if crossID != nil {
		c.CrossList = &model.CrossList{ID: *crossID}
		if crossCap != nil {
			c.CrossList.Capacity = *crossCap
		}
		if crossCount != nil {
			c.CrossList.Count = *crossCount
		}
	}
	meetings, err := decodeMeetings(meetingsRaw)
	if err != nil {
		return c, fmt.Errorf("decoding meetings for %s/%s: %w", c.TermCode, c.CRN, err)
	}
	c.Meetings = meetings
	attributes, err := decodeStrings(attributesRaw)
	if err != nil {
		return c, fmt.Errorf("decoding attributes for %s/%s: %w", c.TermCode, c.CRN, err)
	}
	c.Attributes = attributes
	instructorIDs, err := decodeInt32s(instructorIDsRaw)
	if err != nil {
		return c, fmt.Errorf("decoding instructor ids for %s/%s: %w", c.TermCode, c.CRN, err)
	}
	c.InstructorIDs = instructorIDs
	return c, nil
}

// UpsertCourses bulk-writes courses via unnest-parallel-arrays, refreshing
// last_scraped_at on every conflicting row.
func (s *CourseStore) UpsertCourses(ctx context.Context, courses []model.Course) error {
	if len(courses) == 0 {
		return nil
	}
	n := len(courses)
	termCodes := make([]string, n)
	crns := make([]string, n)
	subjects := make([]string, n)
	courseNumbers := make([]string, n)
	titles := make([]string, n)
	sequences := make([]string, n)
	enrollCurrent := make([]int, n)
	enrollMax := make([]int, n)
	waitCount := make([]int, n)
	waitCapacity := make([]int, n)
	creditsLow := make([]float64, n)
	creditsHigh := make([]float64, n)
	instructionalMethods := make([]string, n)
	campuses := make([]string, n)
	partOfTerms := make([]string, n)
	crossListIDs := make([]*string, n)
	crossListCaps := make([]*int, n)
	crossListCounts := make([]*int, n)
	linkIDs := make([]string, n)
	meetingsArr := make([][]byte, n)
	attributesArr := make([][]byte, n)
	instructorIDsArr := make([][]byte, n)
	lastScraped := make([]interface{}, n)

	for i, c := range courses {
		termCodes[i] = c.TermCode
		crns[i] = c.CRN
		subjects[i] = c.Subject
		courseNumbers[i] = c.CourseNumber
		titles[i] = c.Title
		sequences[i] = c.Sequence
		enrollCurrent[i] = c.EnrollmentCurrent
		enrollMax[i] = c.EnrollmentMax
		waitCount[i] = c.WaitCount
		waitCapacity[i] = c.WaitCapacity
		creditsLow[i] = c.Credits.Low
		creditsHigh[i] = c.Credits.High
		instructionalMethods[i] = c.InstructionalMethod
		campuses[i] = c.Campus
		partOfTerms[i] = c.PartOfTerm
		if c.CrossList != nil {
			id := c.CrossList.ID
			capacity := c.CrossList.Capacity
			cnt := c.CrossList.Count
			crossListIDs[i], crossListCaps[i], crossListCounts[i] = &id, &capacity, &cnt
		}
		linkIDs[i] = c.LinkID
		raw, err := encodeMeetings(c.Meetings)
		if err != nil {
			return fmt.Errorf("encoding meetings for %s/%s: %w", c.TermCode, c.CRN, err)
		}
		meetingsArr[i] = raw
		attrRaw, err := encodeStrings(c.Attributes)
		if err != nil {
			return fmt.Errorf("encoding attributes for %s/%s: %w", c.TermCode, c.CRN, err)
		}
		attributesArr[i] = attrRaw
		instrRaw, err := encodeInt32s(c.InstructorIDs)
		if err != nil {
			return fmt.Errorf("encoding instructor ids for %s/%s: %w", c.TermCode, c.CRN, err)
		}
		instructorIDsArr[i] = instrRaw
		lastScraped[i] = c.LastScrapedAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO courses (
			term_code, crn, subject, course_number, title, sequence,
			enrollment_current, enrollment_max, wait_count, wait_capacity,
			credits_low, credits_high, instructional_method, campus, part_of_term,
			cross_list_id, cross_list_capacity, cross_list_count, link_id,
			meetings, attributes, instructor_ids, last_scraped_at
		)
		SELECT * FROM unnest(
			$1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::text[],
			$7::int[], $8::int[], $9::int[], $10::int[],
			$11::float8[], $12::float8[], $13::text[], $14::text[], $15::text[],
			$16::text[], $17::int[], $18::int[], $19::text[],
			$20::jsonb[], $21::jsonb[], $22::jsonb[], $23::timestamptz[]
		)
		ON CONFLICT (term_code, crn) DO UPDATE SET
			subject = EXCLUDED.subject,
			course_number = EXCLUDED.course_number,
			title = EXCLUDED.title,
			sequence = EXCLUDED.sequence,
			enrollment_current = EXCLUDED.enrollment_current,
			enrollment_max = EXCLUDED.enrollment_max,
			wait_count = EXCLUDED.wait_count,
			wait_capacity = EXCLUDED.wait_capacity,
			credits_low = EXCLUDED.credits_low,
			credits_high = EXCLUDED.credits_high,
			instructional_method = EXCLUDED.instructional_method,
			campus = EXCLUDED.campus,
			part_of_term = EXCLUDED.part_of_term,
			cross_list_id = EXCLUDED.cross_list_id,
			cross_list_capacity = EXCLUDED.cross_list_capacity,
			cross_list_count = EXCLUDED.cross_list_count,
			link_id = EXCLUDED.link_id,
			meetings = EXCLUDED.meetings,
			attributes = EXCLUDED.attributes,
			instructor_ids = EXCLUDED.instructor_ids,
			last_scraped_at = EXCLUDED.last_scraped_at
	`, termCodes, crns, subjects, courseNumbers, titles, sequences,
		enrollCurrent, enrollMax, waitCount, waitCapacity,
		creditsLow, creditsHigh, instructionalMethods, campuses, partOfTerms,
		crossListIDs, crossListCaps, crossListCounts, linkIDs,
		meetingsArr, attributesArr, instructorIDsArr, lastScraped)
	if err != nil {
		return fmt.Errorf("upserting courses: %w", err)
	}
	return nil
}

// InsertAudits bulk-inserts CourseAudit rows.
func (s *CourseStore) InsertAudits(ctx context.Context, audits []model.CourseAudit) error {
	if len(audits) == 0 {
		return nil
	}
	n := len(audits)
	terms := make([]string, n)
	crns := make([]string, n)
	fields := make([]string, n)
	olds := make([]string, n)
	news := make([]string, n)
	createds := make([]interface{}, n)
	for i, a := range audits {
		terms[i] = a.TermCode
		crns[i] = a.CRN
		fields[i] = a.Field
		olds[i] = a.OldValue
		news[i] = a.NewValue
		createds[i] = a.CreatedAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO course_audits (term_code, crn, field, old_value, new_value, created_at)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::timestamptz[])
	`, terms, crns, fields, olds, news, createds)
	if err != nil {
		return fmt.Errorf("inserting course audits: %w", err)
	}
	return nil
}

// InsertMetrics bulk-inserts CourseMetric rows.
func (s *CourseStore) InsertMetrics(ctx context.Context, metrics []model.CourseMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	n := len(metrics)
	terms := make([]string, n)
	crns := make([]string, n)
	names := make([]string, n)
	values := make([]float64, n)
	createds := make([]interface{}, n)
	for i, m := range metrics {
		terms[i] = m.TermCode
		crns[i] = m.CRN
		names[i] = m.Metric
		values[i] = m.Value
		createds[i] = m.CreatedAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO course_metrics (term_code, crn, metric, value, created_at)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::float8[], $5::timestamptz[])
	`, terms, crns, names, values, createds)
	if err != nil {
		return fmt.Errorf("inserting course metrics: %w", err)
	}
	return nil
}
