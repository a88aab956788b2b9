package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgraph/coursesync/pkg/model"
)

// EvaluationStore implements ingest.EvaluationStore against the
// evaluations table.
type EvaluationStore struct {
	pool *pgxpool.Pool
}

// NewEvaluationStore wraps a pool.
func NewEvaluationStore(pool *pgxpool.Pool) *EvaluationStore {
	return &EvaluationStore{pool: pool}
}

// UpsertEvaluations bulk-writes evaluation-site records via
// unnest-parallel-arrays, keyed by their natural key.
func (s *EvaluationStore) UpsertEvaluations(ctx context.Context, records []model.EvaluationRecord) error {
	if len(records) == 0 {
		return nil
	}
	subjects := make([]string, len(records))
	courseNumbers := make([]string, len(records))
	sections := make([]string, len(records))
	terms := make([]string, len(records))
	instructorNames := make([]string, len(records))
	ratings := make([]float64, len(records))
	responseCounts := make([]int32, len(records))
	departments := make([]string, len(records))

	for i, r := range records {
		subjects[i] = r.Subject
		courseNumbers[i] = r.CourseNumber
		sections[i] = r.Section
		terms[i] = r.Term
		instructorNames[i] = r.InstructorName
		ratings[i] = r.Rating
		responseCounts[i] = int32(r.ResponseCount)
		departments[i] = r.Department
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO evaluations (subject, course_number, section, term, instructor_name, rating, response_count, department)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::float8[], $7::int[], $8::text[])
		ON CONFLICT (subject, course_number, section, term, instructor_name) DO UPDATE SET
			rating = EXCLUDED.rating,
			response_count = EXCLUDED.response_count,
			department = EXCLUDED.department
	`, subjects, courseNumbers, sections, terms, instructorNames, ratings, responseCounts, departments)
	if err != nil {
		return fmt.Errorf("upsert evaluations: %w", err)
	}
	return nil
}
