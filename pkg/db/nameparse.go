package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgraph/coursesync/pkg/model"
	"github.com/campusgraph/coursesync/pkg/nameparse"
)

// RunEvaluationMatch begins a transaction, runs the evaluation-site
// auto-match pipeline against it, and commits only on full success, so a
// crash mid-run leaves existing manual decisions untouched (spec §5).
func RunEvaluationMatch(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin eval match tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := nameparse.RunEvaluationMatch(ctx, &evalMatchStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RunRatingMatch begins a transaction, runs the rating-site auto-match
// pipeline against it, and commits only on full success.
func RunRatingMatch(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rating match tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := nameparse.RunRatingMatch(ctx, &rmpMatchStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// evalMatchStore implements nameparse.EvalMatchStore against a single
// in-flight transaction.
type evalMatchStore struct {
	tx pgx.Tx
}

func (s *evalMatchStore) DeleteAutoAndPendingEvalLinks(ctx context.Context) error {
	_, err := s.tx.Exec(ctx, `DELETE FROM eval_links WHERE status IN ('auto', 'pending')`)
	return err
}

// DistinctEvalNamesWithoutDecision groups every evaluation row lacking an
// approved/rejected decision by (instructor_name, subject), joining to
// courses to recover the (crn, term) pairs a name's sections map to.
func (s *evalMatchStore) DistinctEvalNamesWithoutDecision(ctx context.Context) ([]nameparse.EvalNameGroup, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT e.instructor_name, e.subject, c.crn, c.term_code
		FROM evaluations e
		LEFT JOIN courses c
		       ON c.subject = e.subject AND c.course_number = e.course_number
		      AND c.sequence = e.section AND c.term_code = e.term
		WHERE NOT EXISTS (
			SELECT 1 FROM eval_links l
			WHERE l.instructor_name = e.instructor_name AND l.subject = e.subject
			  AND l.status IN ('approved', 'rejected')
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("listing undecided eval names: %w", err)
	}
	defer rows.Close()

	index := make(map[[2]string]*nameparse.EvalNameGroup)
	var order [][2]string
	for rows.Next() {
		var name, subject string
		var crn, term *string
		if err := rows.Scan(&name, &subject, &crn, &term); err != nil {
			return nil, fmt.Errorf("scanning eval name row: %w", err)
		}
		key := [2]string{name, subject}
		g, ok := index[key]
		if !ok {
			g = &nameparse.EvalNameGroup{Name: name, Subject: subject}
			index[key] = g
			order = append(order, key)
		}
		if crn != nil && term != nil {
			g.CRNTerms = append(g.CRNTerms, [2]string{*crn, *term})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]nameparse.EvalNameGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *index[key])
	}
	return out, nil
}

// InstructorsByCRNTerm loads every instructor teaching any of the given
// (crn, term) sections, deduplicated, joining through the courses table's
// jsonb instructor_ids array.
func (s *evalMatchStore) InstructorsByCRNTerm(ctx context.Context, crnTerms [][2]string) ([]model.Instructor, error) {
	if len(crnTerms) == 0 {
		return nil, nil
	}
	crns := make([]string, len(crnTerms))
	terms := make([]string, len(crnTerms))
	for i, ct := range crnTerms {
		crns[i] = ct[0]
		terms[i] = ct[1]
	}
	rows, err := s.tx.Query(ctx, `
		SELECT DISTINCT i.id, i.subjects, i.first_name, i.last_name, i.suffix, i.slug, i.email, i.rmp_status
		FROM instructors i
		JOIN courses c ON c.instructor_ids @> to_jsonb(i.id)
		WHERE (c.crn, c.term_code) IN (SELECT * FROM unnest($1::text[], $2::text[]))
	`, crns, terms)
	if err != nil {
		return nil, fmt.Errorf("joining instructors by crn/term: %w", err)
	}
	defer rows.Close()
	return scanInstructors(rows)
}

func (s *evalMatchStore) AllInstructors(ctx context.Context) ([]model.Instructor, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT id, subjects, first_name, last_name, suffix, slug, email, rmp_status FROM instructors
	`)
	if err != nil {
		return nil, fmt.Errorf("loading instructor directory: %w", err)
	}
	defer rows.Close()
	return scanInstructors(rows)
}

func (s *evalMatchStore) UpsertEvalLink(ctx context.Context, link model.EvalLink) error {
	_, err := s.tx.Exec(ctx, `
		INSERT INTO eval_links (instructor_name, subject, instructor_id, status, confidence)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (instructor_name, subject) DO UPDATE SET
			instructor_id = EXCLUDED.instructor_id,
			status = EXCLUDED.status,
			confidence = EXCLUDED.confidence
	`, link.InstructorName, link.Subject, link.InstructorID, link.Status, link.Confidence)
	if err != nil {
		return fmt.Errorf("upserting eval link for %q: %w", link.InstructorName, err)
	}
	return nil
}

func scanInstructors(rows pgx.Rows) ([]model.Instructor, error) {
	var out []model.Instructor
	for rows.Next() {
		var ins model.Instructor
		var subjectsRaw []byte
		if err := rows.Scan(&ins.ID, &subjectsRaw, &ins.FirstName, &ins.LastName, &ins.Suffix,
			&ins.Slug, &ins.Email, &ins.RmpStatus); err != nil {
			return nil, fmt.Errorf("scanning instructor row: %w", err)
		}
		subjects, err := decodeStrings(subjectsRaw)
		if err != nil {
			return nil, fmt.Errorf("decoding subjects for instructor %d: %w", ins.ID, err)
		}
		ins.Subjects = subjects
		out = append(out, ins)
	}
	return out, rows.Err()
}

// rmpMatchStore implements nameparse.RmpMatchStore against a single
// in-flight transaction.
type rmpMatchStore struct {
	tx pgx.Tx
}

func (s *rmpMatchStore) DeletePendingCandidatesAndAutoLinks(ctx context.Context) error {
	if _, err := s.tx.Exec(ctx, `DELETE FROM rmp_candidates WHERE status = 'pending'`); err != nil {
		return fmt.Errorf("deleting pending candidates: %w", err)
	}
	_, err := s.tx.Exec(ctx, `
		DELETE FROM rmp_links WHERE instructor_id IN (
			SELECT id FROM instructors WHERE rmp_status = 'auto'
		)
	`)
	if err != nil {
		return fmt.Errorf("deleting auto rmp links: %w", err)
	}
	return nil
}

func (s *rmpMatchStore) ResetAutoInstructorsToUnmatched(ctx context.Context) error {
	_, err := s.tx.Exec(ctx, `UPDATE instructors SET rmp_status = 'unmatched' WHERE rmp_status = 'auto'`)
	return err
}

func (s *rmpMatchStore) AllRatingProfiles(ctx context.Context) ([]model.RatingProfile, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT legacy_id, first_name, last_name, department, avg_rating, avg_difficulty,
		       num_ratings, would_take_again_pct, course_prefixes, refresh_cadence_days
		FROM rating_profiles
	`)
	if err != nil {
		return nil, fmt.Errorf("loading rating profiles: %w", err)
	}
	defer rows.Close()

	var out []model.RatingProfile
	for rows.Next() {
		var p model.RatingProfile
		var prefixesRaw []byte
		if err := rows.Scan(&p.LegacyID, &p.FirstName, &p.LastName, &p.Department, &p.AvgRating,
			&p.AvgDifficulty, &p.NumRatings, &p.WouldTakeAgainPct, &prefixesRaw, &p.RefreshCadenceDays); err != nil {
			return nil, fmt.Errorf("scanning rating profile row: %w", err)
		}
		prefixes, err := decodeStrings(prefixesRaw)
		if err != nil {
			return nil, fmt.Errorf("decoding course prefixes for profile %d: %w", p.LegacyID, err)
		}
		p.CoursePrefixes = prefixes
		out = append(out, p)
	}
	return out, rows.Err()
}

// MatchableInstructors returns every instructor not yet confirmed or
// rejected against the rating site.
func (s *rmpMatchStore) MatchableInstructors(ctx context.Context) ([]model.Instructor, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT id, subjects, first_name, last_name, suffix, slug, email, rmp_status
		FROM instructors
		WHERE rmp_status IN ('unmatched', 'pending', 'auto')
	`)
	if err != nil {
		return nil, fmt.Errorf("loading matchable instructors: %w", err)
	}
	defer rows.Close()
	return scanInstructors(rows)
}

func (s *rmpMatchStore) UpsertCandidate(ctx context.Context, c model.RmpCandidate) error {
	breakdown, err := json.Marshal(c.Breakdown)
	if err != nil {
		return fmt.Errorf("encoding match breakdown: %w", err)
	}
	if _, err := s.tx.Exec(ctx, `
		INSERT INTO rmp_candidates (instructor_id, rating_legacy_id, score, breakdown, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (instructor_id, rating_legacy_id) DO UPDATE SET
			score = EXCLUDED.score,
			breakdown = EXCLUDED.breakdown,
			status = EXCLUDED.status
	`, c.InstructorID, c.RatingLegacyID, c.Score, breakdown, c.Status); err != nil {
		return fmt.Errorf("upserting rmp candidate: %w", err)
	}
	// Only flip a still-unmatched instructor to pending; never downgrade one
	// already auto-linked earlier in the same run by a higher-scored candidate.
	_, err = s.tx.Exec(ctx, `
		UPDATE instructors SET rmp_status = 'pending'
		WHERE id = $1 AND rmp_status = 'unmatched'
	`, c.InstructorID)
	return err
}

func (s *rmpMatchStore) AutoLinkInstructor(ctx context.Context, instructorID, ratingLegacyID int32) error {
	if _, err := s.tx.Exec(ctx, `
		INSERT INTO rmp_links (instructor_id, rating_legacy_id)
		VALUES ($1, $2)
		ON CONFLICT (instructor_id) DO UPDATE SET rating_legacy_id = EXCLUDED.rating_legacy_id
	`, instructorID, ratingLegacyID); err != nil {
		return fmt.Errorf("auto-linking instructor %d: %w", instructorID, err)
	}
	_, err := s.tx.Exec(ctx, `UPDATE instructors SET rmp_status = 'auto' WHERE id = $1`, instructorID)
	return err
}
