// Package queue implements the job queue (C7): a Postgres-backed table of
// pending work, claimed via row-level FOR UPDATE SKIP LOCKED so concurrent
// workers never block each other (spec §4.7, §5).
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgraph/coursesync/pkg/events"
	"github.com/campusgraph/coursesync/pkg/model"
)

// Queue wraps a connection pool and an event bus. LockNext, Retry, Complete
// and Delete each emit one event to the bus, Exhaust emits two, and Unlock,
// BatchInsert and InsertResult emit none (spec §4.7).
type Queue struct {
	pool *pgxpool.Pool
	bus  *events.Bus
}

// New wraps an existing pool. The jobs table is created by migrations.
func New(pool *pgxpool.Pool, bus *events.Bus) *Queue {
	return &Queue{pool: pool, bus: bus}
}

func (q *Queue) publish(kind model.EventKind, payload model.JobEventPayload) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(model.Event{Kind: kind, Timestamp: time.Now().UTC(), Payload: payload})
}

// LockNext atomically picks the single highest-priority runnable job and
// marks it locked. Returns (nil, false, nil) when no job is runnable.
func (q *Queue) LockNext(ctx context.Context) (*model.Job, bool, error) {
	const query = `
		UPDATE jobs SET locked_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE locked_at IS NULL AND execute_at <= now()
			ORDER BY
				CASE priority WHEN 'high' THEN 2 WHEN 'normal' THEN 1 ELSE 0 END DESC,
				execute_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, target_type, target_payload, priority, execute_at, locked_at, retry_count, max_retries, queued_at
	`
	row := q.pool.QueryRow(ctx, query)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lock_next: %w", err)
	}
	q.publish(model.EventJobLocked, model.JobEventPayload{JobID: job.ID, TargetType: job.TargetType})
	return job, true, nil
}

// Unlock clears locked_at without touching retry_count.
func (q *Queue) Unlock(ctx context.Context, id int32) error {
	_, err := q.pool.Exec(ctx, `UPDATE jobs SET locked_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("unlock job %d: %w", id, err)
	}
	return nil
}

// Retry unlocks the job, increments retry_count, and reschedules it.
func (q *Queue) Retry(ctx context.Context, id int32, executeAt time.Time) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE jobs SET locked_at = NULL, retry_count = retry_count + 1, execute_at = $2
		WHERE id = $1
	`, id, executeAt)
	if err != nil {
		return fmt.Errorf("retry job %d: %w", id, err)
	}
	q.publish(model.EventJobRetried, model.JobEventPayload{JobID: id})
	return nil
}

// Complete deletes the row on success.
func (q *Queue) Complete(ctx context.Context, id int32) error {
	if _, err := q.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("complete job %d: %w", id, err)
	}
	q.publish(model.EventJobCompleted, model.JobEventPayload{JobID: id})
	return nil
}

// Delete removes a corrupt job outright (unrecoverable payload path).
func (q *Queue) Delete(ctx context.Context, id int32) error {
	if _, err := q.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete job %d: %w", id, err)
	}
	q.publish(model.EventJobDeleted, model.JobEventPayload{JobID: id})
	return nil
}

// Exhaust marks and then deletes a job that has exceeded its retry budget,
// emitting both Exhausted and Deleted events (spec §4.9).
func (q *Queue) Exhaust(ctx context.Context, id int32) error {
	if _, err := q.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("exhaust job %d: %w", id, err)
	}
	q.publish(model.EventJobExhausted, model.JobEventPayload{JobID: id})
	q.publish(model.EventJobDeleted, model.JobEventPayload{JobID: id})
	return nil
}

// BatchInsert inserts N rows built from already-deduplicated payloads.
func (q *Queue) BatchInsert(ctx context.Context, targetType string, payloads [][]byte, priority model.Priority, maxRetries int) error {
	if len(payloads) == 0 {
		return nil
	}
	targetTypes := make([]string, len(payloads))
	priorities := make([]string, len(payloads))
	maxRetriesArr := make([]int, len(payloads))
	now := time.Now().UTC()
	executeAts := make([]time.Time, len(payloads))
	queuedAts := make([]time.Time, len(payloads))
	for i := range payloads {
		targetTypes[i] = targetType
		priorities[i] = string(priority)
		maxRetriesArr[i] = maxRetries
		executeAts[i] = now
		queuedAts[i] = now
	}
	_, err := q.pool.Exec(ctx, `
		INSERT INTO jobs (target_type, target_payload, priority, execute_at, max_retries, queued_at)
		SELECT * FROM unnest($1::text[], $2::jsonb[], $3::text[], $4::timestamptz[], $5::int[], $6::timestamptz[])
	`, targetTypes, payloads, priorities, executeAts, maxRetriesArr, queuedAts)
	if err != nil {
		return fmt.Errorf("batch_insert %s: %w", targetType, err)
	}
	return nil
}

// FindExistingPayloads returns the subset of payloads already queued for
// targetType, compared by exact JSON string equality, for de-duplication
// ahead of BatchInsert.
func (q *Queue) FindExistingPayloads(ctx context.Context, targetType string, payloads [][]byte) ([][]byte, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	rows, err := q.pool.Query(ctx, `
		SELECT target_payload FROM jobs
		WHERE target_type = $1 AND target_payload = ANY($2::jsonb[])
	`, targetType, payloads)
	if err != nil {
		return nil, fmt.Errorf("find_existing_payloads %s: %w", targetType, err)
	}
	defer rows.Close()

	var existing [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan existing payload: %w", err)
		}
		existing = append(existing, raw)
	}
	return existing, rows.Err()
}

// resultRow is one raw per-run record read back out for stats, ordered
// most-recent-first within its (subject, term) group.
type resultRow struct {
	succeeded bool
	empty     bool // true if the fetch returned zero courses
	changed   bool
	completed time.Time
}

// FetchSubjectStats returns per-(subject, term) rolling statistics over a
// bounded recent window (the most recent `window` runs), used by the
// scheduler's SubjectSchedule rules. Consecutive-run counts are computed in
// Go over the ordered rows rather than in SQL, since "consecutive from the
// most recent row" does not reduce to a simple aggregate.
func (q *Queue) FetchSubjectStats(ctx context.Context, window int) ([]model.SubjectStats, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT target_payload->>'subject' AS subject, target_payload->>'term' AS term,
		       success, (courses_fetched = 0) AS empty,
		       (courses_changed > 0) AS changed, created_at
		FROM job_results
		WHERE target_type = $1
		ORDER BY subject, term, created_at DESC
	`, model.TargetTypeSubject)
	if err != nil {
		return nil, fmt.Errorf("fetch_subject_stats: %w", err)
	}
	defer rows.Close()

	grouped := make(map[[2]string][]resultRow)
	order := make([][2]string, 0)
	for rows.Next() {
		var subject, term string
		var r resultRow
		if err := rows.Scan(&subject, &term, &r.succeeded, &r.empty, &r.changed, &r.completed); err != nil {
			return nil, fmt.Errorf("scan subject stats row: %w", err)
		}
		key := [2]string{subject, term}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := make([]model.SubjectStats, 0, len(order))
	for _, key := range order {
		all := grouped[key]
		recent := all
		if window > 0 && len(recent) > window {
			recent = recent[:window]
		}

		s := model.SubjectStats{Subject: key[0], Term: key[1], RecentRuns: len(recent)}
		changedCount := 0
		for _, r := range recent {
			if r.succeeded {
				s.RecentSuccessCount++
			} else {
				s.RecentFailureCount++
			}
			if r.changed {
				changedCount++
			}
		}
		if len(recent) > 0 {
			s.AvgChangeRatio = float64(changedCount) / float64(len(recent))
			last := recent[0].completed
			s.LastCompleted = &last
		}

		for _, r := range recent {
			if r.changed {
				break
			}
			s.ConsecutiveZeroChanges++
		}
		for _, r := range recent {
			if !r.empty {
				break
			}
			s.ConsecutiveEmptyFetches++
		}

		stats = append(stats, s)
	}
	return stats, nil
}

// InsertResult appends a JobResult row for audit/statistics purposes.
func (q *Queue) InsertResult(ctx context.Context, r model.JobResult) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO job_results (
			job_id, target_type, target_payload, duration_ms, success, error_message,
			courses_fetched, courses_changed, courses_unchanged, audits_generated,
			retry_count_at_completion, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, r.JobID, r.TargetType, r.TargetPayload, r.DurationMS, r.Success, r.ErrorMessage,
		r.CoursesFetched, r.CoursesChanged, r.CoursesUnchanged, r.AuditsGenerated,
		r.RetryCountAtCompletion, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert_result: %w", err)
	}
	return nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var payload []byte
	var priority string
	var lockedAt *time.Time
	if err := row.Scan(&j.ID, &j.TargetType, &payload, &priority, &j.ExecuteAt, &lockedAt, &j.RetryCount, &j.MaxRetries, &j.QueuedAt); err != nil {
		return nil, err
	}
	j.TargetPayload = payload
	j.Priority = model.Priority(priority)
	j.LockedAt = lockedAt
	return &j, nil
}

// EncodeSubjectPayload marshals a SubjectJobPayload deterministically for
// exact-string-match de-duplication.
func EncodeSubjectPayload(p model.SubjectJobPayload) ([]byte, error) {
	return json.Marshal(p)
}
