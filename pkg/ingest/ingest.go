// Package ingest implements the Ingestion component (C12): bulk upsert of
// scraped entities via the Postgres "unnest parallel arrays" idiom,
// field-level change detection against the current row, and
// CourseAudit/CourseMetric/CourseChanged emission on every changed field.
// The parallel-array unnest upsert is a general Postgres pattern (pass one
// slice per column, unnest them together to synthesize a row set for a
// single bulk INSERT ... ON CONFLICT), not something the teacher's
// ent-graph-backed pkg/queue does anywhere — ent persists one row per
// call. The diff-then-audit shell around it follows the teacher's own
// upsert-then-diff ingestion path (see pkg/db's repository layer for where
// this is exercised).
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/campusgraph/coursesync/pkg/apperrors"
	"github.com/campusgraph/coursesync/pkg/events"
	"github.com/campusgraph/coursesync/pkg/metrics"
	"github.com/campusgraph/coursesync/pkg/model"
	"github.com/campusgraph/coursesync/pkg/worker"
)

// CourseKey is the natural key of a section.
type CourseKey struct {
	TermCode string
	CRN      string
}

// Store is the persistence dependency backing ingestion, implemented by
// pkg/db.
type Store interface {
	// ExistingCourses fetches the current row for every key that exists,
	// keyed for O(1) diff lookup.
	ExistingCourses(ctx context.Context, keys []CourseKey) (map[CourseKey]model.Course, error)
	// UpsertCourses bulk-writes courses via unnest-parallel-arrays with
	// ON CONFLICT (term_code, crn) DO UPDATE, refreshing last_scraped_at
	// on every row regardless of whether any other field changed.
	UpsertCourses(ctx context.Context, courses []model.Course) error
	InsertAudits(ctx context.Context, audits []model.CourseAudit) error
	InsertMetrics(ctx context.Context, metrics []model.CourseMetric) error
}

// Ingester drives C12's upsert pipeline and satisfies the adapters'
// Ingester interface (erp.Ingester et al.).
type Ingester struct {
	store Store
	bus   *events.Bus
}

// New constructs an Ingester.
func New(store Store, bus *events.Bus) *Ingester {
	return &Ingester{store: store, bus: bus}
}

// UpsertCourses dedups the batch, diffs each course against its current
// row, writes the new rows plus any audit/metric rows, and publishes a
// CourseChanged event per changed field. Property P5: running the same
// batch twice produces identical rows (aside from last_scraped_at) and
// zero further audit rows the second time.
func (in *Ingester) UpsertCourses(ctx context.Context, courses []model.Course) (worker.UpsertCounts, error) {
	deduped := dedupCourses(courses)
	if len(deduped) == 0 {
		return worker.UpsertCounts{}, nil
	}

	keys := make([]CourseKey, 0, len(deduped))
	for k := range deduped {
		keys = append(keys, k)
	}

	existing, err := in.store.ExistingCourses(ctx, keys)
	if err != nil {
		return worker.UpsertCounts{}, apperrors.Wrap(apperrors.KindSchemaViolation, "loading existing courses for diff", err)
	}

	now := time.Now().UTC()
	counts := worker.UpsertCounts{Fetched: len(deduped)}
	toWrite := make([]model.Course, 0, len(deduped))
	var audits []model.CourseAudit
	var metricRows []model.CourseMetric

	for key, course := range deduped {
		course.LastScrapedAt = now
		toWrite = append(toWrite, course)

		var prevPtr *model.Course
		if prev, ok := existing[key]; ok {
			prevPtr = &prev
		}
		changes := diffCourse(prevPtr, course)
		if len(changes) == 0 {
			counts.Unchanged++
			continue
		}
		counts.Changed++
		counts.AuditsGenerated += len(changes)

		for _, ch := range changes {
			audits = append(audits, model.CourseAudit{
				TermCode:  key.TermCode,
				CRN:       key.CRN,
				Field:     ch.Field,
				OldValue:  ch.Old,
				NewValue:  ch.New,
				CreatedAt: now,
			})
			if ch.IsMetric {
				metricRows = append(metricRows, model.CourseMetric{
					TermCode:  key.TermCode,
					CRN:       key.CRN,
					Metric:    ch.Field,
					Value:     ch.Value,
					CreatedAt: now,
				})
			}
			in.bus.Publish(model.Event{
				Kind:      model.EventCourseChanged,
				Timestamp: now,
				Payload: model.CourseChangedPayload{
					TermCode: key.TermCode,
					CRN:      key.CRN,
					Subject:  course.Subject,
					Field:    ch.Field,
					OldValue: ch.Old,
					NewValue: ch.New,
				},
			})
		}
	}

	if err := in.store.UpsertCourses(ctx, toWrite); err != nil {
		return worker.UpsertCounts{}, apperrors.Wrap(apperrors.KindSchemaViolation, "upserting courses", err)
	}
	if len(audits) > 0 {
		if err := in.store.InsertAudits(ctx, audits); err != nil {
			return worker.UpsertCounts{}, apperrors.Wrap(apperrors.KindSchemaViolation, "inserting course audits", err)
		}
	}
	if len(metricRows) > 0 {
		if err := in.store.InsertMetrics(ctx, metricRows); err != nil {
			return worker.UpsertCounts{}, apperrors.Wrap(apperrors.KindSchemaViolation, "inserting course metrics", err)
		}
	}

	metrics.CoursesIngestedTotal.Add(float64(len(toWrite)))
	slog.Info("ingested courses", "fetched", counts.Fetched, "changed", counts.Changed,
		"unchanged", counts.Unchanged, "audits", counts.AuditsGenerated)
	return counts, nil
}

// dedupCourses collapses in-batch duplicates by natural key, keeping the
// richer row: more meetings, then more attributes; on a tie the first row
// seen is kept (spec §4.12).
func dedupCourses(courses []model.Course) map[CourseKey]model.Course {
	out := make(map[CourseKey]model.Course, len(courses))
	for _, c := range courses {
		key := CourseKey{TermCode: c.TermCode, CRN: c.CRN}
		existing, ok := out[key]
		if !ok || richerCourse(c, existing) {
			out[key] = c
		}
	}
	return out
}

func richerCourse(a, b model.Course) bool {
	if len(a.Meetings) != len(b.Meetings) {
		return len(a.Meetings) > len(b.Meetings)
	}
	return len(a.Attributes) > len(b.Attributes)
}
