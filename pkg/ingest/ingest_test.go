package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgraph/coursesync/pkg/events"
	"github.com/campusgraph/coursesync/pkg/model"
)

type fakeStore struct {
	existing map[CourseKey]model.Course
	written  []model.Course
	audits   []model.CourseAudit
	metrics  []model.CourseMetric
}

func (f *fakeStore) ExistingCourses(ctx context.Context, keys []CourseKey) (map[CourseKey]model.Course, error) {
	out := make(map[CourseKey]model.Course)
	for _, k := range keys {
		if c, ok := f.existing[k]; ok {
			out[k] = c
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertCourses(ctx context.Context, courses []model.Course) error {
	f.written = append(f.written, courses...)
	return nil
}

func (f *fakeStore) InsertAudits(ctx context.Context, audits []model.CourseAudit) error {
	f.audits = append(f.audits, audits...)
	return nil
}

func (f *fakeStore) InsertMetrics(ctx context.Context, metrics []model.CourseMetric) error {
	f.metrics = append(f.metrics, metrics...)
	return nil
}

func TestIngester_UpsertCourses_NewCourseGeneratesAudits(t *testing.T) {
	store := &fakeStore{existing: map[CourseKey]model.Course{}}
	in := New(store, events.New())

	course := model.Course{TermCode: "202620", CRN: "10001", Subject: "CS", Title: "Intro to Go"}
	counts, err := in.UpsertCourses(context.Background(), []model.Course{course})

	require.NoError(t, err)
	assert.Equal(t, 1, counts.Fetched)
	assert.Equal(t, 1, counts.Changed)
	assert.Zero(t, counts.Unchanged)
	assert.NotEmpty(t, store.audits)
	assert.Len(t, store.written, 1)
}

func TestIngester_UpsertCourses_UnchangedCourseIsSkipped(t *testing.T) {
	key := CourseKey{TermCode: "202620", CRN: "10001"}
	course := model.Course{TermCode: "202620", CRN: "10001", Subject: "CS", Title: "Intro to Go"}
	store := &fakeStore{existing: map[CourseKey]model.Course{key: course}}
	in := New(store, events.New())

	counts, err := in.UpsertCourses(context.Background(), []model.Course{course})

	require.NoError(t, err)
	assert.Equal(t, 1, counts.Unchanged)
	assert.Zero(t, counts.Changed)
	assert.Empty(t, store.audits)
}

func TestIngester_UpsertCourses_EmptyBatchIsNoop(t *testing.T) {
	store := &fakeStore{existing: map[CourseKey]model.Course{}}
	in := New(store, events.New())

	counts, err := in.UpsertCourses(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, counts.Fetched)
	assert.Empty(t, store.written)
}

func TestIngester_UpsertCourses_PublishesCourseChangedEvent(t *testing.T) {
	store := &fakeStore{existing: map[CourseKey]model.Course{}}
	bus := events.New()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	in := New(store, bus)

	course := model.Course{TermCode: "202620", CRN: "10001", Subject: "CS", Title: "Intro to Go"}
	_, err := in.UpsertCourses(context.Background(), []model.Course{course})
	require.NoError(t, err)

	select {
	case evt := <-sub.Events():
		assert.Equal(t, model.EventCourseChanged, evt.Kind)
	default:
		t.Fatal("expected a CourseChanged event to be published")
	}
}

func TestIngester_UpsertCourses_RerunningSameBatchIsIdempotent(t *testing.T) {
	// Property P5: running the same batch twice produces zero further
	// audit rows the second time.
	store := &fakeStore{existing: map[CourseKey]model.Course{}}
	in := New(store, events.New())
	course := model.Course{TermCode: "202620", CRN: "10001", Subject: "CS", Title: "Intro to Go"}

	_, err := in.UpsertCourses(context.Background(), []model.Course{course})
	require.NoError(t, err)
	firstAuditCount := len(store.audits)

	// Second run: existing now reflects the stored row.
	store.existing[CourseKey{TermCode: "202620", CRN: "10001"}] = course
	counts, err := in.UpsertCourses(context.Background(), []model.Course{course})
	require.NoError(t, err)

	assert.Equal(t, 1, counts.Unchanged)
	assert.Equal(t, firstAuditCount, len(store.audits))
}
