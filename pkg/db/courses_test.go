package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/campusgraph/coursesync/pkg/ingest"
	"github.com/campusgraph/coursesync/pkg/model"
)

// newTestPool boots a disposable Postgres container, runs every embedded
// migration against it, and returns a ready pool.
func newTestPool(t *testing.T) *pgxpool.Pool {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("coursesync_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(pool))
	return pool
}

func TestCourseStore_UpsertAndExistingCoursesRoundTrip(t *testing.T) {
	pool := newTestPool(t)
	store := NewCourseStore(pool)

	course := model.Course{
		TermCode: "202620", CRN: "10001", Subject: "CS", CourseNumber: "101",
		Title: "Intro to Go", EnrollmentCurrent: 30, EnrollmentMax: 40,
		Credits:       model.CreditHours{Low: 3, High: 3},
		Attributes:    []string{"WI"},
		InstructorIDs: []int32{42},
		LastScrapedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.UpsertCourses(context.Background(), []model.Course{course}))

	key := ingest.CourseKey{TermCode: "202620", CRN: "10001"}
	existing, err := store.ExistingCourses(context.Background(), []ingest.CourseKey{key})
	require.NoError(t, err)
	require.Contains(t, existing, key)

	got := existing[key]
	assert.Equal(t, "Intro to Go", got.Title)
	assert.Equal(t, 30, got.EnrollmentCurrent)
	assert.Equal(t, []string{"WI"}, got.Attributes)
	assert.Equal(t, []int32{42}, got.InstructorIDs)
}

func TestCourseStore_UpsertOverwritesOnConflict(t *testing.T) {
	pool := newTestPool(t)
	store := NewCourseStore(pool)

	course := model.Course{TermCode: "202620", CRN: "10001", Subject: "CS", Title: "Old Title"}
	require.NoError(t, store.UpsertCourses(context.Background(), []model.Course{course}))

	course.Title = "New Title"
	require.NoError(t, store.UpsertCourses(context.Background(), []model.Course{course}))

	key := ingest.CourseKey{TermCode: "202620", CRN: "10001"}
	existing, err := store.ExistingCourses(context.Background(), []ingest.CourseKey{key})
	require.NoError(t, err)
	assert.Equal(t, "New Title", existing[key].Title)
}

func TestCourseStore_ExistingCoursesEmptyKeysReturnsEmptyMap(t *testing.T) {
	pool := newTestPool(t)
	store := NewCourseStore(pool)

	existing, err := store.ExistingCourses(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestCourseStore_InsertAuditsAndMetrics(t *testing.T) {
	pool := newTestPool(t)
	store := NewCourseStore(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	audits := []model.CourseAudit{
		{TermCode: "202620", CRN: "10001", Field: "title", OldValue: "", NewValue: "Intro to Go", CreatedAt: now},
	}
	require.NoError(t, store.InsertAudits(context.Background(), audits))

	metrics := []model.CourseMetric{
		{TermCode: "202620", CRN: "10001", Metric: "enrollment_current", Value: 30, CreatedAt: now},
	}
	require.NoError(t, store.InsertMetrics(context.Background(), metrics))
}
