package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgraph/coursesync/pkg/model"
	"github.com/campusgraph/coursesync/pkg/stream"
)

func TestAuditStore_AuditSnapshotOrdersOldestFirst(t *testing.T) {
	pool := newTestPool(t)
	courseStore := NewCourseStore(pool)
	ctx := context.Background()

	require.NoError(t, courseStore.UpsertCourses(ctx, []model.Course{
		{TermCode: "202620", CRN: "10001", Subject: "CS", Title: "Intro to Go"},
	}))

	older := time.Now().Add(-time.Hour).UTC().Truncate(time.Microsecond)
	newer := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, courseStore.InsertAudits(ctx, []model.CourseAudit{
		{TermCode: "202620", CRN: "10001", Field: "enrollment_current", OldValue: "10", NewValue: "20", CreatedAt: newer},
		{TermCode: "202620", CRN: "10001", Field: "title", OldValue: "Old", NewValue: "New", CreatedAt: older},
	}))

	store := NewAuditStore(pool)
	rows, err := store.AuditSnapshot(ctx, stream.Filter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].CreatedAt.Before(rows[1].CreatedAt) || rows[0].CreatedAt.Equal(rows[1].CreatedAt))
}

func TestAuditStore_AuditSnapshotFiltersBySubjectViaJoin(t *testing.T) {
	pool := newTestPool(t)
	courseStore := NewCourseStore(pool)
	ctx := context.Background()

	require.NoError(t, courseStore.UpsertCourses(ctx, []model.Course{
		{TermCode: "202620", CRN: "10001", Subject: "CS", Title: "CS Course"},
		{TermCode: "202620", CRN: "20002", Subject: "MA", Title: "MA Course"},
	}))
	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, courseStore.InsertAudits(ctx, []model.CourseAudit{
		{TermCode: "202620", CRN: "10001", Field: "title", CreatedAt: now},
		{TermCode: "202620", CRN: "20002", Field: "title", CreatedAt: now},
	}))

	store := NewAuditStore(pool)
	rows, err := store.AuditSnapshot(ctx, stream.Filter{Subjects: []string{"CS"}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "10001", rows[0].CRN)
}

func TestAuditStore_AuditSnapshotRespectsSinceFilter(t *testing.T) {
	pool := newTestPool(t)
	courseStore := NewCourseStore(pool)
	ctx := context.Background()

	require.NoError(t, courseStore.UpsertCourses(ctx, []model.Course{
		{TermCode: "202620", CRN: "10001", Subject: "CS", Title: "CS Course"},
	}))
	cutoff := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, courseStore.InsertAudits(ctx, []model.CourseAudit{
		{TermCode: "202620", CRN: "10001", Field: "title", CreatedAt: cutoff.Add(-time.Minute)},
	}))

	store := NewAuditStore(pool)
	rows, err := store.AuditSnapshot(ctx, stream.Filter{Since: &cutoff, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, rows, "audit rows created before the cutoff must be excluded")
}
