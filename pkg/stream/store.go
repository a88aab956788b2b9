package stream

import (
	"context"

	"github.com/campusgraph/coursesync/pkg/model"
)

// SnapshotStore supplies the initial catch-up page of audit rows for a new
// subscription, ordered oldest-first so Connection can replay them before
// switching to the live feed.
type SnapshotStore interface {
	AuditSnapshot(ctx context.Context, f Filter) ([]model.CourseAudit, error)
}
