package ingest

import (
	"context"

	"github.com/campusgraph/coursesync/pkg/apperrors"
	"github.com/campusgraph/coursesync/pkg/refcache"
)

// ReferenceStore bulk-upserts reference-data rows keyed by (category, code),
// implemented by pkg/db.
type ReferenceStore interface {
	UpsertReferenceData(ctx context.Context, rows []refcache.Row) error
}

// UpsertReferenceData dedups the incoming rows by (category, code), keeping
// the last one in iteration order, and writes them in one unnest-parallel-
// arrays statement. No change detection or audit trail applies to
// reference data — only the canonical Subject/course rows are audited.
func UpsertReferenceData(ctx context.Context, store ReferenceStore, rows []refcache.Row) error {
	deduped := make(map[[2]string]refcache.Row, len(rows))
	for _, r := range rows {
		deduped[[2]string{r.Category, r.Code}] = r
	}
	out := make([]refcache.Row, 0, len(deduped))
	for _, r := range deduped {
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil
	}
	if err := store.UpsertReferenceData(ctx, out); err != nil {
		return apperrors.Wrap(apperrors.KindSchemaViolation, "upserting reference data", err)
	}
	return nil
}
