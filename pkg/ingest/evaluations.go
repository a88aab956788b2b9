package ingest

import (
	"context"

	"github.com/campusgraph/coursesync/pkg/apperrors"
	"github.com/campusgraph/coursesync/pkg/model"
)

// EvaluationStore bulk-upserts evaluation-site rows keyed by their natural
// key, implemented by pkg/db.
type EvaluationStore interface {
	UpsertEvaluations(ctx context.Context, records []model.EvaluationRecord) error
}

// UpsertEvaluations dedups by natural key, keeping the row with the higher
// response count (the evaluation site occasionally serves a stale partial
// count on the first page of a re-crawl), then writes in one batch.
func UpsertEvaluations(ctx context.Context, store EvaluationStore, records []model.EvaluationRecord) error {
	deduped := make(map[[5]string]model.EvaluationRecord, len(records))
	for _, r := range records {
		key := r.NaturalKey()
		if existing, ok := deduped[key]; !ok || r.ResponseCount > existing.ResponseCount {
			deduped[key] = r
		}
	}
	out := make([]model.EvaluationRecord, 0, len(deduped))
	for _, r := range deduped {
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil
	}
	if err := store.UpsertEvaluations(ctx, out); err != nil {
		return apperrors.Wrap(apperrors.KindSchemaViolation, "upserting evaluation records", err)
	}
	return nil
}
