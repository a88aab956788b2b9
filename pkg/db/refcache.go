package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgraph/coursesync/pkg/refcache"
)

// ReferenceLoader adapts a pool into a refcache.Loader.
func ReferenceLoader(pool *pgxpool.Pool) refcache.Loader {
	return func(ctx context.Context) ([]refcache.Row, error) {
		rows, err := pool.Query(ctx, `SELECT category, code, description FROM reference_data`)
		if err != nil {
			return nil, fmt.Errorf("loading reference data: %w", err)
		}
		defer rows.Close()

		var out []refcache.Row
		for rows.Next() {
			var r refcache.Row
			if err := rows.Scan(&r.Category, &r.Code, &r.Description); err != nil {
				return nil, fmt.Errorf("scanning reference row: %w", err)
			}
			out = append(out, r)
		}
		return out, rows.Err()
	}
}

// ReferenceStore implements ingest.ReferenceStore.
type ReferenceStore struct {
	pool *pgxpool.Pool
}

// NewReferenceStore wraps a pool.
func NewReferenceStore(pool *pgxpool.Pool) *ReferenceStore {
	return &ReferenceStore{pool: pool}
}

// UpsertReferenceData bulk-writes reference rows via unnest-parallel-arrays.
func (s *ReferenceStore) UpsertReferenceData(ctx context.Context, rows []refcache.Row) error {
	if len(rows) == 0 {
		return nil
	}
	categories := make([]string, len(rows))
	codes := make([]string, len(rows))
	descriptions := make([]string, len(rows))
	for i, r := range rows {
		categories[i] = r.Category
		codes[i] = r.Code
		descriptions[i] = r.Description
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reference_data (category, code, description)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[])
		ON CONFLICT (category, code) DO UPDATE SET description = EXCLUDED.description
	`, categories, codes, descriptions)
	if err != nil {
		return fmt.Errorf("upsert reference data: %w", err)
	}
	return nil
}
