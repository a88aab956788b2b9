package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgraph/coursesync/pkg/model"
)

// TermStore implements the scheduler's term directory dependency and the
// small amount of term bookkeeping ingestion needs (stamping
// last_scraped_at once a term's scrape cycle completes).
type TermStore struct {
	pool *pgxpool.Pool
}

// NewTermStore wraps a pool.
func NewTermStore(pool *pgxpool.Pool) *TermStore {
	return &TermStore{pool: pool}
}

// LoadTerms satisfies scheduler.Deps.LoadTerms.
func (s *TermStore) LoadTerms(ctx context.Context) ([]model.Term, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, description, is_archived, is_enabled_for_scraping, last_scraped_at FROM terms
	`)
	if err != nil {
		return nil, fmt.Errorf("loading terms: %w", err)
	}
	defer rows.Close()

	var out []model.Term
	for rows.Next() {
		var t model.Term
		if err := rows.Scan(&t.Code, &t.Description, &t.IsArchived, &t.IsEnabledForScraping, &t.LastScrapedAt); err != nil {
			return nil, fmt.Errorf("scanning term row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertTerms bulk-writes the term directory as scraped from the ERP's term
// listing.
func (s *TermStore) UpsertTerms(ctx context.Context, terms []model.Term) error {
	if len(terms) == 0 {
		return nil
	}
	n := len(terms)
	codes := make([]string, n)
	descriptions := make([]string, n)
	archived := make([]bool, n)
	enabled := make([]bool, n)
	for i, t := range terms {
		codes[i] = t.Code
		descriptions[i] = t.Description
		archived[i] = t.IsArchived
		enabled[i] = t.IsEnabledForScraping
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO terms (code, description, is_archived, is_enabled_for_scraping)
		SELECT * FROM unnest($1::text[], $2::text[], $3::bool[], $4::bool[])
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description,
			is_archived = EXCLUDED.is_archived,
			is_enabled_for_scraping = EXCLUDED.is_enabled_for_scraping
	`, codes, descriptions, archived, enabled)
	if err != nil {
		return fmt.Errorf("upserting terms: %w", err)
	}
	return nil
}

// MarkTermScraped stamps last_scraped_at for one term after a completed
// scrape cycle.
func (s *TermStore) MarkTermScraped(ctx context.Context, termCode string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE terms SET last_scraped_at = $2 WHERE code = $1`, termCode, at)
	if err != nil {
		return fmt.Errorf("marking term %s scraped: %w", termCode, err)
	}
	return nil
}

// CachedSubjects returns the subject codes cached for termCode, or an
// empty slice if nothing has ever been cached for it. Satisfies
// erp.SubjectCache.
func (s *TermStore) CachedSubjects(ctx context.Context, termCode string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT code FROM subjects WHERE term_code = $1 ORDER BY code`, termCode)
	if err != nil {
		return nil, fmt.Errorf("loading cached subjects for %s: %w", termCode, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scanning cached subject row: %w", err)
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

// CacheSubjects replaces the cached subject list for termCode with
// subjects. A no-op on an empty list: callers should never wipe a cache
// entry just because a live fetch returned nothing.
func (s *TermStore) CacheSubjects(ctx context.Context, termCode string, subjects []string) error {
	if len(subjects) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin term subjects cache tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM subjects WHERE term_code = $1`, termCode); err != nil {
		return fmt.Errorf("clearing cached subjects for %s: %w", termCode, err)
	}

	termCodes := make([]string, len(subjects))
	for i := range subjects {
		termCodes[i] = termCode
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO subjects (term_code, code)
		SELECT * FROM unnest($1::text[], $2::text[])
	`, termCodes, subjects); err != nil {
		return fmt.Errorf("caching subjects for %s: %w", termCode, err)
	}

	return tx.Commit(ctx)
}
