// Package kv implements the durable (key -> string) map used by the
// scheduler to persist "last completed at" sentinels across restarts
// (spec §4.1). The backing table may be unlogged — crash-loss of the most
// recent write is acceptable, since a missed sentinel just means the
// scheduler re-runs a sync task it didn't strictly need to.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Stable keys used by the adaptive scheduler (spec §4.1, §6).
const (
	KeyRefScrape  = "scheduler.ref_scrape"
	KeyRmpSync    = "scheduler.rmp_sync"
	KeyTermSync   = "scheduler.term_sync"
	KeyBluebook   = "scheduler.bluebook_sync"
	KeyBotCmdFP   = "bot.commands_fingerprint"
)

// Store is a Postgres-backed (key -> string) map.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. The kv table is created by migrations.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get returns the value for key, or ("", false) if unset.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("kv get %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts key -> value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

// GetTimestamp parses the stored value as RFC-3339. Returns (zero, false)
// if unset or unparseable — a corrupt sentinel should never block the
// scheduler, it should just look like "never ran".
func (s *Store) GetTimestamp(ctx context.Context, key string) (time.Time, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, nil
	}
	return ts, true, nil
}

// SetTimestamp stores ts as RFC-3339.
func (s *Store) SetTimestamp(ctx context.Context, key string, ts time.Time) error {
	return s.Set(ctx, key, ts.UTC().Format(time.RFC3339))
}
