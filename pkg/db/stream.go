package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgraph/coursesync/pkg/model"
	"github.com/campusgraph/coursesync/pkg/stream"
)

// AuditStore implements stream.SnapshotStore against course_audits, joined
// to courses to recover the subject a row's filter may need (course_audits
// itself carries no subject column).
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore wraps a pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// AuditSnapshot returns the most recent matching audit rows up to the
// filter's normalized limit, oldest first, so the caller can hand them to a
// client in the order it would have observed them live.
func (s *AuditStore) AuditSnapshot(ctx context.Context, f stream.Filter) ([]model.CourseAudit, error) {
	f = f.Normalize()

	var b strings.Builder
	b.WriteString(`
		SELECT a.term_code, a.crn, a.field, a.old_value, a.new_value, a.created_at
		FROM course_audits a
	`)
	args := make([]interface{}, 0, 5)
	var where []string

	if len(f.Subjects) > 0 {
		b.WriteString(`JOIN courses c ON c.term_code = a.term_code AND c.crn = a.crn `)
		args = append(args, f.Subjects)
		where = append(where, fmt.Sprintf("c.subject = ANY($%d)", len(args)))
	}
	if f.Since != nil {
		args = append(args, *f.Since)
		where = append(where, fmt.Sprintf("a.created_at > $%d", len(args)))
	}
	if f.Term != "" {
		args = append(args, f.Term)
		where = append(where, fmt.Sprintf("a.term_code = $%d", len(args)))
	}
	if len(f.Fields) > 0 {
		args = append(args, f.Fields)
		where = append(where, fmt.Sprintf("a.field = ANY($%d)", len(args)))
	}
	if len(where) > 0 {
		b.WriteString("WHERE " + strings.Join(where, " AND ") + " ")
	}
	args = append(args, f.Limit)
	inner := b.String()
	query := fmt.Sprintf(`SELECT * FROM (%s ORDER BY a.created_at DESC LIMIT $%d) recent ORDER BY created_at ASC`, inner, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit snapshot: %w", err)
	}
	defer rows.Close()

	var out []model.CourseAudit
	for rows.Next() {
		var a model.CourseAudit
		if err := rows.Scan(&a.TermCode, &a.CRN, &a.Field, &a.OldValue, &a.NewValue, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
