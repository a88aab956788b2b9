package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgraph/coursesync/pkg/model"
	"github.com/campusgraph/coursesync/pkg/snapshot"
)

// SnapshotLoader adapts a pool into a snapshot.Loader: one row per meeting
// block, with a NULL-meeting sentinel row for courses with no meetings
// (e.g. fully asynchronous online sections), via a LEFT JOIN LATERAL over
// the jsonb meetings array.
func SnapshotLoader(pool *pgxpool.Pool) snapshot.Loader {
	return func(ctx context.Context) ([]snapshot.RawRow, error) {
		rows, err := pool.Query(ctx, `
			SELECT c.term_code, c.crn, c.subject, c.enrollment_current,
			       m.elem IS NOT NULL AS has_meeting,
			       COALESCE((m.elem->>'days_mask')::int, 0),
			       COALESCE(m.elem->>'begin', ''),
			       COALESCE(m.elem->>'end', ''),
			       COALESCE(m.elem->>'start_date', ''),
			       COALESCE(m.elem->>'end_date', '')
			FROM courses c
			LEFT JOIN LATERAL jsonb_array_elements(c.meetings) AS m(elem) ON true
		`)
		if err != nil {
			return nil, fmt.Errorf("loading snapshot rows: %w", err)
		}
		defer rows.Close()

		var out []snapshot.RawRow
		for rows.Next() {
			var r snapshot.RawRow
			var daysMask int
			if err := rows.Scan(&r.TermCode, &r.CRN, &r.Subject, &r.Enrollment, &r.HasMeeting,
				&daysMask, &r.BeginRaw, &r.EndRaw, &r.StartRaw, &r.EndDateRaw); err != nil {
				return nil, fmt.Errorf("scanning snapshot row: %w", err)
			}
			r.Days = model.WeekdayMask(daysMask)
			out = append(out, r)
		}
		return out, rows.Err()
	}
}
