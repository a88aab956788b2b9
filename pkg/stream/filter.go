// Package stream implements the Stream Manager (C11): an initial-snapshot
// query followed by a live C2 delta feed, both filtered by the same
// predicate, delivered over a websocket (spec §4.11). Adapted from the
// teacher's pkg/events.ConnectionManager subscribe/broadcast/catchup
// shape, with the in-process event bus standing in for Postgres
// LISTEN/NOTIFY.
package stream

import (
	"time"

	"github.com/campusgraph/coursesync/pkg/model"
)

// MinLimit, MaxLimit, DefaultLimit bound the subscription's result size
// (spec §4.11).
const (
	MinLimit     = 1
	MaxLimit     = 500
	DefaultLimit = 200
)

// Filter is the concrete, testable subscription predicate for audit-log
// subscriptions: {since?, fields?, subjects?, term?, limit?}. A nil/empty
// field means "any".
type Filter struct {
	Since    *time.Time
	Fields   []string
	Subjects []string
	Term     string
	Limit    int
}

// Normalize clamps Limit into [MinLimit, MaxLimit], defaulting to
// DefaultLimit when unset.
func (f Filter) Normalize() Filter {
	switch {
	case f.Limit == 0:
		f.Limit = DefaultLimit
	case f.Limit < MinLimit:
		f.Limit = MinLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	return f
}

// MatchesAudit filters a persisted audit row fetched for the initial
// snapshot. Subject is resolved by the store's snapshot query (a
// CourseAudit row has no subject column of its own), so subject filtering
// there is pushed into the SQL WHERE clause rather than re-checked here.
func (f Filter) MatchesAudit(a model.CourseAudit) bool {
	if f.Since != nil && !a.CreatedAt.After(*f.Since) {
		return false
	}
	if len(f.Fields) > 0 && !contains(f.Fields, a.Field) {
		return false
	}
	if f.Term != "" && f.Term != a.TermCode {
		return false
	}
	return true
}

// MatchesDelta filters a live CourseChanged event payload, which already
// carries its subject.
func (f Filter) MatchesDelta(p model.CourseChangedPayload) bool {
	if len(f.Fields) > 0 && !contains(f.Fields, p.Field) {
		return false
	}
	if len(f.Subjects) > 0 && !contains(f.Subjects, p.Subject) {
		return false
	}
	if f.Term != "" && f.Term != p.TermCode {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
