// Package snapshot implements the immutable, atomically-swapped schedule
// snapshot cache (spec §4.4): a list of (subject, enrollment, meetings) used
// for fast timeline queries, refreshed hourly with a stale-while-revalidate
// single-flight guard.
package snapshot

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/campusgraph/coursesync/pkg/model"
)

// DefaultRefreshInterval matches spec §4.4.
const DefaultRefreshInterval = 60 * time.Minute

// ParsedMeeting is the lean, pre-parsed cache representation of a meeting
// block: 7-bit day mask plus 4 scalars, no sub-object allocation.
type ParsedMeeting struct {
	Days         model.WeekdayMask
	BeginMinutes uint16
	EndMinutes   uint16
	StartDate    time.Time
	EndDate      time.Time
}

// Active runs the activity test from spec §4.4:
//
//	(days & weekday_bit) != 0 AND start <= date <= end AND begin < window_end AND end > window_start
func (p ParsedMeeting) Active(date time.Time, weekday model.WeekdayMask, windowStart, windowEnd int) bool {
	if !p.Days.Has(weekday) {
		return false
	}
	d := truncate(date)
	if d.Before(truncate(p.StartDate)) || d.After(truncate(p.EndDate)) {
		return false
	}
	return int(p.BeginMinutes) < windowEnd && int(p.EndMinutes) > windowStart
}

func truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CourseEntry is one row of the snapshot: a course's subject (interned — a
// shared string reference, never re-allocated per row), enrollment, and its
// parsed meetings.
type CourseEntry struct {
	TermCode   string
	CRN        string
	Subject    *string // interned
	Enrollment int
	Meetings   []ParsedMeeting
}

// Snapshot is one immutable, fully-built view of the schedule. Never
// mutated after construction — refresh builds a new Snapshot and swaps the
// cache's pointer atomically, so readers always see a self-consistent view
// (property P15).
type Snapshot struct {
	BuiltAt time.Time
	Courses []CourseEntry
}

// Loader streams the raw rows needed to build a Snapshot. Implemented by
// pkg/db: one row per meeting block, with a sentinel NULL-meeting row for
// courses with no meetings, grouped by course id (spec §4.4).
type Loader func(ctx context.Context) ([]RawRow, error)

// RawRow is one row of the streaming query backing Loader.
type RawRow struct {
	TermCode   string
	CRN        string
	Subject    string
	Enrollment int
	HasMeeting bool
	Days       model.WeekdayMask
	BeginRaw   string // "HHMM" or "HH:MM[:SS]"
	EndRaw     string
	StartRaw   string // "MM/DD/YYYY" or "YYYY-MM-DD"
	EndDateRaw string
}

// Cache holds an atomically-swapped *Snapshot plus the single-flight guard
// used for stale-while-revalidate refreshes.
type Cache struct {
	current  atomic.Pointer[Snapshot]
	refresh  atomic.Bool // true while a refresh is in flight (CAS guard)
	load     Loader
	interval time.Duration
}

// New constructs an empty cache. Call Refresh once (or Start) before
// serving reads, or Current will return nil.
func New(load Loader, interval time.Duration) *Cache {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Cache{load: load, interval: interval}
}

// Current returns the cache's current snapshot, which may be nil before the
// first successful Refresh. Stale-while-revalidate: callers always get
// this value immediately, even if it is older than the refresh interval —
// EnsureFresh is what triggers a background refresh.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// EnsureFresh triggers a background refresh if the current snapshot is
// older than the refresh interval (or absent) and no refresh is already in
// flight. It never blocks the caller; losers of the CAS simply continue
// serving the previous (possibly stale) snapshot.
func (c *Cache) EnsureFresh(ctx context.Context) {
	snap := c.current.Load()
	if snap != nil && time.Since(snap.BuiltAt) < c.interval {
		return
	}
	if !c.refresh.CompareAndSwap(false, true) {
		return // another goroutine already refreshing
	}
	go func() {
		defer c.refresh.Store(false)
		_ = c.Refresh(ctx)
	}()
}

// Refresh synchronously rebuilds the snapshot and swaps it in. Meeting rows
// with malformed time/date fields are skipped silently rather than aborting
// the whole refresh — one bad row should not blank the cache. The only
// error returned is the loader's.
func (c *Cache) Refresh(ctx context.Context) error {
	rows, err := c.load(ctx)
	if err != nil {
		return err
	}

	interned := make(map[string]*string)
	bySection := make(map[[2]string]*CourseEntry)
	order := make([][2]string, 0, len(rows))

	for _, r := range rows {
		key := [2]string{r.TermCode, r.CRN}
		entry, ok := bySection[key]
		if !ok {
			subj, ok := interned[r.Subject]
			if !ok {
				s := r.Subject
				subj = &s
				interned[r.Subject] = subj
			}
			entry = &CourseEntry{
				TermCode:   r.TermCode,
				CRN:        r.CRN,
				Subject:    subj,
				Enrollment: r.Enrollment,
			}
			bySection[key] = entry
			order = append(order, key)
		}
		if !r.HasMeeting {
			continue
		}
		begin, err := ParseTime(r.BeginRaw)
		if err != nil {
			continue
		}
		end, err := ParseTime(r.EndRaw)
		if err != nil {
			continue
		}
		start, err := ParseDate(r.StartRaw)
		if err != nil {
			continue
		}
		stop, err := ParseDate(r.EndDateRaw)
		if err != nil {
			continue
		}
		entry.Meetings = append(entry.Meetings, ParsedMeeting{
			Days:         r.Days,
			BeginMinutes: uint16(begin),
			EndMinutes:   uint16(end),
			StartDate:    start,
			EndDate:      stop,
		})
	}

	courses := make([]CourseEntry, 0, len(order))
	for _, key := range order {
		courses = append(courses, *bySection[key])
	}

	next := &Snapshot{BuiltAt: time.Now(), Courses: courses}
	c.current.Store(next)
	return nil
}

// Start performs an initial synchronous Refresh, then spawns a background
// loop that calls EnsureFresh on every interval tick until ctx is done.
func (c *Cache) Start(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		return err
	}
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.EnsureFresh(ctx)
			}
		}
	}()
	return nil
}
