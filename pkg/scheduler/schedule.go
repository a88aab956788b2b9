// Package scheduler implements the adaptive scheduler (C8): a 60-second
// cycle that re-syncs reference data on independent cadences and enqueues
// per-subject scrape jobs based on each subject's rolling statistics
// (spec §4.8).
package scheduler

import (
	"math"
	"time"

	"github.com/campusgraph/coursesync/pkg/model"
)

// ArchivedInterval bounds how often an archived/past term is re-evaluated
// at all, tracked in-process (spec §4.8).
const ArchivedInterval = 48 * time.Hour

// Cycle cadence and the worker-side hard deadline used to abandon an
// overrunning cycle (spec §4.8).
const (
	CyclePeriod       = 60 * time.Second
	CycleAbandonAfter = 5 * time.Second
)

// baseInterval is the un-adjusted cooldown between scrapes of an eligible
// subject in a current/future term.
const baseInterval = 20 * time.Minute

// ScheduleState is the Eligible/Cooldown/Paused decision for one subject.
type ScheduleState int

const (
	Eligible ScheduleState = iota
	Cooldown
	Paused
)

// SubjectSchedule is the scheduler's verdict for one (subject, term) pair.
type SubjectSchedule struct {
	State     ScheduleState
	Remaining time.Duration // populated when State == Cooldown
}

// pausedConsecutiveThreshold (K in spec §4.8): a subject is paused once it
// has had this many consecutive empty fetches with zero changes. Chosen
// generously enough that a genuinely quiet subject (few sections, rarely
// changing) still gets re-checked a handful of times before going quiet,
// but a subject that never has anything to report stops wasting cycles.
const pausedConsecutiveThreshold = 6

// Evaluate computes a SubjectSchedule from a subject's rolling statistics,
// the current time, and its term's category (spec §4.8).
func Evaluate(stats model.SubjectStats, now time.Time, category model.TermCategory) SubjectSchedule {
	if stats.ConsecutiveEmptyFetches >= pausedConsecutiveThreshold &&
		stats.ConsecutiveZeroChanges >= pausedConsecutiveThreshold {
		return SubjectSchedule{State: Paused}
	}

	if stats.LastCompleted == nil {
		return SubjectSchedule{State: Eligible}
	}

	interval := intervalFor(stats, now, category)
	elapsed := now.Sub(*stats.LastCompleted)
	if elapsed >= interval {
		return SubjectSchedule{State: Eligible}
	}
	return SubjectSchedule{State: Cooldown, Remaining: interval - elapsed}
}

func intervalFor(stats model.SubjectStats, now time.Time, category model.TermCategory) time.Duration {
	if category == model.TermPast || category == model.TermArchived {
		return ArchivedInterval
	}

	interval := float64(baseInterval) * timeOfDayMultiplier(now)

	// A subject changing often runs hotter; one that rarely changes and
	// rarely fails cools down further, bounded so it never exceeds the
	// archived cadence even for a current term gone quiet.
	switch {
	case stats.AvgChangeRatio >= 0.3:
		interval *= 0.5
	case stats.RecentRuns > 0 && stats.RecentFailureCount == 0 && stats.AvgChangeRatio < 0.05:
		interval *= 1.5
	}

	if stats.ConsecutiveZeroChanges > 0 {
		growth := math.Min(4, 1+float64(stats.ConsecutiveZeroChanges)*0.25)
		interval *= growth
	}

	result := time.Duration(interval)
	if result > ArchivedInterval {
		result = ArchivedInterval
	}
	return result
}

// timeOfDayMultiplier scales the base cooldown interval: longer overnight
// (less enrollment churn), shorter during the daytime hours when students
// are actively registering/dropping. A pure function of the UTC hour
// (spec §4.8).
func timeOfDayMultiplier(now time.Time) float64 {
	hour := now.UTC().Hour()
	switch {
	case hour >= 2 && hour < 11: // roughly 9pm-5am Central: quiet overnight
		return 2.0
	case hour >= 13 && hour < 22: // mid-morning through evening Central: peak churn
		return 0.6
	default:
		return 1.0
	}
}
