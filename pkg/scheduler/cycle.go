package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/campusgraph/coursesync/pkg/kv"
	"github.com/campusgraph/coursesync/pkg/metrics"
	"github.com/campusgraph/coursesync/pkg/model"
	"github.com/campusgraph/coursesync/pkg/queue"
)

// SubSync is one independently-cadenced reference sync (term/rating/
// reference-data/evaluation-site), gated by a KV timestamp.
type SubSync struct {
	Key      string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// SubjectSource resolves the subject list for a term: from the ERP for
// current/future terms, from a persisted per-term cache for past/archived
// ones (populated on first access).
type SubjectSource interface {
	SubjectsForTerm(ctx context.Context, term model.Term, category model.TermCategory) ([]string, error)
}

// Deps bundles everything one scheduler cycle needs.
type Deps struct {
	KV        *kv.Store
	Queue     *queue.Queue
	Subjects  SubjectSource
	SubSyncs  []SubSync
	LoadTerms func(ctx context.Context) ([]model.Term, error)
}

// Scheduler runs one cycle every CyclePeriod, preventing overlap, and
// guards the in-process archived-term evaluation map behind a mutex
// (spec §5).
type Scheduler struct {
	deps Deps

	tryLock chan struct{} // buffered(1): acts as a non-blocking try-lock

	archivedMu      sync.Mutex
	archivedLastRun map[[2]string]time.Time

	lastCycleAt atomic.Int64 // unix nanos; 0 until the first cycle completes
}

// LastCycleAt reports when the most recent cycle finished, for the health
// endpoint. The zero Time means no cycle has completed yet.
func (s *Scheduler) LastCycleAt() time.Time {
	nanos := s.lastCycleAt.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// New constructs a Scheduler ready to run.
func New(deps Deps) *Scheduler {
	s := &Scheduler{
		deps:            deps,
		tryLock:         make(chan struct{}, 1),
		archivedLastRun: make(map[[2]string]time.Time),
	}
	s.tryLock <- struct{}{}
	return s
}

// Run drives the 60-second cycle loop until ctx is cancelled. A shutdown
// signal cancels the in-flight cycle cooperatively via ctx; if it has not
// completed within CycleAbandonAfter once ctx is done, Run returns without
// waiting further (spec §4.8).
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(CyclePeriod)
	defer ticker.Stop()

	var wg sync.WaitGroup
	spawn := func() {
		wg.Add(1)
		go func() { defer wg.Done(); s.runCycle(ctx) }()
	}
	spawn()
	for {
		select {
		case <-ctx.Done():
			finished := make(chan struct{})
			go func() { wg.Wait(); close(finished) }()
			select {
			case <-finished:
			case <-time.After(CycleAbandonAfter):
				slog.Warn("scheduler cycle did not stop within abandon window, abandoning")
			}
			return
		case <-ticker.C:
			spawn()
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	select {
	case <-s.tryLock:
	default:
		slog.Warn("scheduler cycle skipped: previous cycle still running")
		return
	}
	defer func() { s.tryLock <- struct{}{} }()

	start := time.Now()
	defer func() {
		metrics.SchedulerCycleDuration.Observe(time.Since(start).Seconds())
	}()

	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.runSubSyncs(cycleCtx)
	if err := s.scheduleJobs(cycleCtx); err != nil {
		slog.Error("scheduler cycle failed to schedule jobs", "error", err)
	}
	s.lastCycleAt.Store(time.Now().UTC().UnixNano())
}

func (s *Scheduler) runSubSyncs(ctx context.Context) {
	var wg sync.WaitGroup
	for _, sync := range s.deps.SubSyncs {
		last, ok, err := s.deps.KV.GetTimestamp(ctx, sync.Key)
		if err != nil {
			slog.Error("failed to read sub-sync timestamp", "key", sync.Key, "error", err)
			continue
		}
		if ok && time.Since(last) < sync.Interval {
			continue
		}

		wg.Add(1)
		go func(sync SubSync) {
			defer wg.Done()
			if err := sync.Run(ctx); err != nil {
				slog.Error("sub-sync failed, will retry next cycle", "key", sync.Key, "error", err)
				return
			}
			if err := s.deps.KV.SetTimestamp(ctx, sync.Key, time.Now()); err != nil {
				slog.Error("failed to persist sub-sync timestamp", "key", sync.Key, "error", err)
			}
		}(sync)
	}
	wg.Wait()
}

func (s *Scheduler) scheduleJobs(ctx context.Context) error {
	terms, err := s.deps.LoadTerms(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	statsList, err := s.deps.Queue.FetchSubjectStats(ctx, 20)
	if err != nil {
		return err
	}
	statsByKey := make(map[[2]string]model.SubjectStats, len(statsList))
	for _, st := range statsList {
		statsByKey[[2]string{st.Subject, st.Term}] = st
	}

	var payloads [][]byte
	for _, term := range terms {
		if !term.IsEnabledForScraping {
			continue
		}
		category := term.Category(now)
		if (category == model.TermPast || category == model.TermArchived) && s.recentlyEvaluated(term.Code, now) {
			continue
		}

		subjects, err := s.deps.Subjects.SubjectsForTerm(ctx, term, category)
		if err != nil {
			slog.Error("failed to resolve subjects for term", "term", term.Code, "error", err)
			continue
		}

		for _, subject := range subjects {
			stats := statsByKey[[2]string{subject, term.Code}]
			stats.Subject, stats.Term = subject, term.Code
			sched := Evaluate(stats, now, category)
			if sched.State != Eligible {
				continue
			}
			payload, err := queue.EncodeSubjectPayload(model.SubjectJobPayload{Subject: subject, Term: term.Code})
			if err != nil {
				return err
			}
			payloads = append(payloads, payload)
		}

		if category == model.TermPast || category == model.TermArchived {
			s.markEvaluated(term.Code, now)
		}
	}

	if len(payloads) == 0 {
		return nil
	}
	existing, err := s.deps.Queue.FindExistingPayloads(ctx, model.TargetTypeSubject, payloads)
	if err != nil {
		return err
	}
	fresh := subtractPayloads(payloads, existing)
	return s.deps.Queue.BatchInsert(ctx, model.TargetTypeSubject, fresh, model.PriorityNormal, 5)
}

func (s *Scheduler) recentlyEvaluated(termCode string, now time.Time) bool {
	s.archivedMu.Lock()
	defer s.archivedMu.Unlock()
	last, ok := s.archivedLastRun[[2]string{termCode, ""}]
	return ok && now.Sub(last) < ArchivedInterval
}

func (s *Scheduler) markEvaluated(termCode string, now time.Time) {
	s.archivedMu.Lock()
	defer s.archivedMu.Unlock()
	s.archivedLastRun[[2]string{termCode, ""}] = now
}

func subtractPayloads(all, existing [][]byte) [][]byte {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[string(e)] = true
	}
	out := make([][]byte, 0, len(all))
	for _, p := range all {
		if !seen[string(p)] {
			out = append(out, p)
		}
	}
	return out
}
