// Package worker implements the worker pool (C9): a fixed number of
// cooperative loops sharing the C7 queue, each racing shutdown against
// lock_next and against job processing with a hard per-job timeout
// (spec §4.9).
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/campusgraph/coursesync/pkg/apperrors"
	"github.com/campusgraph/coursesync/pkg/metrics"
	"github.com/campusgraph/coursesync/pkg/model"
	"github.com/campusgraph/coursesync/pkg/queue"
)

// HardTimeout is the per-job deadline; a job still running past this is
// treated as a Recoverable timeout error (spec §4.9).
const HardTimeout = 5 * time.Minute

// SlowThreshold triggers a WARN log on an otherwise-successful run.
const SlowThreshold = 30 * time.Second

// Processor executes one job's domain logic and reports whether any data
// changed, alongside how many rows were upserted. Implemented per
// target_type by the ingestion-facing adapters.
type Processor interface {
	Process(ctx context.Context, job model.Job) (UpsertCounts, error)
}

// UpsertCounts summarizes one job's effect on the canonical store.
type UpsertCounts struct {
	Fetched        int
	Changed        int
	Unchanged      int
	AuditsGenerated int
}

// Pool runs a fixed number of worker loops.
type Pool struct {
	queue      *queue.Queue
	processors map[string]Processor
	size       int
	wg         sync.WaitGroup
}

// New constructs a worker pool of the given size, dispatching each job by
// its target_type to the matching Processor.
func New(q *queue.Queue, processors map[string]Processor, size int) *Pool {
	return &Pool{queue: q, processors: processors, size: size}
}

// Start launches all worker loops; they run until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
}

// Wait blocks until every worker loop has exited.
func (p *Pool) Wait() { p.wg.Wait() }

// Size returns the configured number of worker loops.
func (p *Pool) Size() int { return p.size }

func (p *Pool) loop(ctx context.Context, id int) {
	defer p.wg.Done()
	log := slog.With("worker_id", id)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, ok, err := p.queue.LockNext(ctx)
		if err != nil {
			log.Error("lock_next failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}

		metrics.JobsLockedTotal.Inc()
		p.process(ctx, log, *job)
	}
}

func (p *Pool) process(ctx context.Context, log *slog.Logger, job model.Job) {
	proc, ok := p.processors[job.TargetType]
	if !ok {
		log.Error("no processor registered for target_type, dropping job", "target_type", job.TargetType, "job_id", job.ID)
		_ = p.queue.Delete(ctx, job.ID)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, HardTimeout)
	defer cancel()

	type outcome struct {
		counts UpsertCounts
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		counts, err := proc.Process(jobCtx, job)
		done <- outcome{counts, err}
	}()

	var out outcome
	select {
	case <-ctx.Done():
		// Shutdown mid-job: unlock and let another process pick it up later.
		_ = p.queue.Unlock(context.Background(), job.ID)
		return
	case out = <-done:
	}
	duration := time.Since(start)

	if out.err != nil {
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			out.err = apperrors.New(apperrors.KindTimeout, "job exceeded hard timeout")
		}
		p.handleFailure(ctx, log, job, out.err, duration)
		return
	}
	p.handleSuccess(ctx, log, job, out.counts, duration)
}

func (p *Pool) handleFailure(ctx context.Context, log *slog.Logger, job model.Job, procErr error, duration time.Duration) {
	msg := procErr.Error()
	if apperrors.IsRecoverable(procErr) {
		if job.RetryCount+1 < job.MaxRetries {
			next := time.Now().Add(backoff(job.RetryCount))
			if err := p.queue.Retry(ctx, job.ID, next); err != nil {
				log.Error("failed to retry job", "job_id", job.ID, "error", err)
				return
			}
			metrics.JobsRetriedTotal.Inc()
			log.Warn("job failed, scheduled for retry", "job_id", job.ID, "retry_count", job.RetryCount+1, "error", msg)
			_ = p.queue.InsertResult(ctx, model.JobResult{
				JobID: job.ID, TargetType: job.TargetType, TargetPayload: job.TargetPayload,
				DurationMS: duration.Milliseconds(), Success: false, ErrorMessage: &msg,
				RetryCountAtCompletion: job.RetryCount + 1, CreatedAt: time.Now().UTC(),
			})
			return
		}
		if err := p.queue.Exhaust(ctx, job.ID); err != nil {
			log.Error("failed to exhaust job", "job_id", job.ID, "error", err)
		}
		metrics.JobsExhaustedTotal.Inc()
		log.Error("job exhausted retry budget", "job_id", job.ID, "error", msg)
	} else {
		if err := p.queue.Delete(ctx, job.ID); err != nil {
			log.Error("failed to delete unrecoverable job", "job_id", job.ID, "error", err)
		}
		log.Error("job failed with an unrecoverable error, deleted", "job_id", job.ID, "error", msg)
	}

	_ = p.queue.InsertResult(ctx, model.JobResult{
		JobID: job.ID, TargetType: job.TargetType, TargetPayload: job.TargetPayload,
		DurationMS: duration.Milliseconds(), Success: false, ErrorMessage: &msg,
		RetryCountAtCompletion: job.RetryCount, CreatedAt: time.Now().UTC(),
	})
}

func (p *Pool) handleSuccess(ctx context.Context, log *slog.Logger, job model.Job, counts UpsertCounts, duration time.Duration) {
	if err := p.queue.Complete(ctx, job.ID); err != nil {
		log.Error("failed to complete job", "job_id", job.ID, "error", err)
		return
	}
	metrics.JobsCompletedTotal.Inc()

	if err := p.queue.InsertResult(ctx, model.JobResult{
		JobID: job.ID, TargetType: job.TargetType, TargetPayload: job.TargetPayload,
		DurationMS: duration.Milliseconds(), Success: true,
		CoursesFetched: counts.Fetched, CoursesChanged: counts.Changed,
		CoursesUnchanged: counts.Unchanged, AuditsGenerated: counts.AuditsGenerated,
		RetryCountAtCompletion: job.RetryCount, CreatedAt: time.Now().UTC(),
	}); err != nil {
		log.Error("failed to record job result", "job_id", job.ID, "error", err)
	}

	fields := []any{"job_id", job.ID, "target_type", job.TargetType, "duration", duration}
	switch {
	case counts.Changed > 0:
		log.Info("job completed with changes", fields...)
	default:
		log.Debug("job completed with no changes", fields...)
	}
	if duration > SlowThreshold {
		log.Warn("job exceeded slow threshold", fields...)
	}
}

// backoff grows retry delay with attempt count, capped to avoid unbounded
// waits on a persistently-failing subject.
func backoff(retryCount int) time.Duration {
	d := time.Duration(retryCount+1) * 30 * time.Second
	if d > 10*time.Minute {
		return 10 * time.Minute
	}
	return d
}
