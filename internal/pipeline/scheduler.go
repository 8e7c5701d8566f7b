package pipeline

import (
	"context"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/timmy/pagepipe/internal/domain"
	"github.com/timmy/pagepipe/internal/logger"
)

// DefaultConcurrency is the number of pages processed in parallel when the
// caller does not say otherwise.
const DefaultConcurrency = 6

// JobOutcome is what a scheduler run produced.
type JobOutcome struct {
	JobID     string
	Pages     []domain.Page // ordered by page number
	Succeeded int
	Failed    int
	Cancelled int
	// Partial is set when the run's context ended before every page finished.
	Partial bool
	// Err is set when page status could not be persisted.
	Err error
	// Status is derived from the pages of this run only.
	Status domain.JobStatus
}

// Scheduler fans a job's pages out to page workers with bounded parallelism.
// It never writes to storage itself.
type Scheduler struct {
	worker *PageWorker
	policy RetryPolicy
}

// NewScheduler creates a Scheduler. A nil policy uses DefaultRetryPolicy.
func NewScheduler(worker *PageWorker, policy RetryPolicy) *Scheduler {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &Scheduler{worker: worker, policy: policy}
}

// Run processes inputs with at most concurrency pages in flight and returns
// once every admitted worker has finished. When ctx ends, pages not yet
// started and in-flight pages at their next check point are cancelled.
func (s *Scheduler) Run(ctx context.Context, jobID string, inputs []domain.PageInput, concurrency int) JobOutcome {
	ctx = logger.SetJobID(ctx, jobID)

	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > len(inputs) {
		concurrency = len(inputs)
	}

	outcome := JobOutcome{JobID: jobID}
	if len(inputs) == 0 {
		outcome.Status = domain.DeriveJobStatus(0, nil)
		return outcome
	}

	logger.With(logger.Fields{
		logger.FieldCount: len(inputs),
		"concurrency":     concurrency,
	}).Info(ctx, "Starting page processing")

	results := make([]domain.Page, len(inputs))
	var inFlight, peak atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, in := range inputs {
		g.Go(func() error {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}

			res := s.worker.Process(gctx, in, s.policy)
			results[i] = res.Page
			return res.Fatal
		})
	}

	outcome.Err = g.Wait()
	outcome.Partial = ctx.Err() != nil

	sort.Slice(results, func(i, j int) bool {
		return results[i].PageNumber < results[j].PageNumber
	})
	outcome.Pages = results

	for _, p := range results {
		switch {
		case p.Status == domain.PageStatusSucceeded:
			outcome.Succeeded++
		case p.Status == domain.PageStatusCancelled:
			outcome.Cancelled++
			outcome.Partial = true
		case p.Status.IsFailure():
			outcome.Failed++
		}
	}
	outcome.Status = domain.DeriveJobStatus(len(inputs), domain.StatusesOf(results))

	entry := logger.With(logger.Fields{
		"succeeded":     outcome.Succeeded,
		"failed":        outcome.Failed,
		"cancelled":     outcome.Cancelled,
		"peak_inflight": peak.Load(),
	}).WithStatus(string(outcome.Status))
	if outcome.Err != nil {
		entry.Error(ctx, "Page processing aborted: %v", outcome.Err)
	} else {
		entry.Info(ctx, "Page processing finished")
	}

	return outcome
}
