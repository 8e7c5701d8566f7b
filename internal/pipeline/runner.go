package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/timmy/pagepipe/internal/domain"
	"github.com/timmy/pagepipe/internal/logger"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Concurrency  int
	StageTimeout time.Duration
	RetryPolicy  RetryPolicy
	// JobDeadline bounds page processing of a run; 0 means none.
	JobDeadline time.Duration
}

// RunOptions overrides RunnerConfig for a single run.
type RunOptions struct {
	Concurrency int
	Deadline    time.Duration
}

// RunResult is the outcome of one run of a job.
type RunResult struct {
	Outcome JobOutcome
	Report  *JobStatusReport
	// Summary is nil when the job did not reach a terminal status.
	Summary *domain.Summary
}

// Runner ties decomposition, scheduling and aggregation together and
// guarantees that a job has at most one active run.
type Runner struct {
	gw         Gateway
	tracker    *Tracker
	scheduler  *Scheduler
	aggregator *Aggregator
	cfg        RunnerConfig

	mu      sync.Mutex
	running map[string]struct{}
	bg      sync.WaitGroup
}

// NewRunner wires a Runner over gw and the external collaborators.
func NewRunner(gw Gateway, extractor Extractor, classifier Classifier, summarizer Summarizer, cfg RunnerConfig) *Runner {
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = DefaultRetryPolicy()
	}
	tracker := NewTracker(gw)
	worker := NewPageWorker(tracker, extractor, classifier, cfg.StageTimeout)
	return &Runner{
		gw:         gw,
		tracker:    tracker,
		scheduler:  NewScheduler(worker, cfg.RetryPolicy),
		aggregator: NewAggregator(gw, summarizer, cfg.RetryPolicy, cfg.StageTimeout),
		cfg:        cfg,
		running:    make(map[string]struct{}),
	}
}

// Tracker exposes the status tracker for read-side callers.
func (r *Runner) Tracker() *Tracker {
	return r.tracker
}

// IsRunning reports whether jobID has an active run.
func (r *Runner) IsRunning(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[jobID]
	return ok
}

func (r *Runner) acquire(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[jobID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrJobAlreadyRunning, jobID)
	}
	r.running[jobID] = struct{}{}
	return nil
}

func (r *Runner) release(jobID string) {
	r.mu.Lock()
	delete(r.running, jobID)
	r.mu.Unlock()
}

// Start records a new job and one pending row per page in a single write,
// so a failed start leaves neither. inputs must be numbered 1..N without gaps
// or duplicates.
func (r *Runner) Start(ctx context.Context, job *domain.Job, inputs []domain.PageInput) error {
	if err := domain.ValidateSequence(inputs); err != nil {
		return err
	}
	job.TotalPages = len(inputs)

	pages := make([]domain.Page, len(inputs))
	for i := range inputs {
		inputs[i].JobID = job.ID
		pages[i] = domain.NewPendingPage(inputs[i])
	}
	if err := r.gw.CreateJobWithPages(context.WithoutCancel(ctx), job, pages); err != nil {
		if !errors.Is(err, domain.ErrStorageUnavailable) {
			return storageUnavailable("create_job", err)
		}
		return err
	}

	logger.With(logger.Fields{
		logger.FieldJobID: job.ID,
		logger.FieldCount: job.TotalPages,
	}).Info(ctx, "Job decomposed into pages")
	return nil
}

// Execute processes the given pages of a job and, once every page of the job
// is terminal, appends a summary.
func (r *Runner) Execute(ctx context.Context, jobID string, inputs []domain.PageInput, opts RunOptions) (*RunResult, error) {
	if err := r.acquire(jobID); err != nil {
		return nil, err
	}
	defer r.release(jobID)
	return r.execute(ctx, jobID, inputs, opts)
}

// ExecuteAsync claims the job synchronously and runs it in the background.
// The returned channel receives the result and is then closed.
func (r *Runner) ExecuteAsync(ctx context.Context, jobID string, inputs []domain.PageInput, opts RunOptions) (<-chan *RunResult, error) {
	if err := r.acquire(jobID); err != nil {
		return nil, err
	}
	return r.background(ctx, jobID, func(ctx context.Context) (*RunResult, error) {
		return r.execute(ctx, jobID, inputs, opts)
	}), nil
}

// Rerun re-processes every page of a job that did not succeed, starting each
// from a fresh pending row, then appends a new summary version. Succeeded
// pages are left untouched.
func (r *Runner) Rerun(ctx context.Context, jobID string, opts RunOptions) (*RunResult, error) {
	if err := r.acquire(jobID); err != nil {
		return nil, err
	}
	defer r.release(jobID)
	return r.rerun(ctx, jobID, opts)
}

// RerunAsync is Rerun in the background; the job is claimed before returning.
func (r *Runner) RerunAsync(ctx context.Context, jobID string, opts RunOptions) (<-chan *RunResult, error) {
	if _, err := r.gw.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	if err := r.acquire(jobID); err != nil {
		return nil, err
	}
	return r.background(ctx, jobID, func(ctx context.Context) (*RunResult, error) {
		return r.rerun(ctx, jobID, opts)
	}), nil
}

func (r *Runner) background(ctx context.Context, jobID string, run func(context.Context) (*RunResult, error)) <-chan *RunResult {
	done := make(chan *RunResult, 1)
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		defer close(done)
		defer r.release(jobID)
		res, err := run(ctx)
		if err != nil {
			logger.With(logger.Fields{logger.FieldJobID: jobID}).Error(ctx, "Background run failed: %v", err)
		}
		done <- res
	}()
	return done
}

// Wait blocks until every background run has returned.
func (r *Runner) Wait() {
	r.bg.Wait()
}

func (r *Runner) rerun(ctx context.Context, jobID string, opts RunOptions) (*RunResult, error) {
	job, err := r.gw.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	pages, err := r.gw.GetPagesForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(pages) != job.TotalPages {
		return nil, fmt.Errorf("job %s has %d page rows, expected %d", jobID, len(pages), job.TotalPages)
	}

	var inputs []domain.PageInput
	for _, p := range pages {
		if p.Status == domain.PageStatusSucceeded {
			continue
		}
		in := domain.InputFromPage(p)
		reset := domain.NewPendingPage(in)
		if err := r.tracker.Init(ctx, &reset); err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}

	logger.With(logger.Fields{
		logger.FieldJobID: jobID,
		logger.FieldCount: len(inputs),
	}).Info(ctx, "Re-running pages that did not succeed")

	return r.execute(ctx, jobID, inputs, opts)
}

func (r *Runner) execute(ctx context.Context, jobID string, inputs []domain.PageInput, opts RunOptions) (*RunResult, error) {
	ctx = logger.SetJobID(ctx, jobID)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = r.cfg.Concurrency
	}
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = r.cfg.JobDeadline
	}

	runCtx := ctx
	if deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	started := time.Now()
	result := &RunResult{Outcome: r.scheduler.Run(runCtx, jobID, inputs, concurrency)}
	if result.Outcome.Err != nil {
		return result, result.Outcome.Err
	}

	// Reads after the barrier must succeed even if the caller gave up.
	readCtx := context.WithoutCancel(ctx)
	report, err := r.tracker.JobStatus(readCtx, jobID)
	if err != nil {
		return result, err
	}
	result.Report = report

	logger.With(logger.Fields{"progress": report.Progress}).
		WithDuration(time.Since(started)).
		WithStatus(report.Status).
		Info(ctx, "Job run finished")

	if !report.Status.IsTerminal() {
		return result, nil
	}

	pages, err := r.gw.GetPagesForJob(readCtx, jobID)
	if err != nil {
		return result, err
	}
	summary, err := r.aggregator.Summarize(ctx, jobID, pages)
	if err != nil {
		return result, err
	}
	result.Summary = summary
	return result, nil
}
