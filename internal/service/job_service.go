package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/timmy/pagepipe/internal/domain"
	"github.com/timmy/pagepipe/internal/logger"
	"github.com/timmy/pagepipe/internal/pipeline"
	"github.com/timmy/pagepipe/internal/render"
	"github.com/timmy/pagepipe/internal/storage"
)

// SourceKind selects how a document is decomposed into pages.
type SourceKind string

const (
	SourcePDF      SourceKind = "pdf"
	SourceImageDir SourceKind = "images"
)

// Source is a document on local disk waiting to become a job.
type Source struct {
	Kind SourceKind
	// Name is the user-facing name, e.g. the uploaded file name.
	Name string
	Path string
}

// JobLister lists jobs for the status overview and patient lookups.
type JobLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.Job, error)
	ListByPatient(ctx context.Context, identifier string, limit int) ([]domain.Job, error)
}

// SubmitResult is returned once a job has been accepted for processing.
type SubmitResult struct {
	JobID      string           `json:"job_id"`
	TotalPages int              `json:"total_pages"`
	Status     domain.JobStatus `json:"status"`

	// Done receives the run result when background processing ends.
	Done <-chan *pipeline.RunResult `json:"-"`
}

// JobService is the entry point used by the HTTP API and the CLI.
type JobService struct {
	runner    *pipeline.Runner
	gw        pipeline.Gateway
	jobs      JobLister
	storage   storage.ObjectStorage
	renderers map[SourceKind]render.Renderer
	logger    *logger.Logger
	// baseCtx outlives requests; background runs derive from it.
	baseCtx context.Context
}

// JobServiceConfig holds the dependencies of a JobService.
type JobServiceConfig struct {
	Runner    *pipeline.Runner
	Gateway   pipeline.Gateway
	Jobs      JobLister
	Storage   storage.ObjectStorage
	Renderers map[SourceKind]render.Renderer
	Logger    *logger.Logger
	BaseCtx   context.Context
}

// NewJobService creates a JobService.
func NewJobService(cfg *JobServiceConfig) *JobService {
	baseCtx := cfg.BaseCtx
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.GetDefault()
	}
	return &JobService{
		runner:    cfg.Runner,
		gw:        cfg.Gateway,
		jobs:      cfg.Jobs,
		storage:   cfg.Storage,
		renderers: cfg.Renderers,
		logger:    log,
		baseCtx:   baseCtx,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *JobService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Ingest renders a source into pages and records the job with every page
// pending. A render failure returns a *domain.RenderError and creates no job.
func (s *JobService) Ingest(ctx context.Context, src Source) (*domain.Job, []domain.PageInput, error) {
	renderer, ok := s.renderers[src.Kind]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported source kind %q", src.Kind)
	}

	name := src.Name
	if name == "" {
		name = filepath.Base(src.Path)
	}
	job := &domain.Job{
		ID:         uuid.New().String(),
		SourceName: name,
	}
	ctx = logger.SetJobID(ctx, job.ID)

	if src.Kind == SourcePDF {
		key, err := s.uploadSource(ctx, job.ID, name, src.Path)
		if err != nil {
			s.discardObjects(ctx, job.ID)
			return nil, nil, &domain.RenderError{Source: name, Err: err}
		}
		job.SourceKey = key
	}

	inputs, err := renderer.RenderPages(ctx, render.Document{JobID: job.ID, Name: name, Path: src.Path})
	if err != nil {
		s.log(ctx).WithError(err).Warn("Failed to render document")
		s.discardObjects(ctx, job.ID)
		return nil, nil, err
	}

	if err := s.runner.Start(ctx, job, inputs); err != nil {
		s.discardObjects(ctx, job.ID)
		return nil, nil, fmt.Errorf("failed to record job: %w", err)
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldJobID: job.ID,
		logger.FieldCount: job.TotalPages,
		"source":          name,
	}).Info("Job created")
	return job, inputs, nil
}

// Submit ingests a source and processes it in the background. The run is
// detached from ctx so it survives the request that started it.
func (s *JobService) Submit(ctx context.Context, src Source) (*SubmitResult, error) {
	job, inputs, err := s.Ingest(ctx, src)
	if err != nil {
		return nil, err
	}

	done, err := s.runner.ExecuteAsync(s.baseCtx, job.ID, inputs, pipeline.RunOptions{})
	if err != nil {
		return nil, err
	}

	return &SubmitResult{
		JobID:      job.ID,
		TotalPages: job.TotalPages,
		Status:     domain.JobStatusProcessing,
		Done:       done,
	}, nil
}

// Process ingests a source and processes it before returning. Cancelling ctx
// cancels the remaining pages.
func (s *JobService) Process(ctx context.Context, src Source, opts pipeline.RunOptions) (*pipeline.RunResult, error) {
	job, inputs, err := s.Ingest(ctx, src)
	if err != nil {
		return nil, err
	}
	return s.runner.Execute(ctx, job.ID, inputs, opts)
}

// Retry re-processes the failed and cancelled pages of a job in the background.
func (s *JobService) Retry(ctx context.Context, jobID string) (<-chan *pipeline.RunResult, error) {
	return s.runner.RerunAsync(s.baseCtx, jobID, pipeline.RunOptions{})
}

// Rerun re-processes the failed and cancelled pages of a job before returning.
func (s *JobService) Rerun(ctx context.Context, jobID string, opts pipeline.RunOptions) (*pipeline.RunResult, error) {
	if _, err := s.gw.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.runner.Rerun(ctx, jobID, opts)
}

// Status returns the derived status report of a job.
func (s *JobService) Status(ctx context.Context, jobID string) (*pipeline.JobStatusReport, error) {
	return s.runner.Tracker().JobStatus(ctx, jobID)
}

// IsRunning reports whether the job has an active run in this process.
func (s *JobService) IsRunning(jobID string) bool {
	return s.runner.IsRunning(jobID)
}

// Wait blocks until every background run has returned.
func (s *JobService) Wait() {
	s.runner.Wait()
}

// Pages returns the page rows of a job ordered by page number.
func (s *JobService) Pages(ctx context.Context, jobID string) ([]domain.Page, error) {
	if _, err := s.gw.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.gw.GetPagesForJob(ctx, jobID)
}

// LatestSummary returns the newest summary version of a job.
func (s *JobService) LatestSummary(ctx context.Context, jobID string) (*domain.Summary, error) {
	if _, err := s.gw.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.gw.LatestSummary(ctx, jobID)
}

// Summaries returns every summary version of a job, oldest first.
func (s *JobService) Summaries(ctx context.Context, jobID string) ([]domain.Summary, error) {
	if _, err := s.gw.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.gw.ListSummaries(ctx, jobID)
}

// ListJobs returns the most recent jobs.
func (s *JobService) ListJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	if s.jobs == nil {
		return nil, fmt.Errorf("job listing is not available")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.jobs.ListRecent(ctx, limit)
}

// PatientJobs returns the jobs whose latest summary identifies the patient.
func (s *JobService) PatientJobs(ctx context.Context, identifier string, limit int) ([]domain.Job, error) {
	if s.jobs == nil {
		return nil, fmt.Errorf("job listing is not available")
	}
	if strings.TrimSpace(identifier) == "" {
		return nil, fmt.Errorf("patient identifier is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.jobs.ListByPatient(ctx, identifier, limit)
}

// discardObjects removes what was stored for a job that was never recorded.
func (s *JobService) discardObjects(ctx context.Context, jobID string) {
	if err := s.storage.DeletePrefix(context.WithoutCancel(ctx), storage.JobPrefix(jobID)); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to remove objects of abandoned job")
	}
}

// uploadSource keeps the original document next to its rendered pages.
func (s *JobService) uploadSource(ctx context.Context, jobID, name, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open source: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat source: %w", err)
	}

	key := storage.SourceKey(jobID, name)
	contentType := "application/octet-stream"
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		contentType = "application/pdf"
	}
	if err := s.storage.Upload(ctx, key, f, info.Size(), contentType); err != nil {
		return "", fmt.Errorf("failed to store source: %w", err)
	}
	return key, nil
}
