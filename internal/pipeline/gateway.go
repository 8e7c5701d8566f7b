package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/pagepipe/internal/domain"
	"github.com/timmy/pagepipe/internal/logger"
)

// Gateway is the durable store behind the pipeline.
type Gateway interface {
	// CreateJobWithPages records a job together with its initial page rows.
	// Either all rows are stored or none are.
	CreateJobWithPages(ctx context.Context, job *domain.Job, pages []domain.Page) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	// UpsertPage writes the full row keyed by (job_id, page_number).
	UpsertPage(ctx context.Context, page *domain.Page) error
	// GetPagesForJob returns the job's rows ordered by page number.
	GetPagesForJob(ctx context.Context, jobID string) ([]domain.Page, error)
	// InsertSummary appends a new summary version.
	InsertSummary(ctx context.Context, summary *domain.Summary) error
	LatestSummary(ctx context.Context, jobID string) (*domain.Summary, error)
	ListSummaries(ctx context.Context, jobID string) ([]domain.Summary, error)
}

// RetryingGateway retries failed writes with a fixed backoff. Once the
// retries are exhausted the write fails with domain.ErrStorageUnavailable.
// Reads pass through unchanged.
type RetryingGateway struct {
	next    Gateway
	retries int
	backoff time.Duration
}

// NewRetryingGateway wraps next.
func NewRetryingGateway(next Gateway, retries int, backoff time.Duration) *RetryingGateway {
	if retries < 0 {
		retries = 0
	}
	return &RetryingGateway{next: next, retries: retries, backoff: backoff}
}

func (g *RetryingGateway) write(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= g.retries; attempt++ {
		if attempt > 0 {
			logger.ForStage(StagePersist).WithAttempt(attempt).Warn(ctx, "Retrying %s after error: %v", op, err)
			if !sleepCtx(ctx, g.backoff) {
				break
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrStorageUnavailable) {
			return err
		}
	}
	return storageUnavailable(op, err)
}

func storageUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, &domain.PersistenceError{Op: op, Err: err})
}

func (g *RetryingGateway) CreateJobWithPages(ctx context.Context, job *domain.Job, pages []domain.Page) error {
	return g.write(ctx, "create_job", func() error { return g.next.CreateJobWithPages(ctx, job, pages) })
}

func (g *RetryingGateway) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return g.next.GetJob(ctx, jobID)
}

func (g *RetryingGateway) UpsertPage(ctx context.Context, page *domain.Page) error {
	return g.write(ctx, "upsert_page", func() error { return g.next.UpsertPage(ctx, page) })
}

func (g *RetryingGateway) GetPagesForJob(ctx context.Context, jobID string) ([]domain.Page, error) {
	return g.next.GetPagesForJob(ctx, jobID)
}

func (g *RetryingGateway) InsertSummary(ctx context.Context, summary *domain.Summary) error {
	return g.write(ctx, "insert_summary", func() error { return g.next.InsertSummary(ctx, summary) })
}

func (g *RetryingGateway) LatestSummary(ctx context.Context, jobID string) (*domain.Summary, error) {
	return g.next.LatestSummary(ctx, jobID)
}

func (g *RetryingGateway) ListSummaries(ctx context.Context, jobID string) ([]domain.Summary, error) {
	return g.next.ListSummaries(ctx, jobID)
}
