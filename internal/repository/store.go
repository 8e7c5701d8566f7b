package repository

import (
	"context"

	"github.com/timmy/pagepipe/internal/domain"
	"gorm.io/gorm"
)

// Store is the gorm-backed persistence gateway of the pipeline.
type Store struct {
	db *gorm.DB

	Jobs      *JobRepository
	Pages     *PageRepository
	Summaries *SummaryRepository
}

// NewStore creates a Store over db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:        db,
		Jobs:      NewJobRepository(db),
		Pages:     NewPageRepository(db),
		Summaries: NewSummaryRepository(db),
	}
}

// CreateJobWithPages inserts the job and its page rows in one transaction.
func (s *Store) CreateJobWithPages(ctx context.Context, job *domain.Job, pages []domain.Page) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := NewJobRepository(tx).Create(ctx, job); err != nil {
			return err
		}
		return NewPageRepository(tx).CreateAll(ctx, pages)
	})
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.Jobs.GetByID(ctx, jobID)
}

func (s *Store) UpsertPage(ctx context.Context, page *domain.Page) error {
	return s.Pages.Upsert(ctx, page)
}

func (s *Store) GetPagesForJob(ctx context.Context, jobID string) ([]domain.Page, error) {
	return s.Pages.ListByJob(ctx, jobID)
}

func (s *Store) InsertSummary(ctx context.Context, summary *domain.Summary) error {
	return s.Summaries.Insert(ctx, summary)
}

func (s *Store) LatestSummary(ctx context.Context, jobID string) (*domain.Summary, error) {
	return s.Summaries.Latest(ctx, jobID)
}

func (s *Store) ListSummaries(ctx context.Context, jobID string) ([]domain.Summary, error) {
	return s.Summaries.ListByJob(ctx, jobID)
}
