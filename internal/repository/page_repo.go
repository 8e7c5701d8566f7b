package repository

import (
	"context"

	"github.com/timmy/pagepipe/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PageRepository handles page rows keyed by (job_id, page_number).
type PageRepository struct {
	db *gorm.DB
}

// NewPageRepository creates a new PageRepository.
func NewPageRepository(db *gorm.DB) *PageRepository {
	return &PageRepository{db: db}
}

// pageUpdateColumns are overwritten when a page row already exists.
var pageUpdateColumns = []string{
	"status",
	"input_key",
	"input_mime_type",
	"raw_text",
	"structured_record",
	"error",
	"attempt_count",
	"extract_attempts",
	"classify_attempts",
	"updated_at",
}

// Upsert writes the full page row. Writing the same row twice leaves one row.
func (r *PageRepository) Upsert(ctx context.Context, page *domain.Page) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}, {Name: "page_number"}},
		DoUpdates: clause.AssignmentColumns(pageUpdateColumns),
	}).Create(page).Error
}

// CreateAll inserts new page rows. Unlike Upsert an existing row is an error.
func (r *PageRepository) CreateAll(ctx context.Context, pages []domain.Page) error {
	if len(pages) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(pages, 200).Error
}

// ListByJob returns all rows of a job ordered by page number.
func (r *PageRepository) ListByJob(ctx context.Context, jobID string) ([]domain.Page, error) {
	var pages []domain.Page
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("page_number ASC").
		Find(&pages).Error; err != nil {
		return nil, err
	}
	return pages, nil
}
