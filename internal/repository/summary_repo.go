package repository

import (
	"context"
	"errors"

	"github.com/timmy/pagepipe/internal/domain"
	"gorm.io/gorm"
)

// SummaryRepository handles append-only summary rows.
type SummaryRepository struct {
	db *gorm.DB
}

// NewSummaryRepository creates a new SummaryRepository.
func NewSummaryRepository(db *gorm.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// Insert appends a summary, assigning the next version for its job.
// Earlier versions are never updated.
func (r *SummaryRepository) Insert(ctx context.Context, summary *domain.Summary) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		if err := tx.Model(&domain.Summary{}).
			Where("job_id = ?", summary.JobID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&maxVersion).Error; err != nil {
			return err
		}

		summary.ID = 0
		summary.Version = maxVersion + 1
		return tx.Create(summary).Error
	})
}

// Latest returns the highest version summary of a job.
func (r *SummaryRepository) Latest(ctx context.Context, jobID string) (*domain.Summary, error) {
	var summary domain.Summary
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("version DESC").
		First(&summary).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNoSummary
		}
		return nil, err
	}
	return &summary, nil
}

// ListByJob returns all summary versions of a job, oldest first.
func (r *SummaryRepository) ListByJob(ctx context.Context, jobID string) ([]domain.Summary, error) {
	var summaries []domain.Summary
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("version ASC").
		Find(&summaries).Error; err != nil {
		return nil, err
	}
	return summaries, nil
}
