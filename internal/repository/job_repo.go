package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/timmy/pagepipe/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles job rows.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID, returning domain.ErrJobNotFound when absent.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListRecent returns the most recently created jobs.
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	var jobs []domain.Job
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListByPatient returns the jobs whose latest summary names the patient
// identifier, newest first. Identifiers compare case-insensitively.
func (r *JobRepository) ListByPatient(ctx context.Context, identifier string, limit int) ([]domain.Job, error) {
	latest := r.db.Model(&domain.Summary{}).
		Select("job_id, MAX(version) AS version").
		Group("job_id")

	var jobs []domain.Job
	if err := r.db.WithContext(ctx).
		Select("jobs.*").
		Joins("JOIN summaries ON summaries.job_id = jobs.id").
		Joins("JOIN (?) AS latest ON latest.job_id = summaries.job_id AND latest.version = summaries.version", latest).
		Where("LOWER(TRIM(summaries.patient_identifier)) = LOWER(?)", strings.TrimSpace(identifier)).
		Order("jobs.created_at DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
