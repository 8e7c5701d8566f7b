package domain

import "time"

// JobStatus is the aggregate status of a job. It is never stored; it is
// derived from the job's page rows by DeriveJobStatus.
type JobStatus string

const (
	JobStatusProcessing          JobStatus = "processing"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
	JobStatusFailed              JobStatus = "failed"
)

// IsTerminal reports whether every page of the job has finished.
func (s JobStatus) IsTerminal() bool {
	return s != JobStatusProcessing
}

// Job represents one uploaded document and its page decomposition.
type Job struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	TotalPages int       `gorm:"not null" json:"total_pages"`
	SourceName string    `gorm:"type:text" json:"source_name"`
	SourceKey  string    `gorm:"type:text" json:"source_key"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// DeriveJobStatus computes the aggregate job status from page statuses.
// Pages without a row yet count as pending, so a job with fewer statuses than
// totalPages is still processing.
func DeriveJobStatus(totalPages int, statuses []PageStatus) JobStatus {
	if len(statuses) == 0 || len(statuses) < totalPages {
		return JobStatusProcessing
	}

	succeeded, failed := 0, 0
	for _, s := range statuses {
		switch {
		case !s.IsTerminal():
			return JobStatusProcessing
		case s == PageStatusSucceeded:
			succeeded++
		default:
			failed++
		}
	}

	switch {
	case failed == 0:
		return JobStatusCompleted
	case succeeded == 0:
		return JobStatusFailed
	default:
		return JobStatusCompletedWithErrors
	}
}

// StatusesOf returns the statuses of pages in order.
func StatusesOf(pages []Page) []PageStatus {
	out := make([]PageStatus, len(pages))
	for i, p := range pages {
		out[i] = p.Status
	}
	return out
}
