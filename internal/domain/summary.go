package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FailedPage describes a page left out of a summary's narrative.
type FailedPage struct {
	PageNumber int        `json:"page_number"`
	Status     PageStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
}

// Summary is one document-level aggregation of a job. Rows are append-only:
// each aggregation of the same job inserts the next Version.
type Summary struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	JobID              string         `gorm:"type:text;not null;uniqueIndex:idx_summaries_job_version" json:"job_id"`
	Version            int            `gorm:"not null;uniqueIndex:idx_summaries_job_version" json:"version"`
	PatientName        string         `gorm:"type:text" json:"patient_name"`
	PatientIdentifier  string         `gorm:"type:text" json:"patient_identifier"`
	PatientAge         string         `gorm:"type:text" json:"patient_age"`
	PatientGender      string         `gorm:"type:text" json:"patient_gender"`
	IdentityIncomplete bool           `gorm:"not null;default:false" json:"identity_incomplete"`
	Narrative          string         `gorm:"type:text" json:"narrative"`
	MergedInput        string         `gorm:"type:text" json:"merged_input"`
	FailedPages        datatypes.JSON `gorm:"not null" json:"failed_pages"`
	SucceededCount     int            `json:"succeeded_count"`
	FailedCount        int            `json:"failed_count"`
	Degraded           bool           `gorm:"not null;default:false" json:"degraded"`
	SummaryError       string         `gorm:"type:text" json:"summary_error,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// TableName returns the database table name for Summary.
func (Summary) TableName() string {
	return "summaries"
}

// BeforeSave stores an absent failed-page list as an empty JSON array.
func (s *Summary) BeforeSave(tx *gorm.DB) error {
	if len(s.FailedPages) == 0 {
		s.FailedPages = datatypes.JSON("[]")
	}
	return nil
}

// SetFailedPages encodes the failed-page list.
func (s *Summary) SetFailedPages(pages []FailedPage) error {
	if pages == nil {
		pages = []FailedPage{}
	}
	b, err := json.Marshal(pages)
	if err != nil {
		return fmt.Errorf("failed to encode failed pages: %w", err)
	}
	s.FailedPages = datatypes.JSON(b)
	return nil
}

// FailedPageList decodes the failed-page list.
func (s *Summary) FailedPageList() ([]FailedPage, error) {
	if len(s.FailedPages) == 0 {
		return nil, nil
	}
	var pages []FailedPage
	if err := json.Unmarshal(s.FailedPages, &pages); err != nil {
		return nil, fmt.Errorf("failed to decode failed pages: %w", err)
	}
	return pages, nil
}

// Identity returns the reconciled identity stored on the summary.
func (s *Summary) Identity() PatientIdentity {
	return PatientIdentity{
		Name:       s.PatientName,
		Identifier: s.PatientIdentifier,
		Age:        s.PatientAge,
		Gender:     s.PatientGender,
	}
}

// SetIdentity copies a reconciled identity onto the summary.
func (s *Summary) SetIdentity(id PatientIdentity) {
	s.PatientName = id.Name
	s.PatientIdentifier = id.Identifier
	s.PatientAge = id.Age
	s.PatientGender = id.Gender
}
