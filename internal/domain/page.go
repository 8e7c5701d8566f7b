package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var jsonNull = datatypes.JSON("null")

// PageStatus represents the processing status of a single page.
type PageStatus string

const (
	PageStatusPending              PageStatus = "pending"
	PageStatusExtracting           PageStatus = "extracting"
	PageStatusExtracted            PageStatus = "extracted"
	PageStatusClassifying          PageStatus = "classifying"
	PageStatusSucceeded            PageStatus = "succeeded"
	PageStatusExtractionFailed     PageStatus = "extraction_failed"
	PageStatusClassificationFailed PageStatus = "classification_failed"
	PageStatusCancelled            PageStatus = "cancelled"
)

// pageTransitions lists the legal forward moves. Cancellation is handled
// separately since it is reachable from every non-terminal state.
var pageTransitions = map[PageStatus][]PageStatus{
	PageStatusPending:     {PageStatusExtracting},
	PageStatusExtracting:  {PageStatusExtracted, PageStatusExtractionFailed},
	PageStatusExtracted:   {PageStatusClassifying},
	PageStatusClassifying: {PageStatusSucceeded, PageStatusClassificationFailed},
}

// IsTerminal reports whether no further transition can leave this status.
func (s PageStatus) IsTerminal() bool {
	switch s {
	case PageStatusSucceeded, PageStatusExtractionFailed, PageStatusClassificationFailed, PageStatusCancelled:
		return true
	default:
		return false
	}
}

// IsFailure reports whether the status is a terminal non-success.
func (s PageStatus) IsFailure() bool {
	return s.IsTerminal() && s != PageStatusSucceeded
}

// Valid reports whether s is a known page status.
func (s PageStatus) Valid() bool {
	switch s {
	case PageStatusPending, PageStatusExtracting, PageStatusExtracted, PageStatusClassifying,
		PageStatusSucceeded, PageStatusExtractionFailed, PageStatusClassificationFailed, PageStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a page may move from one status to another.
func CanTransition(from, to PageStatus) bool {
	if from.IsTerminal() || !to.Valid() {
		return false
	}
	if to == PageStatusCancelled {
		return true
	}
	for _, next := range pageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Page is one unit of work: a single rendered page of a job's document.
// The row is keyed by (job_id, page_number) and is only ever written by the
// worker that owns the page for the current run.
type Page struct {
	JobID            string         `gorm:"type:text;primaryKey" json:"job_id"`
	PageNumber       int            `gorm:"primaryKey;autoIncrement:false" json:"page_number"`
	Status           PageStatus     `gorm:"type:text;index:idx_pages_status;not null;default:pending" json:"status"`
	InputKey         string         `gorm:"type:text" json:"input_key"`
	InputMIMEType    string         `gorm:"type:text" json:"input_mime_type"`
	RawText          *string        `gorm:"type:text" json:"raw_text,omitempty"`
	StructuredRecord datatypes.JSON `gorm:"not null" json:"structured_record,omitempty"`
	Error            *string        `gorm:"type:text" json:"error,omitempty"`
	AttemptCount     int            `gorm:"not null;default:0" json:"attempt_count"`
	ExtractAttempts  int            `gorm:"not null;default:0" json:"extract_attempts"`
	ClassifyAttempts int            `gorm:"not null;default:0" json:"classify_attempts"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Page.
func (Page) TableName() string {
	return "pages"
}

// BeforeSave stores an absent record as JSON null so the column is never NULL.
func (p *Page) BeforeSave(tx *gorm.DB) error {
	if len(p.StructuredRecord) == 0 {
		p.StructuredRecord = jsonNull
	}
	return nil
}

// NewPendingPage builds the initial row for a page of a freshly decomposed job.
func NewPendingPage(in PageInput) Page {
	return Page{
		JobID:         in.JobID,
		PageNumber:    in.PageNumber,
		Status:        PageStatusPending,
		InputKey:      in.StorageKey,
		InputMIMEType: in.MIMEType,
	}
}

// Transition moves the page to the given status, rejecting illegal moves.
// A page that is not succeeded never keeps a structured record.
func (p *Page) Transition(to PageStatus) error {
	if !CanTransition(p.Status, to) {
		return fmt.Errorf("%w: page %d %s -> %s", ErrInvalidTransition, p.PageNumber, p.Status, to)
	}
	p.Status = to
	if to != PageStatusSucceeded {
		p.StructuredRecord = nil
	}
	return nil
}

// SetError records the last failure reason verbatim.
func (p *Page) SetError(err error) {
	if err == nil {
		p.Error = nil
		return
	}
	msg := err.Error()
	p.Error = &msg
}

// Record decodes the structured record of a succeeded page.
// Returns nil without error when the page has no record.
func (p *Page) Record() (*StructuredRecord, error) {
	if len(p.StructuredRecord) == 0 || string(p.StructuredRecord) == string(jsonNull) {
		return nil, nil
	}
	var rec StructuredRecord
	if err := json.Unmarshal(p.StructuredRecord, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode structured record for page %d: %w", p.PageNumber, err)
	}
	return &rec, nil
}

// SetRecord encodes rec into the page's structured record column.
func (p *Page) SetRecord(rec *StructuredRecord) error {
	if rec == nil {
		p.StructuredRecord = nil
		return nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode structured record for page %d: %w", p.PageNumber, err)
	}
	p.StructuredRecord = datatypes.JSON(b)
	return nil
}

// PageInput is everything the extractor needs to process one page.
type PageInput struct {
	JobID      string `json:"job_id"`
	PageNumber int    `json:"page_number"`
	StorageKey string `json:"storage_key"`
	MIMEType   string `json:"mime_type"`
}

// InputFromPage rebuilds the extractor input of a persisted page row.
func InputFromPage(p Page) PageInput {
	return PageInput{
		JobID:      p.JobID,
		PageNumber: p.PageNumber,
		StorageKey: p.InputKey,
		MIMEType:   p.InputMIMEType,
	}
}

// ValidateSequence checks that inputs are numbered exactly 1..N in order.
func ValidateSequence(inputs []PageInput) error {
	if len(inputs) == 0 {
		return fmt.Errorf("job has no pages")
	}
	for i, in := range inputs {
		if in.PageNumber != i+1 {
			return fmt.Errorf("page sequence broken at position %d: got page %d", i+1, in.PageNumber)
		}
	}
	return nil
}
