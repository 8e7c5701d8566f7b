package pipeline

import (
	"context"
	"errors"

	"github.com/timmy/pagepipe/internal/domain"
)

// Tracker applies page state transitions and persists each one before it
// is considered to have happened. It keeps no status of its own; job status
// is always derived from the stored rows.
type Tracker struct {
	gw Gateway
}

// NewTracker creates a Tracker writing through gw.
func NewTracker(gw Gateway) *Tracker {
	return &Tracker{gw: gw}
}

// Init writes the initial pending row of a page.
func (t *Tracker) Init(ctx context.Context, page *domain.Page) error {
	if page.Status != domain.PageStatusPending {
		return domain.ErrInvalidTransition
	}
	return t.save(ctx, page)
}

// Transition validates the move and persists the updated row.
func (t *Tracker) Transition(ctx context.Context, page *domain.Page, to domain.PageStatus) error {
	if err := page.Transition(to); err != nil {
		return err
	}
	return t.save(ctx, page)
}

// save writes even after the job context is done so cancellations and
// terminal statuses still land.
func (t *Tracker) save(ctx context.Context, page *domain.Page) error {
	err := t.gw.UpsertPage(context.WithoutCancel(ctx), page)
	if err != nil && !errors.Is(err, domain.ErrStorageUnavailable) {
		return storageUnavailable("upsert_page", err)
	}
	return err
}

// JobStatusReport is the derived status of a job with per-status counts.
type JobStatusReport struct {
	JobID      string                    `json:"job_id"`
	Status     domain.JobStatus          `json:"status"`
	TotalPages int                       `json:"total_pages"`
	Counts     map[domain.PageStatus]int `json:"counts"`
	Succeeded  int                       `json:"succeeded"`
	Failed     int                       `json:"failed"`
	Terminal   int                       `json:"terminal"`
	Progress   float64                   `json:"progress"` // percent of pages in a terminal status
}

// JobStatus loads a job's rows and derives its aggregate status.
func (t *Tracker) JobStatus(ctx context.Context, jobID string) (*JobStatusReport, error) {
	job, err := t.gw.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	pages, err := t.gw.GetPagesForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return buildReport(job, pages), nil
}

func buildReport(job *domain.Job, pages []domain.Page) *JobStatusReport {
	report := &JobStatusReport{
		JobID:      job.ID,
		Status:     domain.DeriveJobStatus(job.TotalPages, domain.StatusesOf(pages)),
		TotalPages: job.TotalPages,
		Counts:     make(map[domain.PageStatus]int),
	}
	for _, p := range pages {
		report.Counts[p.Status]++
		if !p.Status.IsTerminal() {
			continue
		}
		report.Terminal++
		if p.Status == domain.PageStatusSucceeded {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	if job.TotalPages > 0 {
		report.Progress = float64(report.Terminal) / float64(job.TotalPages) * 100
	}
	return report
}
