package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/pagepipe/internal/domain"
	"github.com/timmy/pagepipe/internal/logger"
)

// DefaultStageTimeout bounds a single external call.
const DefaultStageTimeout = 60 * time.Second

// PageResult is the final state of one processed page. Stage failures are
// reported through Page.Status and Page.Error; Fatal is set only when the
// page's status could not be persisted.
type PageResult struct {
	Page  domain.Page
	Fatal error
}

// PageWorker drives a single page through extraction and classification.
type PageWorker struct {
	tracker      *Tracker
	extractor    Extractor
	classifier   Classifier
	stageTimeout time.Duration
}

// NewPageWorker creates a PageWorker. A non-positive stageTimeout uses
// DefaultStageTimeout.
func NewPageWorker(tracker *Tracker, extractor Extractor, classifier Classifier, stageTimeout time.Duration) *PageWorker {
	if stageTimeout <= 0 {
		stageTimeout = DefaultStageTimeout
	}
	return &PageWorker{
		tracker:      tracker,
		extractor:    extractor,
		classifier:   classifier,
		stageTimeout: stageTimeout,
	}
}

// Process runs one page to a terminal status. Every transition is persisted
// through the tracker before the next step starts. If ctx ends, the page is
// marked cancelled at the next check point and any results in hand are dropped.
func (w *PageWorker) Process(ctx context.Context, in domain.PageInput, policy RetryPolicy) PageResult {
	ctx = logger.SetPageNumber(ctx, in.PageNumber)
	page := domain.NewPendingPage(in)

	if ctx.Err() != nil {
		return w.cancel(ctx, &page)
	}
	if err := w.tracker.Transition(ctx, &page, domain.PageStatusExtracting); err != nil {
		return PageResult{Page: page, Fatal: err}
	}

	var text string
	extracted := retryCall(logger.SetStage(ctx, StageExtract), policy, w.stageTimeout, func(callCtx context.Context) error {
		var err error
		text, err = w.extractor.Extract(callCtx, in)
		return err
	})
	page.ExtractAttempts = extracted.Attempts
	page.AttemptCount = page.ExtractAttempts

	switch {
	case extracted.Cancelled:
		return w.cancel(ctx, &page)
	case extracted.Err != nil:
		return w.fail(ctx, &page, domain.PageStatusExtractionFailed, StageExtract, extracted.Err)
	}

	page.RawText = &text
	if err := w.tracker.Transition(ctx, &page, domain.PageStatusExtracted); err != nil {
		return PageResult{Page: page, Fatal: err}
	}

	if ctx.Err() != nil {
		return w.cancel(ctx, &page)
	}
	if err := w.tracker.Transition(ctx, &page, domain.PageStatusClassifying); err != nil {
		return PageResult{Page: page, Fatal: err}
	}

	var record domain.StructuredRecord
	classified := retryCall(logger.SetStage(ctx, StageClassify), policy, w.stageTimeout, func(callCtx context.Context) error {
		var err error
		record, err = w.classifier.Classify(callCtx, text)
		return err
	})
	page.ClassifyAttempts = classified.Attempts
	page.AttemptCount = max(page.ExtractAttempts, page.ClassifyAttempts)

	switch {
	case classified.Cancelled:
		return w.cancel(ctx, &page)
	case classified.Err != nil:
		return w.fail(ctx, &page, domain.PageStatusClassificationFailed, StageClassify, classified.Err)
	}

	if err := page.SetRecord(&record); err != nil {
		return w.fail(ctx, &page, domain.PageStatusClassificationFailed, StageClassify, err)
	}
	page.SetError(nil)
	if err := w.tracker.Transition(ctx, &page, domain.PageStatusSucceeded); err != nil {
		return PageResult{Page: page, Fatal: err}
	}

	logger.With(nil).WithAttempt(page.AttemptCount).WithStatus(page.Status).Debug(ctx, "Page processed")

	return PageResult{Page: page}
}

func (w *PageWorker) fail(ctx context.Context, page *domain.Page, to domain.PageStatus, stage string, err error) PageResult {
	page.SetError(err)
	logger.ForStage(stage).WithAttempt(page.AttemptCount).Warn(ctx, "Page failed: %v", err)

	if perr := w.tracker.Transition(ctx, page, to); perr != nil {
		return PageResult{Page: *page, Fatal: perr}
	}
	return PageResult{Page: *page}
}

func (w *PageWorker) cancel(ctx context.Context, page *domain.Page) PageResult {
	from := page.Status
	page.RawText = nil
	page.SetError(fmt.Errorf("job cancelled: %w", context.Cause(ctx)))
	if err := w.tracker.Transition(ctx, page, domain.PageStatusCancelled); err != nil {
		return PageResult{Page: *page, Fatal: err}
	}
	logger.CtxInfo(ctx, "Page cancelled while %s", from)
	return PageResult{Page: *page}
}
