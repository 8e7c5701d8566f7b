package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/timmy/pagepipe/internal/domain"
	"github.com/timmy/pagepipe/internal/logger"
)

// SummaryFailedHeading opens the narrative of a degraded summary.
const SummaryFailedHeading = "**Summary Generation Failed**"

// PageRecord is a succeeded page's structured record with its position.
type PageRecord struct {
	PageNumber int
	Record     domain.StructuredRecord
}

// Aggregator merges a finished job's pages into a persisted summary.
type Aggregator struct {
	gw           Gateway
	summarizer   Summarizer
	policy       RetryPolicy
	stageTimeout time.Duration
}

// NewAggregator creates an Aggregator. A nil policy uses DefaultRetryPolicy.
func NewAggregator(gw Gateway, summarizer Summarizer, policy RetryPolicy, stageTimeout time.Duration) *Aggregator {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if stageTimeout <= 0 {
		stageTimeout = DefaultStageTimeout
	}
	return &Aggregator{gw: gw, summarizer: summarizer, policy: policy, stageTimeout: stageTimeout}
}

// Summarize builds and appends a new summary version for a job whose pages
// are all terminal. The summarizer is only called when at least one page
// succeeded; if it fails the summary is still stored, marked degraded.
func (a *Aggregator) Summarize(ctx context.Context, jobID string, pages []domain.Page) (*domain.Summary, error) {
	ctx = logger.SetStage(logger.SetJobID(ctx, jobID), StageSummarize)

	sorted := make([]domain.Page, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PageNumber < sorted[j].PageNumber })

	var records []PageRecord
	var failed []domain.FailedPage
	for _, p := range sorted {
		if !p.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: page %d is %s", domain.ErrJobNotTerminal, p.PageNumber, p.Status)
		}
		if p.Status != domain.PageStatusSucceeded {
			fp := domain.FailedPage{PageNumber: p.PageNumber, Status: p.Status}
			if p.Error != nil {
				fp.Error = *p.Error
			}
			failed = append(failed, fp)
			continue
		}
		rec, err := p.Record()
		if err != nil {
			return nil, err
		}
		if rec == nil {
			rec = &domain.StructuredRecord{}
		}
		if rec.Content == "" && p.RawText != nil {
			rec.Content = *p.RawText
		}
		records = append(records, PageRecord{PageNumber: p.PageNumber, Record: *rec})
	}

	identity, complete := ReconcileIdentity(records)
	merged := MergePages(records, failed)

	summary := &domain.Summary{
		JobID:              jobID,
		IdentityIncomplete: !complete,
		MergedInput:        merged,
		SucceededCount:     len(records),
		FailedCount:        len(failed),
	}
	summary.SetIdentity(identity)
	if err := summary.SetFailedPages(failed); err != nil {
		return nil, err
	}

	if len(records) == 0 {
		summary.Narrative = totalFailureNarrative(len(failed), merged)
	} else {
		var narrative string
		out := retryCall(ctx, a.policy, a.stageTimeout, func(callCtx context.Context) error {
			var err error
			narrative, err = a.summarizer.SummarizeDocument(callCtx, merged)
			return err
		})
		switch {
		case out.Cancelled:
			summary.Degraded = true
			summary.SummaryError = fmt.Sprintf("summary cancelled: %v", context.Cause(ctx))
		case out.Err != nil:
			summary.Degraded = true
			summary.SummaryError = out.Err.Error()
		default:
			summary.Narrative = narrative
		}
		if summary.Degraded {
			logger.CtxWarn(ctx, "Summary degraded: %s", summary.SummaryError)
			summary.Narrative = degradedNarrative(summary.SummaryError, merged)
		}
	}

	if err := a.gw.InsertSummary(context.WithoutCancel(ctx), summary); err != nil {
		return nil, err
	}

	logger.With(logger.Fields{
		"version":   summary.Version,
		"succeeded": summary.SucceededCount,
		"failed":    summary.FailedCount,
		"degraded":  summary.Degraded,
	}).Info(ctx, "Summary stored")

	return summary, nil
}

// MergePages renders succeeded pages in ascending order, each under a
// "## Page N" heading, followed by a list of the pages that failed.
func MergePages(records []PageRecord, failed []domain.FailedPage) string {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "## Page %d\n\n", r.PageNumber)
		if len(r.Record.Tags) > 0 {
			fmt.Fprintf(&b, "_Tags: %s_\n\n", strings.Join(r.Record.Tags, ", "))
		}
		b.WriteString(strings.TrimSpace(r.Record.Content))
		b.WriteString("\n\n")
	}
	if len(failed) > 0 {
		b.WriteString("## Failed pages\n\n")
		for _, f := range failed {
			if f.Error != "" {
				fmt.Fprintf(&b, "- Page %d: %s (%s)\n", f.PageNumber, f.Status, f.Error)
			} else {
				fmt.Fprintf(&b, "- Page %d: %s\n", f.PageNumber, f.Status)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func totalFailureNarrative(failedCount int, merged string) string {
	return fmt.Sprintf("**Document Processing Failed**\n\nNone of the %d pages could be processed, so no summary was generated.\n\n%s",
		failedCount, merged)
}

func degradedNarrative(reason, merged string) string {
	return fmt.Sprintf("%s\n\nThe document summary could not be generated (%s). The merged page content is included below.\n\n%s",
		SummaryFailedHeading, reason, merged)
}

// ReconcileIdentity picks one value per identity field across pages. The
// value seen on the most pages wins, compared case- and whitespace-
// insensitively; ties go to the value first seen on the lowest page number,
// and the spelling on that page is kept. complete is false when any field has
// no value on any page.
func ReconcileIdentity(records []PageRecord) (id domain.PatientIdentity, complete bool) {
	id = domain.PatientIdentity{
		Name:       reconcileField(records, func(p domain.PatientIdentity) string { return p.Name }),
		Identifier: reconcileField(records, func(p domain.PatientIdentity) string { return p.Identifier }),
		Age:        reconcileField(records, func(p domain.PatientIdentity) string { return p.Age }),
		Gender:     reconcileField(records, func(p domain.PatientIdentity) string { return p.Gender }),
	}
	complete = id.Name != "" && id.Identifier != "" && id.Age != "" && id.Gender != ""
	return id, complete
}

type fieldCandidate struct {
	count     int
	firstPage int
	spelling  string
}

func reconcileField(records []PageRecord, get func(domain.PatientIdentity) string) string {
	candidates := make(map[string]*fieldCandidate)
	for _, r := range records {
		raw := strings.TrimSpace(get(r.Record.Identity))
		key := normalizeIdentityValue(raw)
		if key == "" {
			continue
		}
		c, ok := candidates[key]
		if !ok {
			candidates[key] = &fieldCandidate{count: 1, firstPage: r.PageNumber, spelling: raw}
			continue
		}
		c.count++
		if r.PageNumber < c.firstPage {
			c.firstPage = r.PageNumber
			c.spelling = raw
		}
	}

	var best *fieldCandidate
	for _, c := range candidates {
		if best == nil || c.count > best.count || (c.count == best.count && c.firstPage < best.firstPage) {
			best = c
		}
	}
	if best == nil {
		return ""
	}
	return best.spelling
}

func normalizeIdentityValue(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}
