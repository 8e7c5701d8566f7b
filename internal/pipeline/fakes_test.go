package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/timmy/pagepipe/internal/domain"
)

// memGateway is an in-memory Gateway with upsert semantics.
type memGateway struct {
	mu        sync.Mutex
	jobs      map[string]domain.Job
	pages     map[string]map[int]domain.Page
	history   map[string][]domain.PageStatus
	summaries map[string][]domain.Summary

	// failWrites fails that many upcoming writes; negative fails all.
	failWrites int
	writes     int
	// rejectPage makes job creation fail on that page number.
	rejectPage int
}

func newMemGateway() *memGateway {
	return &memGateway{
		jobs:      make(map[string]domain.Job),
		pages:     make(map[string]map[int]domain.Page),
		history:   make(map[string][]domain.PageStatus),
		summaries: make(map[string][]domain.Summary),
	}
}

var errDiskFull = errors.New("disk full")

func (g *memGateway) checkWrite() error {
	g.writes++
	if g.failWrites < 0 {
		return errDiskFull
	}
	if g.failWrites > 0 {
		g.failWrites--
		return errDiskFull
	}
	return nil
}

func (g *memGateway) CreateJobWithPages(ctx context.Context, job *domain.Job, pages []domain.Page) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkWrite(); err != nil {
		return err
	}
	if _, ok := g.jobs[job.ID]; ok {
		return fmt.Errorf("duplicate job %s", job.ID)
	}
	rows := make(map[int]domain.Page, len(pages))
	for _, p := range pages {
		if p.PageNumber == g.rejectPage {
			return fmt.Errorf("page %d: %w", p.PageNumber, errDiskFull)
		}
		if _, dup := rows[p.PageNumber]; dup {
			return fmt.Errorf("duplicate page %d", p.PageNumber)
		}
		rows[p.PageNumber] = p
	}

	g.jobs[job.ID] = *job
	g.pages[job.ID] = rows
	for _, p := range pages {
		key := fmt.Sprintf("%s/%d", job.ID, p.PageNumber)
		g.history[key] = append(g.history[key], p.Status)
	}
	return nil
}

func (g *memGateway) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	job, ok := g.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return &job, nil
}

func (g *memGateway) UpsertPage(ctx context.Context, page *domain.Page) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkWrite(); err != nil {
		return err
	}
	rows, ok := g.pages[page.JobID]
	if !ok {
		rows = make(map[int]domain.Page)
		g.pages[page.JobID] = rows
	}
	rows[page.PageNumber] = *page
	key := fmt.Sprintf("%s/%d", page.JobID, page.PageNumber)
	g.history[key] = append(g.history[key], page.Status)
	return nil
}

func (g *memGateway) GetPagesForJob(ctx context.Context, jobID string) ([]domain.Page, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.Page
	for _, p := range g.pages[jobID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out, nil
}

func (g *memGateway) InsertSummary(ctx context.Context, summary *domain.Summary) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkWrite(); err != nil {
		return err
	}
	summary.Version = len(g.summaries[summary.JobID]) + 1
	g.summaries[summary.JobID] = append(g.summaries[summary.JobID], *summary)
	return nil
}

func (g *memGateway) LatestSummary(ctx context.Context, jobID string) (*domain.Summary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	all := g.summaries[jobID]
	if len(all) == 0 {
		return nil, domain.ErrNoSummary
	}
	s := all[len(all)-1]
	return &s, nil
}

func (g *memGateway) ListSummaries(ctx context.Context, jobID string) ([]domain.Summary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Summary(nil), g.summaries[jobID]...), nil
}

func (g *memGateway) statusHistory(jobID string, page int) []domain.PageStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.PageStatus(nil), g.history[fmt.Sprintf("%s/%d", jobID, page)]...)
}

// fakeExtractor returns "text of page N" unless fn overrides it.
type fakeExtractor struct {
	mu    sync.Mutex
	calls map[int]int
	fn    func(ctx context.Context, in domain.PageInput, call int) (string, error)

	inFlight atomic.Int32
	peak     atomic.Int32
}

func (e *fakeExtractor) Extract(ctx context.Context, in domain.PageInput) (string, error) {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}

	e.mu.Lock()
	if e.calls == nil {
		e.calls = make(map[int]int)
	}
	e.calls[in.PageNumber]++
	call := e.calls[in.PageNumber]
	e.mu.Unlock()

	if e.fn != nil {
		return e.fn(ctx, in, call)
	}
	return fmt.Sprintf("text of page %d", in.PageNumber), nil
}

func (e *fakeExtractor) callsFor(page int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[page]
}

// fakeClassifier echoes the text into the record unless fn overrides it.
type fakeClassifier struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, text string) (domain.StructuredRecord, error)
}

func (c *fakeClassifier) Classify(ctx context.Context, text string) (domain.StructuredRecord, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.fn != nil {
		return c.fn(ctx, text)
	}
	return domain.StructuredRecord{
		Identity: domain.PatientIdentity{Name: "Jane Roe", Identifier: "UH-1", Age: "54", Gender: "F"},
		Tags:     []string{domain.TagClinicalDocumentation},
		Content:  text,
	}, nil
}

type fakeSummarizer struct {
	mu     sync.Mutex
	calls  int
	merged string
	err    error
}

func (s *fakeSummarizer) SummarizeDocument(ctx context.Context, merged string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.merged = merged
	if s.err != nil {
		return "", s.err
	}
	return "narrative summary", nil
}

func (s *fakeSummarizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func inputsFor(jobID string, n int) []domain.PageInput {
	inputs := make([]domain.PageInput, n)
	for i := range inputs {
		inputs[i] = domain.PageInput{
			JobID:      jobID,
			PageNumber: i + 1,
			StorageKey: fmt.Sprintf("jobs/%s/pages/%04d.png", jobID, i+1),
			MIMEType:   "image/png",
		}
	}
	return inputs
}
