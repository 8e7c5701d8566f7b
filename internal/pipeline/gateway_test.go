package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/pagepipe/internal/domain"
)

func TestRetryingGatewayRecoversFromTransientWrites(t *testing.T) {
	mem := newMemGateway()
	mem.failWrites = 2
	gw := NewRetryingGateway(mem, 3, 0)

	page := domain.NewPendingPage(domain.PageInput{JobID: "job", PageNumber: 1})
	require.NoError(t, gw.UpsertPage(context.Background(), &page))
	assert.Equal(t, 3, mem.writes)

	rows, err := gw.GetPagesForJob(context.Background(), "job")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRetryingGatewayExhaustion(t *testing.T) {
	mem := newMemGateway()
	mem.failWrites = -1
	gw := NewRetryingGateway(mem, 2, 0)

	err := gw.InsertSummary(context.Background(), &domain.Summary{JobID: "job"})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.ErrorIs(t, err, errDiskFull)

	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "insert_summary", perr.Op)
	assert.Equal(t, 3, mem.writes)
}

func TestUpsertSameTerminalPageTwiceKeepsOneRow(t *testing.T) {
	mem := newMemGateway()
	page := domain.Page{JobID: "job", PageNumber: 1, Status: domain.PageStatusSucceeded}
	require.NoError(t, mem.UpsertPage(context.Background(), &page))
	require.NoError(t, mem.UpsertPage(context.Background(), &page))

	rows, err := mem.GetPagesForJob(context.Background(), "job")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestTrackerReportProgress(t *testing.T) {
	ctx := context.Background()
	mem := newMemGateway()
	require.NoError(t, mem.CreateJobWithPages(ctx, &domain.Job{ID: "job", TotalPages: 4}, nil))
	for n, st := range []domain.PageStatus{
		domain.PageStatusSucceeded,
		domain.PageStatusExtractionFailed,
		domain.PageStatusClassifying,
		domain.PageStatusPending,
	} {
		p := domain.Page{JobID: "job", PageNumber: n + 1, Status: st}
		require.NoError(t, mem.UpsertPage(ctx, &p))
	}

	report, err := NewTracker(mem).JobStatus(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, report.Status)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Terminal)
	assert.InDelta(t, 50.0, report.Progress, 0.001)
}

func TestTrackerRejectsIllegalTransition(t *testing.T) {
	mem := newMemGateway()
	tr := NewTracker(mem)
	page := domain.NewPendingPage(domain.PageInput{JobID: "job", PageNumber: 1})

	err := tr.Transition(context.Background(), &page, domain.PageStatusSucceeded)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Zero(t, mem.writes)
}
