package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveJobStatus(t *testing.T) {
	testCases := []struct {
		name     string
		total    int
		statuses []PageStatus
		want     JobStatus
	}{
		{
			name:     "all succeeded",
			total:    2,
			statuses: []PageStatus{PageStatusSucceeded, PageStatusSucceeded},
			want:     JobStatusCompleted,
		},
		{
			name:     "one extraction failure",
			total:    2,
			statuses: []PageStatus{PageStatusSucceeded, PageStatusExtractionFailed},
			want:     JobStatusCompletedWithErrors,
		},
		{
			name:     "no page succeeded",
			total:    2,
			statuses: []PageStatus{PageStatusExtractionFailed, PageStatusClassificationFailed},
			want:     JobStatusFailed,
		},
		{
			name:     "cancelled counts as failure",
			total:    2,
			statuses: []PageStatus{PageStatusSucceeded, PageStatusCancelled},
			want:     JobStatusCompletedWithErrors,
		},
		{
			name:     "non-terminal page",
			total:    3,
			statuses: []PageStatus{PageStatusSucceeded, PageStatusClassifying, PageStatusExtractionFailed},
			want:     JobStatusProcessing,
		},
		{
			name:     "missing rows",
			total:    3,
			statuses: []PageStatus{PageStatusSucceeded, PageStatusSucceeded},
			want:     JobStatusProcessing,
		},
		{
			name:     "no rows",
			total:    1,
			statuses: nil,
			want:     JobStatusProcessing,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveJobStatus(tc.total, tc.statuses)
			assert.Equal(t, tc.want, got)
			// Derivation is a pure function of its inputs.
			assert.Equal(t, got, DeriveJobStatus(tc.total, tc.statuses))
		})
	}
}

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		from, to PageStatus
		want     bool
	}{
		{PageStatusPending, PageStatusExtracting, true},
		{PageStatusExtracting, PageStatusExtracted, true},
		{PageStatusExtracting, PageStatusExtractionFailed, true},
		{PageStatusExtracted, PageStatusClassifying, true},
		{PageStatusClassifying, PageStatusSucceeded, true},
		{PageStatusClassifying, PageStatusClassificationFailed, true},
		{PageStatusPending, PageStatusCancelled, true},
		{PageStatusExtracted, PageStatusCancelled, true},
		{PageStatusPending, PageStatusClassifying, false},
		{PageStatusExtracting, PageStatusSucceeded, false},
		{PageStatusExtracted, PageStatusClassificationFailed, false},
		{PageStatusSucceeded, PageStatusCancelled, false},
		{PageStatusCancelled, PageStatusPending, false},
		{PageStatusExtractionFailed, PageStatusExtracting, false},
		{PageStatusPending, PageStatus("bogus"), false},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s->%s", tc.from, tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to))
		})
	}
}

func TestPageTransitionClearsRecordOffSuccess(t *testing.T) {
	p := Page{JobID: "job", PageNumber: 1, Status: PageStatusClassifying}
	require.NoError(t, p.SetRecord(&StructuredRecord{Content: "x"}))

	require.NoError(t, p.Transition(PageStatusCancelled))
	assert.Nil(t, p.StructuredRecord)

	err := p.Transition(PageStatusExtracting)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPageRecordRoundTrip(t *testing.T) {
	p := Page{PageNumber: 3, Status: PageStatusSucceeded}
	rec := &StructuredRecord{
		Identity: PatientIdentity{Name: "Jane Roe", Age: "54"},
		Tags:     []string{TagTreatment},
		Content:  "## Chemotherapy chart",
	}
	require.NoError(t, p.SetRecord(rec))

	got, err := p.Record()
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	empty := Page{}
	got, err = empty.Record()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsTransient(NewTransientError("extract", errors.New("503"))))
	assert.False(t, IsTransient(NewPermanentError("classify", errors.New("bad json"))))
	assert.True(t, IsPermanent(fmt.Errorf("wrapped: %w", NewPermanentError("classify", errors.New("bad json")))))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(errors.New("unclassified")))
	assert.False(t, IsTransient(nil))
}

func TestValidateSequence(t *testing.T) {
	ok := []PageInput{{PageNumber: 1}, {PageNumber: 2}, {PageNumber: 3}}
	assert.NoError(t, ValidateSequence(ok))

	gap := []PageInput{{PageNumber: 1}, {PageNumber: 3}}
	assert.Error(t, ValidateSequence(gap))

	dup := []PageInput{{PageNumber: 1}, {PageNumber: 1}}
	assert.Error(t, ValidateSequence(dup))

	assert.Error(t, ValidateSequence(nil))
}
