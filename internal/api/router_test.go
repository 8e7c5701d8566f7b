package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/pagepipe/internal/config"
	"github.com/timmy/pagepipe/internal/domain"
	"github.com/timmy/pagepipe/internal/pipeline"
	"github.com/timmy/pagepipe/internal/service"
)

type fakeJobs struct {
	submitErr error
	retryErr  error
	submitted []service.Source
	uploaded  []byte
}

func (f *fakeJobs) Submit(ctx context.Context, src service.Source) (*service.SubmitResult, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, err
	}
	f.uploaded = data
	f.submitted = append(f.submitted, src)
	return &service.SubmitResult{JobID: "job-1", TotalPages: 4, Status: domain.JobStatusProcessing}, nil
}

func (f *fakeJobs) Retry(ctx context.Context, jobID string) (<-chan *pipeline.RunResult, error) {
	if f.retryErr != nil {
		return nil, f.retryErr
	}
	ch := make(chan *pipeline.RunResult)
	close(ch)
	return ch, nil
}

func (f *fakeJobs) Status(ctx context.Context, jobID string) (*pipeline.JobStatusReport, error) {
	if jobID != "job-1" {
		return nil, domain.ErrJobNotFound
	}
	return &pipeline.JobStatusReport{JobID: jobID, Status: domain.JobStatusCompletedWithErrors, TotalPages: 4, Progress: 100}, nil
}

func (f *fakeJobs) Pages(ctx context.Context, jobID string) ([]domain.Page, error) {
	return []domain.Page{{JobID: jobID, PageNumber: 1, Status: domain.PageStatusSucceeded}}, nil
}

func (f *fakeJobs) LatestSummary(ctx context.Context, jobID string) (*domain.Summary, error) {
	return nil, domain.ErrNoSummary
}

func (f *fakeJobs) Summaries(ctx context.Context, jobID string) ([]domain.Summary, error) {
	return []domain.Summary{{JobID: jobID, Version: 1}, {JobID: jobID, Version: 2}}, nil
}

func (f *fakeJobs) ListJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	return []domain.Job{{ID: "job-1", TotalPages: 4}}, nil
}

func (f *fakeJobs) PatientJobs(ctx context.Context, identifier string, limit int) ([]domain.Job, error) {
	if identifier != "UH-1" {
		return []domain.Job{}, nil
	}
	return []domain.Job{{ID: "job-1", TotalPages: 4}}, nil
}

func newTestRouter(jobs *fakeJobs) http.Handler {
	return SetupRouter(RouterDeps{
		Jobs: jobs,
		Server: config.ServerConfig{
			Mode:          "test",
			MaxUploadSize: 1 << 20,
			CORS:          config.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}},
		},
	})
}

func uploadRequest(t *testing.T, filename string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := serve(newTestRouter(&fakeJobs{}), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCreateJob(t *testing.T) {
	jobs := &fakeJobs{}
	w := serve(newTestRouter(jobs), uploadRequest(t, "history.pdf", []byte("%PDF-1.4")))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, float64(4), body["total_pages"])
	assert.Equal(t, "processing", body["status"])

	require.Len(t, jobs.submitted, 1)
	assert.Equal(t, service.SourcePDF, jobs.submitted[0].Kind)
	assert.Equal(t, "history.pdf", jobs.submitted[0].Name)
	assert.Equal(t, []byte("%PDF-1.4"), jobs.uploaded)
	// The spooled upload is removed once the job is accepted.
	_, err := os.Stat(jobs.submitted[0].Path)
	assert.True(t, os.IsNotExist(err))
}

func TestCreateJobErrors(t *testing.T) {
	testCases := []struct {
		name     string
		filename string
		err      error
		want     int
	}{
		{"not a pdf", "scan.png", nil, http.StatusBadRequest},
		{"render failure", "broken.pdf", &domain.RenderError{Source: "broken.pdf", Err: errors.New("no pages")}, http.StatusUnprocessableEntity},
		{"storage down", "ok.pdf", fmt.Errorf("%w: insert", domain.ErrStorageUnavailable), http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(newTestRouter(&fakeJobs{submitErr: tc.err}), uploadRequest(t, tc.filename, []byte("data")))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestCreateJobMissingFile(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil)
	w := serve(newTestRouter(&fakeJobs{}), req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobReads(t *testing.T) {
	h := newTestRouter(&fakeJobs{})

	w := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var report pipeline.JobStatusReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, domain.JobStatusCompletedWithErrors, report.Status)

	w = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/unknown/status", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1/pages", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1/summary", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1/summaries", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":2`)

	w = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?limit=5", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPatientJobs(t *testing.T) {
	h := newTestRouter(&fakeJobs{})

	w := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/patients/UH-1/jobs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		PatientIdentifier string       `json:"patient_identifier"`
		Jobs              []domain.Job `json:"jobs"`
		Total             int          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "UH-1", body.PatientIdentifier)
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Jobs, 1)
	assert.Equal(t, "job-1", body.Jobs[0].ID)

	w = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/patients/UH-9/jobs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":0`)
}

func TestRetryJob(t *testing.T) {
	w := serve(newTestRouter(&fakeJobs{}), httptest.NewRequest(http.MethodPost, "/api/v1/jobs/job-1/retry", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)

	busy := &fakeJobs{retryErr: fmt.Errorf("%w: job-1", domain.ErrJobAlreadyRunning)}
	w = serve(newTestRouter(busy), httptest.NewRequest(http.MethodPost, "/api/v1/jobs/job-1/retry", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(&fakeJobs{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := serve(h, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = serve(h, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
