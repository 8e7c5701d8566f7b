package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/pagepipe/internal/api/middleware"
	"github.com/timmy/pagepipe/internal/domain"
	"github.com/timmy/pagepipe/internal/pipeline"
	"github.com/timmy/pagepipe/internal/service"
)

// JobService is the subset of service.JobService the handlers use.
type JobService interface {
	Submit(ctx context.Context, src service.Source) (*service.SubmitResult, error)
	Retry(ctx context.Context, jobID string) (<-chan *pipeline.RunResult, error)
	Status(ctx context.Context, jobID string) (*pipeline.JobStatusReport, error)
	Pages(ctx context.Context, jobID string) ([]domain.Page, error)
	LatestSummary(ctx context.Context, jobID string) (*domain.Summary, error)
	Summaries(ctx context.Context, jobID string) ([]domain.Summary, error)
	ListJobs(ctx context.Context, limit int) ([]domain.Job, error)
	PatientJobs(ctx context.Context, identifier string, limit int) ([]domain.Job, error)
}

// JobHandler handles job submission and job status endpoints.
type JobHandler struct {
	jobs          JobService
	maxUploadSize int64
	workDir       string
}

// NewJobHandler creates a new job handler. Uploads larger than maxUploadSize
// are rejected; workDir "" spools uploads to the system temp directory.
func NewJobHandler(jobs JobService, maxUploadSize int64, workDir string) *JobHandler {
	return &JobHandler{
		jobs:          jobs,
		maxUploadSize: maxUploadSize,
		workDir:       workDir,
	}
}

// CreateJob handles POST /api/v1/jobs.
func (h *JobHandler) CreateJob(c *gin.Context) {
	log := middleware.GetLogger(c)

	if h.maxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)
	}

	file, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file: " + err.Error()})
		return
	}

	if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF files are supported"})
		return
	}

	tmpDir, err := os.MkdirTemp(h.workDir, "pagepipe-upload-*")
	if err != nil {
		log.WithError(err).Error("Failed to create upload dir")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
		return
	}
	// Pages are in object storage once Submit returns.
	defer os.RemoveAll(tmpDir)

	name := filepath.Base(file.Filename)
	path := filepath.Join(tmpDir, name)
	if err := c.SaveUploadedFile(file, path); err != nil {
		log.WithError(err).Error("Failed to save upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
		return
	}

	result, err := h.jobs.Submit(c.Request.Context(), service.Source{
		Kind: service.SourcePDF,
		Name: name,
		Path: path,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// ListJobs handles GET /api/v1/jobs.
func (h *JobHandler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	jobs, err := h.jobs.ListJobs(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// ListPatientJobs handles GET /api/v1/patients/:identifier/jobs.
func (h *JobHandler) ListPatientJobs(c *gin.Context) {
	identifier := strings.TrimSpace(c.Param("identifier"))
	if identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing patient identifier"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	jobs, err := h.jobs.PatientJobs(c.Request.Context(), identifier, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"patient_identifier": identifier,
		"jobs":               jobs,
		"total":              len(jobs),
	})
}

// GetStatus handles GET /api/v1/jobs/:id/status.
func (h *JobHandler) GetStatus(c *gin.Context) {
	report, err := h.jobs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetPages handles GET /api/v1/jobs/:id/pages.
func (h *JobHandler) GetPages(c *gin.Context) {
	pages, err := h.jobs.Pages(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id": c.Param("id"),
		"pages":  pages,
	})
}

// GetSummary handles GET /api/v1/jobs/:id/summary.
func (h *JobHandler) GetSummary(c *gin.Context) {
	summary, err := h.jobs.LatestSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListSummaries handles GET /api/v1/jobs/:id/summaries.
func (h *JobHandler) ListSummaries(c *gin.Context) {
	summaries, err := h.jobs.Summaries(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":    c.Param("id"),
		"summaries": summaries,
	})
}

// RetryJob handles POST /api/v1/jobs/:id/retry.
func (h *JobHandler) RetryJob(c *gin.Context) {
	jobID := c.Param("id")
	if _, err := h.jobs.Retry(c.Request.Context(), jobID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id": jobID,
		"status": domain.JobStatusProcessing,
	})
}

// writeError maps domain errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	var renderErr *domain.RenderError

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrNoSummary):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrJobAlreadyRunning):
		status = http.StatusConflict
	case errors.As(err, &renderErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		middleware.GetLogger(c).WithError(err).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
