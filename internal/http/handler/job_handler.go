package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/device-importer/internal/domain"
	"github.com/straye-as/device-importer/internal/jobs"
	"github.com/straye-as/device-importer/internal/registry"
	"go.uber.org/zap"
)

// JobClient reads and cancels registry jobs
type JobClient interface {
	GetJob(ctx context.Context, jobID string) (*domain.JobProperties, error)
	CancelJob(ctx context.Context, jobID string) (*domain.JobProperties, error)
}

type JobHandler struct {
	client  JobClient
	tracker *jobs.Tracker
	logger  *zap.Logger
}

func NewJobHandler(client JobClient, tracker *jobs.Tracker, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		client:  client,
		tracker: tracker,
		logger:  logger,
	}
}

// List returns the jobs submitted through this service with their last refreshed status
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	tracked := h.tracker.List()
	respondJSON(w, http.StatusOK, domain.JobListResponse{
		Data:  tracked,
		Total: len(tracked),
	})
}

// GetByID fetches the live status of a job from the registry
func (h *JobHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.client.GetJob(r.Context(), jobID)
	if err != nil {
		h.respondRegistryError(w, jobID, err)
		return
	}

	h.tracker.Update(job)
	respondJSON(w, http.StatusOK, toJobDTO(job))
}

// Cancel cancels a job that has not finished yet
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.client.CancelJob(r.Context(), jobID)
	if err != nil {
		h.respondRegistryError(w, jobID, err)
		return
	}

	h.tracker.Update(job)
	h.logger.Info("job cancelled via API", zap.String("job_id", jobID))
	respondJSON(w, http.StatusOK, toJobDTO(job))
}

func (h *JobHandler) respondRegistryError(w http.ResponseWriter, jobID string, err error) {
	if registry.IsNotFound(err) {
		respondWithError(w, http.StatusNotFound, "Job not found")
		return
	}

	h.logger.Error("registry request failed", zap.String("job_id", jobID), zap.Error(err))
	respondWithError(w, http.StatusBadGateway, "The device registry request failed")
}

func toJobDTO(job *domain.JobProperties) domain.JobDTO {
	dto := domain.JobDTO{
		JobID:                  job.JobID,
		Type:                   job.Type,
		Status:                 job.Status,
		Progress:               job.Progress,
		InputBlobContainerURI:  withoutQuery(job.InputBlobContainerURI),
		OutputBlobContainerURI: withoutQuery(job.OutputBlobContainerURI),
		FailureReason:          job.FailureReason,
	}
	if job.StartTimeUTC != nil {
		dto.StartTimeUTC = job.StartTimeUTC.UTC().Format(time.RFC3339)
	}
	if job.EndTimeUTC != nil {
		dto.EndTimeUTC = job.EndTimeUTC.UTC().Format(time.RFC3339)
	}
	return dto
}

// withoutQuery drops the signature carried in a container URI's query string
func withoutQuery(uri string) string {
	base, _, _ := strings.Cut(uri, "?")
	return base
}
