package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/transaction-processor/internal/api/middleware"
	"github.com/dvloznov/transaction-processor/internal/domain"
	"github.com/dvloznov/transaction-processor/internal/jobs"
	"github.com/dvloznov/transaction-processor/internal/logger"
	"github.com/dvloznov/transaction-processor/internal/trigger"
)

// maxEventBody caps notification bodies; real notifications are a few KB.
const maxEventBody = 1 << 20

// Submitter publishes ingest jobs. *trigger.Trigger satisfies it.
type Submitter interface {
	Notify(ctx context.Context, n trigger.Notification) (*jobs.IngestBatchJob, error)
	Submit(ctx context.Context, loc domain.BatchLocation, onlyIDs ...string) (*jobs.IngestBatchJob, error)
}

// EventsHandler receives storage notifications.
type EventsHandler struct {
	submitter Submitter
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(submitter Submitter) *EventsHandler {
	return &EventsHandler{submitter: submitter}
}

// StorageEvent handles POST /events/storage
func (h *EventsHandler) StorageEvent(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	n, err := trigger.Decode(body)
	if err != nil {
		log.Warn().Err(err).Msg("Rejecting storage notification")
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.submitter.Notify(r.Context(), n)
	if errors.Is(err, trigger.ErrFiltered) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("bucket", n.Bucket).Str("key", n.Key).Msg("Failed to enqueue ingest job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue ingest job")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, jobAccepted(job))
}

// BatchesHandler lets operators start or re-drive a batch by hand.
type BatchesHandler struct {
	submitter Submitter
}

// NewBatchesHandler creates a new batches handler.
func NewBatchesHandler(submitter Submitter) *BatchesHandler {
	return &BatchesHandler{submitter: submitter}
}

// Submit handles POST /api/batches
func (h *BatchesHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bucket        string   `json:"bucket"`
		Key           string   `json:"key"`
		OnlyRecordIDs []string `json:"only_record_ids"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Bucket) == "" || strings.TrimSpace(req.Key) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "bucket and key are required")
		return
	}

	loc := domain.BatchLocation{Bucket: req.Bucket, Key: req.Key}
	job, err := h.submitter.Submit(r.Context(), loc, req.OnlyRecordIDs...)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("batch", loc.String()).Msg("Failed to enqueue ingest job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue ingest job")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, jobAccepted(job))
}

func jobAccepted(job *jobs.IngestBatchJob) map[string]string {
	return map[string]string{
		"job_id": job.JobID,
		"batch":  job.Location().String(),
		"status": string(job.Status),
	}
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Bucket: query.Get("bucket"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = limit
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		filter.Offset = offset
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
