package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/kiranshivaraju/greeneye/internal/api/middleware"
	"github.com/kiranshivaraju/greeneye/internal/api/response"
	"github.com/kiranshivaraju/greeneye/internal/batch"
	"github.com/kiranshivaraju/greeneye/internal/store"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100

	// DefaultKeepAlive is how often an idle event stream sends a comment line.
	DefaultKeepAlive = 15 * time.Second
)

// BatchService defines the orchestrator operations the batch handlers depend on.
type BatchService interface {
	Submit(ctx context.Context, req batch.SubmitRequest) (*models.AnalysisJob, error)
	GetJob(ctx context.Context, tenantID, jobID uuid.UUID) (*models.AnalysisJob, error)
	JobStatus(ctx context.Context, tenantID, jobID uuid.UUID) (string, error)
	ListResults(ctx context.Context, tenantID, jobID uuid.UUID) ([]*models.ImageAnalysisResult, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.AnalysisJob, int, error)
	Cancel(ctx context.Context, tenantID, jobID uuid.UUID) (*models.AnalysisJob, error)
	Subscribe(ctx context.Context, tenantID, jobID uuid.UUID) (*models.AnalysisJob, <-chan batch.Event, error)
}

// SubmitResponse is the body of a successful batch submission.
type SubmitResponse struct {
	Success         bool      `json:"success"`
	BatchAnalysisID uuid.UUID `json:"batchAnalysisId"`
	Status          string    `json:"status"`
	TotalImages     int       `json:"totalImages"`
}

// JobStatusResponse is the body of GET /api/v1/batch-analyses/{batchID}/status.
type JobStatusResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

// NewSubmitBatchHandler returns an http.HandlerFunc for POST /api/v1/batch-analyses.
// Unlike the other endpoints it answers with a flat body: the submission
// receipt on success and {"error": message} on failure.
func NewSubmitBatchHandler(svc BatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Message(w, http.StatusUnauthorized, "Missing tenant")
			return
		}

		var req struct {
			ImageURLs    []string `json:"imageUrls"`
			FieldID      string   `json:"fieldId"`
			AnalysisType string   `json:"analysisType"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Message(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		job, err := svc.Submit(r.Context(), batch.SubmitRequest{
			TenantID:     tenantID,
			ImageURLs:    req.ImageURLs,
			FieldID:      req.FieldID,
			AnalysisType: req.AnalysisType,
		})
		if err != nil {
			var verr *batch.ValidationError
			switch {
			case errors.As(err, &verr):
				response.Message(w, http.StatusBadRequest, verr.Message)
			case errors.Is(err, batch.ErrShuttingDown):
				response.Message(w, http.StatusServiceUnavailable, "Server is shutting down")
			default:
				slog.Error("batch submission failed", "tenant_id", tenantID, "error", err)
				response.Message(w, http.StatusInternalServerError, "Failed to start batch analysis")
			}
			return
		}

		response.Raw(w, http.StatusAccepted, SubmitResponse{
			Success:         true,
			BatchAnalysisID: job.ID,
			Status:          job.Status,
			TotalImages:     job.TotalImages,
		})
	}
}

// NewListBatchesHandler returns an http.HandlerFunc for GET /api/v1/batch-analyses.
func NewListBatchesHandler(svc BatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		q := r.URL.Query()
		status := q.Get("status")
		if status != "" && !validStatus(status) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"status must be one of pending, processing, completed, failed", nil)
			return
		}
		page, err := positiveInt(q.Get("page"), 1)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be a positive integer", nil)
			return
		}
		limit, err := positiveInt(q.Get("limit"), defaultPageLimit)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
			return
		}
		limit = min(limit, maxPageLimit)

		filter := store.JobFilter{
			TenantID: tenantID,
			FieldID:  q.Get("field_id"),
			Status:   status,
			Page:     page,
			Limit:    limit,
		}
		jobs, total, err := svc.ListJobs(r.Context(), filter)
		if err != nil {
			slog.Error("listing batch analyses failed", "tenant_id", tenantID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list batch analyses", nil)
			return
		}
		if jobs == nil {
			jobs = []*models.AnalysisJob{}
		}

		response.Collection(w, jobs, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: total > page*limit,
		})
	}
}

// NewGetBatchHandler returns an http.HandlerFunc for GET /api/v1/batch-analyses/{batchID}.
func NewGetBatchHandler(svc BatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, jobID, ok := batchTarget(w, r)
		if !ok {
			return
		}
		job, err := svc.GetJob(r.Context(), tenantID, jobID)
		if err != nil {
			writeBatchError(w, jobID, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewBatchStatusHandler returns an http.HandlerFunc for GET /api/v1/batch-analyses/{batchID}/status.
func NewBatchStatusHandler(svc BatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, jobID, ok := batchTarget(w, r)
		if !ok {
			return
		}
		status, err := svc.JobStatus(r.Context(), tenantID, jobID)
		if err != nil {
			writeBatchError(w, jobID, err)
			return
		}
		response.JSON(w, JobStatusResponse{ID: jobID, Status: status})
	}
}

// NewBatchResultsHandler returns an http.HandlerFunc for GET /api/v1/batch-analyses/{batchID}/results.
func NewBatchResultsHandler(svc BatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, jobID, ok := batchTarget(w, r)
		if !ok {
			return
		}
		results, err := svc.ListResults(r.Context(), tenantID, jobID)
		if err != nil {
			writeBatchError(w, jobID, err)
			return
		}
		if results == nil {
			results = []*models.ImageAnalysisResult{}
		}
		response.JSON(w, results)
	}
}

// NewCancelBatchHandler returns an http.HandlerFunc for DELETE /api/v1/batch-analyses/{batchID}.
func NewCancelBatchHandler(svc BatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, jobID, ok := batchTarget(w, r)
		if !ok {
			return
		}
		job, err := svc.Cancel(r.Context(), tenantID, jobID)
		if err != nil {
			writeBatchError(w, jobID, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewBatchEventsHandler returns an http.HandlerFunc for
// GET /api/v1/batch-analyses/{batchID}/events. It streams server-sent events:
// the current job first, then every change until the job is terminal or the
// client goes away.
func NewBatchEventsHandler(svc BatchService, keepAlive time.Duration) http.HandlerFunc {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, jobID, ok := batchTarget(w, r)
		if !ok {
			return
		}

		job, events, err := svc.Subscribe(r.Context(), tenantID, jobID)
		if err != nil {
			writeBatchError(w, jobID, err)
			return
		}

		rc := http.NewResponseController(w)
		// The server's write timeout would cut a long-lived stream short.
		_ = rc.SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		snapshot := batch.Event{Type: batch.EventJobUpdated, JobID: job.ID, Job: job}
		if err := writeEvent(w, rc, snapshot); err != nil {
			return
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				if err := rc.Flush(); err != nil {
					return
				}
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := writeEvent(w, rc, ev); err != nil {
					return
				}
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, ev batch.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
		return err
	}
	return rc.Flush()
}

// batchTarget extracts the tenant and the {batchID} path parameter, writing
// the error response itself when either is missing or malformed.
func batchTarget(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
		return uuid.Nil, uuid.Nil, false
	}
	jobID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "batch analysis id must be a UUID", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, jobID, true
}

func writeBatchError(w http.ResponseWriter, jobID uuid.UUID, err error) {
	switch {
	case errors.Is(err, batch.ErrJobNotFound):
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Batch analysis not found", nil)
	case errors.Is(err, batch.ErrNotCancellable):
		response.Error(w, http.StatusConflict, "NOT_CANCELLABLE", "Batch analysis is already finished", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.Error(w, http.StatusServiceUnavailable, "TIMEOUT", "Request ended before the batch analysis settled", nil)
	default:
		slog.Error("batch analysis request failed", "job_id", jobID, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read batch analysis", nil)
	}
}

func validStatus(s string) bool {
	switch s {
	case models.JobStatusPending, models.JobStatusProcessing, models.JobStatusCompleted, models.JobStatusFailed:
		return true
	}
	return false
}

func positiveInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid positive integer %q", raw)
	}
	return n, nil
}
