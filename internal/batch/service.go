// Package batch runs submitted image batches: it validates a submission,
// fans the images out to a bounded worker pool, persists one result row per
// image and finalizes the job with a summary.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/kiranshivaraju/greeneye/internal/ai"
	"github.com/kiranshivaraju/greeneye/internal/analysis"
	"github.com/kiranshivaraju/greeneye/internal/cache"
	"github.com/kiranshivaraju/greeneye/internal/store"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

var (
	ErrJobNotFound    = errors.New("batch analysis not found")
	ErrNotCancellable = errors.New("batch analysis is not processing")
	ErrShuttingDown   = errors.New("server shutting down")
	ErrCancelled      = errors.New("batch cancelled")
)

const (
	defaultMaxImages       = 10
	defaultWorkers         = 4
	defaultFinalizeTimeout = 30 * time.Second
	defaultStatusTTL       = 30 * time.Minute
)

// ValidationError rejects a submission before any job is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// SubmitRequest is a validated-on-submit batch of image references.
type SubmitRequest struct {
	TenantID     uuid.UUID
	ImageURLs    []string
	FieldID      string
	AnalysisType string
}

// ImageAnalyzer produces the result row of one image.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, jobID uuid.UUID, index int, ref string) (*models.ImageAnalysisResult, error)
}

// Recorder receives job and image lifecycle metrics.
type Recorder interface {
	JobStarted()
	JobFinished(status string, elapsed time.Duration)
	ImageAnalyzed(status string)
}

// Config bounds the orchestrator.
type Config struct {
	MaxImages       int
	Workers         int
	FinalizeTimeout time.Duration
	StatusTTL       time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder reports lifecycle metrics to r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// Orchestrator owns every batch running in the process. The worker semaphore
// is shared by all jobs so the number of images in flight stays bounded.
type Orchestrator struct {
	store     store.Store
	cache     cache.Cache
	analyzer  ImageAnalyzer
	recorder  Recorder
	sem       *semaphore.Weighted
	scheduler *scheduler
	cfg       Config
}

// NewOrchestrator creates an Orchestrator. Zero config values take defaults.
func NewOrchestrator(st store.Store, c cache.Cache, analyzer ImageAnalyzer, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = defaultMaxImages
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = defaultFinalizeTimeout
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = defaultStatusTTL
	}

	o := &Orchestrator{
		store:     st,
		cache:     c,
		analyzer:  analyzer,
		recorder:  nopRecorder{},
		sem:       semaphore.NewWeighted(int64(cfg.Workers)),
		scheduler: newScheduler(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit validates req, records a new processing job and starts analyzing it
// in the background. It returns once the job is persisted.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*models.AnalysisJob, error) {
	if err := o.validate(&req); err != nil {
		return nil, err
	}
	if !o.scheduler.accepting() {
		return nil, ErrShuttingDown
	}

	now := time.Now().UTC()
	fieldID := req.FieldID
	job := &models.AnalysisJob{
		ID:           uuid.New(),
		TenantID:     req.TenantID,
		FieldID:      &fieldID,
		AnalysisType: req.AnalysisType,
		TotalImages:  len(req.ImageURLs),
		Status:       models.JobStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	if err := o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing); err != nil {
		msg := "batch could not be started"
		if ferr := o.store.UpdateJobStatus(context.WithoutCancel(ctx), job.ID, models.JobStatusFailed, store.WithErrorMessage(msg)); ferr != nil {
			slog.Error("failing unstarted job", "job_id", job.ID, "error", ferr)
		}
		return nil, fmt.Errorf("starting job: %w", err)
	}
	started := time.Now().UTC()
	job.Status = models.JobStatusProcessing
	job.StartedAt = &started
	job.UpdatedAt = started

	// Announce processing before the task starts so a fast task's terminal
	// status is never overwritten.
	o.recorder.JobStarted()
	o.setStatus(ctx, job)
	o.publish(ctx, Event{Type: EventJobUpdated, JobID: job.ID, Job: job})

	refs := append([]string(nil), req.ImageURLs...)
	snapshot := *job
	err := o.scheduler.start(job.ID, func(ctx context.Context, cancel context.CancelCauseFunc) {
		o.run(ctx, cancel, &snapshot, refs)
	})
	if err != nil {
		status := o.fail(context.WithoutCancel(ctx), &snapshot, err.Error())
		o.recorder.JobFinished(status, 0)
		return nil, err
	}

	slog.Info("batch analysis submitted",
		"job_id", job.ID,
		"tenant_id", job.TenantID,
		"total_images", job.TotalImages,
		"analysis_type", job.AnalysisType,
	)
	return job, nil
}

func (o *Orchestrator) validate(req *SubmitRequest) error {
	if req.TenantID == uuid.Nil {
		return &ValidationError{Field: "tenantId", Message: "tenant is required"}
	}
	if len(req.ImageURLs) == 0 {
		return &ValidationError{Field: "imageUrls", Message: "imageUrls must contain at least one image"}
	}
	if len(req.ImageURLs) > o.cfg.MaxImages {
		return &ValidationError{
			Field:   "imageUrls",
			Message: fmt.Sprintf("imageUrls must contain at most %d images, got %d", o.cfg.MaxImages, len(req.ImageURLs)),
		}
	}
	for i, u := range req.ImageURLs {
		if strings.TrimSpace(u) == "" {
			return &ValidationError{Field: "imageUrls", Message: fmt.Sprintf("imageUrls[%d] is empty", i)}
		}
	}
	req.FieldID = strings.TrimSpace(req.FieldID)
	if req.FieldID == "" {
		return &ValidationError{Field: "fieldId", Message: "fieldId is required"}
	}
	if req.AnalysisType == "" {
		req.AnalysisType = models.AnalysisTypeComprehensive
	}
	if !models.ValidAnalysisType(req.AnalysisType) {
		return &ValidationError{
			Field:   "analysisType",
			Message: fmt.Sprintf("analysisType %q is not supported", req.AnalysisType),
		}
	}
	return nil
}

// run is the background task of one job: fan out every image, wait for all
// of them, then finalize.
func (o *Orchestrator) run(ctx context.Context, cancel context.CancelCauseFunc, job *models.AnalysisJob, refs []string) {
	started := time.Now()

	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func(index int, ref string) {
			defer wg.Done()
			result := o.analyzeImage(ctx, cancel, job.ID, index, ref)
			o.persistResult(ctx, result)
		}(i, ref)
	}
	wg.Wait()

	o.finalize(ctx, job, started)
}

// analyzeImage never returns nil; panics and cancellation become failed rows.
func (o *Orchestrator) analyzeImage(ctx context.Context, cancel context.CancelCauseFunc, jobID uuid.UUID, index int, ref string) (result *models.ImageAnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic analyzing image",
				"job_id", jobID,
				"image_index", index,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result = analysis.Failed(analysis.NewResult(jobID, index, ref), fmt.Errorf("panic: %v", r))
		}
	}()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return analysis.Failed(analysis.NewResult(jobID, index, ref), fmt.Errorf("not analyzed: %w", context.Cause(ctx)))
	}
	defer o.sem.Release(1)

	if ctx.Err() != nil {
		return analysis.Failed(analysis.NewResult(jobID, index, ref), fmt.Errorf("not analyzed: %w", context.Cause(ctx)))
	}

	res, err := o.analyzer.Analyze(ctx, jobID, index, ref)
	if err != nil {
		slog.Warn("image analysis failed", "job_id", jobID, "image_index", index, "error", err)
		if errors.Is(err, ai.ErrInvocationDenied) {
			cancel(fmt.Errorf("image %d: %w", index, err))
		}
	}
	if res == nil {
		if err == nil {
			err = errors.New("analyzer returned no result")
		}
		res = analysis.Failed(analysis.NewResult(jobID, index, ref), err)
	}
	return res
}

// persistResult writes the row even when the batch has been cancelled.
func (o *Orchestrator) persistResult(ctx context.Context, result *models.ImageAnalysisResult) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FinalizeTimeout)
	defer cancel()

	if err := o.store.CreateImageResult(wctx, result); err != nil {
		slog.Error("storing image result",
			"job_id", result.JobID,
			"image_index", result.ImageIndex,
			"error", err,
		)
		return
	}
	o.recorder.ImageAnalyzed(result.Status)
	o.publish(wctx, Event{Type: EventResultCreated, JobID: result.JobID, Result: result})
}

// finalize moves the job to its terminal status. It runs on a fresh context
// so a cancelled batch is still settled.
func (o *Orchestrator) finalize(ctx context.Context, job *models.AnalysisJob, started time.Time) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FinalizeTimeout)
	defer cancel()

	var status string
	if ctx.Err() != nil {
		status = o.fail(fctx, job, cancellationMessage(context.Cause(ctx)))
	} else {
		status = o.complete(fctx, job)
	}

	o.recorder.JobFinished(status, time.Since(started))
	slog.Info("batch analysis finalized",
		"job_id", job.ID,
		"status", status,
		"duration", time.Since(started).String(),
	)
}

func (o *Orchestrator) complete(ctx context.Context, job *models.AnalysisJob) string {
	rows, err := o.store.ListImageResults(ctx, job.ID)
	if err != nil {
		return o.fail(ctx, job, fmt.Sprintf("reading image results: %v", err))
	}
	if len(rows) != job.TotalImages {
		return o.fail(ctx, job, fmt.Sprintf("persisted %d of %d image results", len(rows), job.TotalImages))
	}

	summary := analysis.Summarize(rows)
	if err := o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted, store.WithSummary(summary)); err != nil {
		slog.Error("completing job", "job_id", job.ID, "error", err)
		return o.fail(ctx, job, fmt.Sprintf("finalizing batch: %v", err))
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusCompleted
	job.ResultsSummary = &summary
	job.CompletedAt = &now
	job.UpdatedAt = now
	o.settled(ctx, job)
	return models.JobStatusCompleted
}

// fail marks the job failed and returns the status it ended in.
func (o *Orchestrator) fail(ctx context.Context, job *models.AnalysisJob, msg string) string {
	if err := o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, store.WithErrorMessage(msg)); err != nil {
		slog.Error("failing job", "job_id", job.ID, "error", err, "reason", msg)
		if current, gerr := o.store.GetJob(ctx, job.ID, job.TenantID); gerr == nil {
			*job = *current
			o.settled(ctx, job)
			return job.Status
		}
		return job.Status
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusFailed
	job.ErrorMessage = &msg
	job.ResultsSummary = nil
	job.CompletedAt = &now
	job.UpdatedAt = now
	o.settled(ctx, job)
	return models.JobStatusFailed
}

func (o *Orchestrator) settled(ctx context.Context, job *models.AnalysisJob) {
	o.setStatus(ctx, job)
	o.publish(ctx, Event{Type: EventJobUpdated, JobID: job.ID, Job: job})
}

func (o *Orchestrator) setStatus(ctx context.Context, job *models.AnalysisJob) {
	if err := o.cache.SetJobStatus(ctx, job.TenantID, job.ID, job.Status, o.cfg.StatusTTL); err != nil {
		slog.Warn("caching job status", "job_id", job.ID, "error", err)
	}
}

func cancellationMessage(cause error) string {
	switch {
	case cause == nil:
		return ErrCancelled.Error()
	case errors.Is(cause, ErrCancelled), errors.Is(cause, ErrShuttingDown):
		return cause.Error()
	default:
		return "batch aborted: " + strings.ReplaceAll(cause.Error(), "\n", "; ")
	}
}

// GetJob returns the job if it belongs to tenantID.
func (o *Orchestrator) GetJob(ctx context.Context, tenantID, jobID uuid.UUID) (*models.AnalysisJob, error) {
	job, err := o.store.GetJob(ctx, jobID, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return job, nil
}

// JobStatus answers from the status cache and falls back to the store. Only a
// terminal status read from the store is cached: a non-terminal one may be
// stale by the time it is written and would hide the status settled() cached.
func (o *Orchestrator) JobStatus(ctx context.Context, tenantID, jobID uuid.UUID) (string, error) {
	status, found, err := o.cache.GetJobStatus(ctx, tenantID, jobID)
	if err != nil {
		slog.Warn("reading cached job status", "job_id", jobID, "error", err)
	}
	if found {
		return status, nil
	}

	job, err := o.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return "", err
	}
	if job.IsTerminal() {
		o.setStatus(ctx, job)
	}
	return job.Status, nil
}

// ListResults returns the job's result rows in image order.
func (o *Orchestrator) ListResults(ctx context.Context, tenantID, jobID uuid.UUID) ([]*models.ImageAnalysisResult, error) {
	if _, err := o.GetJob(ctx, tenantID, jobID); err != nil {
		return nil, err
	}
	results, err := o.store.ListImageResults(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	return results, nil
}

// ListJobs returns a page of jobs and the total matching count.
func (o *Orchestrator) ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.AnalysisJob, int, error) {
	jobs, total, err := o.store.ListJobs(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, total, nil
}

// Cancel aborts a processing job and waits, bounded by ctx, for it to settle.
// Images not yet analyzed are recorded as failed and the job ends failed.
func (o *Orchestrator) Cancel(ctx context.Context, tenantID, jobID uuid.UUID) (*models.AnalysisJob, error) {
	job, err := o.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, ErrNotCancellable
	}

	done := o.scheduler.cancel(jobID, ErrCancelled)
	if done == nil {
		// No task runs for this job in this process.
		err := o.store.UpdateJobStatus(ctx, jobID, models.JobStatusFailed, store.WithErrorMessage(ErrCancelled.Error()))
		if errors.Is(err, store.ErrInvalidTransition) {
			return nil, ErrNotCancellable
		}
		if err != nil {
			return nil, fmt.Errorf("cancelling job: %w", err)
		}
	} else {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	job, err = o.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if done == nil {
		o.settled(ctx, job)
	}
	slog.Info("batch analysis cancelled", "job_id", jobID, "status", job.Status)
	return job, nil
}

// RecoverInterrupted fails jobs left pending or processing by a previous process.
func (o *Orchestrator) RecoverInterrupted(ctx context.Context) (int64, error) {
	n, err := o.store.FailUnfinishedJobs(ctx, "batch interrupted by server restart")
	if err != nil {
		return 0, fmt.Errorf("recovering interrupted jobs: %w", err)
	}
	if n > 0 {
		slog.Warn("failed interrupted batch analyses", "count", n)
	}
	return n, nil
}

// InFlight reports how many batches are running.
func (o *Orchestrator) InFlight() int {
	return o.scheduler.running()
}

// Shutdown stops accepting submissions and waits for running batches. Batches
// still running when ctx expires are cancelled and finalized as failed.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	return o.scheduler.drain(ctx)
}

type nopRecorder struct{}

func (nopRecorder) JobStarted()                       {}
func (nopRecorder) JobFinished(string, time.Duration) {}
func (nopRecorder) ImageAnalyzed(string)              {}
