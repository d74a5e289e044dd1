package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateJob(ctx context.Context, job *models.AnalysisJob) error
	GetJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.AnalysisJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.AnalysisJob, int, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
	FailUnfinishedJobs(ctx context.Context, errorMessage string) (int64, error)

	CreateImageResult(ctx context.Context, result *models.ImageAnalysisResult) error
	ListImageResults(ctx context.Context, jobID uuid.UUID) ([]*models.ImageAnalysisResult, error)
}

// JobFilter selects a page of a tenant's jobs, newest first.
type JobFilter struct {
	TenantID uuid.UUID
	FieldID  string
	Status   string
	Page     int
	Limit    int
}

// JobUpdate holds the optional columns written with a status change.
type JobUpdate struct {
	ErrorMessage *string
	Summary      *models.BatchSummary
}

type JobUpdateOption func(*JobUpdate)

// ApplyJobUpdateOptions collects opts into a JobUpdate.
func ApplyJobUpdateOptions(opts ...JobUpdateOption) JobUpdate {
	var u JobUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *JobUpdate) {
		p.ErrorMessage = &msg
	}
}

// WithSummary stores the batch summary alongside a completed status.
func WithSummary(s models.BatchSummary) JobUpdateOption {
	return func(p *JobUpdate) {
		p.Summary = &s
	}
}

// validTransitions lists the statuses reachable from each status.
// Terminal statuses have no entry. A pending job fails directly only when its
// batch could not be started.
var validTransitions = map[string][]string{
	models.JobStatusPending:    {models.JobStatusProcessing, models.JobStatusFailed},
	models.JobStatusProcessing: {models.JobStatusCompleted, models.JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// predecessors returns every status from which to is reachable.
func predecessors(to string) []string {
	var from []string
	for f := range validTransitions {
		if CanTransition(f, to) {
			from = append(from, f)
		}
	}
	return from
}
