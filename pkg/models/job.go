package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const (
	AnalysisTypeComprehensive    = "comprehensive"
	AnalysisTypeHealthFocused    = "health_focused"
	AnalysisTypeDiseaseDetection = "disease_detection"
	AnalysisTypePestMonitoring   = "pest_monitoring"
)

var validAnalysisTypes = map[string]bool{
	AnalysisTypeComprehensive:    true,
	AnalysisTypeHealthFocused:    true,
	AnalysisTypeDiseaseDetection: true,
	AnalysisTypePestMonitoring:   true,
}

// ValidAnalysisType reports whether t is a known analysis-type tag.
func ValidAnalysisType(t string) bool {
	return validAnalysisTypes[t]
}

// AnalysisJob tracks one submitted batch of images. The API returns its id on
// POST /api/v1/batch-analyses; clients poll GET /api/v1/batch-analyses/{id} or
// subscribe to its events until status is completed or failed.
type AnalysisJob struct {
	ID             uuid.UUID     `db:"id"              json:"id"`
	TenantID       uuid.UUID     `db:"tenant_id"       json:"tenant_id"`
	FieldID        *string       `db:"field_id"        json:"field_id,omitempty"`
	AnalysisType   string        `db:"analysis_type"   json:"analysis_type"`
	TotalImages    int           `db:"total_images"    json:"total_images"`
	Status         string        `db:"status"          json:"status"`
	ResultsSummary *BatchSummary `db:"results_summary" json:"results_summary,omitempty"`
	ErrorMessage   *string       `db:"error_message"   json:"error_message,omitempty"`
	StartedAt      *time.Time    `db:"started_at"      json:"started_at,omitempty"`
	CompletedAt    *time.Time    `db:"completed_at"    json:"completed_at,omitempty"`
	CreatedAt      time.Time     `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at"      json:"updated_at"`
}

// IsTerminal reports whether no further status transitions can happen.
func (j *AnalysisJob) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}

// IsTerminalStatus reports whether status is completed or failed.
func IsTerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}
