package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ResultStatusOK     = "ok"
	ResultStatusFailed = "failed"
)

// ImageAnalysisResult is the composite analysis of one image in a batch.
// Rows are written exactly once and never updated.
type ImageAnalysisResult struct {
	ID              uuid.UUID        `db:"id"               json:"id"`
	JobID           uuid.UUID        `db:"job_id"           json:"job_id"`
	ImageIndex      int              `db:"image_index"      json:"image_index"`
	ImageURL        string           `db:"image_url"        json:"image_url"`
	CropHealth      *CropHealth      `db:"crop_health"      json:"crop_health,omitempty"`
	DiseaseAnalysis *DiseaseAnalysis `db:"disease_analysis" json:"disease_analysis,omitempty"`
	PestAnalysis    *PestAnalysis    `db:"pest_analysis"    json:"pest_analysis,omitempty"`
	GrowthStage     *GrowthStage     `db:"growth_stage"     json:"growth_stage,omitempty"`
	SoilQuality     *SoilQuality     `db:"soil_quality"     json:"soil_quality,omitempty"`
	OverallScore    *float64         `db:"overall_score"    json:"overall_score,omitempty"`
	Recommendations []string         `db:"recommendations"  json:"recommendations"`
	Status          string           `db:"status"           json:"status"`
	ErrorMessage    *string          `db:"error_message"    json:"error_message,omitempty"`
	AnalyzedAt      time.Time        `db:"analyzed_at"      json:"analyzed_at"`
}

// Succeeded reports whether the result counts towards batch averages.
func (r *ImageAnalysisResult) Succeeded() bool {
	return r.Status != ResultStatusFailed
}

// SetDimension stores a parsed dimension record in its matching field.
func (r *ImageAnalysisResult) SetDimension(d DimensionResult) {
	switch v := d.(type) {
	case *CropHealth:
		r.CropHealth = v
	case *DiseaseAnalysis:
		r.DiseaseAnalysis = v
	case *PestAnalysis:
		r.PestAnalysis = v
	case *GrowthStage:
		r.GrowthStage = v
	case *SoilQuality:
		r.SoilQuality = v
	}
}
