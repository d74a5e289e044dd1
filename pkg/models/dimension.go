package models

import (
	"errors"
	"fmt"
)

// Dimension is one independent axis of image analysis.
type Dimension string

const (
	DimensionHealth      Dimension = "health"
	DimensionDisease     Dimension = "disease"
	DimensionPest        Dimension = "pest"
	DimensionGrowthStage Dimension = "growth_stage"
	DimensionSoilQuality Dimension = "soil_quality"
)

// AllDimensions lists every dimension in the order results are reported.
var AllDimensions = []Dimension{
	DimensionHealth,
	DimensionDisease,
	DimensionPest,
	DimensionGrowthStage,
	DimensionSoilQuality,
}

// DimensionResult is the parsed, validated output of one dimension call.
// Exactly one concrete type exists per Dimension.
type DimensionResult interface {
	Dimension() Dimension
	Validate() error
}

// NewDimensionResult returns an empty record for d, ready to be decoded into.
func NewDimensionResult(d Dimension) (DimensionResult, error) {
	switch d {
	case DimensionHealth:
		return &CropHealth{}, nil
	case DimensionDisease:
		return &DiseaseAnalysis{}, nil
	case DimensionPest:
		return &PestAnalysis{}, nil
	case DimensionGrowthStage:
		return &GrowthStage{}, nil
	case DimensionSoilQuality:
		return &SoilQuality{}, nil
	default:
		return nil, fmt.Errorf("unknown dimension %q", d)
	}
}

// CropHealth describes overall plant vitality. HealthScore is required.
type CropHealth struct {
	HealthScore       *float64 `json:"health_score"`
	VegetationDensity *float64 `json:"vegetation_density,omitempty"`
	StressIndicators  []string `json:"stress_indicators,omitempty"`
	ColorAnalysis     string   `json:"color_analysis,omitempty"`
	LeafCondition     string   `json:"leaf_condition,omitempty"`
	WaterStatus       string   `json:"water_status,omitempty"`
	NutrientStatus    string   `json:"nutrient_status,omitempty"`
	Confidence        *float64 `json:"confidence,omitempty"`
}

func (*CropHealth) Dimension() Dimension { return DimensionHealth }

func (c *CropHealth) Validate() error {
	if c.HealthScore == nil {
		return errors.New("health_score is required")
	}
	return checkPercent("health_score", c.HealthScore)
}

// DiseaseAnalysis reports detected plant diseases. DiseasesDetected is required.
type DiseaseAnalysis struct {
	DiseasesDetected       *bool    `json:"diseases_detected"`
	DiseaseTypes           []string `json:"disease_types,omitempty"`
	SeverityLevel          string   `json:"severity_level,omitempty"`
	AffectedAreaPercentage *float64 `json:"affected_area_percentage,omitempty"`
	SymptomsObserved       []string `json:"symptoms_observed,omitempty"`
	TreatmentUrgency       string   `json:"treatment_urgency,omitempty"`
	RecommendedTreatments  []string `json:"recommended_treatments,omitempty"`
	Confidence             *float64 `json:"confidence,omitempty"`
}

func (*DiseaseAnalysis) Dimension() Dimension { return DimensionDisease }

func (d *DiseaseAnalysis) Validate() error {
	if d.DiseasesDetected == nil {
		return errors.New("diseases_detected is required")
	}
	return checkPercent("affected_area_percentage", d.AffectedAreaPercentage)
}

// Detected reports whether the model found at least one disease.
func (d *DiseaseAnalysis) Detected() bool {
	return d != nil && d.DiseasesDetected != nil && *d.DiseasesDetected
}

// PestAnalysis reports detected pests and their damage. PestsDetected is required.
type PestAnalysis struct {
	PestsDetected      *bool    `json:"pests_detected"`
	PestTypes          []string `json:"pest_types,omitempty"`
	InfestationLevel   string   `json:"infestation_level,omitempty"`
	DamagePatterns     []string `json:"damage_patterns,omitempty"`
	LifeStagesPresent  []string `json:"life_stages_present,omitempty"`
	DamagePercentage   *float64 `json:"damage_percentage,omitempty"`
	ControlMethods     []string `json:"control_methods,omitempty"`
	InterventionTiming string   `json:"intervention_timing,omitempty"`
	Confidence         *float64 `json:"confidence,omitempty"`
}

func (*PestAnalysis) Dimension() Dimension { return DimensionPest }

func (p *PestAnalysis) Validate() error {
	if p.PestsDetected == nil {
		return errors.New("pests_detected is required")
	}
	return checkPercent("damage_percentage", p.DamagePercentage)
}

// Detected reports whether the model found pests.
func (p *PestAnalysis) Detected() bool {
	return p != nil && p.PestsDetected != nil && *p.PestsDetected
}

// GrowthStage describes crop development. Stage is required.
type GrowthStage struct {
	Stage                 string   `json:"growth_stage"`
	DevelopmentPercentage *float64 `json:"development_percentage,omitempty"`
	UniformityScore       *float64 `json:"uniformity_score,omitempty"`
	DaysToHarvest         *float64 `json:"days_to_harvest,omitempty"`
	StageSpecificNeeds    []string `json:"stage_specific_needs,omitempty"`
	DevelopmentIssues     []string `json:"development_issues,omitempty"`
	OptimalConditions     string   `json:"optimal_conditions,omitempty"`
	Confidence            *float64 `json:"confidence,omitempty"`
}

func (*GrowthStage) Dimension() Dimension { return DimensionGrowthStage }

func (g *GrowthStage) Validate() error {
	if g.Stage == "" {
		return errors.New("growth_stage is required")
	}
	return checkPercent("development_percentage", g.DevelopmentPercentage)
}

// SoilQuality describes visible soil conditions. SoilTexture is required.
type SoilQuality struct {
	SoilTexture      string   `json:"soil_texture"`
	MoistureLevel    string   `json:"moisture_level,omitempty"`
	ErosionRisk      string   `json:"erosion_risk,omitempty"`
	OrganicMatter    string   `json:"organic_matter,omitempty"`
	CompactionLevel  string   `json:"compaction_level,omitempty"`
	DrainageQuality  string   `json:"drainage_quality,omitempty"`
	ImprovementNeeds []string `json:"improvement_needs,omitempty"`
	Confidence       *float64 `json:"confidence,omitempty"`
}

func (*SoilQuality) Dimension() Dimension { return DimensionSoilQuality }

func (s *SoilQuality) Validate() error {
	if s.SoilTexture == "" {
		return errors.New("soil_texture is required")
	}
	return nil
}

func checkPercent(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if *v < 0 || *v > 100 {
		return fmt.Errorf("%s must be within [0, 100], got %g", name, *v)
	}
	return nil
}
