package analysis

import "github.com/kiranshivaraju/greeneye/pkg/models"

const (
	diseasePenaltyWeight = 0.5
	pestPenaltyWeight    = 0.3
)

// OverallScore combines the dimension records of one image into a 0-100 score.
//
// The health score (0 when absent) is reduced by half the disease-affected area
// and 30% of the pest damage, then scaled by development progress (100 when
// absent). Penalties are applied before growth scaling, and the result is clamped.
func OverallScore(r *models.ImageAnalysisResult) float64 {
	score := 0.0
	if r.CropHealth != nil && r.CropHealth.HealthScore != nil {
		score = *r.CropHealth.HealthScore
	}

	if r.DiseaseAnalysis.Detected() && r.DiseaseAnalysis.AffectedAreaPercentage != nil {
		score -= *r.DiseaseAnalysis.AffectedAreaPercentage * diseasePenaltyWeight
	}
	if r.PestAnalysis.Detected() && r.PestAnalysis.DamagePercentage != nil {
		score -= *r.PestAnalysis.DamagePercentage * pestPenaltyWeight
	}

	development := 100.0
	if r.GrowthStage != nil && r.GrowthStage.DevelopmentPercentage != nil {
		development = *r.GrowthStage.DevelopmentPercentage
	}
	score *= development / 100

	return clamp(score, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
