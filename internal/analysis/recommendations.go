package analysis

import "github.com/kiranshivaraju/greeneye/pkg/models"

const (
	// MaxRecommendations caps the list stored on each image result.
	MaxRecommendations = 10
	// AttentionThreshold is the health score below which AttentionNote is added.
	AttentionThreshold = 70.0
	AttentionNote      = "Immediate attention required for crop health improvement"
)

// Recommendations collects actionable advice from every dimension of r in a
// fixed order: attention note, disease treatments, pest controls, growth-stage
// needs, soil improvements. Exact duplicates are dropped and the list is capped.
func Recommendations(r *models.ImageAnalysisResult) []string {
	var recs []string

	if r.CropHealth != nil && r.CropHealth.HealthScore != nil && *r.CropHealth.HealthScore < AttentionThreshold {
		recs = append(recs, AttentionNote)
	}
	if r.DiseaseAnalysis.Detected() {
		recs = append(recs, r.DiseaseAnalysis.RecommendedTreatments...)
	}
	if r.PestAnalysis.Detected() {
		recs = append(recs, r.PestAnalysis.ControlMethods...)
	}
	if r.GrowthStage != nil {
		recs = append(recs, r.GrowthStage.StageSpecificNeeds...)
	}
	if r.SoilQuality != nil {
		recs = append(recs, r.SoilQuality.ImprovementNeeds...)
	}

	out := dedupe(recs)
	if len(out) > MaxRecommendations {
		out = out[:MaxRecommendations]
	}
	return out
}

// dedupe drops empty strings and repeats, keeping first occurrences in order.
// Never returns nil.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
