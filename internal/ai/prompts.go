package ai

import "github.com/kiranshivaraju/greeneye/pkg/models"

const systemPrompt = `You are an agronomist reviewing a single field photograph for a crop monitoring service.
Answer with one JSON object and nothing else. Use numbers for numeric fields and
percentages in the range 0 to 100. If the image does not show the requested
information, still return the required fields with your best estimate and a low confidence.`

type prompt struct {
	user string
}

var prompts = map[models.Dimension]prompt{
	models.DimensionHealth: {user: `Assess overall crop health.
Required: "health_score" (0-100).
Optional: "vegetation_density" (0-100), "stress_indicators" (array of strings),
"color_analysis", "leaf_condition", "water_status", "nutrient_status" (strings), "confidence" (0-1).`},

	models.DimensionDisease: {user: `Look for plant disease.
Required: "diseases_detected" (boolean).
Optional: "disease_types" (array of disease names), "severity_level", "affected_area_percentage" (0-100),
"symptoms_observed" (array), "treatment_urgency", "recommended_treatments" (array of actionable steps), "confidence" (0-1).`},

	models.DimensionPest: {user: `Look for pests and pest damage.
Required: "pests_detected" (boolean).
Optional: "pest_types" (array of pest names), "infestation_level", "damage_patterns" (array),
"life_stages_present" (array), "damage_percentage" (0-100), "control_methods" (array of actionable steps),
"intervention_timing", "confidence" (0-1).`},

	models.DimensionGrowthStage: {user: `Identify the crop growth stage.
Required: "growth_stage" (string, e.g. germination, vegetative, flowering, fruiting, maturity).
Optional: "development_percentage" (0-100, progress through the season), "uniformity_score" (0-100),
"days_to_harvest" (number), "stage_specific_needs" (array of actionable steps),
"development_issues" (array), "optimal_conditions", "confidence" (0-1).`},

	models.DimensionSoilQuality: {user: `Assess the visible soil.
Required: "soil_texture" (string).
Optional: "moisture_level", "erosion_risk", "organic_matter", "compaction_level", "drainage_quality" (strings),
"improvement_needs" (array of actionable steps), "confidence" (0-1).`},
}

// BuildRequest returns the invocation for one image and one dimension.
func BuildRequest(imageURL string, d models.Dimension, maxTokens int) (models.InvocationRequest, bool) {
	p, ok := prompts[d]
	if !ok {
		return models.InvocationRequest{}, false
	}
	return models.InvocationRequest{
		ImageURL:     imageURL,
		Dimension:    d,
		SystemPrompt: systemPrompt,
		UserPrompt:   p.user,
		MaxTokens:    maxTokens,
	}, true
}
