package ai_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/greeneye/internal/ai"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

func TestDecode_Valid(t *testing.T) {
	rec, err := ai.Decode(models.DimensionDisease,
		[]byte(`{"diseases_detected": true, "disease_types": ["rust"], "affected_area_percentage": 12.5}`))
	require.NoError(t, err)

	d := rec.(*models.DiseaseAnalysis)
	assert.True(t, d.Detected())
	assert.Equal(t, []string{"rust"}, d.DiseaseTypes)
	assert.Equal(t, 12.5, *d.AffectedAreaPercentage)
}

func TestDecode_MarkdownFence(t *testing.T) {
	rec, err := ai.Decode(models.DimensionSoilQuality, []byte("```json\n{\"soil_texture\": \"clay\"}\n```"))
	require.NoError(t, err)
	assert.Equal(t, "clay", rec.(*models.SoilQuality).SoilTexture)
}

func TestDecode_ProseAroundObject(t *testing.T) {
	rec, err := ai.Decode(models.DimensionGrowthStage,
		[]byte(`Here is the analysis: {"growth_stage": "flowering"} Let me know if you need more.`))
	require.NoError(t, err)
	assert.Equal(t, "flowering", rec.(*models.GrowthStage).Stage)
}

func TestDecode_Violations(t *testing.T) {
	tests := []struct {
		name string
		dim  models.Dimension
		raw  string
	}{
		{"empty", models.DimensionHealth, ``},
		{"no object", models.DimensionHealth, `the crop looks fine`},
		{"missing health_score", models.DimensionHealth, `{"leaf_condition":"good"}`},
		{"health_score as string", models.DimensionHealth, `{"health_score":"82"}`},
		{"health_score out of range", models.DimensionHealth, `{"health_score":140}`},
		{"missing diseases_detected", models.DimensionDisease, `{"disease_types":["blight"]}`},
		{"affected area negative", models.DimensionDisease, `{"diseases_detected":true,"affected_area_percentage":-3}`},
		{"missing pests_detected", models.DimensionPest, `{}`},
		{"damage over 100", models.DimensionPest, `{"pests_detected":true,"damage_percentage":101}`},
		{"missing growth_stage", models.DimensionGrowthStage, `{"development_percentage":50}`},
		{"missing soil_texture", models.DimensionSoilQuality, `{"moisture_level":"dry"}`},
		{"unknown dimension", "canopy", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ai.Decode(tt.dim, []byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ai.ErrSchemaViolation), "got %v", err)
		})
	}
}
