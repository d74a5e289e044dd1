package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/kiranshivaraju/greeneye/pkg/models"
)

// Canned responses describe a healthy maize field with a light aphid presence.
var cannedResponses = map[models.Dimension]string{
	models.DimensionHealth: `{
		"health_score": 78,
		"vegetation_density": 72,
		"stress_indicators": ["minor leaf curling"],
		"color_analysis": "mostly uniform green with slight yellowing at margins",
		"leaf_condition": "good",
		"water_status": "adequate",
		"nutrient_status": "possible nitrogen deficiency",
		"confidence": 0.8
	}`,
	models.DimensionDisease: `{
		"diseases_detected": false,
		"disease_types": [],
		"severity_level": "none",
		"affected_area_percentage": 0,
		"treatment_urgency": "none",
		"confidence": 0.85
	}`,
	models.DimensionPest: `{
		"pests_detected": true,
		"pest_types": ["aphids"],
		"infestation_level": "light",
		"damage_patterns": ["sticky residue on lower leaves"],
		"damage_percentage": 5,
		"control_methods": ["Release ladybird beetles as biological control"],
		"intervention_timing": "within 7 days",
		"confidence": 0.7
	}`,
	models.DimensionGrowthStage: `{
		"growth_stage": "vegetative",
		"development_percentage": 90,
		"uniformity_score": 80,
		"days_to_harvest": 60,
		"stage_specific_needs": ["Side-dress nitrogen before tasseling"],
		"confidence": 0.75
	}`,
	models.DimensionSoilQuality: `{
		"soil_texture": "loam",
		"moisture_level": "moderate",
		"erosion_risk": "low",
		"organic_matter": "medium",
		"compaction_level": "low",
		"drainage_quality": "good",
		"improvement_needs": ["Add cover crops after harvest"],
		"confidence": 0.6
	}`,
}

// MockProvider satisfies models.AIProvider for development and testing.
type MockProvider struct {
	Name_      string
	InvokeFunc func(ctx context.Context, req models.InvocationRequest) (json.RawMessage, error)

	calls atomic.Int64
}

func (m *MockProvider) Name() string  { return m.Name_ }
func (m *MockProvider) Model() string { return "mock-v1" }

func (m *MockProvider) Invoke(ctx context.Context, req models.InvocationRequest) (json.RawMessage, error) {
	m.calls.Add(1)
	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, req)
	}
	return Canned(req.Dimension)
}

// Calls returns how many times Invoke has been called.
func (m *MockProvider) Calls() int64 {
	return m.calls.Load()
}

// Canned returns the built-in response for d.
func Canned(d models.Dimension) (json.RawMessage, error) {
	body, ok := cannedResponses[d]
	if !ok {
		return nil, fmt.Errorf("%w: no canned response for dimension %q", models.ErrRequestRejected, d)
	}
	return json.RawMessage(body), nil
}

// NewMockProvider returns a MockProvider that answers every dimension with a canned response.
func NewMockProvider() *MockProvider {
	return &MockProvider{Name_: "mock"}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		InvokeFunc: func(_ context.Context, _ models.InvocationRequest) (json.RawMessage, error) {
			return nil, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		InvokeFunc: func(ctx context.Context, _ models.InvocationRequest) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, fmt.Errorf("%w: %w: %v", models.ErrTransient, models.ErrInferenceTimeout, ctx.Err())
		},
	}
}

// NewOverrideProvider answers from overrides when the dimension has an entry and
// falls back to the canned response otherwise.
func NewOverrideProvider(overrides map[models.Dimension]func() (json.RawMessage, error)) *MockProvider {
	return &MockProvider{
		Name_: "mock",
		InvokeFunc: func(_ context.Context, req models.InvocationRequest) (json.RawMessage, error) {
			if fn, ok := overrides[req.Dimension]; ok {
				return fn()
			}
			return Canned(req.Dimension)
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
