package mock_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/greeneye/internal/ai/mock"
	"github.com/kiranshivaraju/greeneye/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest(d models.Dimension) models.InvocationRequest {
	return models.InvocationRequest{
		ImageURL:  "https://images.example.com/field-7/001.jpg",
		Dimension: d,
	}
}

// --- NewMockProvider ---

func TestNewMockProvider_Name(t *testing.T) {
	p := mock.NewMockProvider()
	assert.Equal(t, "mock", p.Name())
	assert.Equal(t, "mock-v1", p.Model())
}

func TestNewMockProvider_CannedResponsesValidate(t *testing.T) {
	p := mock.NewMockProvider()

	for _, d := range models.AllDimensions {
		t.Run(string(d), func(t *testing.T) {
			raw, err := p.Invoke(context.Background(), sampleRequest(d))
			require.NoError(t, err)

			rec, err := models.NewDimensionResult(d)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, rec))
			assert.NoError(t, rec.Validate())
		})
	}
	assert.EqualValues(t, len(models.AllDimensions), p.Calls())
}

func TestNewMockProvider_UnknownDimension(t *testing.T) {
	p := mock.NewMockProvider()
	_, err := p.Invoke(context.Background(), sampleRequest("leaf_count"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrRequestRejected))
}

// --- NewFailingProvider ---

func TestNewFailingProvider_Name(t *testing.T) {
	p := mock.NewFailingProvider(models.ErrTransient)
	assert.Equal(t, "mock-failing", p.Name())
}

func TestNewFailingProvider_Invoke(t *testing.T) {
	p := mock.NewFailingProvider(models.ErrInvocationDenied)
	raw, err := p.Invoke(context.Background(), sampleRequest(models.DimensionHealth))

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvocationDenied))
	assert.Nil(t, raw)
}

// --- NewTimeoutProvider ---

func TestNewTimeoutProvider_BlocksUntilCancel(t *testing.T) {
	p := mock.NewTimeoutProvider()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Invoke(ctx, sampleRequest(models.DimensionHealth))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInferenceTimeout))
	assert.True(t, errors.Is(err, models.ErrTransient))
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

// --- NewOverrideProvider ---

func TestNewOverrideProvider(t *testing.T) {
	p := mock.NewOverrideProvider(map[models.Dimension]func() (json.RawMessage, error){
		models.DimensionPest: func() (json.RawMessage, error) {
			return json.RawMessage(`{"pests":"maybe"}`), nil
		},
	})

	raw, err := p.Invoke(context.Background(), sampleRequest(models.DimensionPest))
	require.NoError(t, err)
	assert.JSONEq(t, `{"pests":"maybe"}`, string(raw))

	raw, err = p.Invoke(context.Background(), sampleRequest(models.DimensionHealth))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "health_score")
}

// --- Custom function ---

func TestMockProvider_CustomInvokeFunc(t *testing.T) {
	var seen models.InvocationRequest
	p := &mock.MockProvider{
		Name_: "custom",
		InvokeFunc: func(_ context.Context, req models.InvocationRequest) (json.RawMessage, error) {
			seen = req
			return json.RawMessage(`{}`), nil
		},
	}

	_, err := p.Invoke(context.Background(), sampleRequest(models.DimensionSoilQuality))
	require.NoError(t, err)
	assert.Equal(t, models.DimensionSoilQuality, seen.Dimension)
	assert.Equal(t, "custom", p.Name())
}
