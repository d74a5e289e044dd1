package vllm_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/greeneye/internal/ai/aihttp"
	"github.com/kiranshivaraju/greeneye/internal/ai/vllm"
	"github.com/kiranshivaraju/greeneye/internal/config"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

func TestNewProvider_UsesOpenAICompatibleEndpoint(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, "http://vllm:8000/v1/chat/completions",
		httpmock.NewStringResponder(http.StatusOK,
			`{"choices":[{"message":{"content":"{\"growth_stage\":\"flowering\"}"}}]}`))

	p := vllm.NewProvider(config.VLLMConfig{BaseURL: "http://vllm:8000/v1", Model: "llava-1.6"}, 5*time.Second,
		aihttp.WithHTTPClient(&http.Client{Transport: transport}))

	assert.Equal(t, "vllm", p.Name())
	assert.Equal(t, "llava-1.6", p.Model())

	raw, err := p.Invoke(context.Background(), models.InvocationRequest{
		ImageURL:  "https://images.example.com/a.jpg",
		Dimension: models.DimensionGrowthStage,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"growth_stage":"flowering"}`, string(raw))
}
