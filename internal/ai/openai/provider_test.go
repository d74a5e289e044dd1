package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/greeneye/internal/ai/aihttp"
	"github.com/kiranshivaraju/greeneye/internal/ai/openai"
	"github.com/kiranshivaraju/greeneye/internal/config"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

const completionsURL = "https://api.openai.com/v1/chat/completions"

func newMockedProvider(t *testing.T) (*openai.Provider, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	p := openai.NewProvider(
		config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o"},
		10*time.Second,
		aihttp.WithHTTPClient(&http.Client{Transport: transport}),
	)
	return p, transport
}

func testRequest() models.InvocationRequest {
	return models.InvocationRequest{
		ImageURL:     "https://images.example.com/field-1/a.jpg",
		Dimension:    models.DimensionHealth,
		SystemPrompt: "system",
		UserPrompt:   "user",
		MaxTokens:    800,
	}
}

func TestInvoke_Success(t *testing.T) {
	p, transport := newMockedProvider(t)

	transport.RegisterResponder(http.MethodPost, completionsURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "gpt-4o", body["model"])
			assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
			assert.EqualValues(t, 800, body["max_tokens"])

			messages := body["messages"].([]any)
			require.Len(t, messages, 2)
			parts := messages[1].(map[string]any)["content"].([]any)
			require.Len(t, parts, 2)
			image := parts[1].(map[string]any)
			assert.Equal(t, "image_url", image["type"])
			assert.Equal(t, "https://images.example.com/field-1/a.jpg", image["image_url"].(map[string]any)["url"])

			return httpmock.NewStringResponse(http.StatusOK,
				`{"choices":[{"message":{"content":"{\"health_score\": 82}"},"finish_reason":"stop"}]}`), nil
		})

	raw, err := p.Invoke(context.Background(), testRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{"health_score": 82}`, string(raw))
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestInvoke_NameAndModel(t *testing.T) {
	p, _ := newMockedProvider(t)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "gpt-4o", p.Model())
}

func TestInvoke_EmptyChoicesIsSchemaViolation(t *testing.T) {
	p, transport := newMockedProvider(t)
	transport.RegisterResponder(http.MethodPost, completionsURL,
		httpmock.NewStringResponder(http.StatusOK, `{"choices":[]}`))

	_, err := p.Invoke(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrSchemaViolation))
}

func TestInvoke_EmptyContentIsSchemaViolation(t *testing.T) {
	p, transport := newMockedProvider(t)
	transport.RegisterResponder(http.MethodPost, completionsURL,
		httpmock.NewStringResponder(http.StatusOK, `{"choices":[{"message":{"content":"  "},"finish_reason":"length"}]}`))

	_, err := p.Invoke(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrSchemaViolation))
	assert.Contains(t, err.Error(), "length")
}

func TestInvoke_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"invalid key", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`, models.ErrInvocationDenied},
		{"quota", http.StatusTooManyRequests, `{"error":{"message":"quota","type":"insufficient_quota","code":"insufficient_quota"}}`, models.ErrInvocationDenied},
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"requests"}}`, models.ErrTransient},
		{"server", http.StatusServiceUnavailable, `{"error":{"message":"overloaded","type":"server_error"}}`, models.ErrTransient},
		{"unreachable image", http.StatusBadRequest, `{"error":{"message":"Error while downloading image","type":"invalid_request_error"}}`, models.ErrRequestRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, transport := newMockedProvider(t)
			transport.RegisterResponder(http.MethodPost, completionsURL,
				httpmock.NewStringResponder(tt.status, tt.body))

			_, err := p.Invoke(context.Background(), testRequest())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Contains(t, err.Error(), "openai health")
		})
	}
}

func TestInvoke_TransportError(t *testing.T) {
	p, transport := newMockedProvider(t)
	transport.RegisterResponder(http.MethodPost, completionsURL,
		httpmock.NewErrorResponder(errors.New("connection reset by peer")))

	_, err := p.Invoke(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTransient))
}

func TestNewCompatible_NoAuthHeaderWithoutKey(t *testing.T) {
	transport := httpmock.NewMockTransport()
	p := openai.NewCompatible("local", "http://llm.internal:8000/v1", "", "llava", 5*time.Second,
		aihttp.WithHTTPClient(&http.Client{Transport: transport}))

	transport.RegisterResponder(http.MethodPost, "http://llm.internal:8000/v1/chat/completions",
		func(req *http.Request) (*http.Response, error) {
			assert.Empty(t, req.Header.Get("Authorization"))
			return httpmock.NewStringResponse(http.StatusOK,
				`{"choices":[{"message":{"content":"{\"soil_texture\":\"loam\"}"}}]}`), nil
		})

	raw, err := p.Invoke(context.Background(), testRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{"soil_texture":"loam"}`, string(raw))
	assert.Equal(t, "local", p.Name())
}
