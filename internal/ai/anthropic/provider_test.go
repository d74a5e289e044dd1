package anthropic_test

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
	"github.com/kiranshivaraju/greeneye/internal/ai/anthropic"
	"github.com/kiranshivaraju/greeneye/internal/config"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

const messagesURL = "https://api.anthropic.com/v1/messages"

func newMockedProvider(t *testing.T) (*anthropic.Provider, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	p := anthropic.NewProvider(
		config.AnthropicConfig{APIKey: "sk-ant-test", Model: "claude-sonnet-4-5-20250929"},
		10*time.Second,
		aihttp.WithHTTPClient(&http.Client{Transport: transport}),
	)
	return p, transport
}

func TestInvoke_Success(t *testing.T) {
	p, transport := newMockedProvider(t)

	transport.RegisterResponder(http.MethodPost, messagesURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "sk-ant-test", req.Header.Get("x-api-key"))
			assert.Equal(t, "2023-06-01", req.Header.Get("anthropic-version"))

			var body struct {
				Model     string `json:"model"`
				System    string `json:"system"`
				MaxTokens int    `json:"max_tokens"`
				Messages  []struct {
					Content []struct {
						Type   string `json:"type"`
						Source *struct {
							Type string `json:"type"`
							URL  string `json:"url"`
						} `json:"source"`
					} `json:"content"`
				} `json:"messages"`
			}
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "claude-sonnet-4-5-20250929", body.Model)
			assert.Equal(t, "sys", body.System)
			assert.Equal(t, 800, body.MaxTokens)
			require.Len(t, body.Messages, 1)
			image := body.Messages[0].Content[0]
			assert.Equal(t, "image", image.Type)
			require.NotNil(t, image.Source)
			assert.Equal(t, "url", image.Source.Type)
			assert.Equal(t, "https://images.example.com/b.jpg", image.Source.URL)

			return httpmock.NewStringResponse(http.StatusOK,
				`{"content":[{"type":"text","text":"{\"pests_detected\": false}"}],"stop_reason":"end_turn"}`), nil
		})

	raw, err := p.Invoke(context.Background(), models.InvocationRequest{
		ImageURL:     "https://images.example.com/b.jpg",
		Dimension:    models.DimensionPest,
		SystemPrompt: "sys",
		UserPrompt:   "user",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"pests_detected": false}`, string(raw))
}

func TestInvoke_NoTextIsSchemaViolation(t *testing.T) {
	p, transport := newMockedProvider(t)
	transport.RegisterResponder(http.MethodPost, messagesURL,
		httpmock.NewStringResponder(http.StatusOK, `{"content":[],"stop_reason":"max_tokens"}`))

	_, err := p.Invoke(context.Background(), models.InvocationRequest{Dimension: models.DimensionPest})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrSchemaViolation))
	assert.Contains(t, err.Error(), "max_tokens")
}

func TestInvoke_Overloaded(t *testing.T) {
	p, transport := newMockedProvider(t)
	transport.RegisterResponder(http.MethodPost, messagesURL,
		httpmock.NewStringResponder(529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))

	_, err := p.Invoke(context.Background(), models.InvocationRequest{Dimension: models.DimensionSoilQuality})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTransient))
	assert.Contains(t, err.Error(), "anthropic soil_quality")
}

func TestInvoke_Forbidden(t *testing.T) {
	p, transport := newMockedProvider(t)
	transport.RegisterResponder(http.MethodPost, messagesURL,
		httpmock.NewStringResponder(http.StatusForbidden, `{"type":"error","error":{"type":"permission_error"}}`))

	_, err := p.Invoke(context.Background(), models.InvocationRequest{Dimension: models.DimensionHealth})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvocationDenied))
}
