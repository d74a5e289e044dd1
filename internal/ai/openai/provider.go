package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/greeneye/internal/ai/aihttp"
	"github.com/kiranshivaraju/greeneye/internal/config"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Provider implements models.AIProvider using the OpenAI chat completions API.
// Any server speaking the same protocol can be targeted through NewCompatible.
type Provider struct {
	name   string
	model  string
	client *aihttp.Client
}

// NewProvider creates an OpenAI provider. timeout bounds one HTTP exchange.
func NewProvider(cfg config.OpenAIConfig, timeout time.Duration, opts ...aihttp.Option) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return NewCompatible("openai", baseURL, cfg.APIKey, cfg.Model, timeout, opts...)
}

// NewCompatible creates a provider for an OpenAI-compatible endpoint.
// apiKey may be empty for self-hosted servers.
func NewCompatible(name, baseURL, apiKey, model string, timeout time.Duration, opts ...aihttp.Option) *Provider {
	if apiKey != "" {
		opts = append([]aihttp.Option{aihttp.WithHeader("Authorization", "Bearer "+apiKey)}, opts...)
	}
	return &Provider{
		name:   name,
		model:  model,
		client: aihttp.NewClient(baseURL, timeout, opts...),
	}
}

func (p *Provider) Name() string  { return p.name }
func (p *Provider) Model() string { return p.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Temperature    *float32       `json:"temperature,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Invoke sends the image as an image_url content part and asks for a JSON object back.
func (p *Provider) Invoke(ctx context.Context, req models.InvocationRequest) (json.RawMessage, error) {
	temp := float32(0)
	body := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: req.UserPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: req.ImageURL, Detail: "high"}},
			}},
		},
		MaxTokens:      req.MaxTokens,
		Temperature:    &temp,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	var resp chatResponse
	if err := p.client.PostJSON(ctx, "/chat/completions", body, &resp); err != nil {
		return nil, fmt.Errorf("%s %s: %w", p.name, req.Dimension, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s %s: %w: response missing choices", p.name, req.Dimension, models.ErrSchemaViolation)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("%s %s: %w: empty content (finish_reason=%s)",
			p.name, req.Dimension, models.ErrSchemaViolation, resp.Choices[0].FinishReason)
	}
	return json.RawMessage(content), nil
}

var _ models.AIProvider = (*Provider)(nil)
