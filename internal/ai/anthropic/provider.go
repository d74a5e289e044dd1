package anthropic

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

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 800
)

// Provider implements models.AIProvider using the Anthropic messages API.
type Provider struct {
	model  string
	client *aihttp.Client
}

func NewProvider(cfg config.AnthropicConfig, timeout time.Duration, opts ...aihttp.Option) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	opts = append([]aihttp.Option{
		aihttp.WithHeader("x-api-key", cfg.APIKey),
		aihttp.WithHeader("anthropic-version", apiVersion),
	}, opts...)
	return &Provider{
		model:  cfg.Model,
		client: aihttp.NewClient(baseURL, timeout, opts...),
	}
}

func (p *Provider) Name() string  { return "anthropic" }
func (p *Provider) Model() string { return p.model }

type imageSource struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Invoke sends the image as a URL source block. The API has no JSON mode, so the
// returned text is passed on as-is and validated by the caller.
func (p *Provider) Invoke(ctx context.Context, req models.InvocationRequest) (json.RawMessage, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	body := messagesRequest{
		Model:  p.model,
		System: req.SystemPrompt,
		Messages: []message{{
			Role: "user",
			Content: []contentBlock{
				{Type: "image", Source: &imageSource{Type: "url", URL: req.ImageURL}},
				{Type: "text", Text: req.UserPrompt},
			},
		}},
		MaxTokens: maxTokens,
	}

	var resp messagesResponse
	if err := p.client.PostJSON(ctx, "/v1/messages", body, &resp); err != nil {
		return nil, fmt.Errorf("anthropic %s: %w", req.Dimension, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(text.String())
	if content == "" {
		return nil, fmt.Errorf("anthropic %s: %w: no text content (stop_reason=%s)",
			req.Dimension, models.ErrSchemaViolation, resp.StopReason)
	}
	return json.RawMessage(content), nil
}

var _ models.AIProvider = (*Provider)(nil)
