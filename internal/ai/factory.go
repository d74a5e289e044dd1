package ai

import (
	"fmt"

	"github.com/kiranshivaraju/greeneye/internal/ai/anthropic"
	"github.com/kiranshivaraju/greeneye/internal/ai/mock"
	"github.com/kiranshivaraju/greeneye/internal/ai/ollama"
	"github.com/kiranshivaraju/greeneye/internal/ai/openai"
	"github.com/kiranshivaraju/greeneye/internal/ai/vllm"
	"github.com/kiranshivaraju/greeneye/internal/config"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "vllm":
		return vllm.NewProvider(cfg.VLLM, cfg.InferenceTimeout), nil
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, cfg.InferenceTimeout), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, cfg.InferenceTimeout), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, cfg.InferenceTimeout), nil
	case "mock":
		return mock.NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of openai, anthropic, vllm, ollama, mock", cfg.Provider)
	}
}

// NewInvokerFromConfig wires a provider into an Invoker with the configured
// limiter, timeout, retry and token settings.
func NewInvokerFromConfig(cfg config.AIConfig, provider models.AIProvider, opts ...InvokerOption) *Invoker {
	base := []InvokerOption{
		WithTimeout(cfg.InferenceTimeout),
		WithRetries(cfg.MaxRetries, 0),
		WithMaxTokens(cfg.MaxTokens),
	}
	return NewInvoker(provider, NewLimiter(cfg.RequestsPerSec, cfg.Burst), append(base, opts...)...)
}
