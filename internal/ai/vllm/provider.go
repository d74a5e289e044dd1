// Package vllm targets a self-hosted vLLM server through its OpenAI-compatible API.
package vllm

import (
	"time"

	"github.com/kiranshivaraju/greeneye/internal/ai/aihttp"
	"github.com/kiranshivaraju/greeneye/internal/ai/openai"
	"github.com/kiranshivaraju/greeneye/internal/config"
)

// NewProvider returns an OpenAI-compatible provider named "vllm".
// cfg.BaseURL must include the /v1 prefix.
func NewProvider(cfg config.VLLMConfig, timeout time.Duration, opts ...aihttp.Option) *openai.Provider {
	return openai.NewCompatible("vllm", cfg.BaseURL, "", cfg.Model, timeout, opts...)
}
