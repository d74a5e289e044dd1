// Package ollama targets a local Ollama server running a vision model.
package ollama

import (
	"strings"
	"time"

	"github.com/kiranshivaraju/greeneye/internal/ai/aihttp"
	"github.com/kiranshivaraju/greeneye/internal/ai/openai"
	"github.com/kiranshivaraju/greeneye/internal/config"
)

// NewProvider returns a provider named "ollama" that talks to Ollama's
// OpenAI-compatible chat endpoint. A BaseURL without the /v1 suffix is accepted.
func NewProvider(cfg config.OllamaConfig, timeout time.Duration, opts ...aihttp.Option) *openai.Provider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return openai.NewCompatible("ollama", base, "", cfg.Model, timeout, opts...)
}
