// Package models contains shared data models used across the GreenEye codebase.
package models

import (
	"context"
	"encoding/json"
	"errors"
)

// AIProvider is the core interface that all vision model integrations must implement.
// Never call specific AI providers directly; always inject this interface.
type AIProvider interface {
	// Invoke sends one image and one dimension prompt to the model and returns
	// the raw JSON object the model produced.
	Invoke(ctx context.Context, req InvocationRequest) (json.RawMessage, error)
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string
	// Model returns the model identifier used for inference.
	Model() string
}

// InvocationRequest is the input to a single model call.
type InvocationRequest struct {
	ImageURL     string
	Dimension    Dimension
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
}

// Provider failure classes. Providers wrap one of these so callers can decide
// with errors.Is whether to retry, degrade, or abort.
var (
	ErrTransient        = errors.New("transient inference failure")
	ErrInferenceTimeout = errors.New("ai inference timeout")
	ErrSchemaViolation  = errors.New("ai response violates dimension schema")
	ErrInvocationDenied = errors.New("ai invocation denied")
	ErrRequestRejected  = errors.New("ai provider rejected request")
)
