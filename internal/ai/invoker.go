package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/greeneye/pkg/models"
)

const (
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultMaxTokens      = 800
)

// Outcome labels reported to an Observer.
const (
	OutcomeOK              = "ok"
	OutcomeSchemaViolation = "schema_violation"
	OutcomeTimeout         = "timeout"
	OutcomeTransient       = "transient"
	OutcomeDenied          = "denied"
	OutcomeRejected        = "rejected"
	OutcomeCancelled       = "cancelled"
	OutcomeError           = "error"
)

// Observer receives one callback per model call attempt.
type Observer interface {
	ObserveInference(provider string, d models.Dimension, outcome string, elapsed time.Duration)
}

// Invoker performs single (image, dimension) model calls. One Invoker and its
// limiter are shared by every job in the process.
type Invoker struct {
	provider       models.AIProvider
	limiter        *rate.Limiter
	timeout        time.Duration
	maxRetries     int
	retryBaseDelay time.Duration
	maxTokens      int
	observer       Observer
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithTimeout bounds each provider call. Zero disables the per-call timeout.
func WithTimeout(d time.Duration) InvokerOption {
	return func(inv *Invoker) { inv.timeout = d }
}

// WithRetries enables up to n retries of transient failures with exponential backoff.
func WithRetries(n int, baseDelay time.Duration) InvokerOption {
	return func(inv *Invoker) {
		inv.maxRetries = n
		if baseDelay > 0 {
			inv.retryBaseDelay = baseDelay
		}
	}
}

// WithMaxTokens sets the completion token budget for each call.
func WithMaxTokens(n int) InvokerOption {
	return func(inv *Invoker) {
		if n > 0 {
			inv.maxTokens = n
		}
	}
}

// WithObserver reports call outcomes and latency.
func WithObserver(o Observer) InvokerOption {
	return func(inv *Invoker) { inv.observer = o }
}

// NewInvoker wraps provider. A nil limiter means calls are not rate limited.
func NewInvoker(provider models.AIProvider, limiter *rate.Limiter, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		provider:       provider,
		limiter:        limiter,
		retryBaseDelay: defaultRetryBaseDelay,
		maxTokens:      defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// NewLimiter builds the process-wide token bucket for model calls.
func NewLimiter(requestsPerSec float64, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(requestsPerSec), burst)
}

// Provider returns the wrapped provider.
func (inv *Invoker) Provider() models.AIProvider {
	return inv.provider
}

// Invoke classifies imageURL along dimension d and returns the validated record.
// Transient failures are retried only when retries are enabled; schema
// violations, denials and rejections are returned immediately.
func (inv *Invoker) Invoke(ctx context.Context, imageURL string, d models.Dimension) (models.DimensionResult, error) {
	req, ok := BuildRequest(imageURL, d, inv.maxTokens)
	if !ok {
		return nil, fmt.Errorf("%w: unknown dimension %q", ErrRequestRejected, d)
	}

	var lastErr error
	for attempt := 0; attempt <= inv.maxRetries; attempt++ {
		if attempt > 0 {
			delay := inv.retryBaseDelay * time.Duration(1<<(attempt-1))
			slog.Warn("retrying model call",
				"provider", inv.provider.Name(),
				"dimension", d,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, context.Cause(ctx)
			}
		}

		rec, err := inv.invokeOnce(ctx, req)
		if err == nil {
			return rec, nil
		}
		lastErr = err
		if !errors.Is(err, ErrTransient) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (inv *Invoker) invokeOnce(ctx context.Context, req models.InvocationRequest) (models.DimensionResult, error) {
	if inv.limiter != nil {
		if err := inv.limiter.Wait(ctx); err != nil {
			if cause := context.Cause(ctx); cause != nil {
				return nil, cause
			}
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	callCtx := ctx
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := inv.provider.Invoke(callCtx, req)
	if err == nil {
		var rec models.DimensionResult
		rec, err = Decode(req.Dimension, raw)
		inv.observe(req.Dimension, err, time.Since(start))
		return rec, err
	}

	// A provider that ignores its deadline still surfaces as a timeout.
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrInferenceTimeout) {
		err = fmt.Errorf("%w: %w: %v", ErrTransient, ErrInferenceTimeout, err)
	}
	if ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
			err = fmt.Errorf("%w: %v", cause, err)
		}
	}
	inv.observe(req.Dimension, err, time.Since(start))
	return nil, err
}

func (inv *Invoker) observe(d models.Dimension, err error, elapsed time.Duration) {
	if inv.observer == nil {
		return
	}
	inv.observer.ObserveInference(inv.provider.Name(), d, Outcome(err), elapsed)
}

// Outcome maps an Invoke error to its metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrSchemaViolation):
		return OutcomeSchemaViolation
	case errors.Is(err, ErrInferenceTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrTransient):
		return OutcomeTransient
	case errors.Is(err, ErrInvocationDenied):
		return OutcomeDenied
	case errors.Is(err, ErrRequestRejected):
		return OutcomeRejected
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}
