// Package aihttp is the JSON-over-HTTP transport shared by the hosted vision
// model providers. It owns error classification so every provider reports
// failures with the same sentinel errors.
package aihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/greeneye/pkg/models"
)

const (
	// maxErrorBody caps how much of a failed response body is kept in error messages.
	maxErrorBody = 512

	// DefaultMaxResponseBytes caps how much of a provider response is read.
	DefaultMaxResponseBytes int64 = 8 << 20
)

// Client posts JSON requests to one provider base URL.
type Client struct {
	baseURL string
	headers map[string]string
	client  *http.Client
	maxBody int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithMaxResponseBytes caps how much of a response body is read.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		c.maxBody = n
	}
}

// NewClient creates a Client. timeout bounds a whole request including the body read.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: map[string]string{},
		client:  &http.Client{Timeout: timeout},
		maxBody: DefaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostJSON sends in as JSON to baseURL+path and decodes a 2xx response into out.
// Non-2xx responses are mapped to provider sentinel errors by ClassifyStatus.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return ClassifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return ClassifyError(err)
	}
	oversized := int64(len(body)) > c.maxBody
	if oversized {
		body = body[:c.maxBody]
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ClassifyStatus(resp.StatusCode, body)
	}
	if oversized {
		return fmt.Errorf("%w: provider response exceeds %d bytes", models.ErrSchemaViolation, c.maxBody)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding provider response: %v", models.ErrSchemaViolation, err)
	}
	return nil
}

// ClassifyError maps transport-level errors to sentinel errors.
// Cancellation is returned as-is so callers can tell an aborted batch from a slow model.
func ClassifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %v", models.ErrTransient, models.ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w: %v", models.ErrTransient, models.ErrInferenceTimeout, err)
	}

	return fmt.Errorf("%w: %v", models.ErrTransient, err)
}

// ClassifyStatus maps an HTTP error status to a sentinel error.
//
//	401, 403          -> ErrInvocationDenied
//	429 quota         -> ErrInvocationDenied
//	429, 408, 5xx     -> ErrTransient
//	other 4xx         -> ErrRequestRejected
func ClassifyStatus(status int, body []byte) error {
	msg := snippet(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", models.ErrInvocationDenied, status, msg)
	case status == http.StatusTooManyRequests && isQuotaExhausted(body):
		return fmt.Errorf("%w: quota exhausted: status %d: %s", models.ErrInvocationDenied, status, msg)
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return fmt.Errorf("%w: status %d: %s", models.ErrTransient, status, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", models.ErrRequestRejected, status, msg)
	}
}

type errorEnvelope struct {
	Error struct {
		Type string `json:"type"`
		Code string `json:"code"`
	} `json:"error"`
}

func isQuotaExhausted(body []byte) bool {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	return env.Error.Code == "insufficient_quota" || env.Error.Type == "insufficient_quota"
}

// snippet trims body to at most maxErrorBody bytes without splitting a rune.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= maxErrorBody {
		return s
	}
	n := maxErrorBody
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
