// Package client is a Go client for the GreenEye batch analysis API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/greeneye/pkg/models"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultPollTimeout  = 10 * time.Minute

	maxErrorBody = 4096
)

// ErrPollTimeout is returned by WaitForCompletion when the job has not reached
// a terminal status within the poll timeout.
var ErrPollTimeout = errors.New("timed out waiting for batch analysis")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("greeneye: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("greeneye: %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to one GreenEye server with one API key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a Client for baseURL, e.g. "https://greeneye.example.com".
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitInput is the body of a batch submission.
type SubmitInput struct {
	ImageURLs    []string `json:"imageUrls"`
	FieldID      string   `json:"fieldId"`
	AnalysisType string   `json:"analysisType,omitempty"`
}

// Submission is the server's receipt for an accepted batch.
type Submission struct {
	Success         bool      `json:"success"`
	BatchAnalysisID uuid.UUID `json:"batchAnalysisId"`
	Status          string    `json:"status"`
	TotalImages     int       `json:"totalImages"`
}

// Outcome is a batch in a terminal status. Results are loaded only for
// completed batches.
type Outcome struct {
	Job     *models.AnalysisJob           `json:"job"`
	Results []*models.ImageAnalysisResult `json:"results,omitempty"`
}

// Submit starts a batch analysis.
func (c *Client) Submit(ctx context.Context, in SubmitInput) (*Submission, error) {
	var out Submission
	if err := c.do(ctx, http.MethodPost, "/api/v1/batch-analyses", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBatch returns the job row.
func (c *Client) GetBatch(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	var out struct {
		Data *models.AnalysisJob `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/batch-analyses/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Status returns only the job status.
func (c *Client) Status(ctx context.Context, id uuid.UUID) (string, error) {
	var out struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/batch-analyses/"+id.String()+"/status", nil, &out); err != nil {
		return "", err
	}
	return out.Data.Status, nil
}

// Results returns the job's per-image rows in image order.
func (c *Client) Results(ctx context.Context, id uuid.UUID) ([]*models.ImageAnalysisResult, error) {
	var out struct {
		Data []*models.ImageAnalysisResult `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/batch-analyses/"+id.String()+"/results", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ListFilter narrows List. Zero values are omitted.
type ListFilter struct {
	FieldID string
	Status  string
	Page    int
	Limit   int
}

// List returns one page of the tenant's batches, newest first, and the total count.
func (c *Client) List(ctx context.Context, f ListFilter) ([]*models.AnalysisJob, int, error) {
	q := url.Values{}
	if f.FieldID != "" {
		q.Set("field_id", f.FieldID)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Page > 0 {
		q.Set("page", fmt.Sprint(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", fmt.Sprint(f.Limit))
	}
	path := "/api/v1/batch-analyses"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Data []*models.AnalysisJob `json:"data"`
		Meta struct {
			Total int `json:"total"`
		} `json:"meta"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Data, out.Meta.Total, nil
}

// Cancel aborts a processing batch and returns it once it has settled.
func (c *Client) Cancel(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	var out struct {
		Data *models.AnalysisJob `json:"data"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/v1/batch-analyses/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// WaitForCompletion polls the job every interval until it is completed or
// failed. It returns ErrPollTimeout once timeout has elapsed, even if the job
// is still processing, and stops at the first request error.
func (c *Client) WaitForCompletion(ctx context.Context, id uuid.UUID, interval, timeout time.Duration) (*Outcome, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastStatus := "unknown"
	for {
		job, err := c.GetBatch(pollCtx, id)
		switch {
		case err == nil:
			lastStatus = job.Status
			if job.IsTerminal() {
				return c.outcome(ctx, job)
			}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case pollCtx.Err() != nil:
			return nil, fmt.Errorf("%w after %s (last status %s)", ErrPollTimeout, timeout, lastStatus)
		default:
			return nil, fmt.Errorf("polling batch %s: %w", id, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w after %s (last status %s)", ErrPollTimeout, timeout, lastStatus)
		case <-ticker.C:
		}
	}
}

func (c *Client) outcome(ctx context.Context, job *models.AnalysisJob) (*Outcome, error) {
	out := &Outcome{Job: job}
	if job.Status != models.JobStatusCompleted {
		return out, nil
	}
	results, err := c.Results(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("loading results: %w", err)
	}
	out.Results = results
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// decodeError understands both error shapes the server writes:
// {"error": {"code", "message"}} and {"error": "message"}.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &body) != nil || len(body.Error) == 0 {
		if s := strings.TrimSpace(string(raw)); s != "" {
			apiErr.Message = s
		}
		return apiErr
	}

	var flat string
	if json.Unmarshal(body.Error, &flat) == nil {
		apiErr.Message = flat
		return apiErr
	}
	var envelope struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body.Error, &envelope) == nil {
		apiErr.Code = envelope.Code
		apiErr.Message = envelope.Message
	}
	return apiErr
}
