// Package analysis turns the five dimension classifications of an image into a
// composite result, and a batch of results into a summary.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/greeneye/internal/ai"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

const maxErrorMessageBytes = 2000

// DimensionInvoker classifies one image along one dimension.
type DimensionInvoker interface {
	Invoke(ctx context.Context, imageURL string, d models.Dimension) (models.DimensionResult, error)
}

// ImageResolver turns a submitted image reference into a URL the model can fetch.
type ImageResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Analyzer runs the per-image analysis.
type Analyzer struct {
	invoker  DimensionInvoker
	resolver ImageResolver
}

// NewAnalyzer creates an Analyzer. A nil resolver passes references through unchanged.
func NewAnalyzer(invoker DimensionInvoker, resolver ImageResolver) *Analyzer {
	return &Analyzer{invoker: invoker, resolver: resolver}
}

type dimensionOutcome struct {
	dim    models.Dimension
	result models.DimensionResult
	err    error
}

// Analyze classifies the image at ref along every dimension concurrently and
// aggregates the outcome. The returned result is never nil. A non-nil error
// means the result is failed and explains why; it wraps every dimension error
// so callers can match ai sentinel errors.
func (a *Analyzer) Analyze(ctx context.Context, jobID uuid.UUID, index int, ref string) (*models.ImageAnalysisResult, error) {
	result := NewResult(jobID, index, ref)

	imageURL := ref
	if a.resolver != nil {
		resolved, err := a.resolver.Resolve(ctx, ref)
		if err != nil {
			err = fmt.Errorf("resolving image: %w", err)
			return Failed(result, err), err
		}
		imageURL = resolved
	}

	outcomes := make([]dimensionOutcome, len(models.AllDimensions))
	var wg sync.WaitGroup
	for i, d := range models.AllDimensions {
		wg.Add(1)
		go func(i int, d models.Dimension) {
			defer wg.Done()
			rec, err := a.invoker.Invoke(ctx, imageURL, d)
			outcomes[i] = dimensionOutcome{dim: d, result: rec, err: err}
		}(i, d)
	}
	wg.Wait()

	var errs []error
	for _, o := range outcomes {
		switch {
		case o.err == nil:
			result.SetDimension(o.result)
		case errors.Is(o.err, ai.ErrSchemaViolation):
			slog.Warn("dimension dropped: schema violation",
				"job_id", jobID,
				"image_index", index,
				"dimension", o.dim,
				"error", o.err,
			)
		default:
			errs = append(errs, fmt.Errorf("%s: %w", o.dim, o.err))
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		return Failed(result, err), err
	}

	score := OverallScore(result)
	result.OverallScore = &score
	result.Recommendations = Recommendations(result)
	result.AnalyzedAt = time.Now().UTC()
	return result, nil
}

// NewResult returns an empty ok result row for the image at index.
func NewResult(jobID uuid.UUID, index int, ref string) *models.ImageAnalysisResult {
	return &models.ImageAnalysisResult{
		ID:              uuid.New(),
		JobID:           jobID,
		ImageIndex:      index,
		ImageURL:        ref,
		Recommendations: []string{},
		Status:          models.ResultStatusOK,
	}
}

// Failed marks r as failed with cause recorded as its error message. Score and
// recommendations are cleared; successfully parsed dimensions are kept.
func Failed(r *models.ImageAnalysisResult, cause error) *models.ImageAnalysisResult {
	msg := truncateString(strings.ReplaceAll(cause.Error(), "\n", "; "), maxErrorMessageBytes)
	r.Status = models.ResultStatusFailed
	r.ErrorMessage = &msg
	r.OverallScore = nil
	r.Recommendations = []string{}
	r.AnalyzedAt = time.Now().UTC()
	return r
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
