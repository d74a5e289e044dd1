package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/greeneye/internal/ai"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

var _ ai.Observer = (*BatchMetrics)(nil)

func newTestMetrics(t *testing.T) (*BatchMetrics, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	m, err := NewBatchMetrics(registry)
	require.NoError(t, err)
	return m, registry
}

func TestNewBatchMetrics_DoubleRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewBatchMetrics(registry)
	require.NoError(t, err)

	_, err = NewBatchMetrics(registry)
	assert.Error(t, err)
}

func TestObserveInference(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveInference("mock", models.DimensionPest, ai.OutcomeOK, 200*time.Millisecond)
	m.ObserveInference("mock", models.DimensionPest, ai.OutcomeOK, 300*time.Millisecond)
	m.ObserveInference("mock", models.DimensionPest, ai.OutcomeSchemaViolation, time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.inferenceTotal.WithLabelValues("mock", "pest", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.inferenceTotal.WithLabelValues("mock", "pest", "schema_violation")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.inferenceDuration))
}

func TestJobLifecycle(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.JobStarted()
	m.JobStarted()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.jobsInFlight))

	m.JobFinished(models.JobStatusCompleted, 3*time.Second)
	m.JobFinished(models.JobStatusFailed, time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.jobsSubmitted))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.jobsInFlight))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobsFinished.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobsFinished.WithLabelValues("failed")))
}

func TestImageAnalyzed(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ImageAnalyzed(models.ResultStatusOK)
	m.ImageAnalyzed(models.ResultStatusOK)
	m.ImageAnalyzed(models.ResultStatusFailed)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.imagesTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.imagesTotal.WithLabelValues("failed")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m, registry := newTestMetrics(t)
	m.JobStarted()

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "greeneye_jobs_submitted_total 1"))
	assert.True(t, strings.Contains(body, "greeneye_jobs_in_flight 1"))
}
