package batch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/greeneye/internal/cache"
	"github.com/kiranshivaraju/greeneye/internal/store"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

// --- memStore ---

type memStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*models.AnalysisJob
	results map[uuid.UUID][]*models.ImageAnalysisResult

	listResultsErr  error
	createResultErr error
	startErr        error

	// afterGetJob runs after GetJob has copied the row, outside the lock.
	afterGetJob func(job *models.AnalysisJob)
}

func newMemStore() *memStore {
	return &memStore{
		jobs:    make(map[uuid.UUID]*models.AnalysisJob),
		results: make(map[uuid.UUID][]*models.ImageAnalysisResult),
	}
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) GetDefaultTenant(context.Context) (*models.Tenant, error) {
	return nil, store.ErrNotFound
}

func (m *memStore) GetAPIKeyByPrefix(context.Context, string) ([]*models.APIKey, error) {
	return nil, nil
}
func (m *memStore) UpdateAPIKeyLastUsed(context.Context, uuid.UUID) error    { return nil }
func (m *memStore) CreateAPIKey(context.Context, *models.APIKey) error       { return nil }
func (m *memStore) RevokeAPIKey(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (m *memStore) ListAPIKeys(context.Context, uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}

func (m *memStore) CreateJob(_ context.Context, job *models.AnalysisJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) GetJob(_ context.Context, id, tenantID uuid.UUID) (*models.AnalysisJob, error) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok || job.TenantID != tenantID {
		m.mu.Unlock()
		return nil, store.ErrNotFound
	}
	cp := *job
	hook := m.afterGetJob
	m.mu.Unlock()

	if hook != nil {
		hook(&cp)
	}
	return &cp, nil
}

func (m *memStore) setAfterGetJob(fn func(job *models.AnalysisJob)) {
	m.mu.Lock()
	m.afterGetJob = fn
	m.mu.Unlock()
}

func (m *memStore) ListJobs(_ context.Context, f store.JobFilter) ([]*models.AnalysisJob, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AnalysisJob
	for _, j := range m.jobs {
		if j.TenantID != f.TenantID {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, len(out), nil
}

func (m *memStore) UpdateJobStatus(_ context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if !store.CanTransition(job.Status, status) {
		return store.ErrInvalidTransition
	}
	if status == models.JobStatusProcessing && m.startErr != nil {
		return m.startErr
	}
	u := store.ApplyJobUpdateOptions(opts...)
	now := time.Now().UTC()
	job.Status = status
	job.UpdatedAt = now
	if status == models.JobStatusProcessing {
		job.StartedAt = &now
	}
	if models.IsTerminalStatus(status) {
		job.CompletedAt = &now
	}
	if u.ErrorMessage != nil {
		job.ErrorMessage = u.ErrorMessage
	}
	if u.Summary != nil {
		job.ResultsSummary = u.Summary
	}
	return nil
}

func (m *memStore) FailUnfinishedJobs(_ context.Context, msg string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if !j.IsTerminal() {
			j.Status = models.JobStatusFailed
			j.ErrorMessage = &msg
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreateImageResult(_ context.Context, r *models.ImageAnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createResultErr != nil {
		return m.createResultErr
	}
	for _, existing := range m.results[r.JobID] {
		if existing.ImageIndex == r.ImageIndex {
			return store.ErrDuplicateKey
		}
	}
	cp := *r
	m.results[r.JobID] = append(m.results[r.JobID], &cp)
	return nil
}

func (m *memStore) ListImageResults(_ context.Context, jobID uuid.UUID) ([]*models.ImageAnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listResultsErr != nil {
		return nil, m.listResultsErr
	}
	out := make([]*models.ImageAnalysisResult, 0, len(m.results[jobID]))
	for _, r := range m.results[jobID] {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ImageIndex < out[b].ImageIndex })
	return out, nil
}

func (m *memStore) job(id uuid.UUID) *models.AnalysisJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.jobs[id]
	return &cp
}

func (m *memStore) jobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

func (m *memStore) resultRows(jobID uuid.UUID) []*models.ImageAnalysisResult {
	rows, _ := m.ListImageResults(context.Background(), jobID)
	return rows
}

// --- memCache ---

type memCache struct {
	mu       sync.Mutex
	statuses map[string]string
	subs     map[string][]*memSubscription

	getStatusCalls int
}

func newMemCache() *memCache {
	return &memCache{
		statuses: make(map[string]string),
		subs:     make(map[string][]*memSubscription),
	}
}

func (c *memCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (c *memCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (c *memCache) Delete(context.Context, string) error                     { return nil }
func (c *memCache) Ping(context.Context) error                               { return nil }

func (c *memCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

func (c *memCache) SetJobStatus(_ context.Context, tenantID, jobID uuid.UUID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[cache.JobStatusKey(tenantID, jobID)] = status
	return nil
}

func (c *memCache) GetJobStatus(_ context.Context, tenantID, jobID uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getStatusCalls++
	s, ok := c.statuses[cache.JobStatusKey(tenantID, jobID)]
	return s, ok, nil
}

func (c *memCache) Publish(_ context.Context, channel string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.subs[channel] {
		select {
		case s.ch <- append([]byte(nil), payload...):
		default:
		}
	}
	return nil
}

func (c *memCache) Subscribe(_ context.Context, channel string) (cache.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &memSubscription{ch: make(chan []byte, 64)}
	s.close = func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subs[channel]
		for i, other := range subs {
			if other == s {
				c.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(s.ch)
	}
	c.subs[channel] = append(c.subs[channel], s)
	return s, nil
}

func (c *memCache) evict(tenantID, jobID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statuses, cache.JobStatusKey(tenantID, jobID))
}

func (c *memCache) status(tenantID, jobID uuid.UUID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statuses[cache.JobStatusKey(tenantID, jobID)]
}

type memSubscription struct {
	ch    chan []byte
	once  sync.Once
	close func()
}

func (s *memSubscription) Messages() <-chan []byte { return s.ch }

func (s *memSubscription) Close() error {
	s.once.Do(s.close)
	return nil
}

// --- analyzers ---

type analyzerFunc func(ctx context.Context, jobID uuid.UUID, index int, ref string) (*models.ImageAnalysisResult, error)

func (f analyzerFunc) Analyze(ctx context.Context, jobID uuid.UUID, index int, ref string) (*models.ImageAnalysisResult, error) {
	return f(ctx, jobID, index, ref)
}

// --- recorder ---

type countingRecorder struct {
	mu       sync.Mutex
	started  int
	finished map[string]int
	images   map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{finished: map[string]int{}, images: map[string]int{}}
}

func (r *countingRecorder) JobStarted() {
	r.mu.Lock()
	r.started++
	r.mu.Unlock()
}

func (r *countingRecorder) JobFinished(status string, _ time.Duration) {
	r.mu.Lock()
	r.finished[status]++
	r.mu.Unlock()
}

func (r *countingRecorder) ImageAnalyzed(status string) {
	r.mu.Lock()
	r.images[status]++
	r.mu.Unlock()
}

var errBoom = errors.New("boom")
