package batch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/greeneye/internal/cache"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

// Event types published on a job's change channel.
const (
	EventJobUpdated    = "job.updated"
	EventResultCreated = "result.created"
)

// Event is a change notification for one job.
type Event struct {
	Type   string                      `json:"type"`
	JobID  uuid.UUID                   `json:"job_id"`
	Job    *models.AnalysisJob         `json:"job,omitempty"`
	Result *models.ImageAnalysisResult `json:"result,omitempty"`
}

// Terminal reports whether the event carries a job in a terminal status.
func (e Event) Terminal() bool {
	return e.Type == EventJobUpdated && e.Job != nil && e.Job.IsTerminal()
}

// publish is best effort: polling still observes every change.
func (o *Orchestrator) publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("encoding job event", "job_id", ev.JobID, "type", ev.Type, "error", err)
		return
	}
	if err := o.cache.Publish(ctx, cache.JobEventsChannel(ev.JobID), payload); err != nil {
		slog.Warn("publishing job event", "job_id", ev.JobID, "type", ev.Type, "error", err)
	}
}

// Subscribe returns the current job snapshot and a channel of subsequent
// change events. The channel closes after a terminal job event, when ctx is
// done, or immediately if the snapshot is already terminal.
func (o *Orchestrator) Subscribe(ctx context.Context, tenantID, jobID uuid.UUID) (*models.AnalysisJob, <-chan Event, error) {
	sub, err := o.cache.Subscribe(ctx, cache.JobEventsChannel(jobID))
	if err != nil {
		return nil, nil, err
	}

	job, err := o.GetJob(ctx, tenantID, jobID)
	if err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	events := make(chan Event)
	if job.IsTerminal() {
		_ = sub.Close()
		close(events)
		return job, events, nil
	}

	go func() {
		defer close(events)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-sub.Messages():
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal(payload, &ev); err != nil {
					slog.Warn("decoding job event", "job_id", jobID, "error", err)
					continue
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Terminal() {
					return
				}
			}
		}
	}()
	return job, events, nil
}
