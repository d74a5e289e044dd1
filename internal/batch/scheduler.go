package batch

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// task is the handle of one running batch.
type task struct {
	jobID  uuid.UUID
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// scheduler owns the background tasks of every in-flight batch so they can be
// cancelled individually or drained together on shutdown.
type scheduler struct {
	mu     sync.Mutex
	tasks  map[uuid.UUID]*task
	closed bool
	wg     sync.WaitGroup
}

func newScheduler() *scheduler {
	return &scheduler{tasks: make(map[uuid.UUID]*task)}
}

// start runs fn in a new goroutine under a cancellable context detached from
// any request. It fails with ErrShuttingDown once drain has begun.
func (s *scheduler) start(jobID uuid.UUID, fn func(ctx context.Context, cancel context.CancelCauseFunc)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrShuttingDown
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	t := &task{jobID: jobID, cancel: cancel, done: make(chan struct{})}
	s.tasks[jobID] = t
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer close(t.done)
		defer cancel(nil)
		defer s.remove(jobID)
		fn(ctx, cancel)
	}()
	return nil
}

func (s *scheduler) remove(jobID uuid.UUID) {
	s.mu.Lock()
	delete(s.tasks, jobID)
	s.mu.Unlock()
}

// cancel aborts the task for jobID with cause. It returns the task's done
// channel, or nil when no task runs for jobID in this process.
func (s *scheduler) cancel(jobID uuid.UUID, cause error) <-chan struct{} {
	s.mu.Lock()
	t, ok := s.tasks[jobID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	t.cancel(cause)
	return t.done
}

func (s *scheduler) accepting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *scheduler) running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// drain stops accepting tasks and waits for running ones. When ctx expires
// first, remaining tasks are cancelled with ErrShuttingDown and awaited.
func (s *scheduler) drain(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	for _, t := range s.tasks {
		t.cancel(ErrShuttingDown)
	}
	s.mu.Unlock()

	<-idle
	return ctx.Err()
}
