package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relicore/toil"
	"github.com/relicore/toil/id"
	"github.com/relicore/toil/job"
)

// Queue is the priority queue façade over a job store. It validates
// input, builds job records from options, and layers retry semantics
// on top of the store's conditional transitions.
//
// All methods are safe for concurrent use as long as the underlying
// store is.
type Queue struct {
	store job.Store

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Queue backed by the given store.
func New(store job.Store) *Queue {
	return &Queue{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue validates and persists a new pending job of the given type.
// The payload must already be serialized; typed enqueue lives in the
// engine, which marshals before calling here.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload []byte, opts ...job.Option) (*job.Job, error) {
	if jobType == "" {
		return nil, fmt.Errorf("%w: job type must not be empty", toil.ErrInvalidArgument)
	}

	o := job.DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries must not be negative", toil.ErrInvalidArgument)
	}
	if o.Timeout < 0 {
		return nil, fmt.Errorf("%w: timeout must not be negative", toil.ErrInvalidArgument)
	}

	j := &job.Job{
		Entity:     toil.NewEntity(),
		ID:         id.NewJobID(),
		Type:       jobType,
		Payload:    payload,
		State:      job.StatePending,
		Priority:   o.Priority,
		MaxRetries: o.MaxRetries,
		Timeout:    o.Timeout,
	}
	j.RunAt = j.CreatedAt
	if !o.RunAt.IsZero() {
		j.RunAt = o.RunAt.UTC()
	}

	if err := q.store.EnqueueJob(ctx, j); err != nil {
		return nil, fmt.Errorf("enqueue job %q: %w", jobType, err)
	}
	return j, nil
}

// Dequeue atomically claims the best eligible job for the worker,
// restricted to the given types (empty means any). Returns (nil, nil)
// when nothing is eligible.
func (q *Queue) Dequeue(ctx context.Context, workerID id.WorkerID, types []string) (*job.Job, error) {
	return q.store.DequeueJob(ctx, workerID, types)
}

// Get retrieves a job by ID.
func (q *Queue) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return q.store.GetJob(ctx, jobID)
}

// MarkCompleted resolves a running job as successful, recording the
// handler output and execution duration. Completing an already
// completed job is a no-op; any other non-running state returns
// toil.ErrInvalidState.
func (q *Queue) MarkCompleted(ctx context.Context, jobID id.JobID, output []byte, duration time.Duration) error {
	err := q.store.CompleteJob(ctx, jobID, output, duration)
	if err == nil {
		return nil
	}
	if errors.Is(err, toil.ErrInvalidState) {
		j, getErr := q.store.GetJob(ctx, jobID)
		if getErr == nil && j.State == job.StateCompleted {
			return nil
		}
	}
	return err
}

// MarkFailed resolves a running job as terminally failed.
func (q *Queue) MarkFailed(ctx context.Context, jobID id.JobID, lastError string) error {
	return q.store.FailJob(ctx, jobID, lastError)
}

// Reschedule returns a running job to the queue for a later retry,
// consuming one attempt from the retry budget. The job becomes
// claimable again after delay.
func (q *Queue) Reschedule(ctx context.Context, jobID id.JobID, delay time.Duration, execErr error) error {
	lastError := ""
	if execErr != nil {
		lastError = execErr.Error()
	}
	return q.store.RescheduleJob(ctx, jobID, q.now().Add(delay), lastError)
}

// Release returns a claimed job to pending without consuming a retry.
// Used when a per-type limit denies execution after the claim.
func (q *Queue) Release(ctx context.Context, jobID id.JobID, delay time.Duration) error {
	return q.store.ReleaseJob(ctx, jobID, q.now().Add(delay))
}

// ListByState returns jobs in the given state, oldest first.
func (q *Queue) ListByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	return q.store.ListJobsByState(ctx, state, opts)
}

// Stats returns the current per-state job counts.
func (q *Queue) Stats(ctx context.Context) (job.Stats, error) {
	return q.store.JobStats(ctx)
}
