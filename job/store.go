package job

import (
	"context"
	"time"

	"github.com/relicore/toil/id"
)

// ListOpts controls pagination for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// Store defines the persistence contract for jobs.
//
// Every mutation is a conditional state transition and must be individually
// atomic with respect to concurrent callers: two workers can never both
// claim the same job, and a resolve call races cleanly against a concurrent
// transition (the loser observes ErrInvalidState rather than clobbering).
type Store interface {
	// EnqueueJob persists a new job in pending state.
	EnqueueJob(ctx context.Context, j *Job) error

	// DequeueJob atomically claims the single best eligible job: state in
	// {pending, retrying}, RunAt <= now, type in types (empty means all),
	// ordered by priority (descending) then CreatedAt (ascending). The
	// claim transitions the job to running, stamps StartedAt, and binds
	// WorkerID — all in one atomic operation. Returns (nil, nil) when no
	// job is eligible.
	DequeueJob(ctx context.Context, workerID id.WorkerID, types []string) (*Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// CompleteJob transitions a running job to completed, stamping
	// CompletedAt and storing the result output and execution duration.
	// Returns toil.ErrInvalidState if the job is not running.
	CompleteJob(ctx context.Context, jobID id.JobID, output []byte, duration time.Duration) error

	// FailJob transitions a running job to failed (terminal), stamping
	// CompletedAt and storing lastError.
	// Returns toil.ErrInvalidState if the job is not running.
	FailJob(ctx context.Context, jobID id.JobID, lastError string) error

	// RescheduleJob transitions a running job back to retrying with the
	// given RunAt, increments RetryCount by exactly one, records lastError,
	// and clears the worker binding.
	// Returns toil.ErrInvalidState if the job is not running.
	RescheduleJob(ctx context.Context, jobID id.JobID, runAt time.Time, lastError string) error

	// ReleaseJob returns a claimed job to pending with the given RunAt
	// without consuming a retry. Used when execution is gated by a
	// per-type limit after the claim.
	ReleaseJob(ctx context.Context, jobID id.JobID, runAt time.Time) error

	// ListJobsByState returns jobs matching the given state, oldest first.
	ListJobsByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// JobStats returns the current per-state job counts.
	JobStats(ctx context.Context) (Stats, error)
}
