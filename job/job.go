package job

import (
	"time"

	"github.com/relicore/toil"
	"github.com/relicore/toil/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting to be picked up by a worker.
	StatePending State = "pending"
	// StateRunning means a worker has claimed the job and is executing it.
	StateRunning State = "running"
	// StateRetrying means a failed attempt has been rescheduled; the job
	// becomes claimable again once RunAt passes.
	StateRetrying State = "retrying"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the job failed and will not be retried.
	StateFailed State = "failed"
)

// IsTerminal reports whether the state is final.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Claimable reports whether a job in this state may be dequeued.
func (s State) Claimable() bool {
	return s == StatePending || s == StateRetrying
}

// Priority determines dequeue ordering. Higher values are claimed first;
// within a priority band jobs are claimed oldest-first.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 10
	PriorityHigh   Priority = 20
	PriorityUrgent Priority = 30
)

// String returns the symbolic name for the priority band.
func (p Priority) String() string {
	switch {
	case p >= PriorityUrgent:
		return "urgent"
	case p >= PriorityHigh:
		return "high"
	case p >= PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// Job represents a unit of work to be processed by a worker.
type Job struct {
	toil.Entity

	ID         id.JobID      `json:"id"`
	Type       string        `json:"type"`
	Payload    []byte        `json:"payload"`
	State      State         `json:"state"`
	Priority   Priority      `json:"priority"`
	MaxRetries int           `json:"max_retries"`
	RetryCount int           `json:"retry_count"`
	LastError  string        `json:"last_error,omitempty"`
	Result     []byte        `json:"result,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	WorkerID   id.WorkerID   `json:"worker_id,omitempty"`
	// RunAt is the earliest eligible execution time. It defaults to
	// CreatedAt and is advanced on each reschedule.
	RunAt       time.Time     `json:"run_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// Result captures the outcome of a single execution attempt. It is not
// persisted as its own record; on resolution its fields are copied onto
// the job's terminal columns.
type Result struct {
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Output   []byte        `json:"output,omitempty"`
	Err      string        `json:"error,omitempty"`
}

// Stats holds the per-state job counts, computed on demand.
type Stats struct {
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Retrying  int64 `json:"retrying"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Total returns the number of jobs across all states.
func (s Stats) Total() int64 {
	return s.Pending + s.Running + s.Retrying + s.Completed + s.Failed
}
