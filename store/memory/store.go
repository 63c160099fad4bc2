// Package memory provides a fully in-memory store backend. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/relicore/toil"
	"github.com/relicore/toil/id"
	"github.com/relicore/toil/job"
)

// Ensure Store implements job.Store at compile time.
// We can't assert store.Store here without importing it, so the lifecycle
// methods are checked by the engine tests instead.
var _ job.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Job),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new job in pending state.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return toil.ErrJobAlreadyExists
	}
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// DequeueJob atomically claims the single best eligible job: claimable
// state, due, matching type, ordered by priority descending then
// CreatedAt ascending. Returns (nil, nil) when nothing is eligible.
func (m *Store) DequeueJob(_ context.Context, workerID id.WorkerID, types []string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	typeSet := make(map[string]struct{}, len(types))
	for _, t := range types {
		typeSet[t] = struct{}{}
	}

	now := time.Now().UTC()

	var best *job.Job
	for _, j := range m.jobs {
		if !j.State.Claimable() {
			continue
		}
		if !j.RunAt.IsZero() && j.RunAt.After(now) {
			continue
		}
		if len(typeSet) > 0 {
			if _, ok := typeSet[j.Type]; !ok {
				continue
			}
		}
		if best == nil || claimBefore(j, best) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}

	best.State = job.StateRunning
	best.WorkerID = workerID
	n := now
	best.StartedAt = &n
	best.UpdatedAt = now

	// Return a copy so callers can mutate without racing with the store.
	cp := *best
	return &cp, nil
}

// claimBefore reports whether a should be claimed before b.
func claimBefore(a, b *job.Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, toil.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// running fetches a job and verifies it is in running state.
// Callers must hold the write lock.
func (m *Store) running(jobID id.JobID) (*job.Job, error) {
	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, toil.ErrJobNotFound
	}
	if j.State != job.StateRunning {
		return nil, toil.ErrInvalidState
	}
	return j, nil
}

// CompleteJob transitions a running job to completed.
func (m *Store) CompleteJob(_ context.Context, jobID id.JobID, output []byte, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.running(jobID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	j.State = job.StateCompleted
	j.Result = output
	j.Duration = duration
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// FailJob transitions a running job to failed (terminal).
func (m *Store) FailJob(_ context.Context, jobID id.JobID, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.running(jobID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	j.State = job.StateFailed
	j.LastError = lastError
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// RescheduleJob transitions a running job to retrying, consuming one
// retry attempt and clearing the worker binding.
func (m *Store) RescheduleJob(_ context.Context, jobID id.JobID, runAt time.Time, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.running(jobID)
	if err != nil {
		return err
	}

	j.State = job.StateRetrying
	j.RetryCount++
	j.LastError = lastError
	j.RunAt = runAt.UTC()
	j.WorkerID = id.Nil
	j.StartedAt = nil
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// ReleaseJob returns a claimed job to pending without consuming a retry.
func (m *Store) ReleaseJob(_ context.Context, jobID id.JobID, runAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.running(jobID)
	if err != nil {
		return err
	}

	j.State = job.StatePending
	j.RunAt = runAt.UTC()
	j.WorkerID = id.Nil
	j.StartedAt = nil
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// ListJobsByState returns jobs matching the given state, oldest first.
func (m *Store) ListJobsByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != state {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return []*job.Job{}, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// JobStats returns the current per-state job counts.
func (m *Store) JobStats(_ context.Context) (job.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats job.Stats
	for _, j := range m.jobs {
		switch j.State {
		case job.StatePending:
			stats.Pending++
		case job.StateRunning:
			stats.Running++
		case job.StateRetrying:
			stats.Retrying++
		case job.StateCompleted:
			stats.Completed++
		case job.StateFailed:
			stats.Failed++
		}
	}
	return stats, nil
}
