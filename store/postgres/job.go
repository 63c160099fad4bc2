package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/relicore/toil"
	"github.com/relicore/toil/id"
	"github.com/relicore/toil/job"
)

// jobColumns is the canonical column list shared by every job query.
const jobColumns = `
	id, type, payload, status, priority, max_retries, retry_count,
	last_error, result, duration_ms, worker_id,
	scheduled_for, started_at, completed_at, timeout_ms,
	created_at, updated_at`

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO toil_jobs (
			id, type, payload, status, priority, max_retries, retry_count,
			last_error, result, duration_ms, worker_id,
			scheduled_for, started_at, completed_at, timeout_ms,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17
		)`,
		j.ID.String(), j.Type, j.Payload, string(j.State),
		int(j.Priority), j.MaxRetries, j.RetryCount,
		j.LastError, j.Result, j.Duration.Milliseconds(), nullString(j.WorkerID.String()),
		j.RunAt, j.StartedAt, j.CompletedAt, j.Timeout.Milliseconds(),
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return toil.ErrJobAlreadyExists
		}
		return fmt.Errorf("toil/postgres: enqueue job: %w", err)
	}
	return nil
}

// DequeueJob atomically claims the single best eligible job. FOR UPDATE
// SKIP LOCKED lets concurrent claimants pass over rows another transaction
// is claiming instead of blocking on them.
func (s *Store) DequeueJob(ctx context.Context, workerID id.WorkerID, types []string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE toil_jobs
		SET status = 'running', worker_id = $1, started_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM toil_jobs
			WHERE status IN ('pending', 'retrying')
			  AND scheduled_for <= NOW()
			  AND (cardinality($2::text[]) = 0 OR type = ANY($2::text[]))
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns,
		workerID.String(), typeFilter(types),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("toil/postgres: dequeue job: %w", err)
	}
	return j, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM toil_jobs WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, toil.ErrJobNotFound
		}
		return nil, fmt.Errorf("toil/postgres: get job: %w", err)
	}
	return j, nil
}

// CompleteJob transitions a running job to completed.
func (s *Store) CompleteJob(ctx context.Context, jobID id.JobID, output []byte, duration time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE toil_jobs
		SET status = 'completed', result = $2, duration_ms = $3,
		    completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'running'`,
		jobID.String(), output, duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("toil/postgres: complete job: %w", err)
	}
	return s.requireTransition(ctx, tag, jobID)
}

// FailJob transitions a running job to failed (terminal).
func (s *Store) FailJob(ctx context.Context, jobID id.JobID, lastError string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE toil_jobs
		SET status = 'failed', last_error = $2,
		    completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'running'`,
		jobID.String(), lastError,
	)
	if err != nil {
		return fmt.Errorf("toil/postgres: fail job: %w", err)
	}
	return s.requireTransition(ctx, tag, jobID)
}

// RescheduleJob transitions a running job to retrying, consuming one
// retry attempt and clearing the worker binding.
func (s *Store) RescheduleJob(ctx context.Context, jobID id.JobID, runAt time.Time, lastError string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE toil_jobs
		SET status = 'retrying', retry_count = retry_count + 1,
		    last_error = $2, scheduled_for = $3,
		    worker_id = NULL, started_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'running'`,
		jobID.String(), lastError, runAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("toil/postgres: reschedule job: %w", err)
	}
	return s.requireTransition(ctx, tag, jobID)
}

// ReleaseJob returns a claimed job to pending without consuming a retry.
func (s *Store) ReleaseJob(ctx context.Context, jobID id.JobID, runAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE toil_jobs
		SET status = 'pending', scheduled_for = $2,
		    worker_id = NULL, started_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'running'`,
		jobID.String(), runAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("toil/postgres: release job: %w", err)
	}
	return s.requireTransition(ctx, tag, jobID)
}

// ListJobsByState returns jobs matching the given state, oldest first.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // LIMIT ALL
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM toil_jobs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT NULLIF($2, -1) OFFSET $3`,
		string(state), limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("toil/postgres: list jobs by state: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// JobStats returns the current per-state job counts.
func (s *Store) JobStats(ctx context.Context) (job.Stats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM toil_jobs GROUP BY status`,
	)
	if err != nil {
		return job.Stats{}, fmt.Errorf("toil/postgres: job stats: %w", err)
	}
	defer rows.Close()

	var stats job.Stats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return job.Stats{}, fmt.Errorf("toil/postgres: job stats scan: %w", err)
		}
		switch job.State(status) {
		case job.StatePending:
			stats.Pending = count
		case job.StateRunning:
			stats.Running = count
		case job.StateRetrying:
			stats.Retrying = count
		case job.StateCompleted:
			stats.Completed = count
		case job.StateFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// requireTransition classifies a zero-row conditional update: the job is
// either missing or not in the state the transition requires.
func (s *Store) requireTransition(ctx context.Context, tag pgconn.CommandTag, jobID id.JobID) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}
	return toil.ErrInvalidState
}

// scanJob scans a single job row in jobColumns order.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		jobID      string
		workerID   *string
		status     string
		priority   int
		durationMS int64
		timeoutMS  int64
		j          job.Job
	)

	err := row.Scan(
		&jobID, &j.Type, &j.Payload, &status, &priority, &j.MaxRetries, &j.RetryCount,
		&j.LastError, &j.Result, &durationMS, &workerID,
		&j.RunAt, &j.StartedAt, &j.CompletedAt, &timeoutMS,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := id.ParseJobID(jobID)
	if err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", jobID, err)
	}
	j.ID = parsedID
	j.State = job.State(status)
	j.Priority = job.Priority(priority)
	j.Duration = time.Duration(durationMS) * time.Millisecond
	j.Timeout = time.Duration(timeoutMS) * time.Millisecond

	if workerID != nil && *workerID != "" {
		parsedWorker, wErr := id.ParseWorkerID(*workerID)
		if wErr == nil {
			j.WorkerID = parsedWorker
		}
	}

	return &j, nil
}

// collectJobs scans all rows in jobColumns order.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("toil/postgres: scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// typeFilter maps a nil type filter to an empty array. pgx encodes a nil
// []string as SQL NULL, and cardinality(NULL) is NULL, which would make
// the dequeue predicate match no rows; an empty array encodes as '{}'
// and takes the cardinality = 0 branch.
func typeFilter(types []string) []string {
	if types == nil {
		return []string{}
	}
	return types
}

// nullString maps "" to NULL for optional text columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
