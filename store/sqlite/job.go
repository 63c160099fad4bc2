package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/relicore/toil"
	"github.com/relicore/toil/id"
	"github.com/relicore/toil/job"
)

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return toil.ErrJobAlreadyExists
		}
		return fmt.Errorf("toil/sqlite: enqueue job: %w", err)
	}
	return nil
}

// DequeueJob atomically claims the single best eligible job: claimable
// status, due, matching type, ordered by priority descending then
// created_at ascending. The claim, StartedAt stamp, and worker binding
// happen in one UPDATE … RETURNING statement; the single-connection pool
// serializes concurrent claimants.
func (s *Store) DequeueJob(ctx context.Context, workerID id.WorkerID, types []string) (*job.Job, error) {
	now := time.Now().UTC()

	var models []jobModel
	var err error
	if len(types) > 0 {
		_, err = s.db.NewRaw(`
			UPDATE toil_jobs
			SET status = 'running', worker_id = ?, started_at = ?, updated_at = ?
			WHERE id IN (
				SELECT id FROM toil_jobs
				WHERE status IN ('pending', 'retrying')
				  AND scheduled_for <= ?
				  AND type IN (?)
				ORDER BY priority DESC, created_at ASC
				LIMIT 1
			)
			RETURNING *`,
			workerID.String(), now, now, now, bun.In(types),
		).Exec(ctx, &models)
	} else {
		_, err = s.db.NewRaw(`
			UPDATE toil_jobs
			SET status = 'running', worker_id = ?, started_at = ?, updated_at = ?
			WHERE id IN (
				SELECT id FROM toil_jobs
				WHERE status IN ('pending', 'retrying')
				  AND scheduled_for <= ?
				ORDER BY priority DESC, created_at ASC
				LIMIT 1
			)
			RETURNING *`,
			workerID.String(), now, now, now,
		).Exec(ctx, &models)
	}
	if err != nil {
		return nil, fmt.Errorf("toil/sqlite: dequeue job: %w", err)
	}
	if len(models) == 0 {
		return nil, nil
	}
	return fromJobModel(&models[0])
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, toil.ErrJobNotFound
		}
		return nil, fmt.Errorf("toil/sqlite: get job: %w", err)
	}
	return fromJobModel(m)
}

// CompleteJob transitions a running job to completed.
func (s *Store) CompleteJob(ctx context.Context, jobID id.JobID, output []byte, duration time.Duration) error {
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		TableExpr("toil_jobs").
		Set("status = 'completed'").
		Set("result = ?", output).
		Set("duration_ms = ?", duration.Milliseconds()).
		Set("completed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", jobID.String()).
		Where("status = 'running'").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("toil/sqlite: complete job: %w", err)
	}
	return s.requireTransition(ctx, res, jobID)
}

// FailJob transitions a running job to failed (terminal).
func (s *Store) FailJob(ctx context.Context, jobID id.JobID, lastError string) error {
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		TableExpr("toil_jobs").
		Set("status = 'failed'").
		Set("last_error = ?", lastError).
		Set("completed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", jobID.String()).
		Where("status = 'running'").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("toil/sqlite: fail job: %w", err)
	}
	return s.requireTransition(ctx, res, jobID)
}

// RescheduleJob transitions a running job to retrying, consuming one
// retry attempt and clearing the worker binding.
func (s *Store) RescheduleJob(ctx context.Context, jobID id.JobID, runAt time.Time, lastError string) error {
	res, err := s.db.NewUpdate().
		TableExpr("toil_jobs").
		Set("status = 'retrying'").
		Set("retry_count = retry_count + 1").
		Set("last_error = ?", lastError).
		Set("scheduled_for = ?", runAt.UTC()).
		Set("worker_id = NULL").
		Set("started_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", jobID.String()).
		Where("status = 'running'").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("toil/sqlite: reschedule job: %w", err)
	}
	return s.requireTransition(ctx, res, jobID)
}

// ReleaseJob returns a claimed job to pending without consuming a retry.
func (s *Store) ReleaseJob(ctx context.Context, jobID id.JobID, runAt time.Time) error {
	res, err := s.db.NewUpdate().
		TableExpr("toil_jobs").
		Set("status = 'pending'").
		Set("scheduled_for = ?", runAt.UTC()).
		Set("worker_id = NULL").
		Set("started_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", jobID.String()).
		Where("status = 'running'").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("toil/sqlite: release job: %w", err)
	}
	return s.requireTransition(ctx, res, jobID)
}

// ListJobsByState returns jobs matching the given state, oldest first.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("status = ?", string(state)).
		Order("created_at ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("toil/sqlite: list jobs by state: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("toil/sqlite: list jobs convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// JobStats returns the current per-state job counts.
func (s *Store) JobStats(ctx context.Context) (job.Stats, error) {
	var rows []struct {
		Status string `bun:"status"`
		Count  int64  `bun:"count"`
	}
	err := s.db.NewSelect().
		TableExpr("toil_jobs").
		ColumnExpr("status, COUNT(*) AS count").
		GroupExpr("status").
		Scan(ctx, &rows)
	if err != nil {
		return job.Stats{}, fmt.Errorf("toil/sqlite: job stats: %w", err)
	}

	var stats job.Stats
	for _, r := range rows {
		switch job.State(r.Status) {
		case job.StatePending:
			stats.Pending = r.Count
		case job.StateRunning:
			stats.Running = r.Count
		case job.StateRetrying:
			stats.Retrying = r.Count
		case job.StateCompleted:
			stats.Completed = r.Count
		case job.StateFailed:
			stats.Failed = r.Count
		}
	}
	return stats, nil
}

// requireTransition classifies a zero-row conditional update: the job is
// either missing or not in the state the transition requires.
func (s *Store) requireTransition(ctx context.Context, res sql.Result, jobID id.JobID) error {
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows > 0 {
		return nil
	}
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}
	return toil.ErrInvalidState
}

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks for a SQLite unique constraint violation. Both
// the modernc and mattn drivers surface it in the error text.
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}
