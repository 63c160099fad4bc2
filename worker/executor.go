// Package worker provides the job execution engine — an Executor that
// invokes registered handlers through middleware and resolves the outcome
// through the queue, and a Pool that manages concurrent worker goroutines
// polling for jobs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/relicore/toil"
	"github.com/relicore/toil/backoff"
	"github.com/relicore/toil/job"
	"github.com/relicore/toil/middleware"
	"github.com/relicore/toil/queue"
)

// Executor runs a single job through middleware and the registered handler,
// then resolves the outcome: completed, retrying with backoff, or failed.
type Executor struct {
	registry *job.Registry
	queue    *queue.Queue
	backoff  backoff.Strategy
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	q *queue.Queue,
	bo backoff.Strategy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry: registry,
		queue:    q,
		backoff:  bo,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Execute runs a job through the middleware chain and handler.
// On success: marks completed with the handler output and elapsed time.
// On failure with retry budget remaining: reschedules with backoff.
// On failure with the budget exhausted, or an unknown job type: marks
// failed (terminal).
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	handler, ok := e.registry.Get(j.Type)
	if !ok {
		// No point burning the retry budget on a type no handler will
		// ever serve.
		unknownErr := fmt.Errorf("%w: %q", toil.ErrUnknownJobType, j.Type)
		if failErr := e.queue.MarkFailed(ctx, j.ID, unknownErr.Error()); failErr != nil {
			e.logger.Error("failed to mark unknown-type job as failed",
				slog.String("job_id", j.ID.String()),
				slog.String("error", failErr.Error()),
			)
		}
		return unknownErr
	}

	start := time.Now()

	var output []byte
	terminal := func(ctx context.Context) error {
		out, err := handler(ctx, j.Payload)
		output = out
		return err
	}

	err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	if err != nil {
		return e.handleFailure(ctx, j, err)
	}
	return e.handleSuccess(ctx, j, output, elapsed)
}

// handleSuccess resolves the job as completed.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, output []byte, elapsed time.Duration) error {
	if err := e.queue.MarkCompleted(ctx, j.ID, output, elapsed); err != nil {
		e.logger.Error("failed to mark job completed",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// handleFailure either reschedules with backoff or terminally fails the
// job, depending on the remaining retry budget. j.RetryCount holds the
// number of previous failures; the store increments it on reschedule.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, handlerErr error) error {
	if j.RetryCount < j.MaxRetries {
		delay := e.backoff.Delay(j.RetryCount + 1)

		if err := e.queue.Reschedule(ctx, j.ID, delay, handlerErr); err != nil {
			e.logger.Error("failed to reschedule job",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
			return err
		}

		e.logger.Info("job scheduled for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.Int("attempt", j.RetryCount+1),
			slog.Int("max_retries", j.MaxRetries),
			slog.Duration("delay", delay),
		)

		return fmt.Errorf("job %s retry %d/%d: %w", j.Type, j.RetryCount+1, j.MaxRetries, handlerErr)
	}

	if err := e.queue.MarkFailed(ctx, j.ID, handlerErr.Error()); err != nil {
		e.logger.Error("failed to mark job failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	e.logger.Warn("job failed after exhausting retries",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.Int("retry_count", j.RetryCount),
		slog.String("error", handlerErr.Error()),
	)

	return handlerErr
}
