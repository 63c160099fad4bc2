package cron

import "github.com/relicore/toil/job"

// Definition is a typed scheduler entry. T is the payload type
// (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the unique identifier for this entry.
	Name string

	// Schedule is a cron expression (e.g., "*/5 * * * *" or "@every 30m").
	Schedule string

	// JobType is the job type to enqueue on each tick.
	JobType string

	// Payload is the payload enqueued with every tick's job.
	Payload T

	// Opts are applied to every enqueued job (priority, retries, timeout).
	Opts []job.Option
}
