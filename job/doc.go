// Package job defines the job entity, state machine, typed definitions,
// and store interface.
//
// # Job Entity
//
// A [Job] represents a unit of deferred, retryable work. It embeds
// [toil.Entity] for timestamps, carries an opaque payload (JSON), and
// progresses through a state machine:
//
//	pending → running → completed
//	pending → running → retrying → running → ...
//	pending → running → failed
//
// Fields of note:
//   - Type: which registered handler executes the job
//   - Priority: higher values are dequeued first; ties break oldest-first
//   - MaxRetries / RetryCount: controls the retry budget
//   - RunAt: earliest time the job may be claimed (advanced on retry)
//   - Timeout: per-job execution deadline (zero = unlimited)
//
// # Defining a Job
//
// Use [Definition] with a typed handler. The payload is JSON-serialized at
// enqueue time and deserialized before the handler runs; a non-nil handler
// return value is serialized and stored as the job result:
//
//	var CleanupCache = job.NewDefinition("cleanup-cache",
//	    func(ctx context.Context, p CleanupPayload) (any, error) {
//	        n, err := cache.Purge(ctx, p.Cutoff)
//	        return PurgeReport{Removed: n}, err
//	    },
//	)
//
// # Registry
//
// [Registry] maps job types to type-erased [HandlerFunc] values.
// Register definitions at startup via [RegisterDefinition]:
//
//	job.RegisterDefinition(registry, CleanupCache)
//
// The engine package provides higher-level engine.Register and
// engine.Enqueue wrappers.
package job
