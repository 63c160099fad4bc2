// Package queue provides the priority queue façade over a job store,
// plus per-type rate limiting and concurrency caps.
//
// # Queue
//
// [Queue] wraps a [job.Store] with input validation and the retry
// bookkeeping that sits above raw persistence: building a job record
// from options, idempotent completion, and delay-based rescheduling.
// Ordering is delegated to the store: highest priority first, then
// oldest first within a band.
//
//	q := queue.New(store)
//	j, err := q.Enqueue(ctx, "refresh-item", payload,
//	    job.WithPriority(job.PriorityHigh),
//	    job.WithMaxRetries(5),
//	)
//
// # Per-Type Limits
//
// Use [Limit] to cap throughput or concurrency for a job type:
//
//	queue.Limit{
//	    Type:           "sync-wiki-space",
//	    MaxConcurrency: 2,    // at most 2 space syncs at once
//	    RateLimit:      0.5,  // max 1 dequeue per 2s
//	    RateBurst:      1,
//	}
//
// [Manager] enforces the limits at dequeue time with a token-bucket
// rate limiter (golang.org/x/time/rate) and an active-count gate.
// Types without a [Limit] are unrestricted beyond the pool-wide
// concurrency.
//
//	m := queue.NewManager(limits...)
//	if m.Acquire(jobType) {
//	    defer m.Release(jobType)
//	    // process the job
//	}
package queue
