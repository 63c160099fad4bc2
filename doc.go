// Package toil provides a persistent, priority-ordered background job queue
// for Go, with a polling worker loop, retry with exponential backoff, and a
// periodic scheduler for recurring maintenance work.
//
// Toil is designed as a library, not a service. Import it, configure a store,
// register job handlers as ordinary Go functions, and start the engine.
//
// # Quick Start
//
//	s, err := sqlite.Open("file:jobs.db")
//	if err != nil { ... }
//	eng, err := engine.New(s)
//	if err != nil { ... }
//
//	engine.Register(eng, job.NewDefinition("cleanup-cache",
//	    func(ctx context.Context, p CleanupPayload) (any, error) {
//	        return nil, cache.Purge(ctx, p.Cutoff)
//	    },
//	))
//
//	eng.Start(ctx)
//
// # Architecture
//
// Each subsystem lives in its own package: job (entity, state machine, typed
// definitions, store contract), queue (the enqueue/claim/resolve façade),
// worker (executor and polling pool), backoff (retry delay strategies), cron
// (recurring timers), and store (memory, sqlite, and postgres backends).
// The engine package wires them together.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package toil
