// Package engine wires all toil subsystems together: the job registry,
// queue façade, middleware chain, worker pool, and background scheduler.
//
// This package exists to break the import cycle: the root toil package
// defines Entity and the sentinel errors (imported by job, queue, etc.)
// and so cannot import those packages back. The engine package sits above
// all subsystem packages and below the application layer.
//
// # Usage
//
//	st := memory.New()
//	eng, err := engine.New(st, engine.WithLogger(logger))
//	if err != nil { ... }
//
//	engine.Register(eng, job.NewDefinition("refresh-item", refreshItem))
//	engine.Schedule(eng, &cron.Definition[RefreshInput]{
//	    Name:     "index-refresh",
//	    Schedule: "@every 15m",
//	    JobType:  "update-search-index",
//	})
//
//	eng.Start(ctx)
//	defer eng.Stop(context.Background())
//
//	engine.Enqueue(ctx, eng, "refresh-item", RefreshInput{ItemID: "42"},
//	    job.WithPriority(job.PriorityHigh))
package engine
