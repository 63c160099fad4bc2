// Package cron provides the background sync scheduler: a fixed set of
// named periodic timers that enqueue recurring maintenance jobs.
//
// Each entry runs on its own goroutine timer, driven by a robfig/cron
// schedule. Both standard 5-field expressions ("*/5 * * * *") and
// descriptors ("@every 30m", "@daily") are supported.
//
// # Registering an entry
//
// Use the generic Add with a typed Definition:
//
//	cron.Add(sched, &cron.Definition[SyncInput]{
//	    Name:     "project-sync:APP",
//	    Schedule: "@every 30m",
//	    JobType:  "sync-issue-tracker-project",
//	    Payload:  SyncInput{ProjectKey: "APP"},
//	    Opts:     []job.Option{job.WithMaxRetries(3)},
//	})
//
// Timers run independently of each other and of the worker pool; an
// enqueue failure is logged and the timer keeps ticking. Stop cancels
// all timers and waits for in-flight ticks to finish.
package cron
