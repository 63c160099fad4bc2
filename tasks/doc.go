// Package tasks provides the built-in maintenance handler set: the closed
// set of job type constants, their payload types, handlers that delegate
// to collaborator interfaces (issue tracker, wiki, content cache, search
// index), and the default periodic schedule table.
//
// The queue and worker never inspect payloads; these handlers are where
// the opaque bytes gain meaning. Collaborators are plain interfaces so
// callers plug in their own clients:
//
//	deps := tasks.Deps{Tracker: jiraClient, Cache: cache, Index: idx}
//	tasks.RegisterAll(eng.Registry(), deps)
//	tasks.ScheduleDefaults(eng.Scheduler(), tasks.ScheduleConfig{
//	    Projects: []string{"APP"},
//	    Spaces:   []string{"DOCS"},
//	})
package tasks
