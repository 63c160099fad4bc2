package tasks

import (
	"fmt"

	"github.com/relicore/toil/cron"
	"github.com/relicore/toil/job"
)

// Default cadences for the periodic maintenance entries.
const (
	ScheduleProjectSync  = "@every 30m"
	ScheduleSpaceSync    = "@every 60m"
	ScheduleCacheCleanup = "@every 24h"
	ScheduleIndexRefresh = "@every 15m"
)

// ScheduleConfig selects what the default schedule table covers.
type ScheduleConfig struct {
	// Projects to sync every 30 minutes.
	Projects []string

	// Spaces to sync every 60 minutes.
	Spaces []string

	// CleanupOlderThanDays is the cache purge threshold. Zero means the
	// handler default (30 days).
	CleanupOlderThanDays int
}

// ScheduleDefaults registers the default periodic entry set on the
// scheduler: one project-sync entry per project, one space-sync entry per
// space, a daily cache cleanup, and a 15-minute search index refresh.
func ScheduleDefaults(sched *cron.Scheduler, cfg ScheduleConfig) error {
	for _, key := range cfg.Projects {
		_, err := cron.Add(sched, &cron.Definition[SyncProjectInput]{
			Name:     "project-sync:" + key,
			Schedule: ScheduleProjectSync,
			JobType:  TypeSyncProject,
			Payload:  SyncProjectInput{ProjectKey: key},
			Opts: []job.Option{
				job.WithPriority(job.PriorityNormal),
				job.WithMaxRetries(3),
			},
		})
		if err != nil {
			return fmt.Errorf("schedule project sync %q: %w", key, err)
		}
	}

	for _, key := range cfg.Spaces {
		_, err := cron.Add(sched, &cron.Definition[SyncSpaceInput]{
			Name:     "space-sync:" + key,
			Schedule: ScheduleSpaceSync,
			JobType:  TypeSyncSpace,
			Payload:  SyncSpaceInput{SpaceKey: key},
			Opts: []job.Option{
				job.WithPriority(job.PriorityNormal),
				job.WithMaxRetries(3),
			},
		})
		if err != nil {
			return fmt.Errorf("schedule space sync %q: %w", key, err)
		}
	}

	if _, err := cron.Add(sched, &cron.Definition[CleanupCacheInput]{
		Name:     "cache-cleanup",
		Schedule: ScheduleCacheCleanup,
		JobType:  TypeCleanupCache,
		Payload:  CleanupCacheInput{OlderThanDays: cfg.CleanupOlderThanDays},
		Opts: []job.Option{
			job.WithPriority(job.PriorityLow),
			job.WithMaxRetries(1),
		},
	}); err != nil {
		return fmt.Errorf("schedule cache cleanup: %w", err)
	}

	if _, err := cron.Add(sched, &cron.Definition[UpdateIndexInput]{
		Name:     "index-refresh",
		Schedule: ScheduleIndexRefresh,
		JobType:  TypeUpdateIndex,
		Payload:  UpdateIndexInput{},
		Opts: []job.Option{
			job.WithPriority(job.PriorityNormal),
			job.WithMaxRetries(2),
		},
	}); err != nil {
		return fmt.Errorf("schedule index refresh: %w", err)
	}

	return nil
}
