package cron

import (
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/relicore/toil/id"
	"github.com/relicore/toil/job"
)

// Entry is the runtime record for a registered timer.
type Entry struct {
	ID       id.TimerID
	Name     string
	Schedule string
	JobType  string
	Payload  []byte
	Opts     []job.Option

	// sched is the parsed form of Schedule, computed at Add time so a
	// bad expression fails registration instead of the first tick.
	sched cronlib.Schedule

	mu        sync.Mutex
	lastRunAt *time.Time
	nextRunAt time.Time
}

// LastRunAt returns the time of the entry's most recent fire, or nil if
// it has not fired yet.
func (e *Entry) LastRunAt() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastRunAt == nil {
		return nil
	}
	t := *e.lastRunAt
	return &t
}

// NextRunAt returns the entry's next scheduled fire time.
func (e *Entry) NextRunAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextRunAt
}

func (e *Entry) markFired(now, next time.Time) {
	e.mu.Lock()
	e.lastRunAt = &now
	e.nextRunAt = next
	e.mu.Unlock()
}
