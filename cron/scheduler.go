package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/relicore/toil"
	"github.com/relicore/toil/id"
	"github.com/relicore/toil/job"
)

// EnqueueFunc is the callback the scheduler uses to enqueue jobs.
// This breaks the import cycle: the engine provides the implementation.
type EnqueueFunc func(ctx context.Context, jobType string, payload []byte, opts ...job.Option) (id.JobID, error)

// cronParser supports standard 5-field cron and descriptors like "@every 30m".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
// Exported for use by engine.Schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler owns a set of named periodic entries, each driving its own
// goroutine timer. Entries registered after Start begin ticking
// immediately.
type Scheduler struct {
	enqueue EnqueueFunc
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	running bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(enqueue EnqueueFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		enqueue: enqueue,
		logger:  logger,
		entries: make(map[string]*Entry),
		stopCh:  make(chan struct{}),
	}
}

// Add registers a typed periodic entry. The schedule is parsed eagerly so
// a malformed expression fails here rather than on the first tick.
// Registering a second entry under the same name returns ErrDuplicateTimer.
func Add[T any](s *Scheduler, def *Definition[T]) (*Entry, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: entry name is required", toil.ErrInvalidArgument)
	}
	if def.JobType == "" {
		return nil, fmt.Errorf("%w: entry job type is required", toil.ErrInvalidArgument)
	}

	sched, err := ParseSchedule(def.Schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", toil.ErrInvalidArgument, def.Schedule, err)
	}

	payload, err := json.Marshal(def.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for entry %q: %w", def.Name, err)
	}

	entry := &Entry{
		ID:        id.NewTimerID(),
		Name:      def.Name,
		Schedule:  def.Schedule,
		JobType:   def.JobType,
		Payload:   payload,
		Opts:      def.Opts,
		sched:     sched,
		nextRunAt: sched.Next(time.Now().UTC()),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[def.Name]; exists {
		return nil, fmt.Errorf("%w: %q", toil.ErrDuplicateTimer, def.Name)
	}
	s.entries[def.Name] = entry

	// Started already? Spin the timer up now.
	if s.running {
		s.wg.Add(1)
		go s.timerLoop(entry)
	}

	return entry, nil
}

// Entry returns the registered entry with the given name.
func (s *Scheduler) Entry(name string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	return e, ok
}

// Entries returns the names of all registered entries, sorted.
func (s *Scheduler) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches one timer goroutine per registered entry.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true

	for _, entry := range s.entries {
		s.wg.Add(1)
		go s.timerLoop(entry)
	}

	s.logger.Info("scheduler started", slog.Int("entries", len(s.entries)))
	return nil
}

// Stop cancels all timers and waits for in-flight ticks to finish.
//
// The scheduler is one-shot: once stopped it cannot be restarted.
// Create a new Scheduler to resume firing.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.logger.Info("scheduler stopped")
	return nil
}

// timerLoop sleeps until the entry's next fire time, fires, and repeats.
// Each entry ticks independently of the others and of the worker pool.
func (s *Scheduler) timerLoop(entry *Entry) {
	defer s.wg.Done()

	for {
		now := time.Now().UTC()
		next := entry.sched.Next(now)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		s.fire(entry)
	}
}

// fire enqueues the entry's job. Enqueue failures are logged and do not
// stop the timer.
func (s *Scheduler) fire(entry *Entry) {
	now := time.Now().UTC()

	jobID, err := s.enqueue(context.Background(), entry.JobType, entry.Payload, entry.Opts...)
	if err != nil {
		s.logger.Error("scheduled enqueue failed",
			slog.String("entry", entry.Name),
			slog.String("job_type", entry.JobType),
			slog.String("error", err.Error()),
		)
		return
	}

	entry.markFired(now, entry.sched.Next(now))

	s.logger.Info("timer fired",
		slog.String("entry", entry.Name),
		slog.String("job_type", entry.JobType),
		slog.String("job_id", jobID.String()),
	)
}
