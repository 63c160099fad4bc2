package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/relicore/toil/backoff"
	"github.com/relicore/toil/id"
	"github.com/relicore/toil/job"
	"github.com/relicore/toil/queue"
	"github.com/relicore/toil/store/memory"
	"github.com/relicore/toil/worker"
)

// recordingStrategy captures the attempt numbers the executor asks delays
// for. Zero delays keep rescheduled jobs immediately claimable.
type recordingStrategy struct {
	mu       sync.Mutex
	attempts []int
}

func (r *recordingStrategy) Delay(attempt int) time.Duration {
	r.mu.Lock()
	r.attempts = append(r.attempts, attempt)
	r.mu.Unlock()
	return 0
}

func (r *recordingStrategy) Attempts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.attempts))
	copy(out, r.attempts)
	return out
}

// TestExecutor_BackoffAttemptLadder drives one job through its whole retry
// budget and pins the attempt numbers handed to the backoff strategy:
// the first failure reschedules with Delay(1), the second with Delay(2),
// the third with Delay(3). Under the default strategy those are the
// 1s/2s/4s rungs; the fourth failure is terminal.
func TestExecutor_BackoffAttemptLadder(t *testing.T) {
	q := queue.New(memory.New())
	reg := job.NewRegistry()
	strategy := &recordingStrategy{}
	exec := worker.NewExecutor(reg, q, strategy, slog.Default())

	job.RegisterDefinition(reg, job.NewDefinition("doomed", func(_ context.Context, _ struct{}) (any, error) {
		return nil, errors.New("permanent")
	}))

	ctx := context.Background()
	workerID := id.NewWorkerID()

	enqueued, err := q.Enqueue(ctx, "doomed", nil, job.WithMaxRetries(3))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Initial attempt plus three retries.
	for i := range 4 {
		claimed, deqErr := q.Dequeue(ctx, workerID, nil)
		if deqErr != nil {
			t.Fatalf("dequeue round %d: %v", i, deqErr)
		}
		if claimed == nil {
			t.Fatalf("round %d: rescheduled job not claimable", i)
		}
		_ = exec.Execute(ctx, claimed)
	}

	attempts := strategy.Attempts()
	if len(attempts) != 3 {
		t.Fatalf("Delay called %d times, want 3 (attempts %v)", len(attempts), attempts)
	}
	for i, want := range []int{1, 2, 3} {
		if attempts[i] != want {
			t.Errorf("reschedule %d used attempt %d, want %d", i+1, attempts[i], want)
		}
	}

	// The recorded attempt numbers map onto the default strategy's
	// 1s/2s/4s ladder.
	ladder := backoff.DefaultStrategy()
	for i, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		if got := ladder.Delay(attempts[i]); got != want {
			t.Errorf("default delay for attempt %d = %v, want %v", attempts[i], got, want)
		}
	}

	got, err := q.Get(ctx, enqueued.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != job.StateFailed {
		t.Errorf("state after exhausting retries = %q, want failed", got.State)
	}
	if got.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", got.RetryCount)
	}
}

// TestExecutor_DefaultStrategyFirstRung verifies the reschedule lands a
// real one-second delay on the persisted RunAt when the default strategy
// is wired end to end.
func TestExecutor_DefaultStrategyFirstRung(t *testing.T) {
	q := queue.New(memory.New())
	reg := job.NewRegistry()
	exec := worker.NewExecutor(reg, q, backoff.DefaultStrategy(), slog.Default())

	job.RegisterDefinition(reg, job.NewDefinition("flaky", func(_ context.Context, _ struct{}) (any, error) {
		return nil, errors.New("transient")
	}))

	ctx := context.Background()
	enqueued, err := q.Enqueue(ctx, "flaky", nil, job.WithMaxRetries(3))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := q.Dequeue(ctx, id.NewWorkerID(), nil)
	if err != nil || claimed == nil {
		t.Fatalf("dequeue: job=%v err=%v", claimed, err)
	}

	before := time.Now().UTC()
	_ = exec.Execute(ctx, claimed)

	got, err := q.Get(ctx, enqueued.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != job.StateRetrying {
		t.Fatalf("state = %q, want retrying", got.State)
	}

	delta := got.RunAt.Sub(before)
	if delta < 900*time.Millisecond || delta > 1500*time.Millisecond {
		t.Errorf("first reschedule delay = %v, want ~1s", delta)
	}
}
