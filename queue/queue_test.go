package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relicore/toil"
	"github.com/relicore/toil/id"
	"github.com/relicore/toil/job"
	"github.com/relicore/toil/queue"
	"github.com/relicore/toil/store/memory"
)

func newQueue(t *testing.T) *queue.Queue {
	t.Helper()
	return queue.New(memory.New())
}

func TestQueue_EnqueueDefaults(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	j, err := q.Enqueue(ctx, "refresh-item", []byte(`{"item_key":"PROJ-1"}`))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if j.ID.IsNil() {
		t.Error("expected a generated job ID")
	}
	if j.State != job.StatePending {
		t.Errorf("State = %q, want %q", j.State, job.StatePending)
	}
	if j.Priority != job.PriorityNormal {
		t.Errorf("Priority = %d, want %d", j.Priority, job.PriorityNormal)
	}
	if j.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", j.MaxRetries)
	}
	if j.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", j.RetryCount)
	}
	if !j.RunAt.Equal(j.CreatedAt) {
		t.Errorf("RunAt = %v, want CreatedAt %v", j.RunAt, j.CreatedAt)
	}
}

func TestQueue_EnqueueValidation(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "", nil); !errors.Is(err, toil.ErrInvalidArgument) {
		t.Errorf("empty type: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := q.Enqueue(ctx, "x", nil, job.WithMaxRetries(-1)); !errors.Is(err, toil.ErrInvalidArgument) {
		t.Errorf("negative retries: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := q.Enqueue(ctx, "x", nil, job.WithTimeout(-time.Second)); !errors.Is(err, toil.ErrInvalidArgument) {
		t.Errorf("negative timeout: err = %v, want ErrInvalidArgument", err)
	}
}

func TestQueue_PriorityOrdering(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	low, _ := q.Enqueue(ctx, "work", nil, job.WithPriority(job.PriorityLow))
	urgent, _ := q.Enqueue(ctx, "work", nil, job.WithPriority(job.PriorityUrgent))
	normal, _ := q.Enqueue(ctx, "work", nil, job.WithPriority(job.PriorityNormal))

	wantOrder := []id.JobID{urgent.ID, normal.ID, low.ID}
	worker := id.NewWorkerID()
	for i, want := range wantOrder {
		got, err := q.Dequeue(ctx, worker, nil)
		if err != nil {
			t.Fatalf("Dequeue %d: %v", i, err)
		}
		if got == nil {
			t.Fatalf("Dequeue %d: got nil, want %s", i, want)
		}
		if got.ID != want {
			t.Errorf("Dequeue %d: got %s, want %s", i, got.ID, want)
		}
		if got.State != job.StateRunning {
			t.Errorf("Dequeue %d: State = %q, want running", i, got.State)
		}
		if got.StartedAt == nil {
			t.Errorf("Dequeue %d: StartedAt not stamped", i)
		}
	}
}

func TestQueue_FIFOWithinPriorityBand(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	var want []id.JobID
	for range 5 {
		j, err := q.Enqueue(ctx, "work", nil)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		want = append(want, j.ID)
		time.Sleep(time.Millisecond) // distinct CreatedAt
	}

	worker := id.NewWorkerID()
	for i, w := range want {
		got, err := q.Dequeue(ctx, worker, nil)
		if err != nil {
			t.Fatalf("Dequeue %d: %v", i, err)
		}
		if got == nil || got.ID != w {
			t.Fatalf("Dequeue %d: got %v, want %s (oldest first)", i, got, w)
		}
	}
}

func TestQueue_TypeFilter(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	urgentA, _ := q.Enqueue(ctx, "type-a", nil, job.WithPriority(job.PriorityUrgent))
	normalA, _ := q.Enqueue(ctx, "type-a", nil)
	lowB, _ := q.Enqueue(ctx, "type-b", nil, job.WithPriority(job.PriorityLow))

	worker := id.NewWorkerID()

	// Worker restricted to type-b skips the higher-priority type-a jobs.
	got, err := q.Dequeue(ctx, worker, []string{"type-b"})
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got == nil || got.ID != lowB.ID {
		t.Fatalf("got %v, want %s", got, lowB.ID)
	}

	// Unrestricted worker gets the remaining type-a jobs by priority.
	got, _ = q.Dequeue(ctx, worker, nil)
	if got == nil || got.ID != urgentA.ID {
		t.Fatalf("got %v, want urgent %s", got, urgentA.ID)
	}
	got, _ = q.Dequeue(ctx, worker, nil)
	if got == nil || got.ID != normalA.ID {
		t.Fatalf("got %v, want normal %s", got, normalA.ID)
	}
}

func TestQueue_FutureRunAtNotEligible(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "work", nil, job.WithRunAt(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, err := q.Dequeue(ctx, id.NewWorkerID(), nil)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no eligible job, got %s", got.ID)
	}
}

func TestQueue_EmptyDequeueReturnsNil(t *testing.T) {
	q := newQueue(t)

	got, err := q.Dequeue(context.Background(), id.NewWorkerID(), nil)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got != nil {
		t.Fatalf("expected (nil, nil) on empty queue, got %v", got)
	}
}

func TestQueue_MarkCompleted(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	j, _ := q.Enqueue(ctx, "work", nil)
	claimed, _ := q.Dequeue(ctx, id.NewWorkerID(), nil)
	if claimed == nil {
		t.Fatal("expected to claim the job")
	}

	if err := q.MarkCompleted(ctx, j.ID, []byte(`{"synced":3}`), 250*time.Millisecond); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	got, err := q.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != job.StateCompleted {
		t.Errorf("State = %q, want completed", got.State)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
	if string(got.Result) != `{"synced":3}` {
		t.Errorf("Result = %q", got.Result)
	}
	if got.Duration != 250*time.Millisecond {
		t.Errorf("Duration = %v, want 250ms", got.Duration)
	}
}

func TestQueue_MarkCompletedIdempotent(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	j, _ := q.Enqueue(ctx, "work", nil)
	q.Dequeue(ctx, id.NewWorkerID(), nil)

	if err := q.MarkCompleted(ctx, j.ID, nil, time.Millisecond); err != nil {
		t.Fatalf("first MarkCompleted: %v", err)
	}
	// Completing an already completed job is a no-op.
	if err := q.MarkCompleted(ctx, j.ID, nil, time.Millisecond); err != nil {
		t.Fatalf("second MarkCompleted: %v", err)
	}
}

func TestQueue_MarkCompletedNotRunning(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	j, _ := q.Enqueue(ctx, "work", nil)

	// Pending job cannot be completed.
	err := q.MarkCompleted(ctx, j.ID, nil, time.Millisecond)
	if !errors.Is(err, toil.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestQueue_MarkFailed(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	j, _ := q.Enqueue(ctx, "work", nil)
	q.Dequeue(ctx, id.NewWorkerID(), nil)

	if err := q.MarkFailed(ctx, j.ID, "tracker unavailable"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	got, _ := q.Get(ctx, j.ID)
	if got.State != job.StateFailed {
		t.Errorf("State = %q, want failed", got.State)
	}
	if got.LastError != "tracker unavailable" {
		t.Errorf("LastError = %q", got.LastError)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
}

func TestQueue_Reschedule(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	j, _ := q.Enqueue(ctx, "work", nil)
	q.Dequeue(ctx, id.NewWorkerID(), nil)

	if err := q.Reschedule(ctx, j.ID, time.Hour, errors.New("boom")); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	got, _ := q.Get(ctx, j.ID)
	if got.State != job.StateRetrying {
		t.Errorf("State = %q, want retrying", got.State)
	}
	if got.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", got.RetryCount)
	}
	if got.LastError != "boom" {
		t.Errorf("LastError = %q", got.LastError)
	}
	if !got.WorkerID.IsNil() {
		t.Error("worker binding should be cleared")
	}
	if got.RunAt.Before(time.Now().Add(50 * time.Minute)) {
		t.Errorf("RunAt = %v, want ~1h out", got.RunAt)
	}

	// Not claimable until RunAt passes.
	claimed, _ := q.Dequeue(ctx, id.NewWorkerID(), nil)
	if claimed != nil {
		t.Fatalf("rescheduled job claimed early: %s", claimed.ID)
	}
}

func TestQueue_ReleaseDoesNotConsumeRetry(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	j, _ := q.Enqueue(ctx, "work", nil)
	q.Dequeue(ctx, id.NewWorkerID(), nil)

	if err := q.Release(ctx, j.ID, 0); err != nil {
		t.Fatalf("Release: %v", err)
	}

	got, _ := q.Get(ctx, j.ID)
	if got.State != job.StatePending {
		t.Errorf("State = %q, want pending", got.State)
	}
	if got.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0 (release is free)", got.RetryCount)
	}
}

func TestQueue_Stats(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	for range 3 {
		q.Enqueue(ctx, "work", nil)
	}
	worker := id.NewWorkerID()
	running, _ := q.Dequeue(ctx, worker, nil)
	q.MarkCompleted(ctx, running.ID, nil, time.Millisecond)

	running2, _ := q.Dequeue(ctx, worker, nil)
	_ = running2

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Pending != 1 || stats.Running != 1 || stats.Completed != 1 {
		t.Errorf("stats = %+v, want pending=1 running=1 completed=1", stats)
	}
	if stats.Total() != 3 {
		t.Errorf("Total() = %d, want 3", stats.Total())
	}
}

func TestQueue_ConcurrentDequeue_AtMostOneClaim(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	j, _ := q.Enqueue(ctx, "work", nil)

	var claims atomic.Int64
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := q.Dequeue(ctx, id.NewWorkerID(), nil)
			if err != nil {
				t.Errorf("Dequeue: %v", err)
				return
			}
			if got != nil {
				if got.ID != j.ID {
					t.Errorf("claimed unexpected job %s", got.ID)
				}
				claims.Add(1)
			}
		}()
	}
	wg.Wait()

	if claims.Load() != 1 {
		t.Fatalf("job claimed %d times, want exactly 1", claims.Load())
	}
}
