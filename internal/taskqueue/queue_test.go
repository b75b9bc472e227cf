package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEnqueueUnknownTask(t *testing.T) {
	q := New(Config{})
	if _, err := q.Enqueue("nope", 0, nil); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
}

func TestNamesSorted(t *testing.T) {
	q := New(Config{})
	RegisterBuiltins(q)

	names := q.Names()
	want := []string{"generate_pipeline_report", "new_task", "third_task"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestWorkerRunsJob(t *testing.T) {
	q := New(Config{Workers: 1})
	done := make(chan Job, 1)
	q.Register("probe", func(ctx context.Context, job Job) error {
		done <- job
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	enq, err := q.Enqueue("probe", 42, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if enq.ID == "" {
		t.Fatal("expected a job id")
	}

	select {
	case job := <-done:
		if job.ID != enq.ID || job.ScheduleID != 42 {
			t.Fatalf("unexpected job delivered: %+v", job)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the worker")
	}
}

func TestWorkerSurvivesPanic(t *testing.T) {
	q := New(Config{Workers: 1})
	done := make(chan struct{}, 1)
	q.Register("panics", func(context.Context, Job) error { panic("boom") })
	q.Register("follows", func(context.Context, Job) error {
		done <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	if _, err := q.Enqueue("panics", 0, nil); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if _, err := q.Enqueue("follows", 0, nil); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
}

func TestQueueFull(t *testing.T) {
	q := New(Config{Workers: 1, Size: 1})
	q.Register("blocked", func(context.Context, Job) error { return nil })

	// Workers are not started, so the buffer fills.
	if _, err := q.Enqueue("blocked", 0, nil); err != nil {
		t.Fatalf("first enqueue must fit, got %v", err)
	}
	if _, err := q.Enqueue("blocked", 0, nil); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestMiddlewareOrder(t *testing.T) {
	q := New(Config{})
	var order []string
	mark := func(label string) Middleware {
		return func(name string, fn TaskFunc) TaskFunc {
			return func(ctx context.Context, job Job) error {
				order = append(order, label)
				return fn(ctx, job)
			}
		}
	}
	q.Register("probe", func(context.Context, Job) error {
		order = append(order, "task")
		return nil
	}, mark("outer"), mark("inner"))

	q.mu.Lock()
	fn := q.tasks["probe"]
	q.mu.Unlock()
	if err := fn(context.Background(), Job{}); err != nil {
		t.Fatalf("task returned error: %v", err)
	}

	want := []string{"outer", "inner", "task"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}
