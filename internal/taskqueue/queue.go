package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	// ErrUnknownTask is returned when enqueueing a task name nobody registered.
	ErrUnknownTask = errors.New("unknown task")
	// ErrQueueFull is returned when the job buffer is at capacity.
	ErrQueueFull = errors.New("queue is full")
)

// Job is one unit of work waiting for a worker.
type Job struct {
	ID         string
	Task       string
	ScheduleID int64
	Args       map[string]any
}

// TaskFunc is the callable a worker runs for a job.
type TaskFunc func(ctx context.Context, job Job) error

// Middleware wraps a task function at registration time. Both the logging
// wrapper and the run-record wrapper compose this way.
type Middleware func(name string, fn TaskFunc) TaskFunc

// Config sizes the worker pool.
type Config struct {
	Workers       int
	Size          int
	RatePerSecond float64
}

// Queue is the in-process task broker: a registry of named tasks, a bounded
// job buffer and a fixed worker pool. Workers are panic-safe and dispatch
// is rate-limited.
type Queue struct {
	cfg     Config
	limiter *rate.Limiter

	mu    sync.Mutex
	tasks map[string]TaskFunc
	jobs  chan Job

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a queue; Start brings up the workers.
func New(cfg Config) *Queue {
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if cfg.Size < 1 {
		cfg.Size = 64
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Queue{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		tasks:   make(map[string]TaskFunc),
		jobs:    make(chan Job, cfg.Size),
	}
}

// Register adds a named task, applying middleware outermost-first.
func (q *Queue) Register(name string, fn TaskFunc, mw ...Middleware) {
	for i := len(mw) - 1; i >= 0; i-- {
		fn = mw[i](name, fn)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks[name] = fn
}

// Has reports whether a task name is registered.
func (q *Queue) Has(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.tasks[name]
	return ok
}

// Names returns the registered task names, sorted.
func (q *Queue) Names() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	names := make([]string, 0, len(q.tasks))
	for name := range q.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enqueue places a job on the buffer without blocking.
func (q *Queue) Enqueue(name string, scheduleID int64, args map[string]any) (Job, error) {
	if !q.Has(name) {
		return Job{}, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	job := Job{
		ID:         uuid.NewString(),
		Task:       name,
		ScheduleID: scheduleID,
		Args:       args,
	}
	select {
	case q.jobs <- job:
		log.Debug().Str("job_id", job.ID).Str("task", name).Msg("Job enqueued")
		return job, nil
	default:
		return Job{}, fmt.Errorf("%w: dropping %q", ErrQueueFull, name)
	}
}

// Start brings up the worker pool. Idempotent.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(runCtx, i)
	}
	log.Info().Int("workers", q.cfg.Workers).Int("size", q.cfg.Size).Msg("Task queue started")
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	cancel := q.cancel
	q.mu.Unlock()

	cancel()
	q.wg.Wait()
	log.Info().Msg("Task queue stopped")
}

func (q *Queue) worker(ctx context.Context, idx int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			if err := q.limiter.Wait(ctx); err != nil {
				return
			}
			q.runJob(ctx, job, idx)
		}
	}
}

func (q *Queue) runJob(ctx context.Context, job Job, idx int) {
	q.mu.Lock()
	fn := q.tasks[job.Task]
	q.mu.Unlock()
	if fn == nil {
		log.Error().Str("task", job.Task).Msg("Job references unregistered task")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("job_id", job.ID).
				Str("task", job.Task).
				Int("worker", idx).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Task panicked")
		}
	}()

	if err := fn(ctx, job); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Str("task", job.Task).Msg("Task failed")
	}
}

// WithLogging logs task start, outcome and duration around fn.
func WithLogging() Middleware {
	return func(name string, fn TaskFunc) TaskFunc {
		return func(ctx context.Context, job Job) error {
			start := time.Now()
			log.Info().Str("job_id", job.ID).Str("task", name).Msg("Task started")
			err := fn(ctx, job)
			evt := log.Info()
			if err != nil {
				evt = log.Error().Err(err)
			}
			evt.Str("job_id", job.ID).Str("task", name).Dur("elapsed", time.Since(start)).Msg("Task finished")
			return err
		}
	}
}
