package taskqueue

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// PipelineStatus is the report pipeline state carried in task payloads.
type PipelineStatus string

const (
	PipelineQueued  PipelineStatus = "Queued"
	PipelineRunning PipelineStatus = "Running"
	PipelineSuccess PipelineStatus = "Success"
	PipelineFailure PipelineStatus = "Failure"
)

// EnumValue returns the underlying scalar for serialization.
func (s PipelineStatus) EnumValue() any {
	return string(s)
}

// RegisterBuiltins registers the built-in tasks, each wrapped with the
// given middleware.
func RegisterBuiltins(q *Queue, mw ...Middleware) {
	q.Register("generate_pipeline_report", GeneratePipelineReport, mw...)
	q.Register("new_task", NewTask, mw...)
	q.Register("third_task", ThirdTask, mw...)
}

// GeneratePipelineReport produces the scheduled pipeline report. The demo
// implementation only walks the status transitions.
func GeneratePipelineReport(ctx context.Context, job Job) error {
	for _, status := range []PipelineStatus{PipelineQueued, PipelineRunning, PipelineSuccess} {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
		log.Debug().Str("job_id", job.ID).Str("status", string(status)).Msg("Pipeline report")
	}
	return nil
}

// NewTask is a placeholder task kept for parity with the queue demo.
func NewTask(ctx context.Context, job Job) error {
	log.Debug().Str("job_id", job.ID).Msg("new_task ran")
	return nil
}

// ThirdTask is a placeholder task kept for parity with the queue demo.
func ThirdTask(ctx context.Context, job Job) error {
	log.Debug().Str("job_id", job.ID).Msg("third_task ran")
	return nil
}
