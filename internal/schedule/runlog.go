package schedule

import (
	"context"

	"github.com/rs/zerolog/log"

	"taskmill/internal/database"
	"taskmill/internal/taskqueue"
)

// RunRecorder returns queue middleware that writes a run record around each
// scheduled execution: a RUNNING row before the task starts, flipped to
// SUCCESS or FAILURE when it returns. Ad-hoc jobs without a schedule id are
// passed through untouched. Recording failures never fail the task itself.
func (s *Service) RunRecorder() taskqueue.Middleware {
	return func(name string, fn taskqueue.TaskFunc) taskqueue.TaskFunc {
		return func(ctx context.Context, job taskqueue.Job) error {
			if job.ScheduleID == 0 {
				return fn(ctx, job)
			}

			record := s.startRun(ctx, job)
			err := fn(ctx, job)
			if record != nil {
				s.finishRun(ctx, record.ID, err)
			}
			return err
		}
	}
}

func (s *Service) startRun(ctx context.Context, job taskqueue.Job) *database.TaskRunRecord {
	var record *database.TaskRunRecord
	txErr := s.registry.Transactional(ctx, database.TxOptions{}, func(sess *database.Session) error {
		var err error
		record, err = database.TaskRunRecords.Create(ctx, sess, map[string]any{
			"schedule_id": job.ScheduleID,
			"status":      database.TaskRunRunning,
		}, true)
		return err
	})
	if txErr != nil {
		log.Error().Err(txErr).Str("job_id", job.ID).Msg("Failed to create run record")
		return nil
	}
	return record
}

func (s *Service) finishRun(ctx context.Context, recordID int64, runErr error) {
	fields := map[string]any{"status": database.TaskRunSuccess}
	if runErr != nil {
		fields["status"] = database.TaskRunFailure
		fields["error"] = runErr.Error()
	}

	txErr := s.registry.Transactional(ctx, database.TxOptions{}, func(sess *database.Session) error {
		_, err := database.TaskRunRecords.Update(ctx, sess, recordID, fields,
			database.UpdateOptions[database.TaskRunRecord]{Commit: true})
		return err
	})
	if txErr != nil {
		log.Error().Err(txErr).Int64("record_id", recordID).Msg("Failed to finish run record")
	}
}
