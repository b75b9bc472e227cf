// Package schedule holds the business logic between the HTTP routes and the
// data-access layer.
package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"taskmill/internal/database"
	"taskmill/internal/taskqueue"
)

// ErrInvalidCron is returned when a schedule expression does not parse.
var ErrInvalidCron = errors.New("invalid cron expression")

// Service implements the schedule operations. All database work goes
// through the registry's transactional runner.
type Service struct {
	registry  *database.Registry
	queue     *taskqueue.Queue
	scheduler *taskqueue.Scheduler
}

// NewService wires the logic layer. scheduler may be nil in tests that do
// not exercise cron dispatch.
func NewService(registry *database.Registry, queue *taskqueue.Queue, scheduler *taskqueue.Scheduler) *Service {
	return &Service{registry: registry, queue: queue, scheduler: scheduler}
}

// ValidateTaskAndCron checks that the task is registered with the queue and
// the cron expression parses.
func (s *Service) ValidateTaskAndCron(task, cronExpr string) error {
	if !s.queue.Has(task) {
		return fmt.Errorf("%w: %q", taskqueue.ErrUnknownTask, task)
	}
	if _, err := taskqueue.CronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidCron, cronExpr, err)
	}
	return nil
}

// ActiveTaskSchedules returns the enabled schedules ordered by name.
func (s *Service) ActiveTaskSchedules(ctx context.Context) ([]*database.TaskSchedule, error) {
	var items []*database.TaskSchedule
	err := s.registry.Transactional(ctx, database.TxOptions{}, func(sess *database.Session) error {
		var err error
		items, err = database.TaskSchedules.GetAll(ctx, sess, map[string]any{"enabled": true}, database.ListOptions{OrderBy: "name"})
		return err
	})
	return items, err
}

// CreateTaskSchedule validates and persists a new schedule, then refreshes
// the cron entries.
func (s *Service) CreateTaskSchedule(ctx context.Context, name, task, cronExpr string) (*database.TaskSchedule, error) {
	if err := s.ValidateTaskAndCron(task, cronExpr); err != nil {
		return nil, err
	}

	var created *database.TaskSchedule
	err := s.registry.Transactional(ctx, database.TxOptions{}, func(sess *database.Session) error {
		var err error
		created, err = database.TaskSchedules.Create(ctx, sess, map[string]any{
			"name":    name,
			"task":    task,
			"cron":    cronExpr,
			"enabled": true,
		}, true)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Stringer("schedule", created).Msg("Task schedule created")
	s.resync(ctx)
	return created, nil
}

// UpdateTaskSchedule applies the given fields to a schedule. Returns
// (nil, nil) when the id does not exist. Task and cron values, when
// present, are validated before anything is written.
func (s *Service) UpdateTaskSchedule(ctx context.Context, id int64, fields map[string]any) (*database.TaskSchedule, error) {
	task, hasTask := fields["task"].(string)
	cronExpr, hasCron := fields["cron"].(string)
	if hasTask && !s.queue.Has(task) {
		return nil, fmt.Errorf("%w: %q", taskqueue.ErrUnknownTask, task)
	}
	if hasCron {
		if _, err := taskqueue.CronParser.Parse(cronExpr); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidCron, cronExpr, err)
		}
	}

	var updated *database.TaskSchedule
	err := s.registry.Transactional(ctx, database.TxOptions{}, func(sess *database.Session) error {
		var err error
		updated, err = database.TaskSchedules.Update(ctx, sess, id, fields, database.UpdateOptions[database.TaskSchedule]{
			Commit: true,
			Callback: func(t *database.TaskSchedule) {
				log.Info().Stringer("schedule", t).Msg("Task schedule updated")
			},
		})
		return err
	})
	if err != nil || updated == nil {
		return nil, err
	}

	s.resync(ctx)
	return updated, nil
}

// DeleteTaskSchedule removes a schedule; a missing id is a no-op.
func (s *Service) DeleteTaskSchedule(ctx context.Context, id int64) error {
	err := s.registry.Transactional(ctx, database.TxOptions{}, func(sess *database.Session) error {
		return database.TaskSchedules.Delete(ctx, sess, id, true)
	})
	if err != nil {
		return err
	}

	log.Info().Int64("id", id).Msg("Task schedule deleted")
	s.resync(ctx)
	return nil
}

// TaskRunRecordsForSchedule returns the run history of one schedule, newest
// first, with the owning schedule attached for serialization.
func (s *Service) TaskRunRecordsForSchedule(ctx context.Context, scheduleID int64) ([]*database.TaskRunRecord, error) {
	var records []*database.TaskRunRecord
	err := s.registry.Transactional(ctx, database.TxOptions{}, func(sess *database.Session) error {
		sched, err := database.TaskSchedules.Get(ctx, sess, map[string]any{"id": scheduleID})
		if err != nil {
			return err
		}
		records, err = database.TaskRunRecords.GetAll(ctx, sess,
			map[string]any{"schedule_id": scheduleID},
			database.ListOptions{OrderBy: "id", Desc: true})
		if err != nil {
			return err
		}
		for _, r := range records {
			r.Schedule = sched
		}
		return nil
	})
	return records, err
}

// SyncScheduler loads the enabled schedules and mirrors them into the cron
// scheduler. main calls it once at startup; mutations trigger it internally.
func (s *Service) SyncScheduler(ctx context.Context) {
	s.resync(ctx)
}

// resync mirrors the enabled schedules into the cron scheduler.
func (s *Service) resync(ctx context.Context) {
	if s.scheduler == nil {
		return
	}
	items, err := s.ActiveTaskSchedules(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load schedules for cron sync")
		return
	}
	s.scheduler.Sync(items)
}
