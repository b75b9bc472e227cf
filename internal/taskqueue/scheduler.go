package taskqueue

import (
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"taskmill/internal/database"
)

// CronParser accepts standard five-field cron expressions, the same grammar
// the schedule rows are validated against.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler mirrors enabled schedule rows into cron entries that enqueue
// queue jobs when they fire.
type Scheduler struct {
	queue *Queue
	cron  *cron.Cron

	mu      sync.Mutex
	entries map[int64]cron.EntryID
}

// NewScheduler creates a scheduler feeding the given queue.
func NewScheduler(queue *Queue) *Scheduler {
	return &Scheduler{
		queue:   queue,
		cron:    cron.New(cron.WithParser(CronParser)),
		entries: make(map[int64]cron.EntryID),
	}
}

// Start begins firing cron entries.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Msg("Cron scheduler started")
}

// Stop halts the scheduler and waits for running enqueues to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Cron scheduler stopped")
}

// Sync replaces the cron entries with one entry per enabled schedule. The
// logic layer calls this after every schedule mutation; schedules with
// expressions that no longer parse are skipped with a log line rather than
// failing the whole sync.
func (s *Scheduler) Sync(schedules []*database.TaskSchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}

	for _, sched := range schedules {
		if !sched.Enabled {
			continue
		}
		entryID, err := s.cron.AddFunc(sched.Cron, func() {
			if _, err := s.queue.Enqueue(sched.Task, sched.ID, nil); err != nil {
				log.Error().Err(err).Stringer("schedule", sched).Msg("Failed to enqueue scheduled task")
			}
		})
		if err != nil {
			log.Error().Err(err).Stringer("schedule", sched).Str("cron", sched.Cron).Msg("Skipping schedule with invalid cron expression")
			continue
		}
		s.entries[sched.ID] = entryID
	}

	log.Debug().Int("entries", len(s.entries)).Msg("Cron entries synced")
}
