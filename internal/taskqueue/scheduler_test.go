package taskqueue

import (
	"testing"

	"taskmill/internal/database"
)

func TestSchedulerSyncEntries(t *testing.T) {
	q := New(Config{})
	RegisterBuiltins(q)
	s := NewScheduler(q)

	schedules := []*database.TaskSchedule{
		{ID: 1, Name: "a", Task: "new_task", Cron: "* * * * *", Enabled: true},
		{ID: 2, Name: "b", Task: "third_task", Cron: "0 0 * * *", Enabled: true},
		{ID: 3, Name: "disabled", Task: "new_task", Cron: "* * * * *", Enabled: false},
		{ID: 4, Name: "broken", Task: "new_task", Cron: "not a cron", Enabled: true},
	}
	s.Sync(schedules)

	s.mu.Lock()
	count := len(s.entries)
	s.mu.Unlock()
	if count != 2 {
		t.Fatalf("expected 2 entries (disabled and broken skipped), got %d", count)
	}

	// Re-sync with a shrunk set replaces the entries.
	s.Sync(schedules[:1])
	s.mu.Lock()
	count = len(s.entries)
	s.mu.Unlock()
	if count != 1 {
		t.Fatalf("expected 1 entry after resync, got %d", count)
	}
}

func TestCronParserFiveFields(t *testing.T) {
	if _, err := CronParser.Parse("0 0 * * *"); err != nil {
		t.Fatalf("five-field expression must parse, got %v", err)
	}
	if _, err := CronParser.Parse("@daily"); err == nil {
		t.Fatal("descriptors are not part of the accepted grammar")
	}
}
