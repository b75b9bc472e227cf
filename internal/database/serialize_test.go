package database

import (
	"testing"
	"time"
)

func TestSerializeValueTimestamps(t *testing.T) {
	dt := time.Date(2024, 5, 1, 12, 30, 45, 987654321, time.UTC)
	got := SerializeValue(dt)
	if got != dt.Unix() {
		t.Fatalf("expected %d, got %v", dt.Unix(), got)
	}
	if SerializeValue(time.Time{}) != nil {
		t.Fatal("zero time must serialize to nil")
	}
	if SerializeValue((*time.Time)(nil)) != nil {
		t.Fatal("nil time pointer must serialize to nil")
	}
}

func TestSerializeValueEnum(t *testing.T) {
	if got := SerializeValue(TaskRunFailure); got != 2 {
		t.Fatalf("expected the underlying scalar 2, got %v", got)
	}
}

func TestSerializeValueRecursion(t *testing.T) {
	dt := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	in := map[string]any{
		"when":   dt,
		"status": TaskRunSuccess,
		"list":   []any{dt, TaskRunRunning},
	}
	out, ok := SerializeValue(in).(map[string]any)
	if !ok {
		t.Fatalf("expected a map, got %T", SerializeValue(in))
	}
	if out["when"] != dt.Unix() || out["status"] != 1 {
		t.Fatalf("unexpected serialized map: %v", out)
	}
	list, ok := out["list"].([]any)
	if !ok || list[0] != dt.Unix() || list[1] != 0 {
		t.Fatalf("unexpected serialized list: %v", out["list"])
	}
}

func TestToDictNestedEntityAndSkip(t *testing.T) {
	sched := &TaskSchedule{ID: 7, Name: "nightly", Task: "generate_pipeline_report", Cron: "0 0 * * *"}
	rec := &TaskRunRecord{
		ID:         3,
		ScheduleID: 7,
		Status:     TaskRunSuccess,
		Error:      "secret",
		CreatedAt:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Schedule:   sched,
	}

	dict := TaskRunRecordSchema.ToDict(rec, []string{"error"}, []string{"schedule"})
	if _, present := dict["error"]; present {
		t.Fatal("skipped column must not be serialized")
	}
	if dict["status"] != 1 {
		t.Fatalf("expected enum serialized to 1, got %v", dict["status"])
	}
	nested, ok := dict["schedule"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested entity mapping, got %T", dict["schedule"])
	}
	if nested["name"] != "nightly" || nested["id"] != int64(7) {
		t.Fatalf("unexpected nested mapping: %v", nested)
	}
}

func TestToDictNilNestedEntity(t *testing.T) {
	rec := &TaskRunRecord{ID: 1}
	dict := rec.ToDict()
	if _, present := dict["schedule"]; present {
		t.Fatal("unloaded schedule must not appear")
	}
}

func TestDescribe(t *testing.T) {
	full := &TaskSchedule{ID: 5, Name: "nightly"}
	if got := TaskScheduleSchema.Describe(full); got != `TaskSchedule(id=5, name="nightly")` {
		t.Fatalf("unexpected representation: %q", got)
	}

	idOnly := &TaskSchedule{ID: 5}
	if got := TaskScheduleSchema.Describe(idOnly); got != "5" {
		t.Fatalf("expected the bare id, got %q", got)
	}

	nameOnly := &TaskSchedule{Name: "nightly"}
	if got := TaskScheduleSchema.Describe(nameOnly); got != "nightly" {
		t.Fatalf("expected the bare name, got %q", got)
	}

	empty := &TaskSchedule{}
	if got := TaskScheduleSchema.Describe(empty); got != "" {
		t.Fatalf("expected an empty representation, got %q", got)
	}
}

func TestValuesEqualTime(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	monotonic := time.Now()
	if !valuesEqual(base, base.UTC()) {
		t.Fatal("equal instants must compare equal")
	}
	if !valuesEqual(monotonic, monotonic.Round(0)) {
		t.Fatal("monotonic readings must not affect comparison")
	}
	if valuesEqual(base, base.Add(time.Second)) {
		t.Fatal("different instants must not compare equal")
	}
	if valuesEqual(base, "2024-05-01") {
		t.Fatal("a time never equals a non-time")
	}
}
