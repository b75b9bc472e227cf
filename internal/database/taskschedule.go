package database

import "time"

// TaskSchedule is a row describing a cron-driven queue task.
type TaskSchedule struct {
	ID        int64
	Name      string
	Task      string
	Cron      string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskScheduleSchema is the accessor table for TaskSchedule, built once at
// startup.
var TaskScheduleSchema = NewSchema("TaskSchedule", []FieldDef[TaskSchedule]{
	{
		Column: "id",
		Ptr:    func(t *TaskSchedule) any { return &t.ID },
		Value:  func(t *TaskSchedule) any { return t.ID },
		Assign: assignAs(func(t *TaskSchedule, v int64) { t.ID = v }),
	},
	{
		Column: "name",
		Ptr:    func(t *TaskSchedule) any { return &t.Name },
		Value:  func(t *TaskSchedule) any { return t.Name },
		Assign: assignAs(func(t *TaskSchedule, v string) { t.Name = v }),
		MaxLen: NameLength,
	},
	{
		Column: "task",
		Ptr:    func(t *TaskSchedule) any { return &t.Task },
		Value:  func(t *TaskSchedule) any { return t.Task },
		Assign: assignAs(func(t *TaskSchedule, v string) { t.Task = v }),
		MaxLen: NameLength,
	},
	{
		Column: "cron",
		Ptr:    func(t *TaskSchedule) any { return &t.Cron },
		Value:  func(t *TaskSchedule) any { return t.Cron },
		Assign: assignAs(func(t *TaskSchedule, v string) { t.Cron = v }),
	},
	{
		Column: "enabled",
		Ptr:    func(t *TaskSchedule) any { return &t.Enabled },
		Value:  func(t *TaskSchedule) any { return t.Enabled },
		Assign: assignAs(func(t *TaskSchedule, v bool) { t.Enabled = v }),
	},
	{
		Column: "created_at",
		Ptr:    func(t *TaskSchedule) any { return &t.CreatedAt },
		Value:  func(t *TaskSchedule) any { return t.CreatedAt },
		Assign: assignAs(func(t *TaskSchedule, v time.Time) { t.CreatedAt = v }),
	},
	{
		Column: "updated_at",
		Ptr:    func(t *TaskSchedule) any { return &t.UpdatedAt },
		Value:  func(t *TaskSchedule) any { return t.UpdatedAt },
		Assign: assignAs(func(t *TaskSchedule, v time.Time) { t.UpdatedAt = v }),
	},
})

// TaskSchedules is the store for TaskSchedule rows.
var TaskSchedules = NewStore(TaskScheduleSchema)

// ToDict returns the serialized representation of the schedule.
func (t *TaskSchedule) ToDict() map[string]any {
	return TaskScheduleSchema.ToDict(t, nil, nil)
}

func (t *TaskSchedule) String() string {
	return TaskScheduleSchema.Describe(t)
}
