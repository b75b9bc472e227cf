package database

import "time"

// TaskRunRecord is the history row for one execution of a scheduled task.
type TaskRunRecord struct {
	ID         int64
	ScheduleID int64
	Status     TaskRunStatus
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Schedule is the owning schedule when the caller loaded it, exposed as
	// the "schedule" extra field. Not a column.
	Schedule *TaskSchedule
}

// TaskRunRecordSchema is the accessor table for TaskRunRecord.
var TaskRunRecordSchema = func() *Schema[TaskRunRecord] {
	s := NewSchema("TaskRunRecord", []FieldDef[TaskRunRecord]{
		{
			Column: "id",
			Ptr:    func(r *TaskRunRecord) any { return &r.ID },
			Value:  func(r *TaskRunRecord) any { return r.ID },
			Assign: assignAs(func(r *TaskRunRecord, v int64) { r.ID = v }),
		},
		{
			Column: "schedule_id",
			Ptr:    func(r *TaskRunRecord) any { return &r.ScheduleID },
			Value:  func(r *TaskRunRecord) any { return r.ScheduleID },
			Assign: assignAs(func(r *TaskRunRecord, v int64) { r.ScheduleID = v }),
		},
		{
			Column: "status",
			Ptr:    func(r *TaskRunRecord) any { return &r.Status },
			Value:  func(r *TaskRunRecord) any { return r.Status },
			Assign: assignAs(func(r *TaskRunRecord, v TaskRunStatus) { r.Status = v }),
		},
		{
			Column: "error",
			Ptr:    func(r *TaskRunRecord) any { return &r.Error },
			Value:  func(r *TaskRunRecord) any { return r.Error },
			Assign: assignAs(func(r *TaskRunRecord, v string) { r.Error = v }),
			MaxLen: DescriptionLength,
		},
		{
			Column: "created_at",
			Ptr:    func(r *TaskRunRecord) any { return &r.CreatedAt },
			Value:  func(r *TaskRunRecord) any { return r.CreatedAt },
			Assign: assignAs(func(r *TaskRunRecord, v time.Time) { r.CreatedAt = v }),
		},
		{
			Column: "updated_at",
			Ptr:    func(r *TaskRunRecord) any { return &r.UpdatedAt },
			Value:  func(r *TaskRunRecord) any { return r.UpdatedAt },
			Assign: assignAs(func(r *TaskRunRecord, v time.Time) { r.UpdatedAt = v }),
		},
	})
	s.Extras = map[string]func(*TaskRunRecord) any{
		"schedule": func(r *TaskRunRecord) any {
			if r.Schedule == nil {
				return nil
			}
			return r.Schedule
		},
	}
	return s
}()

// TaskRunRecords is the store for TaskRunRecord rows.
var TaskRunRecords = NewStore(TaskRunRecordSchema)

// ToDict returns the serialized representation of the run record, including
// the owning schedule when it was loaded.
func (r *TaskRunRecord) ToDict() map[string]any {
	if r.Schedule != nil {
		return TaskRunRecordSchema.ToDict(r, nil, []string{"schedule"})
	}
	return TaskRunRecordSchema.ToDict(r, nil, nil)
}

func (r *TaskRunRecord) String() string {
	return TaskRunRecordSchema.Describe(r)
}
