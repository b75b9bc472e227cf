package database

// Declared column lengths. Oversized values are truncated on assignment,
// not rejected.
const (
	NameLength        = 255
	DescriptionLength = 5000
	URLLength         = 2083
)

// TaskRunStatus is the lifecycle state of one execution of a scheduled task.
type TaskRunStatus int

const (
	TaskRunRunning TaskRunStatus = 0
	TaskRunSuccess TaskRunStatus = 1
	TaskRunFailure TaskRunStatus = 2
)

// EnumValue returns the underlying scalar for serialization.
func (s TaskRunStatus) EnumValue() any {
	return int(s)
}

func (s TaskRunStatus) String() string {
	switch s {
	case TaskRunRunning:
		return "running"
	case TaskRunSuccess:
		return "success"
	case TaskRunFailure:
		return "failure"
	default:
		return "unknown"
	}
}
