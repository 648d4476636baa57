package tracing

import "github.com/sarchlab/rpscope/coop"

// Kinds of traced tasks.
const (
	KindCapture = "capture"
	KindTask    = "task"
)

// A Task is one traced unit of work: a scope capture from arm to
// acquisition or reset, or a scheduler task from start to finish.
type Task struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	What      string          `json:"what"`
	Location  string          `json:"location"`
	Outcome   string          `json:"outcome"`
	StartTime coop.VTimeInSec `json:"start_time"`
	EndTime   coop.VTimeInSec `json:"end_time"`
	Detail    any             `json:"-"`
}

// TaskFilter is a function that can filter interesting tasks. If this function
// returns true, the task is considered useful.
type TaskFilter func(t Task) bool

// KindFilter keeps the tasks of one kind.
func KindFilter(kind string) TaskFilter {
	return func(t Task) bool {
		return t.Kind == kind
	}
}

// taskKey tells tasks of different kinds apart, since captures and
// scheduler tasks are numbered independently.
func taskKey(task Task) string {
	return task.Kind + "/" + task.ID
}
