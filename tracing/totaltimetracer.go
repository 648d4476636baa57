package tracing

import (
	"sync"

	"github.com/sarchlab/rpscope/coop"
)

// TotalTimeTracer can collect the total time of executing a certain type of
// task. If the execution of two tasks overlaps, this tracer will simply add
// the two task processing time together.
type TotalTimeTracer struct {
	filter        TaskFilter
	lock          sync.Mutex
	totalTime     coop.VTimeInSec
	taskCount     uint64
	outcomes      map[string]uint64
	inflightTasks map[string]Task
}

// NewTotalTimeTracer creates a new TotalTimeTracer. A nil filter keeps every
// task.
func NewTotalTimeTracer(filter TaskFilter) *TotalTimeTracer {
	return &TotalTimeTracer{
		filter:        filter,
		outcomes:      make(map[string]uint64),
		inflightTasks: make(map[string]Task),
	}
}

// TotalTime returns the total time has been spent on a certain type of tasks.
func (t *TotalTimeTracer) TotalTime() coop.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.totalTime
}

// TaskCount returns the number of completed tasks.
func (t *TotalTimeTracer) TaskCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.taskCount
}

// AverageTime returns the average time of the completed tasks.
func (t *TotalTimeTracer) AverageTime() coop.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.taskCount == 0 {
		return 0
	}

	return t.totalTime / coop.VTimeInSec(t.taskCount)
}

// Outcomes returns how many completed tasks ended with each outcome.
func (t *TotalTimeTracer) Outcomes() map[string]uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	out := make(map[string]uint64, len(t.outcomes))
	for k, v := range t.outcomes {
		out[k] = v
	}

	return out
}

// StartTask records the task start time
func (t *TotalTimeTracer) StartTask(task Task) {
	if t.filter != nil && !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.inflightTasks[taskKey(task)] = task
	t.lock.Unlock()
}

// EndTask records the end of the task
func (t *TotalTimeTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	originalTask, ok := t.inflightTasks[taskKey(task)]
	if !ok {
		return
	}

	t.totalTime += task.EndTime - originalTask.StartTime
	t.taskCount++
	t.outcomes[task.Outcome]++
	delete(t.inflightTasks, taskKey(task))
}
