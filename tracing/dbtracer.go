package tracing

import (
	"sync"
	"time"

	"github.com/sarchlab/rpscope/datarecording"
	"github.com/sarchlab/rpscope/scope"
	"github.com/tebeka/atexit"
)

// Tables written by the DBTracer.
const (
	EventTable = "trace_event"
	TaskTable  = "trace_task"
)

// EventEntry is one row of the event table: a task starting or ending.
// Capture rows carry the trigger settings the capture was armed with.
type EventEntry struct {
	ID         string
	Kind       string
	Location   string
	Position   string
	State      string
	Source     string
	Decimation int
	Delay      float64
	Rolling    bool
	VTime      float64
	WallTime   string
}

// TaskEntry is one row of the task table, written when a task ends.
type TaskEntry struct {
	ID        string
	Kind      string
	What      string
	Location  string
	Outcome   string
	StartTime float64
	EndTime   float64
}

// DBTracer is a tracer that stores lifecycle events and finished tasks
// through a DataRecorder. Sample data is never recorded.
type DBTracer struct {
	mu           sync.Mutex
	backend      datarecording.DataRecorder
	filter       TaskFilter
	tracingTasks map[string]Task
	now          func() time.Time
}

// NewDBTracer creates the tracer tables in the recorder. A nil filter keeps
// every task.
func NewDBTracer(
	dataRecorder datarecording.DataRecorder,
	filter TaskFilter,
) *DBTracer {
	dataRecorder.CreateTable(EventTable, EventEntry{})
	dataRecorder.CreateTable(TaskTable, TaskEntry{})

	t := &DBTracer{
		backend:      dataRecorder,
		filter:       filter,
		tracingTasks: make(map[string]Task),
		now:          time.Now,
	}

	atexit.Register(func() {
		t.Terminate()
	})

	return t
}

// StartTask records the start event and remembers the task.
func (t *DBTracer) StartTask(task Task) {
	if t.filter != nil && !t.filter(task) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if task.ID == "" {
		panic("task ID must be set")
	}

	t.tracingTasks[taskKey(task)] = task
	t.backend.InsertData(EventTable, t.eventEntry(task, "start", task.StartTime))
}

// EndTask records the end event and the finished task.
func (t *DBTracer) EndTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := taskKey(task)

	originalTask, ok := t.tracingTasks[key]
	if !ok {
		return
	}

	delete(t.tracingTasks, key)

	t.backend.InsertData(EventTable, t.eventEntry(task, "end", task.EndTime))
	t.backend.InsertData(TaskTable, TaskEntry{
		ID:        originalTask.ID,
		Kind:      originalTask.Kind,
		What:      originalTask.What,
		Location:  originalTask.Location,
		Outcome:   task.Outcome,
		StartTime: originalTask.StartTime,
		EndTime:   task.EndTime,
	})
}

// Terminate drops the tasks still in flight and flushes the recorder.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracingTasks = make(map[string]Task)
	t.backend.Flush()
}

func (t *DBTracer) eventEntry(task Task, position string, vtime float64) EventEntry {
	e := EventEntry{
		ID:       task.ID,
		Kind:     task.Kind,
		Location: task.Location,
		Position: position,
		State:    task.Outcome,
		VTime:    vtime,
		WallTime: t.now().Format(time.RFC3339Nano),
	}

	if info, ok := task.Detail.(scope.CaptureInfo); ok {
		e.State = info.State.String()
		e.Source = string(info.Config.Source)
		e.Decimation = info.Config.Decimation
		e.Delay = info.Config.Delay
		e.Rolling = info.Rolling
	}

	return e
}
