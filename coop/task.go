package coop

import (
	"errors"
	"fmt"
	"math"
	"runtime/debug"
)

// TaskState tells where a task is in its lifecycle.
type TaskState int

// Task states.
const (
	TaskPending TaskState = iota
	TaskRunning
	TaskSuspended
	TaskDone
	TaskCancelled
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskSuspended:
		return "suspended"
	case TaskDone:
		return "done"
	case TaskCancelled:
		return "cancelled"
	case TaskFailed:
		return "failed"
	}

	return fmt.Sprintf("TaskState(%d)", int(s))
}

// Work is the body of a task. It receives its own task so that it can reach
// the suspension points.
type Work func(t *Task) (any, error)

// A Task is a unit of suspendable work owned by a Scheduler.
type Task struct {
	id    string
	sched *Scheduler
	work  Work
	state TaskState

	resume chan struct{}
	yield  chan struct{}
	done   chan struct{}

	started  bool
	queued   bool
	finished bool
	panicked bool
	result   any
	err      error

	cancelRequested bool
	unblock         func()
	waiters         []*Task
}

// ID returns the task ID.
func (t *Task) ID() string {
	return t.id
}

// State returns the lifecycle state.
func (t *Task) State() TaskState {
	return t.state
}

// Scheduler returns the scheduler that owns the task.
func (t *Task) Scheduler() *Scheduler {
	return t.sched
}

// IsDone reports whether the task has finished, successfully or not.
func (t *Task) IsDone() bool {
	switch t.state {
	case TaskDone, TaskCancelled, TaskFailed:
		return true
	}

	return false
}

// Finished returns a channel that is closed when the task finishes. It is
// the only part of a Task that may be observed from outside the logical
// thread.
func (t *Task) Finished() <-chan struct{} {
	return t.done
}

// Result returns what the work returned. It is only meaningful once the
// task is done.
func (t *Task) Result() (any, error) {
	return t.result, t.err
}

// CancelRequested reports whether Cancel has been called.
func (t *Task) CancelRequested() bool {
	return t.cancelRequested
}

// Cancel requests cancellation. A task that has not started yet never runs.
// A suspended task is woken and its suspension point returns ErrCancelled;
// any pending delay handle is cancelled. Cancellation is sticky: every later
// suspension point returns ErrCancelled too. Cancel returns false if the
// task had already finished.
func (t *Task) Cancel() bool {
	if t.IsDone() {
		return false
	}

	if t.cancelRequested {
		return true
	}

	t.cancelRequested = true

	if !t.started {
		t.err = ErrCancelled
		t.sched.finish(t)

		return true
	}

	if t.state == TaskSuspended {
		if t.unblock != nil {
			t.unblock()
			t.unblock = nil
		}

		t.sched.makeReady(t)
	}

	return true
}

// Delay suspends the task for the given number of seconds without blocking
// the scheduler. A delay of zero or less yields once and resumes in the next
// loop iteration. NaN is rejected with ErrInvalidArgument.
func (t *Task) Delay(seconds float64) error {
	if math.IsNaN(seconds) {
		return fmt.Errorf("%w: delay is NaN", ErrInvalidArgument)
	}

	if t.cancelRequested {
		return ErrCancelled
	}

	if seconds <= 0 {
		t.sched.makeReady(t)
		t.suspend()
	} else {
		h := t.sched.CallLater(seconds, func() { t.sched.makeReady(t) })
		t.unblock = h.Cancel
		t.suspend()
		t.unblock = nil
		h.Cancel()
	}

	if t.cancelRequested {
		return ErrCancelled
	}

	return nil
}

// Await suspends the task until other finishes and returns other's result.
func (t *Task) Await(other *Task) (any, error) {
	if other == t {
		return nil, fmt.Errorf("%w: task %s awaits itself",
			ErrInvalidArgument, t.id)
	}

	for !other.IsDone() {
		if t.cancelRequested {
			return nil, ErrCancelled
		}

		other.waiters = append(other.waiters, t)
		t.unblock = func() { other.waiters = removeTask(other.waiters, t) }
		t.suspend()
		t.unblock = nil
	}

	return other.Result()
}

func (t *Task) suspend() {
	t.state = TaskSuspended
	t.yield <- struct{}{}
	<-t.resume
}

func (t *Task) run() {
	<-t.resume

	defer func() {
		if r := recover(); r != nil {
			t.panicked = true
			t.err = &PanicError{Value: r, Stack: debug.Stack()}
		}

		t.finished = true
		t.yield <- struct{}{}
	}()

	t.result, t.err = t.work(t)
}

func isCancellation(err error) bool {
	return errors.Is(err, ErrCancelled)
}

func removeTask(list []*Task, t *Task) []*Task {
	for i, x := range list {
		if x == t {
			return append(list[:i], list[i+1:]...)
		}
	}

	return list
}
