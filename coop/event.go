package coop

// An Event is a flag that tasks can wait on. Setting it wakes every waiting
// task.
type Event struct {
	sched   *Scheduler
	set     bool
	waiters []*Task
}

// NewEvent creates an Event that is initially clear.
func (s *Scheduler) NewEvent() *Event {
	return &Event{sched: s}
}

// IsSet reports whether the flag is set.
func (e *Event) IsSet() bool {
	return e.set
}

// Set sets the flag and wakes all waiters.
func (e *Event) Set() {
	e.set = true

	for _, w := range e.waiters {
		e.sched.makeReady(w)
	}

	e.waiters = nil
}

// Clear resets the flag.
func (e *Event) Clear() {
	e.set = false
}

// Wait suspends t until the flag is set.
func (e *Event) Wait(t *Task) error {
	for !e.set {
		if t.cancelRequested {
			return ErrCancelled
		}

		e.waiters = append(e.waiters, t)
		t.unblock = func() { e.waiters = removeTask(e.waiters, t) }
		t.suspend()
		t.unblock = nil
	}

	if t.cancelRequested {
		return ErrCancelled
	}

	return nil
}
