// Package coop implements a cooperative, single-threaded task scheduler.
//
// Tasks are ordinary Go functions. Each one runs on its own goroutine, but
// the scheduler hands a single baton between them, so exactly one task (or
// the goroutine driving the scheduler) executes at any instant. A task only
// gives up the baton at an explicit suspension point: Delay, Await or
// Event.Wait.
//
// All methods of Scheduler, Task and Event must be called from the logical
// thread, which is the goroutine that drives the scheduler plus whichever
// task currently holds the baton. Code outside the logical thread reaches
// the scheduler through a host loop (see package blocking).
package coop

import (
	"container/heap"
	"math"

	"github.com/rs/zerolog"
	"github.com/sarchlab/rpscope/hooking"
	"github.com/sarchlab/rpscope/id"
)

// HookPosTaskStart is triggered right before a task runs for the first time.
var HookPosTaskStart = &hooking.HookPos{Name: "TaskStart"}

// HookPosTaskEnd is triggered after a task has finished, whatever the
// outcome.
var HookPosTaskEnd = &hooking.HookPos{Name: "TaskEnd"}

// A Scheduler owns one event loop: a ready queue of tasks and a heap of
// timers.
type Scheduler struct {
	hooking.HookableBase

	clock Clock
	ids   id.IDGenerator
	log   zerolog.Logger

	ready  []*Task
	timers timerHeap
	seq    uint64
	live   map[*Task]struct{}
}

// Now returns the current time of the scheduler's clock.
func (s *Scheduler) Now() VTimeInSec {
	return s.clock.Now()
}

// Clock returns the clock the scheduler runs on.
func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Schedule enqueues work as a new task and returns immediately. The work
// does not start before the scheduler runs.
func (s *Scheduler) Schedule(work Work) *Task {
	t := &Task{
		id:     s.ids.Generate(),
		sched:  s,
		work:   work,
		state:  TaskPending,
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
		done:   make(chan struct{}),
	}

	s.live[t] = struct{}{}
	s.makeReady(t)

	return t
}

// CallLater runs fn on the logical thread once delay seconds have passed.
func (s *Scheduler) CallLater(delay VTimeInSec, fn func()) *DelayHandle {
	s.seq++
	h := &DelayHandle{
		sched:    s,
		deadline: s.clock.Now() + delay,
		seq:      s.seq,
		fn:       fn,
	}

	heap.Push(&s.timers, h)

	return h
}

// HasReady reports whether any task is waiting to run.
func (s *Scheduler) HasReady() bool {
	return len(s.ready) > 0
}

// NextTimer returns the deadline of the earliest pending timer.
func (s *Scheduler) NextTimer() (VTimeInSec, bool) {
	if len(s.timers) == 0 {
		return 0, false
	}

	return s.timers[0].deadline, true
}

// NumLiveTasks returns the number of tasks that have not finished.
func (s *Scheduler) NumLiveTasks() int {
	return len(s.live)
}

// RunOnce performs one loop iteration. It fires every due timer and then
// runs each task that was ready at that point for exactly one step. Tasks
// made ready during the iteration run in the next one.
func (s *Scheduler) RunOnce() {
	s.fireDueTimers()

	batch := s.ready
	s.ready = nil

	for _, t := range batch {
		s.step(t)
	}
}

// RunUntilComplete drives the loop until t finishes. Between iterations it
// sleeps on the clock until the next timer. It gives up with
// ErrDeadlineExceeded once deadline has passed (pass math.Inf(1) for no
// deadline), or with ErrStalled if nothing could ever finish the task.
func (s *Scheduler) RunUntilComplete(t *Task, deadline VTimeInSec) error {
	for !t.IsDone() {
		if s.clock.Now() >= deadline {
			return ErrDeadlineExceeded
		}

		if s.HasReady() || s.hasDueTimer() {
			s.RunOnce()
			continue
		}

		next, ok := s.NextTimer()
		if !ok {
			if math.IsInf(deadline, 1) {
				return ErrStalled
			}

			s.clock.SleepUntil(deadline)

			continue
		}

		s.clock.SleepUntil(math.Min(next, deadline))
	}

	return nil
}

// Shutdown cancels every live task and runs the loop until they have all
// finished.
func (s *Scheduler) Shutdown() {
	for t := range s.live {
		t.Cancel()
	}

	for len(s.live) > 0 {
		if !s.HasReady() && len(s.timers) == 0 {
			s.log.Warn().Int("tasks", len(s.live)).
				Msg("tasks ignore cancellation, abandoning them")
			return
		}

		s.RunOnce()
	}
}

func (s *Scheduler) hasDueTimer() bool {
	next, ok := s.NextTimer()
	return ok && next <= s.clock.Now()
}

func (s *Scheduler) fireDueTimers() {
	now := s.clock.Now()

	for len(s.timers) > 0 && s.timers[0].deadline <= now {
		h := heap.Pop(&s.timers).(*DelayHandle)
		h.fired = true
		h.fn()
	}
}

func (s *Scheduler) makeReady(t *Task) {
	if t.queued || t.IsDone() {
		return
	}

	t.queued = true
	s.ready = append(s.ready, t)
}

func (s *Scheduler) step(t *Task) {
	t.queued = false

	if t.IsDone() {
		return
	}

	if !t.started {
		t.started = true
		s.InvokeHook(hooking.HookCtx{
			Domain: s,
			Pos:    HookPosTaskStart,
			Item:   t,
		})

		go t.run()
	}

	t.state = TaskRunning
	t.resume <- struct{}{}
	<-t.yield

	if t.finished {
		s.finish(t)
	}
}

func (s *Scheduler) finish(t *Task) {
	switch {
	case t.panicked:
		t.state = TaskFailed
	case t.err == nil:
		t.state = TaskDone
	case t.cancelRequested && isCancellation(t.err):
		t.state = TaskCancelled
	default:
		t.state = TaskFailed
	}

	if t.state == TaskFailed {
		s.log.Debug().Str("task", t.id).Err(t.err).Msg("task failed")
	}

	delete(s.live, t)
	close(t.done)

	for _, w := range t.waiters {
		s.makeReady(w)
	}
	t.waiters = nil

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosTaskEnd,
		Item:   t,
	})
}
