// Package blocking lets ordinary call sites wait for cooperative tasks.
//
// A Waiter drives a coop.Scheduler from outside any task. When the process
// also runs a foreign host loop that it does not own, the Waiter interleaves
// the two: it lets the host process its pending events for a bounded slice,
// advances the scheduler by one iteration, and repeats until the task is
// done or the deadline passes.
//
// A Waiter must never be used from inside a task. The task holds the baton
// that the Waiter needs to drive the scheduler, so doing so deadlocks. Tasks
// wait with coop.Task.Delay and coop.Task.Await instead.
package blocking

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/rpscope/coop"
)

// ErrTimeout is returned when a blocking wait reaches its deadline. The task
// being waited for keeps running.
var ErrTimeout = errors.New("blocking: timeout exceeded")

// DefaultSlice bounds how long the host loop may process events per round.
const DefaultSlice = 50 * time.Millisecond

// A HostLoop is a foreign event loop that shares the logical thread.
type HostLoop interface {
	// ProcessEvents handles pending host events, spending at most max.
	ProcessEvents(max time.Duration)
}

// A Waiter blocks ordinary call sites until tasks finish.
type Waiter struct {
	sched *coop.Scheduler
	host  HostLoop
	slice time.Duration
	log   zerolog.Logger
}

// Scheduler returns the scheduler the waiter drives.
func (w *Waiter) Scheduler() *coop.Scheduler {
	return w.sched
}

// Wait blocks until t finishes and returns its result.
func (w *Waiter) Wait(t *coop.Task) (any, error) {
	return w.wait(t, math.Inf(1))
}

// WaitTimeout blocks until t finishes or timeout elapses. On timeout it
// returns ErrTimeout and leaves t running; cancelling it is up to the
// caller.
func (w *Waiter) WaitTimeout(t *coop.Task, timeout time.Duration) (any, error) {
	return w.wait(t, w.sched.Now()+timeout.Seconds())
}

// Run schedules work and waits for it.
func (w *Waiter) Run(work coop.Work) (any, error) {
	return w.Wait(w.sched.Schedule(work))
}

// RunTimeout schedules work and waits for it at most timeout.
func (w *Waiter) RunTimeout(work coop.Work, timeout time.Duration) (any, error) {
	return w.WaitTimeout(w.sched.Schedule(work), timeout)
}

// Sleep blocks the caller for the given number of seconds while scheduled
// tasks and the host loop keep running.
func (w *Waiter) Sleep(seconds float64) error {
	_, err := w.Run(func(t *coop.Task) (any, error) {
		return nil, t.Delay(seconds)
	})

	return err
}

func (w *Waiter) wait(t *coop.Task, deadline coop.VTimeInSec) (any, error) {
	if w.host == nil {
		err := w.sched.RunUntilComplete(t, deadline)
		if errors.Is(err, coop.ErrDeadlineExceeded) {
			return nil, w.timeout(t)
		}

		if err != nil {
			return nil, err
		}

		return t.Result()
	}

	w.pump(t, deadline)

	if !t.IsDone() {
		return nil, w.timeout(t)
	}

	return t.Result()
}

func (w *Waiter) timeout(t *coop.Task) error {
	w.log.Debug().Str("task", t.ID()).Stringer("state", t.State()).
		Msg("blocking wait timed out")

	return fmt.Errorf("%w: task %s still %s", ErrTimeout, t.ID(), t.State())
}

func (w *Waiter) pump(t *coop.Task, deadline coop.VTimeInSec) {
	for !t.IsDone() {
		w.host.ProcessEvents(w.nextSlice(deadline))
		w.sched.RunOnce()

		if !t.IsDone() && w.sched.Now() >= deadline {
			return
		}
	}
}

// nextSlice returns the host slice for the next round, cut short so that
// neither a due timer nor the deadline is overslept.
func (w *Waiter) nextSlice(deadline coop.VTimeInSec) time.Duration {
	if w.sched.HasReady() {
		return 0
	}

	now := w.sched.Now()
	limit := deadline

	if next, ok := w.sched.NextTimer(); ok && next < limit {
		limit = next
	}

	until := limit - now
	if until <= 0 {
		return 0
	}

	if until >= w.slice.Seconds() {
		return w.slice
	}

	return time.Duration(math.Ceil(until * float64(time.Second)))
}
