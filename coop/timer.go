package coop

import "container/heap"

// A DelayHandle is a scheduled wake-up. Cancelling it removes it from the
// timer queue so the callback can never run late.
type DelayHandle struct {
	sched    *Scheduler
	deadline VTimeInSec
	seq      uint64
	index    int
	fn       func()

	fired     bool
	cancelled bool
}

// Deadline returns the time at which the handle fires.
func (h *DelayHandle) Deadline() VTimeInSec {
	return h.deadline
}

// Fired reports whether the callback has run.
func (h *DelayHandle) Fired() bool {
	return h.fired
}

// Cancelled reports whether the handle was cancelled before firing.
func (h *DelayHandle) Cancelled() bool {
	return h.cancelled
}

// Cancel prevents the callback from running. Cancelling a fired or already
// cancelled handle does nothing.
func (h *DelayHandle) Cancel() {
	if h.fired || h.cancelled {
		return
	}

	h.cancelled = true
	if h.index >= 0 {
		heap.Remove(&h.sched.timers, h.index)
	}
}

type timerHeap []*DelayHandle

func (q timerHeap) Len() int { return len(q) }

// Less orders timers by deadline. Timers with the same deadline fire in the
// order they were created.
func (q timerHeap) Less(i, j int) bool {
	if q[i].deadline == q[j].deadline {
		return q[i].seq < q[j].seq
	}

	return q[i].deadline < q[j].deadline
}

func (q timerHeap) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerHeap) Push(x any) {
	h := x.(*DelayHandle)
	h.index = len(*q)
	*q = append(*q, h)
}

func (q *timerHeap) Pop() any {
	old := *q
	n := len(old)
	h := old[n-1]
	old[n-1] = nil
	h.index = -1
	*q = old[:n-1]

	return h
}
