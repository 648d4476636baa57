package blocking

import "time"

// A Queue is a HostLoop fed by other goroutines. Functions posted to it run
// on the logical thread whenever a Waiter lets the host loop process
// events, which makes Post the goroutine-safe way into the scheduler's
// world.
type Queue struct {
	events chan func()
}

// NewQueue creates a Queue that buffers up to capacity pending functions.
func NewQueue(capacity int) *Queue {
	return &Queue{events: make(chan func(), capacity)}
}

// Post enqueues fn. It blocks while the queue is full.
func (q *Queue) Post(fn func()) {
	q.events <- fn
}

// Call posts fn and blocks until it has run on the logical thread. Calling
// it from the logical thread deadlocks.
func (q *Queue) Call(fn func()) {
	done := make(chan struct{})
	q.Post(func() {
		defer close(done)
		fn()
	})
	<-done
}

// Len returns the number of pending functions.
func (q *Queue) Len() int {
	return len(q.events)
}

// ProcessEvents waits up to max for the first pending function, then runs
// it and every other function already pending, and returns.
func (q *Queue) ProcessEvents(max time.Duration) {
	if max <= 0 {
		q.drain()
		return
	}

	timer := time.NewTimer(max)
	defer timer.Stop()

	select {
	case fn := <-q.events:
		fn()
		q.drain()
	case <-timer.C:
	}
}

func (q *Queue) drain() {
	for {
		select {
		case fn := <-q.events:
			fn()
		default:
			return
		}
	}
}
