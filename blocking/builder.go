package blocking

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/rpscope/coop"
)

// Builder can build waiters.
type Builder struct {
	sched *coop.Scheduler
	host  HostLoop
	slice time.Duration
	log   zerolog.Logger
}

// MakeBuilder returns a Builder without a host loop and with DefaultSlice.
func MakeBuilder() Builder {
	return Builder{
		slice: DefaultSlice,
		log:   zerolog.Nop(),
	}
}

// WithScheduler sets the scheduler to drive.
func (b Builder) WithScheduler(s *coop.Scheduler) Builder {
	b.sched = s
	return b
}

// WithHostLoop sets the foreign loop to interleave with. Without one the
// waiter drives the scheduler directly.
func (b Builder) WithHostLoop(h HostLoop) Builder {
	b.host = h
	return b
}

// WithSlice sets the longest time the host loop may spend per round.
func (b Builder) WithSlice(d time.Duration) Builder {
	b.slice = d
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l zerolog.Logger) Builder {
	b.log = l
	return b
}

// Build creates the Waiter.
func (b Builder) Build() *Waiter {
	if b.sched == nil {
		panic("blocking: waiter requires a scheduler")
	}

	return &Waiter{
		sched: b.sched,
		host:  b.host,
		slice: b.slice,
		log:   b.log.With().Str("component", "waiter").Logger(),
	}
}
