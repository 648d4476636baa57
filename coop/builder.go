package coop

import (
	"github.com/rs/zerolog"
	"github.com/sarchlab/rpscope/id"
)

// Builder can build schedulers.
type Builder struct {
	clock Clock
	ids   id.IDGenerator
	log   zerolog.Logger
}

// MakeBuilder returns a Builder with a wall clock, sequential task IDs and a
// silent logger.
func MakeBuilder() Builder {
	return Builder{
		log: zerolog.Nop(),
	}
}

// WithClock sets the clock the scheduler runs on.
func (b Builder) WithClock(c Clock) Builder {
	b.clock = c
	return b
}

// WithIDGenerator sets how task IDs are generated.
func (b Builder) WithIDGenerator(g id.IDGenerator) Builder {
	b.ids = g
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l zerolog.Logger) Builder {
	b.log = l
	return b
}

// Build creates a new Scheduler.
func (b Builder) Build() *Scheduler {
	s := &Scheduler{
		clock: b.clock,
		ids:   b.ids,
		log:   b.log.With().Str("component", "scheduler").Logger(),
		live:  make(map[*Task]struct{}),
	}

	if s.clock == nil {
		s.clock = NewWallClock()
	}

	if s.ids == nil {
		s.ids = id.NewIDGenerator()
	}

	return s
}
