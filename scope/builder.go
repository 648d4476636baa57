package scope

import (
	"github.com/rs/zerolog"
	"github.com/sarchlab/rpscope/blocking"
	"github.com/sarchlab/rpscope/id"
	"github.com/sarchlab/rpscope/regio"
	"github.com/sarchlab/rpscope/scope/regmap"
)

// Builder can build scopes.
type Builder struct {
	name   string
	bus    regio.Bus
	base   uint32
	waiter *blocking.Waiter
	sink   EventSink
	ids    id.IDGenerator
	log    zerolog.Logger
}

// MakeBuilder returns a Builder with the default base address, no event
// sink and a silent logger.
func MakeBuilder() Builder {
	return Builder{
		name: "scope",
		base: regmap.BaseAddr,
		log:  zerolog.Nop(),
	}
}

// WithName sets the name used in logs and hooks.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithBus sets the bus the scope registers live on.
func (b Builder) WithBus(bus regio.Bus) Builder {
	b.bus = bus
	return b
}

// WithBaseAddr sets the bus address of the scope module.
func (b Builder) WithBaseAddr(addr uint32) Builder {
	b.base = addr
	return b
}

// WithWaiter sets the waiter used by the blocking helpers. Its scheduler
// runs the acquisition tasks.
func (b Builder) WithWaiter(w *blocking.Waiter) Builder {
	b.waiter = w
	return b
}

// WithEventSink sets where curves are emitted.
func (b Builder) WithEventSink(s EventSink) Builder {
	b.sink = s
	return b
}

// WithIDGenerator sets how capture IDs are generated.
func (b Builder) WithIDGenerator(g id.IDGenerator) Builder {
	b.ids = g
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l zerolog.Logger) Builder {
	b.log = l
	return b
}

// Build creates a new Scope.
func (b Builder) Build() *Scope {
	if b.bus == nil {
		panic("scope: bus is not set")
	}

	if b.waiter == nil {
		panic("scope: waiter is not set")
	}

	s := &Scope{
		name:         b.name,
		regs:         regio.NewWindow(b.bus, b.base),
		waiter:       b.waiter,
		sched:        b.waiter.Scheduler(),
		sink:         b.sink,
		ids:          b.ids,
		log:          b.log.With().Str("component", b.name).Logger(),
		cfg:          DefaultTriggerConfig(),
		rollingMode:  true,
		chActive:     [2]bool{true, true},
		traceAverage: 1,
	}

	if s.sink == nil {
		s.sink = nopSink{}
	}

	if s.ids == nil {
		s.ids = id.NewIDGenerator()
	}

	s.avg = NewRunningAverage(s.traceAverage)
	s.resume = s.sched.NewEvent()
	s.resume.Set()

	return s
}
