package scopesim

import (
	"github.com/rs/zerolog"
	"github.com/sarchlab/rpscope/scope/regmap"
)

// A TimeTeller tells the current time in seconds.
type TimeTeller interface {
	Now() float64
}

// Builder can build simulated devices.
type Builder struct {
	clock   TimeTeller
	base    uint32
	signals [2]Signal
	latency float64
	log     zerolog.Logger
}

// MakeBuilder returns a Builder for a device at the default base address
// with grounded inputs and a trigger latency of one millisecond.
func MakeBuilder() Builder {
	return Builder{
		base:    regmap.BaseAddr,
		signals: [2]Signal{Constant(0), Constant(0)},
		latency: 0.001,
		log:     zerolog.Nop(),
	}
}

// WithClock sets the clock the device follows.
func (b Builder) WithClock(c TimeTeller) Builder {
	b.clock = c
	return b
}

// WithBaseAddr sets the bus address of the scope module.
func (b Builder) WithBaseAddr(addr uint32) Builder {
	b.base = addr
	return b
}

// WithSignal sets the signal at input 1 or 2.
func (b Builder) WithSignal(ch int, s Signal) Builder {
	b.signals[ch-1] = s
	return b
}

// WithTriggerLatency sets how long after arming an edge trigger fires.
func (b Builder) WithTriggerLatency(seconds float64) Builder {
	b.latency = seconds
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l zerolog.Logger) Builder {
	b.log = l
	return b
}

// Build creates a new Device.
func (b Builder) Build() *Device {
	if b.clock == nil {
		panic("scopesim: clock is not set")
	}

	d := &Device{
		clock:      b.clock,
		base:       b.base,
		signals:    b.signals,
		latency:    b.latency,
		log:        b.log.With().Str("component", "scopesim").Logger(),
		regs:       make(map[uint32]uint32),
		decimation: 1,
		writing:    true,
	}

	d.origin = d.clock.Now()
	d.segTime = d.origin

	return d
}
