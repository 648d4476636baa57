// Package scopesim simulates the scope module of the FPGA.
//
// The Device implements regio.Bus and follows a clock instead of real
// hardware. Samples are produced lazily: whenever a register is accessed,
// the device works out how many samples the ADC would have written since
// the last access. With a virtual clock the simulation is deterministic.
//
// Edge triggers are not detected from the signal. An armed device with an
// edge source fires after a fixed latency, or once the pretrigger part of
// the buffer has been filled if that takes longer.
package scopesim

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sarchlab/rpscope/regio"
	"github.com/sarchlab/rpscope/scope/regmap"
)

const bufferLength = regmap.BufferLength

// A Device is a simulated scope module.
type Device struct {
	lock sync.Mutex

	clock   TimeTeller
	base    uint32
	signals [2]Signal
	latency float64
	log     zerolog.Logger

	regs   map[uint32]uint32
	origin float64

	decimation uint32
	segTime    float64
	segSample  uint64
	written    uint64
	writing    bool

	source    uint32
	delay     uint32
	autoRearm bool

	armed        bool
	armSample    uint64
	delayRunning bool
	trigSample   uint64
	trigCycles   uint64
}

// SetSignal replaces the signal at input 1 or 2.
func (d *Device) SetSignal(ch int, s Signal) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.signals[ch-1] = s
}

// Written returns the number of samples written since the device started.
func (d *Device) Written() uint64 {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.advance()

	return d.written
}

// Read implements regio.Bus.
func (d *Device) Read(addr uint32) (uint32, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	off, err := d.offset(addr)
	if err != nil {
		return 0, err
	}

	d.advance()

	return d.read(off), nil
}

// ReadBlock implements regio.Bus.
func (d *Device) ReadBlock(addr uint32, n int) ([]uint32, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	off, err := d.offset(addr)
	if err != nil {
		return nil, err
	}

	d.advance()

	out := make([]uint32, n)
	for i := range out {
		out[i] = d.read(off + uint32(4*i))
	}

	return out, nil
}

// Write implements regio.Bus.
func (d *Device) Write(addr uint32, value uint32) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	off, err := d.offset(addr)
	if err != nil {
		return err
	}

	d.advance()
	d.write(off, value)

	return nil
}

func (d *Device) offset(addr uint32) (uint32, error) {
	if addr < d.base || addr-d.base >= 0x30000 {
		return 0, fmt.Errorf("%w: address 0x%x is not in the scope module",
			regio.ErrOutOfRange, addr)
	}

	return addr - d.base, nil
}

func (d *Device) read(off uint32) uint32 {
	switch {
	case off >= regmap.Ch1Data && off < regmap.Ch1Data+4*bufferLength:
		return d.sample(0, (off-regmap.Ch1Data)/4)
	case off >= regmap.Ch2Data && off < regmap.Ch2Data+4*bufferLength:
		return d.sample(1, (off-regmap.Ch2Data)/4)
	}

	switch off {
	case regmap.Control:
		return d.control()
	case regmap.TriggerSource.Addr:
		return d.source
	case regmap.TriggerDelay.Addr:
		return d.delay
	case regmap.Decimation.Addr:
		return d.decimation
	case regmap.WritePointerCurrent.Addr:
		return uint32(d.written % bufferLength)
	case regmap.WritePointerTrigger.Addr:
		return uint32(d.trigSample % bufferLength)
	case regmap.SamplesSinceArm.Addr:
		return uint32(d.written - d.armSample)
	case regmap.VoltageIn1.Addr:
		return d.encode(d.signals[0](d.clock.Now()))
	case regmap.VoltageIn2.Addr:
		return d.encode(d.signals[1](d.clock.Now()))
	case regmap.CurrentTimestamp.Addr:
		return uint32(d.cycles(d.clock.Now()))
	case regmap.CurrentTimestamp.Addr + 4:
		return uint32(d.cycles(d.clock.Now()) >> 32)
	case regmap.TriggerTimestamp.Addr:
		return uint32(d.trigCycles)
	case regmap.TriggerTimestamp.Addr + 4:
		return uint32(d.trigCycles >> 32)
	case regmap.PretriggerOK.Addr:
		if d.written-d.armSample >= d.pretriggerSamples() {
			return 1
		}

		return 0
	}

	return d.regs[off]
}

func (d *Device) control() uint32 {
	var word uint32

	word = regio.SetBit(word, regmap.BitTriggerArmed, d.armed)
	word = regio.SetBit(word, regmap.BitTriggerDelayActive, d.delayRunning)
	word = regio.SetBit(word, regmap.BitAutoRearm, d.autoRearm)

	return word
}

func (d *Device) write(off uint32, value uint32) {
	switch off {
	case regmap.Control:
		d.writeControl(value)
	case regmap.TriggerSource.Addr:
		d.source = value
		if d.armed && value == regmap.SourceImmediately {
			d.trigger(d.written)
		}
	case regmap.TriggerDelay.Addr:
		d.delay = value
	case regmap.Decimation.Addr:
		d.setDecimation(value)
	default:
		d.regs[off] = value
	}
}

func (d *Device) writeControl(word uint32) {
	d.autoRearm = regio.GetBit(word, regmap.BitAutoRearm)

	if regio.GetBit(word, regmap.BitResetStateMachine) {
		d.armed = false
		d.delayRunning = false
		d.restartWriting()

		return
	}

	arm := regio.GetBit(word, regmap.BitTriggerArmed)
	switch {
	case arm && !d.armed:
		d.restartWriting()
		d.armed = true
		d.delayRunning = false
		d.armSample = d.written
	case !arm:
		d.armed = false
	}
}

func (d *Device) setDecimation(value uint32) {
	if value == 0 {
		value = 1
	}

	d.decimation = value
	d.segTime = d.clock.Now()
	d.segSample = d.written
}

func (d *Device) restartWriting() {
	if d.writing {
		return
	}

	d.writing = true
	d.segTime = d.clock.Now()
	d.segSample = d.written
}

func (d *Device) samplingTime() float64 {
	return regmap.BaseCycle * float64(d.decimation)
}

// advance writes the samples that the ADC produced up to now, fires a
// pending edge trigger and ends the post-trigger countdown.
func (d *Device) advance() {
	if !d.writing {
		return
	}

	now := d.clock.Now()

	target := d.segSample
	if now > d.segTime {
		target += uint64(math.Floor((now - d.segTime) / d.samplingTime()))
	}

	if d.armed && isEdgeSource(d.source) {
		if e := d.edgeSample(); target > e {
			d.trigger(e)
		}
	}

	if d.delayRunning {
		stop := d.trigSample + uint64(d.delay) + 1
		if target >= stop {
			target = stop
			d.delayRunning = false
			d.writing = false

			d.log.Debug().Uint64("trigger", d.trigSample).
				Uint64("last", stop-1).Msg("capture complete")
		}
	}

	if target > d.written {
		d.written = target
	}
}

func isEdgeSource(src uint32) bool {
	return src != regmap.SourceOff && src != regmap.SourceImmediately
}

// pretriggerSamples is how many samples must precede the trigger to fill
// the part of the buffer before it.
func (d *Device) pretriggerSamples() uint64 {
	if d.delay >= bufferLength {
		return 0
	}

	return uint64(bufferLength - d.delay)
}

func (d *Device) edgeSample() uint64 {
	wait := uint64(math.Ceil(d.latency / d.samplingTime()))
	if p := d.pretriggerSamples(); p > wait {
		wait = p
	}

	return d.armSample + wait
}

func (d *Device) trigger(at uint64) {
	d.armed = false
	d.delayRunning = true
	d.trigSample = at
	d.trigCycles = d.cycles(d.sampleTime(at))

	if at > d.written {
		d.written = at
	}

	d.log.Debug().Uint64("sample", at).Uint32("source", d.source).
		Msg("triggered")
}

func (d *Device) sampleTime(k uint64) float64 {
	return d.segTime + (float64(k)-float64(d.segSample))*d.samplingTime()
}

func (d *Device) cycles(t float64) uint64 {
	return uint64(math.Max(0, t-d.origin) * regmap.ClockRate)
}

// sample returns the raw content of buffer slot i of channel ch: the
// newest sample whose index maps to the slot.
func (d *Device) sample(ch int, i uint32) uint32 {
	if d.written == 0 {
		return 0
	}

	last := d.written - 1
	back := (last%bufferLength + bufferLength - uint64(i)) % bufferLength

	if back > last {
		return 0
	}

	k := last - back

	return d.encode(d.signals[ch](d.sampleTime(k)))
}

func (d *Device) encode(v float64) uint32 {
	raw, _ := regio.Denormalize(v, regmap.SampleBits, regmap.SampleNorm)
	return uint32(raw)
}
