// Package regmap describes the register layout of the scope FPGA module.
// Offsets are relative to BaseAddr.
package regmap

import "github.com/sarchlab/rpscope/regio"

// BaseAddr is the bus address of the scope module.
const BaseAddr uint32 = 0x40100000

// BufferLength is the number of samples per channel in the circular buffer.
const BufferLength = 1 << 14

// SampleBits is the width of a raw ADC sample.
const SampleBits = 14

// SampleNorm converts a signed raw sample to volts in [-1, 1).
const SampleNorm = 1 << 13

// BaseCycle is the period of the undecimated ADC clock in seconds.
const BaseCycle = 8e-9

// ClockRate is the ADC clock frequency in Hz.
const ClockRate = 125e6

// MaxDecimationExponent bounds decimation to 2^0 .. 2^16.
const MaxDecimationExponent = 16

// Offsets of the sample buffers.
const (
	Ch1Data uint32 = 0x10000
	Ch2Data uint32 = 0x20000
)

// Offset of the control word shared by the state machine flags.
const Control uint32 = 0x0

// Bits of the control word.
const (
	BitTriggerArmed       uint = 0
	BitResetStateMachine  uint = 1
	BitTriggerDelayActive uint = 2
	BitAutoRearm          uint = 3
)

// Trigger source register values.
const (
	SourceOff             uint32 = 0
	SourceImmediately     uint32 = 1
	SourceCh1PositiveEdge uint32 = 2
	SourceCh1NegativeEdge uint32 = 3
	SourceCh2PositiveEdge uint32 = 4
	SourceCh2NegativeEdge uint32 = 5
	SourceExtPositiveEdge uint32 = 6
	SourceExtNegativeEdge uint32 = 7
	SourceAsg0            uint32 = 8
	SourceAsg1            uint32 = 9
	SourceDSP             uint32 = 10
)

// Registers of the scope module.
var (
	TriggerArmed        = regio.BoolRegister{Addr: Control, Bit: BitTriggerArmed}
	ResetStateMachine   = regio.BoolRegister{Addr: Control, Bit: BitResetStateMachine}
	TriggerDelayRunning = regio.BoolRegister{Addr: Control, Bit: BitTriggerDelayActive}
	AutoRearm           = regio.BoolRegister{Addr: Control, Bit: BitAutoRearm}

	TriggerSource = regio.SelectRegister{Addr: 0x4, Options: []regio.Option{
		{Name: "off", Value: SourceOff},
		{Name: "immediately", Value: SourceImmediately},
		{Name: "ch1_positive_edge", Value: SourceCh1PositiveEdge},
		{Name: "ch1_negative_edge", Value: SourceCh1NegativeEdge},
		{Name: "ch2_positive_edge", Value: SourceCh2PositiveEdge},
		{Name: "ch2_negative_edge", Value: SourceCh2NegativeEdge},
		{Name: "ext_positive_edge", Value: SourceExtPositiveEdge},
		{Name: "ext_negative_edge", Value: SourceExtNegativeEdge},
		{Name: "asg0", Value: SourceAsg0},
		{Name: "asg1", Value: SourceAsg1},
		{Name: "dsp", Value: SourceDSP},
	}}

	Threshold           = regio.FloatRegister{Addr: 0x8, Bits: SampleBits, Norm: SampleNorm}
	TriggerDelay        = regio.IntRegister{Addr: 0x10, Bits: 32}
	Decimation          = regio.IntRegister{Addr: 0x14, Bits: 17}
	WritePointerCurrent = regio.IntRegister{Addr: 0x18, Bits: 32}
	WritePointerTrigger = regio.IntRegister{Addr: 0x1C, Bits: 32}
	Hysteresis          = regio.FloatRegister{Addr: 0x20, Bits: SampleBits, Norm: SampleNorm}
	Average             = regio.BoolRegister{Addr: 0x28, Bit: 0}
	SamplesSinceArm     = regio.IntRegister{Addr: 0x2C, Bits: 32}
	TriggerDebounce     = regio.IntRegister{Addr: 0x90, Bits: 20}
	VoltageIn1          = regio.FloatRegister{Addr: 0x154, Bits: SampleBits, Norm: SampleNorm}
	VoltageIn2          = regio.FloatRegister{Addr: 0x158, Bits: SampleBits, Norm: SampleNorm}
	CurrentTimestamp    = regio.LongRegister{Addr: 0x15C, Bits: 64}
	TriggerTimestamp    = regio.LongRegister{Addr: 0x164, Bits: 64}
	PretriggerOK        = regio.BoolRegister{Addr: 0x16C, Bit: 0}
)

// ChannelData returns the buffer offset of channel 1 or 2.
func ChannelData(ch int) uint32 {
	if ch == 2 {
		return Ch2Data
	}

	return Ch1Data
}
