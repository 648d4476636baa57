package scope

import (
	"fmt"
	"math"

	"github.com/sarchlab/rpscope/regio"
	"github.com/sarchlab/rpscope/scope/regmap"
)

// VoltageIn returns the present voltage at input 1 or 2.
func (s *Scope) VoltageIn(ch int) (float64, error) {
	switch ch {
	case 1:
		return regmap.VoltageIn1.Get(s.regs)
	case 2:
		return regmap.VoltageIn2.Get(s.regs)
	}

	return 0, fmt.Errorf("%w: channel %d", ErrInvalidArgument, ch)
}

// FirstPoint returns the first raw buffer slot of channel 1 or 2 in volts.
func (s *Scope) FirstPoint(ch int) (float64, error) {
	if ch != 1 && ch != 2 {
		return 0, fmt.Errorf("%w: channel %d", ErrInvalidArgument, ch)
	}

	r := regio.FloatRegister{
		Addr: regmap.ChannelData(ch),
		Bits: regmap.SampleBits,
		Norm: regmap.SampleNorm,
	}

	return r.Get(s.regs)
}

// CurrentTimestamp returns the free-running cycle counter.
func (s *Scope) CurrentTimestamp() (uint64, error) {
	return regmap.CurrentTimestamp.Get(s.regs)
}

// TriggerTimestamp returns the cycle counter latched at the last trigger.
func (s *Scope) TriggerTimestamp() (uint64, error) {
	return regmap.TriggerTimestamp.Get(s.regs)
}

// TriggerEventAge returns the seconds since the last trigger.
func (s *Scope) TriggerEventAge() (float64, error) {
	now, err := s.CurrentTimestamp()
	if err != nil {
		return 0, err
	}

	trig, err := s.TriggerTimestamp()
	if err != nil {
		return 0, err
	}

	return float64(now-trig) / regmap.ClockRate, nil
}

// SamplesSinceArm returns how many samples were written since the trigger
// was armed.
func (s *Scope) SamplesSinceArm() (uint32, error) {
	return regmap.SamplesSinceArm.Get(s.regs)
}

// SetDecimationAveraging makes the hardware average the samples it drops
// while decimating instead of picking one.
func (s *Scope) SetDecimationAveraging(on bool) error {
	return regmap.Average.Set(s.regs, on)
}

// DecimationAveraging reports whether decimation averages samples.
func (s *Scope) DecimationAveraging() (bool, error) {
	return regmap.Average.Get(s.regs)
}

// SetTriggerDebounce sets how long the trigger is blocked after it fired.
// The value is rounded to clock cycles and clamped to what the register
// holds.
func (s *Scope) SetTriggerDebounce(seconds float64) error {
	if math.IsNaN(seconds) {
		return fmt.Errorf("%w: debounce is NaN", ErrInvalidArgument)
	}

	max := float64(uint64(1)<<regmap.TriggerDebounce.Bits - 1)

	cycles := math.Round(seconds * regmap.ClockRate)
	if cycles < 0 || cycles > max {
		cycles = math.Max(0, math.Min(cycles, max))
		s.log.Info().Float64("requested", seconds).
			Float64("debounce", cycles/regmap.ClockRate).
			Msg("HardwareInconsistency: debounce out of range, clamped")
	}

	return regmap.TriggerDebounce.Set(s.regs, uint64(cycles))
}

// TriggerDebounce returns the trigger debounce time in seconds.
func (s *Scope) TriggerDebounce() (float64, error) {
	cycles, err := regmap.TriggerDebounce.Get(s.regs)
	if err != nil {
		return 0, err
	}

	return float64(cycles) / regmap.ClockRate, nil
}

func (s *Scope) warnDeprecated(old, replacement string) {
	s.log.Warn().Str("attribute", old).Str("use", replacement).
		Msg("deprecated scope attribute")
}

// ThresholdCh1 returns the shared trigger threshold.
//
// Deprecated: both channels share one threshold. Use Threshold.
func (s *Scope) ThresholdCh1() float64 {
	s.warnDeprecated("threshold_ch1", "threshold")
	return s.Threshold()
}

// SetThresholdCh1 sets the shared trigger threshold.
//
// Deprecated: both channels share one threshold. Use SetThreshold.
func (s *Scope) SetThresholdCh1(volts float64) error {
	s.warnDeprecated("threshold_ch1", "threshold")
	return s.SetThreshold(volts)
}

// ThresholdCh2 returns the shared trigger threshold.
//
// Deprecated: both channels share one threshold. Use Threshold.
func (s *Scope) ThresholdCh2() float64 {
	s.warnDeprecated("threshold_ch2", "threshold")
	return s.Threshold()
}

// SetThresholdCh2 sets the shared trigger threshold.
//
// Deprecated: both channels share one threshold. Use SetThreshold.
func (s *Scope) SetThresholdCh2(volts float64) error {
	s.warnDeprecated("threshold_ch2", "threshold")
	return s.SetThreshold(volts)
}

// HysteresisCh1 returns the shared trigger hysteresis.
//
// Deprecated: both channels share one hysteresis. Use Hysteresis.
func (s *Scope) HysteresisCh1() float64 {
	s.warnDeprecated("hysteresis_ch1", "hysteresis")
	return s.Hysteresis()
}

// SetHysteresisCh1 sets the shared trigger hysteresis.
//
// Deprecated: both channels share one hysteresis. Use SetHysteresis.
func (s *Scope) SetHysteresisCh1(volts float64) error {
	s.warnDeprecated("hysteresis_ch1", "hysteresis")
	return s.SetHysteresis(volts)
}

// HysteresisCh2 returns the shared trigger hysteresis.
//
// Deprecated: both channels share one hysteresis. Use Hysteresis.
func (s *Scope) HysteresisCh2() float64 {
	s.warnDeprecated("hysteresis_ch2", "hysteresis")
	return s.Hysteresis()
}

// SetHysteresisCh2 sets the shared trigger hysteresis.
//
// Deprecated: both channels share one hysteresis. Use SetHysteresis.
func (s *Scope) SetHysteresisCh2(volts float64) error {
	s.warnDeprecated("hysteresis_ch2", "hysteresis")
	return s.SetHysteresis(volts)
}
