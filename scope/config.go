package scope

import (
	"fmt"
	"math"

	"github.com/sarchlab/rpscope/scope/regmap"
)

// TriggerSource names what starts a capture.
type TriggerSource string

// Trigger sources understood by the hardware.
const (
	SourceOff             TriggerSource = "off"
	SourceImmediately     TriggerSource = "immediately"
	SourceCh1PositiveEdge TriggerSource = "ch1_positive_edge"
	SourceCh1NegativeEdge TriggerSource = "ch1_negative_edge"
	SourceCh2PositiveEdge TriggerSource = "ch2_positive_edge"
	SourceCh2NegativeEdge TriggerSource = "ch2_negative_edge"
	SourceExtPositiveEdge TriggerSource = "ext_positive_edge"
	SourceExtNegativeEdge TriggerSource = "ext_negative_edge"
	SourceAsg0            TriggerSource = "asg0"
	SourceAsg1            TriggerSource = "asg1"
	SourceDSP             TriggerSource = "dsp"
)

// TriggerSources lists every valid source in register order.
func TriggerSources() []TriggerSource {
	names := regmap.TriggerSource.Names()
	sources := make([]TriggerSource, len(names))

	for i, n := range names {
		sources[i] = TriggerSource(n)
	}

	return sources
}

// Valid reports whether the hardware knows the source.
func (s TriggerSource) Valid() bool {
	_, err := regmap.TriggerSource.Value(string(s))
	return err == nil
}

// Trigger delay limits in seconds.
const (
	MinTriggerDelay = -10.0
	MaxTriggerDelay = regmap.BaseCycle * (1 << 30)
)

// RollingModeMinDuration is the shortest capture duration for which the
// rolling display is used.
const RollingModeMinDuration = 0.1

// Decimations lists the supported decimation factors in increasing order.
func Decimations() []int {
	d := make([]int, regmap.MaxDecimationExponent+1)
	for i := range d {
		d[i] = 1 << i
	}

	return d
}

// ValidDecimation reports whether d is a supported decimation factor.
func ValidDecimation(d int) bool {
	return d >= 1 && d <= 1<<regmap.MaxDecimationExponent && d&(d-1) == 0
}

// SamplingTimeFor returns the time between two samples at decimation d.
func SamplingTimeFor(d int) float64 {
	return regmap.BaseCycle * float64(d)
}

// DurationFor returns the time span of a full buffer at decimation d.
func DurationFor(d int) float64 {
	return SamplingTimeFor(d) * float64(regmap.BufferLength)
}

// decimationForDuration returns the smallest decimation whose duration is
// at least v. If none is long enough it returns the largest one and
// clamped is set.
func decimationForDuration(v float64) (d int, clamped bool) {
	ds := Decimations()
	for _, d := range ds {
		if DurationFor(d) >= v {
			return d, false
		}
	}

	return ds[len(ds)-1], true
}

// decimationForSamplingTime returns the largest decimation whose sampling
// time does not exceed v. If even the smallest one is too long, it returns
// the smallest and clamped is set.
func decimationForSamplingTime(v float64) (d int, clamped bool) {
	ds := Decimations()
	for i := len(ds) - 1; i >= 0; i-- {
		if SamplingTimeFor(ds[i]) <= v {
			return ds[i], false
		}
	}

	return ds[0], true
}

// TriggerConfig is the set of parameters one capture runs with. A capture
// takes a copy at arm time and never sees later changes.
type TriggerConfig struct {
	Source     TriggerSource `json:"source"`
	Decimation int           `json:"decimation"`

	// Delay is the time of the trigger relative to the middle of the trace,
	// in seconds.
	Delay float64 `json:"delay"`

	// Threshold and Hysteresis are in volts.
	Threshold  float64 `json:"threshold"`
	Hysteresis float64 `json:"hysteresis"`
}

// DefaultDecimation gives a capture duration of about one second.
const DefaultDecimation = 1 << 13

// DefaultTriggerConfig returns the configuration a new scope starts with.
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		Source:     SourceImmediately,
		Decimation: DefaultDecimation,
	}
}

// SamplingTime returns the time between two samples.
func (c TriggerConfig) SamplingTime() float64 {
	return SamplingTimeFor(c.Decimation)
}

// Duration returns the time span of the captured buffer.
func (c TriggerConfig) Duration() float64 {
	return DurationFor(c.Decimation)
}

// Validate checks that the configuration can be written to the hardware.
func (c TriggerConfig) Validate() error {
	if !c.Source.Valid() {
		return fmt.Errorf("%w: unknown trigger source %q",
			ErrInvalidArgument, c.Source)
	}

	if !ValidDecimation(c.Decimation) {
		return fmt.Errorf("%w: decimation %d is not a power of two in [1, %d]",
			ErrInvalidArgument, c.Decimation, 1<<regmap.MaxDecimationExponent)
	}

	if math.IsNaN(c.Delay) ||
		c.Delay < MinTriggerDelay || c.Delay > MaxTriggerDelay {
		return fmt.Errorf("%w: trigger delay %g s outside [%g, %g]",
			ErrInvalidArgument, c.Delay, MinTriggerDelay, MaxTriggerDelay)
	}

	if math.IsNaN(c.Threshold) || math.IsNaN(c.Hysteresis) {
		return fmt.Errorf("%w: threshold and hysteresis must be numbers",
			ErrInvalidArgument)
	}

	return nil
}

// DelayRegister returns the number of samples the hardware keeps writing
// after the trigger. With an immediate trigger the whole buffer follows the
// trigger. Otherwise the trigger sits delay seconds after the middle of the
// buffer. The count is kept in [1, 2^32-1].
func (c TriggerConfig) DelayRegister() uint32 {
	if c.Source == SourceImmediately {
		return regmap.BufferLength
	}

	count := math.RoundToEven(c.Delay/c.SamplingTime()) +
		float64(regmap.BufferLength/2)

	switch {
	case count <= 0:
		return 1
	case count > math.MaxUint32:
		return math.MaxUint32
	}

	return uint32(count)
}

// Times returns the time axis of a trace captured with this configuration.
// The trigger is at time zero. With an immediate trigger the axis starts at
// zero instead.
func (c TriggerConfig) Times() []float64 {
	dur := c.Duration()

	start := c.Delay - dur/2
	if c.Source == SourceImmediately {
		start = 0
	}

	return linspace(start, start+dur, regmap.BufferLength)
}

// linspace returns n points from start towards stop, stop excluded.
func linspace(start, stop float64, n int) []float64 {
	step := (stop - start) / float64(n)
	out := make([]float64, n)

	for i := range out {
		out[i] = start + float64(i)*step
	}

	return out
}
