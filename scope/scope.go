// Package scope drives the oscilloscope module of the FPGA.
//
// Two analog channels stream into a circular buffer of 2^14 samples each.
// A capture arms the hardware trigger, waits until the trigger has fired and
// the post-trigger samples are written, and then reads both buffers back in
// time order. On top of single captures the package offers a free-running
// rolling display for long time spans and a loop that averages successive
// triggered captures.
//
// A Scope is not safe for concurrent use. Every method must run on the
// logical thread of the scheduler that backs its waiter. Methods whose name
// ends in Task run inside a coop task; the others return immediately or
// block through the waiter.
package scope

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/sarchlab/rpscope/blocking"
	"github.com/sarchlab/rpscope/coop"
	"github.com/sarchlab/rpscope/hooking"
	"github.com/sarchlab/rpscope/id"
	"github.com/sarchlab/rpscope/regio"
)

// HookPosCaptureArmed is triggered after the hardware has been armed.
var HookPosCaptureArmed = &hooking.HookPos{Name: "CaptureArmed"}

// HookPosCaptureAcquired is triggered after a trace has been read.
var HookPosCaptureAcquired = &hooking.HookPos{Name: "CaptureAcquired"}

// HookPosCaptureReset is triggered when a capture is abandoned.
var HookPosCaptureReset = &hooking.HookPos{Name: "CaptureReset"}

// CaptureInfo is the hook item of the capture hook positions.
type CaptureInfo struct {
	ID      string
	Config  TriggerConfig
	Rolling bool
	State   AcquisitionState
	Time    coop.VTimeInSec
}

// A Scope is the driver of one scope module.
type Scope struct {
	hooking.HookableBase

	name   string
	regs   regio.Bus
	waiter *blocking.Waiter
	sched  *coop.Scheduler
	sink   EventSink
	ids    id.IDGenerator
	log    zerolog.Logger

	cfg          TriggerConfig
	cfgGen       uint64
	rollingMode  bool
	chActive     [2]bool
	traceAverage int

	started   bool
	rolling   bool
	armedCfg  TriggerConfig
	captureID string
	armedAt   coop.VTimeInSec

	runState  RunningState
	loop      *coop.Task
	resume    *coop.Event
	avg       *RunningAverage
	lastCurve *Curve
}

// Name returns the name of the scope.
func (s *Scope) Name() string {
	return s.name
}

// Scheduler returns the scheduler the acquisition tasks run on.
func (s *Scope) Scheduler() *coop.Scheduler {
	return s.sched
}

// Config returns the configuration the next capture will use.
func (s *Scope) Config() TriggerConfig {
	return s.cfg
}

// Setup replaces the whole configuration after validating it.
func (s *Scope) Setup(cfg TriggerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.cfg = cfg
	s.settingsChanged()

	return nil
}

// TriggerSource returns the trigger source of the next capture.
func (s *Scope) TriggerSource() TriggerSource {
	return s.cfg.Source
}

// SetTriggerSource changes the trigger source.
func (s *Scope) SetTriggerSource(src TriggerSource) error {
	if !src.Valid() {
		return fmt.Errorf("%w: unknown trigger source %q",
			ErrInvalidArgument, src)
	}

	s.cfg.Source = src
	s.settingsChanged()

	return nil
}

// TriggerDelay returns the trigger delay in seconds.
func (s *Scope) TriggerDelay() float64 {
	return s.cfg.Delay
}

// SetTriggerDelay changes the trigger delay.
func (s *Scope) SetTriggerDelay(seconds float64) error {
	cfg := s.cfg
	cfg.Delay = seconds

	return s.Setup(cfg)
}

// Threshold returns the trigger threshold in volts.
func (s *Scope) Threshold() float64 {
	return s.cfg.Threshold
}

// SetThreshold changes the trigger threshold.
func (s *Scope) SetThreshold(volts float64) error {
	cfg := s.cfg
	cfg.Threshold = volts

	return s.Setup(cfg)
}

// Hysteresis returns the trigger hysteresis in volts.
func (s *Scope) Hysteresis() float64 {
	return s.cfg.Hysteresis
}

// SetHysteresis changes the trigger hysteresis.
func (s *Scope) SetHysteresis(volts float64) error {
	cfg := s.cfg
	cfg.Hysteresis = volts

	return s.Setup(cfg)
}

// Decimation returns the decimation factor.
func (s *Scope) Decimation() int {
	return s.cfg.Decimation
}

// SetDecimation changes the decimation factor. Sampling time and duration
// follow.
func (s *Scope) SetDecimation(d int) error {
	cfg := s.cfg
	cfg.Decimation = d

	return s.Setup(cfg)
}

// SamplingTime returns the time between two samples.
func (s *Scope) SamplingTime() float64 {
	return s.cfg.SamplingTime()
}

// SetSamplingTime picks the longest sampling time not above v. Values below
// the shortest sampling time are clamped to it and logged.
func (s *Scope) SetSamplingTime(v float64) error {
	if math.IsNaN(v) {
		return fmt.Errorf("%w: sampling time is NaN", ErrInvalidArgument)
	}

	d, clamped := decimationForSamplingTime(v)
	if clamped {
		s.log.Info().Float64("requested", v).
			Float64("sampling_time", SamplingTimeFor(d)).
			Msg("HardwareInconsistency: sampling time out of range, clamped")
	}

	return s.SetDecimation(d)
}

// Duration returns the time span of a capture.
func (s *Scope) Duration() float64 {
	return s.cfg.Duration()
}

// SetDuration picks the shortest duration not below v, so that a capture
// always covers the requested span. Values above the longest duration are
// clamped to it and logged.
func (s *Scope) SetDuration(v float64) error {
	if math.IsNaN(v) {
		return fmt.Errorf("%w: duration is NaN", ErrInvalidArgument)
	}

	d, clamped := decimationForDuration(v)
	if clamped {
		s.log.Info().Float64("requested", v).
			Float64("duration", DurationFor(d)).
			Msg("HardwareInconsistency: duration out of range, clamped")
	}

	return s.SetDecimation(d)
}

// Times returns the time axis of a capture taken with the current settings.
func (s *Scope) Times() []float64 {
	return s.cfg.Times()
}

// ChannelActive reports whether channel 1 or 2 is acquired by the rolling
// display.
func (s *Scope) ChannelActive(ch int) bool {
	if ch != 1 && ch != 2 {
		return false
	}

	return s.chActive[ch-1]
}

// SetChannelActive enables or disables channel 1 or 2.
func (s *Scope) SetChannelActive(ch int, active bool) error {
	if ch != 1 && ch != 2 {
		return fmt.Errorf("%w: channel %d", ErrInvalidArgument, ch)
	}

	s.chActive[ch-1] = active
	s.settingsChanged()

	return nil
}

// RollingMode reports whether the rolling display is requested.
func (s *Scope) RollingMode() bool {
	return s.rollingMode
}

// SetRollingMode requests or withdraws the rolling display. It only takes
// effect when the duration allows it.
func (s *Scope) SetRollingMode(on bool) {
	s.rollingMode = on
	s.settingsChanged()
}

// RollingModeAllowed reports whether the duration is long enough for the
// rolling display.
func (s *Scope) RollingModeAllowed() bool {
	return s.Duration() > RollingModeMinDuration
}

// RollingModeActive reports whether the loop uses the rolling display.
func (s *Scope) RollingModeActive() bool {
	return s.rollingMode && s.RollingModeAllowed()
}

// TraceAverage returns how many captures are averaged.
func (s *Scope) TraceAverage() int {
	return s.traceAverage
}

// SetTraceAverage changes how many captures are averaged.
func (s *Scope) SetTraceAverage(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: trace average %d", ErrInvalidArgument, n)
	}

	s.traceAverage = n
	s.avg.SetMax(n)

	return nil
}

// LastCurve returns the last curve emitted as display curve, or nil.
func (s *Scope) LastCurve() *Curve {
	return s.lastCurve
}

// settingsChanged marks the accumulated average as stale. The loop picks a
// new generation up before its next capture.
func (s *Scope) settingsChanged() {
	s.cfgGen++
}

func (s *Scope) emit(name string, c Curve) {
	if name == EventDisplayCurve {
		s.lastCurve = &c
	}

	s.sink.Emit(name, c)
}

func (s *Scope) invokeCaptureHook(pos *hooking.HookPos, state AcquisitionState) {
	if s.NumHooks() == 0 {
		return
	}

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    pos,
		Item: CaptureInfo{
			ID:      s.captureID,
			Config:  s.armedCfg,
			Rolling: s.rolling,
			State:   state,
			Time:    s.sched.Now(),
		},
	})
}

// Status is a snapshot of the scope for monitoring.
type Status struct {
	Name          string        `json:"name"`
	State         string        `json:"state"`
	RunningState  string        `json:"running_state"`
	Config        TriggerConfig `json:"config"`
	SamplingTime  float64       `json:"sampling_time"`
	Duration      float64       `json:"duration"`
	RollingActive bool          `json:"rolling_active"`
	TraceAverage  int           `json:"trace_average"`
	Averages      int           `json:"averages"`
	CaptureID     string        `json:"capture_id"`
}

// Status returns a snapshot of the scope.
func (s *Scope) Status() Status {
	state := "unknown"
	if st, err := s.State(); err == nil {
		state = st.String()
	}

	return Status{
		Name:          s.name,
		State:         state,
		RunningState:  s.runState.String(),
		Config:        s.cfg,
		SamplingTime:  s.SamplingTime(),
		Duration:      s.Duration(),
		RollingActive: s.RollingModeActive(),
		TraceAverage:  s.traceAverage,
		Averages:      s.avg.N(),
		CaptureID:     s.captureID,
	}
}

