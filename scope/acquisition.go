package scope

import (
	"errors"
	"fmt"
	"time"

	"github.com/sarchlab/rpscope/coop"
	"github.com/sarchlab/rpscope/regio"
	"github.com/sarchlab/rpscope/scope/regmap"
)

// Polling periods in seconds.
const (
	dataReadyPoll  = 0.001
	pretriggerPoll = 0.001
	pretriggerHold = 0.1
	rollingPoll    = 0.02
)

// State derives the acquisition state from the hardware flags and whether
// a capture has been started.
func (s *Scope) State() (AcquisitionState, error) {
	if !s.started {
		return Idle, nil
	}

	word, err := s.regs.Read(regmap.Control)
	if err != nil {
		return Idle, fmt.Errorf("scope: read control: %w", err)
	}

	switch {
	case regio.GetBit(word, regmap.BitTriggerArmed):
		return Armed, nil
	case regio.GetBit(word, regmap.BitTriggerDelayActive):
		return TriggerDelayRunning, nil
	}

	return DataReady, nil
}

// CurveReady reports whether a completed trace is waiting to be read. A
// failing register read counts as not ready.
func (s *Scope) CurveReady() bool {
	st, err := s.State()
	return err == nil && st == DataReady
}

// Arm starts a capture with cfg. It fails with ErrBusy unless the state is
// Idle and with ErrInvalidArgument if cfg cannot be applied. Neither
// failure touches the hardware.
func (s *Scope) Arm(cfg TriggerConfig) error {
	if err := s.mustBeIdle(); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	return s.startAcquisition(cfg, false)
}

func (s *Scope) mustBeIdle() error {
	st, err := s.State()
	if err != nil {
		return err
	}

	if st != Idle {
		return fmt.Errorf("%w: state is %s", ErrBusy, st)
	}

	return nil
}

func (s *Scope) startAcquisition(cfg TriggerConfig, rolling bool) error {
	s.started = true
	s.rolling = rolling
	s.armedCfg = cfg
	s.captureID = s.ids.Generate()
	s.armedAt = s.sched.Now()

	if rolling {
		s.armedCfg.Source = SourceOff
	}

	if err := s.writeAcquisition(s.armedCfg); err != nil {
		s.log.Warn().Err(err).Str("capture", s.captureID).
			Msg("arming failed, resetting")

		if rerr := s.resetHardware(); rerr != nil {
			s.log.Warn().Err(rerr).Msg("reset after failed arm")
		}

		s.clearCapture()

		return fmt.Errorf("scope: arm: %w", err)
	}

	s.log.Debug().Str("capture", s.captureID).
		Str("source", string(s.armedCfg.Source)).
		Int("decimation", cfg.Decimation).
		Bool("rolling", rolling).
		Msg("armed")

	s.invokeCaptureHook(HookPosCaptureArmed, Armed)

	return nil
}

// writeAcquisition programs the hardware. The trigger source goes last
// because writing it is what fires an immediate trigger.
func (s *Scope) writeAcquisition(cfg TriggerConfig) error {
	if err := regmap.ResetStateMachine.Set(s.regs, true); err != nil {
		return err
	}

	if err := regmap.Decimation.Set(s.regs, uint64(cfg.Decimation)); err != nil {
		return err
	}

	if err := s.writeLevel(regmap.Threshold, "threshold", cfg.Threshold); err != nil {
		return err
	}

	if err := s.writeLevel(regmap.Hysteresis, "hysteresis", cfg.Hysteresis); err != nil {
		return err
	}

	if err := regmap.TriggerDelay.Set(s.regs, uint64(cfg.DelayRegister())); err != nil {
		return err
	}

	if err := regmap.TriggerArmed.Set(s.regs, true); err != nil {
		return err
	}

	return regmap.TriggerSource.Set(s.regs, string(cfg.Source))
}

func (s *Scope) writeLevel(r regio.FloatRegister, name string, v float64) error {
	clamped, err := r.Set(s.regs, v)
	if clamped {
		s.log.Info().Str("register", name).Float64("requested", v).
			Msg("HardwareInconsistency: value out of range, clamped")
	}

	return err
}

// Reset abandons the current capture, if any, and returns to Idle.
func (s *Scope) Reset() error {
	err := s.resetHardware()

	if s.started {
		s.log.Debug().Str("capture", s.captureID).Msg("capture reset")
		s.invokeCaptureHook(HookPosCaptureReset, Idle)
	}

	s.clearCapture()

	return err
}

func (s *Scope) resetHardware() error {
	return errors.Join(
		regmap.TriggerArmed.Set(s.regs, false),
		regmap.ResetStateMachine.Set(s.regs, true),
	)
}

func (s *Scope) clearCapture() {
	s.started = false
	s.rolling = false
	s.captureID = ""
}

// Trace reads the completed capture and returns to Idle. It returns
// ErrNotReady unless the state is DataReady.
func (s *Scope) Trace() (*Trace, error) {
	st, err := s.State()
	if err != nil {
		return nil, err
	}

	if st != DataReady {
		return nil, fmt.Errorf("%w: state is %s", ErrNotReady, st)
	}

	tr, err := s.readTrace(s.armedCfg)
	if err != nil {
		return nil, err
	}

	tr.ID = s.captureID

	s.invokeCaptureHook(HookPosCaptureAcquired, DataReady)
	s.clearCapture()
	s.emit(EventCurveAcquired, tr.Curve())

	return tr, nil
}

func (s *Scope) readTrace(cfg TriggerConfig) (*Trace, error) {
	wp, err := regmap.WritePointerTrigger.Get(s.regs)
	if err != nil {
		return nil, fmt.Errorf("scope: read trigger write pointer: %w", err)
	}

	delay, err := regmap.TriggerDelay.Get(s.regs)
	if err != nil {
		return nil, fmt.Errorf("scope: read trigger delay: %w", err)
	}

	// The sample after the last one written is the oldest in the buffer.
	first := int((uint64(wp) + uint64(delay) + 1) % regmap.BufferLength)

	tr := &Trace{
		Config: cfg,
		Times:  cfg.Times(),
	}

	for ch := 1; ch <= 2; ch++ {
		words, err := s.regs.ReadBlock(regmap.ChannelData(ch), regmap.BufferLength)
		if err != nil {
			return nil, fmt.Errorf("scope: read channel %d: %w", ch, err)
		}

		tr.Ch[ch-1] = toVolts(words, first)
	}

	return tr, nil
}

// toVolts converts raw buffer words to volts, starting at index first and
// wrapping around.
func toVolts(words []uint32, first int) []float64 {
	n := len(words)
	out := make([]float64, n)

	for i := range out {
		raw := words[(first+i)%n]
		out[i] = regio.Normalize(uint64(raw), regmap.SampleBits, regmap.SampleNorm)
	}

	return out
}

// CaptureTask performs one single-shot capture with the current settings
// inside task t. It waits out the capture duration, then polls every
// millisecond until the data is ready. A stale completed capture is
// discarded first. If t is cancelled while waiting, the capture is reset
// before CaptureTask returns.
func (s *Scope) CaptureTask(t *coop.Task) (*Trace, error) {
	st, err := s.State()
	if err != nil {
		return nil, err
	}

	if st == DataReady {
		if err := s.Reset(); err != nil {
			return nil, err
		}
	}

	if err := s.Arm(s.cfg); err != nil {
		return nil, err
	}

	captureID := s.captureID

	if err := s.waitForData(t); err != nil {
		if s.captureID == captureID {
			if rerr := s.Reset(); rerr != nil {
				s.log.Warn().Err(rerr).Msg("reset after interrupted capture")
			}
		}

		return nil, err
	}

	return s.Trace()
}

func (s *Scope) waitForData(t *coop.Task) error {
	remaining := s.armedCfg.Duration() - (s.sched.Now() - s.armedAt)
	if remaining > 0 {
		if err := t.Delay(remaining); err != nil {
			return err
		}
	}

	for {
		st, err := s.State()
		if err != nil {
			return err
		}

		switch st {
		case DataReady:
			return nil
		case Idle:
			return fmt.Errorf("%w: capture was reset", ErrNotReady)
		}

		if err := t.Delay(dataReadyPoll); err != nil {
			return err
		}
	}
}

// Curve performs a single-shot capture and blocks until it completes or
// timeout elapses. On timeout the capture task keeps running; call Reset or
// Stop to abandon it.
func (s *Scope) Curve(timeout time.Duration) (*Trace, error) {
	res, err := s.waiter.RunTimeout(func(t *coop.Task) (any, error) {
		return s.CaptureTask(t)
	}, timeout)
	if err != nil {
		return nil, err
	}

	return res.(*Trace), nil
}

// WaitForPretriggerTask polls the pretrigger flag every millisecond until
// the buffer holds enough samples before the trigger point, then waits a
// further 100 ms.
func (s *Scope) WaitForPretriggerTask(t *coop.Task) error {
	for {
		ok, err := regmap.PretriggerOK.Get(s.regs)
		if err != nil {
			return fmt.Errorf("scope: read pretrigger flag: %w", err)
		}

		if ok {
			break
		}

		if err := t.Delay(pretriggerPoll); err != nil {
			return err
		}
	}

	return t.Delay(pretriggerHold)
}

// WaitForPretrigger is the blocking form of WaitForPretriggerTask.
func (s *Scope) WaitForPretrigger() error {
	_, err := s.waiter.Run(func(t *coop.Task) (any, error) {
		return nil, s.WaitForPretriggerTask(t)
	})

	return err
}
