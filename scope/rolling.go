package scope

import (
	"fmt"
	"math"

	"github.com/sarchlab/rpscope/scope/regmap"
)

// StartRolling lets the hardware write continuously. The trigger source is
// off, so the capture stays armed until it is reset.
func (s *Scope) StartRolling() error {
	if err := s.mustBeIdle(); err != nil {
		return err
	}

	if err := s.cfg.Validate(); err != nil {
		return err
	}

	return s.startAcquisition(s.cfg, true)
}

// IsRolling reports whether a free-running acquisition is active.
func (s *Scope) IsRolling() bool {
	return s.started && s.rolling
}

// RollingCurve reads the buffers of the active channels as they are right
// now. The write pointer is read before and after the buffers. Samples the
// hardware wrote in between may belong to either pass, so they are
// replaced with NaN.
func (s *Scope) RollingCurve() (*RollingWindow, error) {
	wp0, err := regmap.WritePointerCurrent.Get(s.regs)
	if err != nil {
		return nil, fmt.Errorf("scope: read write pointer: %w", err)
	}

	var raw [2][]uint32

	for ch := 1; ch <= 2; ch++ {
		if !s.chActive[ch-1] {
			continue
		}

		raw[ch-1], err = s.regs.ReadBlock(regmap.ChannelData(ch), regmap.BufferLength)
		if err != nil {
			return nil, fmt.Errorf("scope: read channel %d: %w", ch, err)
		}
	}

	wp1, err := regmap.WritePointerCurrent.Get(s.regs)
	if err != nil {
		return nil, fmt.Errorf("scope: read write pointer: %w", err)
	}

	const n = regmap.BufferLength

	first := int(wp0 % n)
	discard := int((wp1%n + n - wp0%n) % n)

	w := &RollingWindow{
		Times:     rollingTimes(s.rollingConfig()),
		Discarded: discard,
	}

	for i, words := range raw {
		if words == nil {
			continue
		}

		v := toVolts(words, first)
		for j := 0; j < discard; j++ {
			v[j] = math.NaN()
		}

		w.Ch[i] = v
	}

	return w, nil
}

func (s *Scope) rollingConfig() TriggerConfig {
	if s.IsRolling() {
		return s.armedCfg
	}

	return s.cfg
}

// rollingTimes shifts the capture time axis so that the newest sample is
// at zero.
func rollingTimes(cfg TriggerConfig) []float64 {
	times := cfg.Times()
	last := times[len(times)-1]

	for i := range times {
		times[i] -= last
	}

	return times
}
