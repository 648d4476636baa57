package scope

import (
	"errors"
	"time"

	"github.com/sarchlab/rpscope/coop"
)

// RunningState returns what the acquisition loop is doing.
func (s *Scope) RunningState() RunningState {
	return s.runState
}

// Averages returns how many captures the running average holds.
func (s *Scope) Averages() int {
	return s.avg.N()
}

// RunContinuous starts the continuous acquisition loop, or resumes it if it
// is paused. If the rolling display is active the loop polls the free
// running buffer every 20 ms. Otherwise it captures over and over and
// emits the running average after every capture.
func (s *Scope) RunContinuous() {
	switch s.runState {
	case RunningContinuous:
		return
	case PausedContinuous:
		s.Resume()
		return
	case RunningSingle, PausedSingle:
		s.Stop()
	}

	s.avg.Reset()
	s.runState = RunningContinuous
	s.resume.Set()
	s.loop = s.sched.Schedule(s.continuousLoop)

	s.log.Debug().Str("task", s.loop.ID()).Msg("continuous acquisition started")
}

// SingleTask starts a single acquisition that averages TraceAverage
// captures and returns the task. The task result is the averaged Curve.
// A loop that is already running is stopped first.
func (s *Scope) SingleTask() *coop.Task {
	if s.runState != Stopped {
		s.Stop()
	}

	s.avg.Reset()
	s.runState = RunningSingle
	s.resume.Set()
	s.loop = s.sched.Schedule(s.singleLoop)

	return s.loop
}

// Single runs a single acquisition and blocks until it has finished or
// timeout elapses. On timeout the acquisition keeps running.
func (s *Scope) Single(timeout time.Duration) (Curve, error) {
	res, err := s.waiter.WaitTimeout(s.SingleTask(), timeout)
	if err != nil {
		return Curve{}, err
	}

	return res.(Curve), nil
}

// Pause stops issuing new captures. A capture in flight completes and is
// added to the average, which is kept for Resume.
func (s *Scope) Pause() {
	switch s.runState {
	case RunningContinuous:
		s.runState = PausedContinuous
	case RunningSingle:
		s.runState = PausedSingle
	default:
		return
	}

	s.resume.Clear()
}

// Resume continues a paused loop with the accumulated average.
func (s *Scope) Resume() {
	switch s.runState {
	case PausedContinuous:
		s.runState = RunningContinuous
	case PausedSingle:
		s.runState = RunningSingle
	default:
		return
	}

	s.resume.Set()
}

// Stop cancels the loop, resets a capture in flight and discards the
// average.
func (s *Scope) Stop() {
	if s.loop != nil {
		s.loop.Cancel()
		s.loop = nil
	}

	if s.started {
		if err := s.Reset(); err != nil {
			s.log.Warn().Err(err).Msg("reset on stop")
		}
	}

	s.avg.Reset()
	s.runState = Stopped
	s.resume.Set()
}

func (s *Scope) continuousLoop(t *coop.Task) (any, error) {
	defer s.finishLoop(t)

	for {
		gen := s.cfgGen
		s.avg.Reset()

		var err error
		if s.RollingModeActive() {
			err = s.rollUntilChanged(t, gen)
		} else {
			err = s.averageUntilChanged(t, gen, 0)
		}

		if err != nil {
			return nil, err
		}
	}
}

// singleLoop averages TraceAverage captures. A settings change restarts the
// count.
func (s *Scope) singleLoop(t *coop.Task) (any, error) {
	defer s.finishLoop(t)

	for {
		gen := s.cfgGen
		s.avg.Reset()

		if err := s.averageUntilChanged(t, gen, s.traceAverage); err != nil {
			return nil, err
		}

		if gen == s.cfgGen {
			return s.averagedCurve(), nil
		}
	}
}

// finishLoop clears the loop state when t ends on its own. After Stop the
// loop field no longer points at t.
func (s *Scope) finishLoop(t *coop.Task) {
	if s.loop != t {
		return
	}

	s.loop = nil
	s.runState = Stopped
}

// averageUntilChanged captures and folds traces into the average until the
// settings generation moves on. With a positive limit it returns once that
// many captures have been averaged.
func (s *Scope) averageUntilChanged(t *coop.Task, gen uint64, limit int) error {
	count := 0

	for limit <= 0 || count < limit {
		if err := s.resume.Wait(t); err != nil {
			return err
		}

		if gen != s.cfgGen {
			return nil
		}

		tr, err := s.CaptureTask(t)
		if err != nil {
			return err
		}

		if gen != s.cfgGen {
			return nil
		}

		s.avg.Add(tr.Ch)
		count++

		s.emit(EventDisplayCurve, s.averagedCurve())
	}

	return nil
}

func (s *Scope) averagedCurve() Curve {
	return Curve{
		Kind:     CurveAveraged,
		Times:    s.cfg.Times(),
		Ch:       s.avg.Value(),
		Averages: s.avg.N(),
	}
}

// rollUntilChanged runs the rolling display until the settings generation
// moves on. Pausing freezes the display while the hardware keeps writing.
func (s *Scope) rollUntilChanged(t *coop.Task, gen uint64) (err error) {
	if s.started {
		if err := s.Reset(); err != nil {
			return err
		}
	}

	if err := s.StartRolling(); err != nil {
		return err
	}

	rollingID := s.captureID

	defer func() {
		if s.captureID != rollingID {
			return
		}

		if rerr := s.Reset(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	for {
		if err := s.resume.Wait(t); err != nil {
			return err
		}

		if err := t.Delay(rollingPoll); err != nil {
			return err
		}

		if gen != s.cfgGen {
			return nil
		}

		if !s.resume.IsSet() {
			continue
		}

		w, err := s.RollingCurve()
		if err != nil {
			return err
		}

		s.emit(EventDisplayCurve, w.Curve())
	}
}
