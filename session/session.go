// Package session puts a scope together with everything it runs on: the
// scheduler, the host loop, the recording and the monitor.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sarchlab/rpscope/blocking"
	"github.com/sarchlab/rpscope/coop"
	"github.com/sarchlab/rpscope/datarecording"
	"github.com/sarchlab/rpscope/monitoring"
	"github.com/sarchlab/rpscope/scope"
	"github.com/sarchlab/rpscope/scope/scopesim"
	"github.com/sarchlab/rpscope/tracing"
)

// ErrNoHostLoop is returned by Serve on a session without a host loop.
var ErrNoHostLoop = errors.New("session: no host loop to serve")

// A Session owns one scope and its runtime.
type Session struct {
	id  string
	log zerolog.Logger

	clock  coop.Clock
	sched  *coop.Scheduler
	queue  *blocking.Queue
	waiter *blocking.Waiter
	quit   *coop.Event

	device *scopesim.Device
	scope  *scope.Scope

	outputPath   string
	recorder     datarecording.DataRecorder
	exec         *datarecording.ExecRecorder
	tracer       *tracing.DBTracer
	captureStats *tracing.TotalTimeTracer
	monitor      *monitoring.Monitor
}

// ID returns the unique ID of the session.
func (s *Session) ID() string {
	return s.id
}

// String names the session for logs.
func (s *Session) String() string {
	return fmt.Sprintf("session %s", s.id)
}

// Scope returns the scope driven by the session.
func (s *Session) Scope() *scope.Scope {
	return s.scope
}

// Scheduler returns the scheduler of the logical thread.
func (s *Session) Scheduler() *coop.Scheduler {
	return s.sched
}

// Waiter returns the blocking adapter of the logical thread.
func (s *Session) Waiter() *blocking.Waiter {
	return s.waiter
}

// Queue returns the host loop, or nil on virtual time.
func (s *Session) Queue() *blocking.Queue {
	return s.queue
}

// Device returns the simulated device, or nil when real hardware is used.
func (s *Session) Device() *scopesim.Device {
	return s.device
}

// DataRecorder returns the recorder, or nil when recording is disabled.
func (s *Session) DataRecorder() datarecording.DataRecorder {
	return s.recorder
}

// OutputPath returns the SQLite file name without extension, or "" when
// nothing is written to SQLite.
func (s *Session) OutputPath() string {
	return s.outputPath
}

// Note records a property of the run, such as a setting.
func (s *Session) Note(property, value string) {
	if s.exec != nil {
		s.exec.Note(property, value)
	}
}

// Monitor returns the monitor, or nil when monitoring is disabled.
func (s *Session) Monitor() *monitoring.Monitor {
	return s.monitor
}

// CaptureStats returns the tracer that times every capture.
func (s *Session) CaptureStats() *tracing.TotalTimeTracer {
	return s.captureStats
}

// Serve runs the logical thread until Quit is called. It must be called
// from the goroutine that owns the scope.
func (s *Session) Serve() error {
	if s.queue == nil {
		return ErrNoHostLoop
	}

	_, err := s.waiter.Run(func(t *coop.Task) (any, error) {
		return nil, s.quit.Wait(t)
	})

	return err
}

// Quit makes Serve return. It is safe to call from any goroutine.
func (s *Session) Quit() {
	s.queue.Post(s.quit.Set)
}

// Terminate stops the acquisition, finishes all tasks and closes the
// recording and the monitor.
func (s *Session) Terminate() {
	s.scope.Stop()
	s.sched.Shutdown()

	if s.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := s.monitor.StopServer(ctx); err != nil {
			s.log.Warn().Err(err).Msg("monitor shutdown")
		}
	}

	if s.recorder != nil {
		s.exec.End()

		if err := s.recorder.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close recording")
		}
	}

	s.log.Info().Str("session", s.id).
		Uint64("captures", s.captureStats.TaskCount()).
		Float64("capture_time", s.captureStats.TotalTime()).
		Msg("session terminated")
}
