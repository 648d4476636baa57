package scope

import "fmt"

// AcquisitionState tells where the capture state machine is.
type AcquisitionState int

// Acquisition states. A capture moves Idle, Armed, TriggerDelayRunning,
// DataReady and back to Idle once its trace has been read.
const (
	Idle AcquisitionState = iota
	Armed
	TriggerDelayRunning
	DataReady
)

func (s AcquisitionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case TriggerDelayRunning:
		return "trigger_delay_running"
	case DataReady:
		return "data_ready"
	}

	return fmt.Sprintf("AcquisitionState(%d)", int(s))
}

// RunningState tells what the acquisition loop is doing.
type RunningState int

// Loop states.
const (
	Stopped RunningState = iota
	RunningSingle
	RunningContinuous
	PausedSingle
	PausedContinuous
)

func (s RunningState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case RunningSingle:
		return "running_single"
	case RunningContinuous:
		return "running_continuous"
	case PausedSingle:
		return "paused_single"
	case PausedContinuous:
		return "paused_continuous"
	}

	return fmt.Sprintf("RunningState(%d)", int(s))
}

// IsRunning reports whether the loop is issuing captures.
func (s RunningState) IsRunning() bool {
	return s == RunningSingle || s == RunningContinuous
}

// IsPaused reports whether the loop is alive but not issuing captures.
func (s RunningState) IsPaused() bool {
	return s == PausedSingle || s == PausedContinuous
}
