package coop

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument reports a malformed argument such as a NaN delay.
var ErrInvalidArgument = errors.New("coop: invalid argument")

// ErrCancelled is returned from suspension points of a cancelled task.
var ErrCancelled = errors.New("coop: task cancelled")

// ErrDeadlineExceeded is returned by RunUntilComplete when the deadline
// passes before the task finishes.
var ErrDeadlineExceeded = errors.New("coop: deadline exceeded")

// ErrStalled is returned by RunUntilComplete when no task is ready, no timer
// is pending and the awaited task is still unfinished.
var ErrStalled = errors.New("coop: no runnable task or timer left")

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("coop: task panicked: %v", e.Value)
}
