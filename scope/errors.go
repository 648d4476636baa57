package scope

import (
	"errors"
	"fmt"

	"github.com/sarchlab/rpscope/coop"
)

// ErrInvalidArgument is returned for settings that can never be applied,
// such as an unknown trigger source or a NaN delay. It matches
// coop.ErrInvalidArgument with errors.Is.
var ErrInvalidArgument = fmt.Errorf("scope: %w", coop.ErrInvalidArgument)

// ErrBusy is returned when a capture is requested while another one is in
// flight.
var ErrBusy = errors.New("scope: acquisition in progress")

// ErrNotReady is returned when a trace is read before the capture has
// completed.
var ErrNotReady = errors.New("scope: no trace ready")
