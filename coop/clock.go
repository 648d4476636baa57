package coop

import (
	"sync"
	"time"
)

// VTimeInSec is a point in time measured in seconds since the clock started.
type VTimeInSec = float64

// A Clock tells the scheduler what time it is and lets it wait for the next
// timer.
type Clock interface {
	// Now returns the current time.
	Now() VTimeInSec

	// SleepUntil returns once t has been reached.
	SleepUntil(t VTimeInSec)
}

// WallClock follows real time.
type WallClock struct {
	start time.Time
}

// NewWallClock creates a WallClock that starts counting now.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// Now returns the seconds elapsed since the clock was created.
func (c *WallClock) Now() VTimeInSec {
	return time.Since(c.start).Seconds()
}

// SleepUntil blocks the calling goroutine until t.
func (c *WallClock) SleepUntil(t VTimeInSec) {
	d := t - c.Now()
	if d <= 0 {
		return
	}

	time.Sleep(time.Duration(d * float64(time.Second)))
}

// VirtualClock is a discrete-event clock. Sleeping jumps straight to the
// requested time, so timers fire without real waiting.
type VirtualClock struct {
	lock sync.Mutex
	now  VTimeInSec
}

// NewVirtualClock creates a VirtualClock at time 0.
func NewVirtualClock() *VirtualClock {
	return &VirtualClock{}
}

// Now returns the current virtual time.
func (c *VirtualClock) Now() VTimeInSec {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.now
}

// SleepUntil moves the clock forward to t. The clock never goes backwards.
func (c *VirtualClock) SleepUntil(t VTimeInSec) {
	c.lock.Lock()
	if t > c.now {
		c.now = t
	}
	c.lock.Unlock()
}

// Advance moves the clock forward by d seconds.
func (c *VirtualClock) Advance(d VTimeInSec) {
	c.lock.Lock()
	if d > 0 {
		c.now += d
	}
	c.lock.Unlock()
}
