// Package types provides the clock abstraction and shared error values
package types

import (
	"time"

	"github.com/coder/quartz"
)

// Clock provides an abstraction over time operations for testing.
// All scheduling in this module goes through AfterFunc so that a mock clock
// can drive retries, probes and watchdog checks deterministically.
type Clock interface {
	// Now returns the current time
	Now() time.Time
	// Since returns the time elapsed since t
	Since(t time.Time) time.Duration
	// AfterFunc calls f in its own goroutine after d has elapsed
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a stoppable pending callback
type Timer interface {
	// Stop prevents the timer from firing, reports whether it was stopped before firing
	Stop() bool
}

// quartzClock adapts a quartz.Clock (real or mock) to Clock
type quartzClock struct {
	clock quartz.Clock
}

// NewRealClock creates a clock backed by wall time
func NewRealClock() Clock {
	return &quartzClock{clock: quartz.NewReal()}
}

// FromQuartz wraps any quartz clock, typically a *quartz.Mock in tests
func FromQuartz(clock quartz.Clock) Clock {
	return &quartzClock{clock: clock}
}

func (c *quartzClock) Now() time.Time {
	return c.clock.Now()
}

func (c *quartzClock) Since(t time.Time) time.Duration {
	return c.clock.Since(t)
}

func (c *quartzClock) AfterFunc(d time.Duration, f func()) Timer {
	return &quartzTimer{timer: c.clock.AfterFunc(d, f)}
}

// quartzTimer wraps quartz.Timer
type quartzTimer struct {
	timer *quartz.Timer
}

func (t *quartzTimer) Stop() bool {
	return t.timer.Stop()
}

// OrReal returns clock, or a real clock when clock is nil
func OrReal(clock Clock) Clock {
	if clock == nil {
		return NewRealClock()
	}
	return clock
}
