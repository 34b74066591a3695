// Package clock lets handlers and jobs ask for "now" without reading the
// wall clock directly, so that date-dependent behaviour can be pinned in tests.
package clock

import "time"

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// RealClock returns the system time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns T.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// FuncClock adapts a function to Clock.
type FuncClock func() time.Time

func (f FuncClock) Now() time.Time { return f() }

// NewReal returns the system clock. Only cmd/ should need it.
func NewReal() Clock { return RealClock{} }

// NewFixed returns a clock stopped at t.
func NewFixed(t time.Time) Clock { return FixedClock{T: t} }
