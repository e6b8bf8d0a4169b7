// Package clock abstracts time for the replay timer loop.
package clock

import "time"

// Clock is the time source the connection host arms session timers on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration
	// After returns a channel that receives the current time after duration d.
	After(d time.Duration) <-chan time.Time
}

// Real delegates to the standard time package.
type Real struct{}

func NewReal() Real {
	return Real{}
}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
