// Package clock abstracts the current time so build metadata can be tested
// deterministically.
package clock

import "time"

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// Real implements Clock using the system time, in UTC.
type Real struct{}

// Now returns the current UTC time truncated to whole seconds.
func (Real) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Fixed implements Clock with a fixed time for testing.
type Fixed struct {
	Time time.Time
}

// Now returns the fixed time.
func (f Fixed) Now() time.Time {
	return f.Time
}
