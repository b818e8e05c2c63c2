// Package system provides the wall clock used for job timestamps.
package system

import "time"

// Clock implements gallery.Clock using time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to milliseconds, which is the
// precision exported in job envelopes.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
