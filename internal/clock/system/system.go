// Package system provides the wall clock used to stamp decisions.
package system

import "time"

// Clock stamps fetched, created and updated times in UTC, truncated to the
// second so persisted timestamps round-trip exactly.
type Clock struct{}

// New creates a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time without sub-second precision.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
