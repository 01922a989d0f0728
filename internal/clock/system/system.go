// Package system provides a real clock implementation.
package system

import "time"

// Clock implements ingest.Clock using time.Now in a fixed location.
type Clock struct {
	loc *time.Location
}

// New creates a Clock reporting UTC.
func New() *Clock {
	return &Clock{loc: time.UTC}
}

// NewIn creates a Clock reporting times in the named IANA location. "Local"
// and the empty string select the host's local zone.
func NewIn(name string) (*Clock, error) {
	if name == "" {
		name = "Local"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	return &Clock{loc: loc}, nil
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	if c == nil || c.loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.loc)
}
