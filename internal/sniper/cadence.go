package sniper

import "time"

// Cadence maps time-until-release to the next polling interval: long
// intervals far from release, halving as it approaches, Min at and after it.
type Cadence struct {
	Min time.Duration
	Max time.Duration
}

// Interval returns the largest Max/2^k that is at most a quarter of the time
// left, never below Min.
func (c Cadence) Interval(untilRelease time.Duration) time.Duration {
	if untilRelease <= 0 {
		return c.Min
	}
	limit := untilRelease / 4
	d := c.Max
	for d > limit && d > c.Min {
		d /= 2
	}
	if d < c.Min {
		d = c.Min
	}
	return d
}
