package sniper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCadenceInterval(t *testing.T) {
	c := Cadence{Min: 250 * time.Millisecond, Max: 30 * time.Second}
	tests := []struct {
		until time.Duration
		want  time.Duration
	}{
		{until: 10 * time.Minute, want: 30 * time.Second},
		{until: 2 * time.Minute, want: 30 * time.Second},
		{until: time.Minute, want: 15 * time.Second},
		{until: 10 * time.Second, want: 1875 * time.Millisecond},
		{until: time.Second, want: 250 * time.Millisecond},
		{until: 0, want: 250 * time.Millisecond},
		{until: -5 * time.Second, want: 250 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.until.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, c.Interval(tt.until))
		})
	}
}

func TestCadenceNeverGrowsTowardRelease(t *testing.T) {
	c := Cadence{Min: 250 * time.Millisecond, Max: 30 * time.Second}
	prev := c.Interval(time.Hour)
	for until := time.Hour; until > -time.Second; until -= 700 * time.Millisecond {
		got := c.Interval(until)
		assert.LessOrEqual(t, got, prev, "until=%s", until)
		assert.GreaterOrEqual(t, got, c.Min)
		assert.LessOrEqual(t, got, c.Max)
		prev = got
	}
}
