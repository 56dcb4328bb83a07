package sniper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/resy-sniper/internal/clock"
)

// OffsetEstimator produces a fresh clock offset estimate.
type OffsetEstimator interface {
	Estimate(ctx context.Context) (ClockOffset, error)
}

// TimeSync estimates the offset between the local clock and the remote's.
type TimeSync struct {
	source    TimeSource
	clock     clock.Clock
	probes    int
	tolerance time.Duration
}

func NewTimeSync(source TimeSource, clk clock.Clock, probes int, tolerance time.Duration) *TimeSync {
	if probes < 1 {
		probes = 1
	}
	return &TimeSync{source: source, clock: clk, probes: probes, tolerance: tolerance}
}

// Estimate probes the remote several times and keeps the sample with the
// smallest round trip. When the resulting uncertainty exceeds the tolerance
// the estimate is still returned, along with an ErrClockUncertain error.
func (s *TimeSync) Estimate(ctx context.Context) (ClockOffset, error) {
	var (
		best    ClockOffset
		bestRTT time.Duration = -1
		lastErr error
	)
	for i := 0; i < s.probes; i++ {
		send := s.clock.Now()
		ts, err := s.source.ServerTime(ctx)
		recv := s.clock.Now()
		if err != nil {
			if ctx.Err() != nil {
				return ClockOffset{}, ctx.Err()
			}
			lastErr = err
			continue
		}
		rtt := recv.Sub(send)
		if rtt < 0 {
			rtt = 0
		}
		if bestRTT >= 0 && rtt >= bestRTT {
			continue
		}
		bestRTT = rtt
		remote := ts.At.Add(ts.Resolution / 2)
		best = ClockOffset{
			Offset:      remote.Sub(send.Add(rtt / 2)),
			Uncertainty: rtt/2 + ts.Resolution/2,
			MeasuredAt:  recv,
		}
	}
	if bestRTT < 0 {
		if lastErr == nil {
			lastErr = errors.New("no probes")
		}
		return ClockOffset{}, fmt.Errorf("time sync: %w", lastErr)
	}
	if s.tolerance > 0 && best.Uncertainty > s.tolerance {
		return best, fmt.Errorf("%w: uncertainty %s exceeds tolerance %s", ErrClockUncertain, best.Uncertainty, s.tolerance)
	}
	return best, nil
}
