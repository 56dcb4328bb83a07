package sniper

import (
	"context"
	"errors"
	"log"
	"runtime"
	"time"

	"github.com/example/resy-sniper/internal/clock"
)

// Wake reports when a Trigger returned control.
type Wake struct {
	Planned time.Time // local wake instant after the last refinement
	Awoke   time.Time
	Offset  ClockOffset
}

// Trigger suspends the caller until a release instant on the remote clock.
// It sleeps coarsely until LeadWindow before the wake instant, then corrects
// for timer overshoot with short sleeps and a final spin.
type Trigger struct {
	clock     clock.Clock
	sync      OffsetEstimator
	lead      time.Duration
	staleness time.Duration
	spin      time.Duration
	logger    *log.Logger

	approach func(ctx context.Context, planned time.Time) error
}

func NewTrigger(clk clock.Clock, sync OffsetEstimator, cfg Config, logger *log.Logger) *Trigger {
	if logger == nil {
		logger = log.Default()
	}
	return &Trigger{
		clock:     clk,
		sync:      sync,
		lead:      cfg.LeadWindow,
		staleness: cfg.SyncStaleness,
		spin:      cfg.SpinWindow,
		logger:    logger,
	}
}

// OnFinalApproach registers fn to run once the coarse sleep and any offset
// refinement are done, before fine correction starts. An error from fn ends
// WaitUntil.
func (t *Trigger) OnFinalApproach(fn func(ctx context.Context, planned time.Time) error) {
	t.approach = fn
}

// WaitUntil blocks until release - offset on the local clock. It never
// returns before the planned instant.
func (t *Trigger) WaitUntil(ctx context.Context, release time.Time, off ClockOffset) (Wake, error) {
	wake := off.LocalWake(release)

	if d := wake.Sub(t.clock.Now()) - t.lead; d > 0 {
		if err := t.clock.Sleep(ctx, d); err != nil {
			return Wake{}, err
		}
	}

	if t.sync != nil && t.staleness > 0 && t.clock.Now().Sub(off.MeasuredAt) > t.staleness {
		refined, err := t.sync.Estimate(ctx)
		switch {
		case ctx.Err() != nil:
			return Wake{}, ctx.Err()
		case err == nil, errors.Is(err, ErrClockUncertain) && refined.Uncertainty < off.Uncertainty:
			t.logger.Printf("sniper: refined clock offset %s -> %s (±%s)", off.Offset, refined.Offset, refined.Uncertainty)
			off = refined
			wake = off.LocalWake(release)
		default:
			t.logger.Printf("sniper: offset refresh failed, keeping previous estimate: %v", err)
		}
	}

	if t.approach != nil {
		if err := t.approach(ctx, wake); err != nil {
			return Wake{}, err
		}
	}

	for {
		now := t.clock.Now()
		left := wake.Sub(now)
		if left <= 0 {
			return Wake{Planned: wake, Awoke: now, Offset: off}, nil
		}
		if left > t.spin {
			if err := t.clock.Sleep(ctx, left-t.spin); err != nil {
				return Wake{}, err
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return Wake{}, err
		}
		runtime.Gosched()
	}
}
