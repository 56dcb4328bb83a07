package sniper

import (
	"fmt"
	"time"
)

type BackoffConfig struct {
	Base time.Duration
	Cap  time.Duration
}

// Config tunes a run. DefaultConfig is a reasonable starting point for
// venues that release at a fixed instant.
type Config struct {
	BurstWidth  int
	TotalBudget time.Duration
	LeadWindow  time.Duration
	// PollBackoff spaces bursts after a failed one.
	PollBackoff BackoffConfig

	AttemptTimeout time.Duration

	ClockTolerance time.Duration
	SyncProbes     int
	SyncAttempts   int
	SyncStaleness  time.Duration
	// StrictClock refuses to run when the offset stays uncertain.
	StrictClock bool

	// ResolveDeadline is how long after the wake instant resolution may
	// keep polling before the target counts as expired.
	ResolveDeadline time.Duration
	Cadence         Cadence
	ResolveRetries  int
	RetryJitter     time.Duration
	TokenTTL        time.Duration

	SpinWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		BurstWidth:      5,
		TotalBudget:     20 * time.Second,
		LeadWindow:      2 * time.Second,
		PollBackoff:     BackoffConfig{Base: 200 * time.Millisecond, Cap: 2 * time.Second},
		AttemptTimeout:  3 * time.Second,
		ClockTolerance:  150 * time.Millisecond,
		SyncProbes:      5,
		SyncAttempts:    3,
		SyncStaleness:   60 * time.Second,
		ResolveDeadline: 10 * time.Second,
		Cadence:         Cadence{Min: 250 * time.Millisecond, Max: 30 * time.Second},
		ResolveRetries:  3,
		RetryJitter:     50 * time.Millisecond,
		TokenTTL:        60 * time.Second,
		SpinWindow:      2 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	switch {
	case c.BurstWidth < 1:
		return fmt.Errorf("%w: burst_width must be >= 1", ErrInvalidConfig)
	case c.TotalBudget <= 0:
		return fmt.Errorf("%w: total_budget must be > 0", ErrInvalidConfig)
	case c.LeadWindow < 0:
		return fmt.Errorf("%w: lead_window must be >= 0", ErrInvalidConfig)
	case c.PollBackoff.Base <= 0 || c.PollBackoff.Cap < c.PollBackoff.Base:
		return fmt.Errorf("%w: poll_backoff needs 0 < base <= cap", ErrInvalidConfig)
	case c.AttemptTimeout <= 0:
		return fmt.Errorf("%w: attempt_timeout must be > 0", ErrInvalidConfig)
	case c.SyncProbes < 1 || c.SyncAttempts < 1:
		return fmt.Errorf("%w: sync probes and attempts must be >= 1", ErrInvalidConfig)
	case c.Cadence.Min <= 0 || c.Cadence.Max < c.Cadence.Min:
		return fmt.Errorf("%w: cadence needs 0 < min <= max", ErrInvalidConfig)
	case c.ResolveRetries < 0:
		return fmt.Errorf("%w: resolve_retries must be >= 0", ErrInvalidConfig)
	case c.TokenTTL <= 0:
		return fmt.Errorf("%w: token_ttl must be > 0", ErrInvalidConfig)
	}
	return nil
}
