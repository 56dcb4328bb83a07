package sniper

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/example/resy-sniper/internal/clock"
)

// Resolver turns a Target into a current SlotToken by polling the
// availability endpoint.
type Resolver struct {
	source  SlotSource
	cred    *credential
	clock   clock.Clock
	cadence Cadence
	retries int
	jitter  time.Duration
	ttl     time.Duration
	logger  *log.Logger
}

// NewResolver lists slots through source with tokens from auth. A nil auth
// leaves the source's own credentials in use.
func NewResolver(source SlotSource, auth AuthSource, clk clock.Clock, cfg Config, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		source:  source,
		cred:    newCredential(auth),
		clock:   clk,
		cadence: cfg.Cadence,
		retries: cfg.ResolveRetries,
		jitter:  cfg.RetryJitter,
		ttl:     cfg.TokenTTL,
		logger:  logger,
	}
}

// Resolve polls once. It returns the token for the best matching slot,
// ErrNotYetAvailable when nothing matches yet, ErrExpired once deadline has
// passed, or a *ResolutionError when the remote kept failing. A rejected auth
// token is refreshed once and the listing retried; ErrAuthFailure is returned
// when that fails too.
func (r *Resolver) Resolve(ctx context.Context, t Target, deadline time.Time) (SlotToken, error) {
	if !r.clock.Now().Before(deadline) {
		return SlotToken{}, ErrExpired
	}

	var (
		slots []Slot
		err   error
		tries int
	)
	authToken, err := r.cred.get(ctx)
	if err != nil {
		return SlotToken{}, err
	}
	for tries = 1; ; tries++ {
		slots, err = r.source.ListSlots(ctx, t, authToken)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return SlotToken{}, ctx.Err()
		}
		if errors.Is(err, ErrUnauthorized) {
			if authToken, err = r.cred.refresh(ctx); err != nil {
				return SlotToken{}, err
			}
			r.logger.Printf("sniper: auth token refreshed after a rejected listing")
			tries--
			continue
		}
		if tries > r.retries {
			return SlotToken{}, &ResolutionError{Tries: tries, Err: err}
		}
		if err := r.clock.Sleep(ctx, r.retryDelay()); err != nil {
			return SlotToken{}, err
		}
	}

	s, ok := chooseSlot(t, slots)
	if !ok {
		return SlotToken{}, ErrNotYetAvailable
	}
	now := r.clock.Now()
	ttl := r.ttl
	if s.ExpiresIn > 0 {
		ttl = s.ExpiresIn
	}
	return SlotToken{
		Value:      s.Token,
		Start:      s.Start,
		Day:        t.DayString(),
		PartySize:  t.PartySize,
		Type:       s.Type,
		TableID:    s.TableID,
		Price:      s.Price,
		ResolvedAt: now,
		ExpiresAt:  now.Add(ttl),
	}, nil
}

// Await re-polls until a token is found or deadline passes. Polls are
// spaced by the cadence relative to release, a local instant.
func (r *Resolver) Await(ctx context.Context, t Target, release, deadline time.Time) (SlotToken, error) {
	var lastTransient error
	for {
		tok, err := r.Resolve(ctx, t, deadline)
		switch {
		case err == nil:
			return tok, nil
		case errors.Is(err, ErrExpired):
			if lastTransient != nil {
				return SlotToken{}, errors.Join(ErrExpired, lastTransient)
			}
			return SlotToken{}, ErrExpired
		case errors.Is(err, ErrNotYetAvailable):
		case errors.Is(err, ErrResolutionTransient):
			lastTransient = err
			r.logger.Printf("sniper: %v", err)
		default:
			return SlotToken{}, err
		}

		now := r.clock.Now()
		wait := r.cadence.Interval(release.Sub(now))
		if left := deadline.Sub(now); wait > left {
			wait = left
		}
		if err := r.clock.Sleep(ctx, wait); err != nil {
			return SlotToken{}, err
		}
	}
}

func (r *Resolver) retryDelay() time.Duration {
	if r.jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(r.jitter)))
}
