package sniper

import (
	"context"
	"time"
)

// ServerTimestamp is a remote-generated time reading. Resolution is the
// granularity of the source (one second for an HTTP Date header).
type ServerTimestamp struct {
	At         time.Time
	Resolution time.Duration
}

type TimeSource interface {
	ServerTime(ctx context.Context) (ServerTimestamp, error)
}

// SlotSource lists bookable slots. An empty authToken leaves the choice of
// credentials to the source.
type SlotSource interface {
	ListSlots(ctx context.Context, t Target, authToken string) ([]Slot, error)
}

// Claimer books a slot. A refused claim returns a *ClaimError.
type Claimer interface {
	Claim(ctx context.Context, token SlotToken, authToken string) (confirmation string, err error)
}

// Remote is the reservation service as seen by the engine.
type Remote interface {
	TimeSource
	SlotSource
	Claimer
}

// AuthSource supplies the user's auth token. Refresh is called after the
// remote rejects the current one, from either the listing or the claim path.
type AuthSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

type attemptKey struct{}

// ContextWithAttempt attaches the attempt being dispatched to ctx so a
// Claimer can tag its request with the attempt's id.
func ContextWithAttempt(ctx context.Context, a Attempt) context.Context {
	return context.WithValue(ctx, attemptKey{}, a)
}

func AttemptFromContext(ctx context.Context) (Attempt, bool) {
	a, ok := ctx.Value(attemptKey{}).(Attempt)
	return a, ok
}
