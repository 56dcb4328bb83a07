package sniper

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTarget       = errors.New("invalid target")
	ErrInvalidConfig       = errors.New("invalid config")
	ErrClockUncertain      = errors.New("clock uncertain")
	ErrNotYetAvailable     = errors.New("slot not yet available")
	ErrResolutionTransient = errors.New("transient resolution error")
	ErrExpired             = errors.New("target window passed unresolved")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAuthFailure         = errors.New("auth failure")
	ErrStaleToken          = errors.New("stale token")
	ErrSlotGone            = errors.New("slot gone")
	ErrRateLimited         = errors.New("rate limited")
	ErrTransient           = errors.New("transient claim error")
	ErrBudgetExhausted     = errors.New("budget exhausted")
)

// Reason classifies why a claim attempt failed.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonStaleToken   Reason = "stale_token"
	ReasonSlotGone     Reason = "slot_gone"
	ReasonRateLimited  Reason = "rate_limited"
	ReasonUnauthorized Reason = "unauthorized"
	ReasonTransient    Reason = "transient"
)

// InvalidatesToken reports whether the reason means the token itself is no
// longer usable.
func (r Reason) InvalidatesToken() bool {
	return r == ReasonStaleToken || r == ReasonSlotGone
}

func (r Reason) sentinel() error {
	switch r {
	case ReasonStaleToken:
		return ErrStaleToken
	case ReasonSlotGone:
		return ErrSlotGone
	case ReasonRateLimited:
		return ErrRateLimited
	case ReasonUnauthorized:
		return ErrUnauthorized
	default:
		return ErrTransient
	}
}

// ClaimError is returned by a Claimer when the remote refuses a claim.
type ClaimError struct {
	Reason Reason
	Status int
	Err    error
}

func (e *ClaimError) Error() string {
	msg := string(e.Reason)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status=%d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ClaimError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason.sentinel()}
	}
	return []error{e.Reason.sentinel(), e.Err}
}

// ReasonOf maps a claim error to its reason. Errors that are not a
// ClaimError count as transient.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	var ce *ClaimError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	switch {
	case errors.Is(err, ErrStaleToken):
		return ReasonStaleToken
	case errors.Is(err, ErrSlotGone):
		return ReasonSlotGone
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrUnauthorized):
		return ReasonUnauthorized
	}
	return ReasonTransient
}

// ResolutionError is a transient listing failure that survived the
// resolver's immediate retries.
type ResolutionError struct {
	Tries int
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve slot after %d tries: %v", e.Tries, e.Err)
}

func (e *ResolutionError) Unwrap() []error {
	return []error{ErrResolutionTransient, e.Err}
}
