package sniper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/resy-sniper/internal/clock"
)

type engineFixture struct {
	clock  *clock.Manual
	remote *fakeRemote
	auth   *fakeAuth
	cfg    Config

	mu     sync.Mutex
	events []Event
}

func newFixture() *engineFixture {
	clk := clock.NewManual(release.Add(-30 * time.Second))
	return &engineFixture{
		clock:  clk,
		remote: &fakeRemote{clock: clk, rtt: 20 * time.Millisecond},
		auth:   &fakeAuth{token: "auth-1", refreshed: "auth-2"},
		cfg:    testConfig(),
	}
}

func (fx *engineFixture) run(t *testing.T, ctx context.Context) (Outcome, error) {
	t.Helper()
	var n int
	e, err := New(fx.remote, fx.auth, fx.cfg,
		WithClock(fx.clock),
		WithLogger(discardLog),
		WithIDs(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
	require.NoError(t, err)
	return e.Run(ctx, testTarget(), release, func(ev Event) {
		fx.mu.Lock()
		fx.events = append(fx.events, ev)
		fx.mu.Unlock()
	})
}

func (fx *engineFixture) kinds() []EventKind {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	var ks []EventKind
	for _, ev := range fx.events {
		ks = append(ks, ev.Kind)
	}
	return ks
}

func winOnIndex(idx int) func(context.Context, Attempt, SlotToken, string) (string, error) {
	return func(ctx context.Context, a Attempt, _ SlotToken, _ string) (string, error) {
		if a.Index == idx {
			return fmt.Sprintf("CONF-%d", idx), nil
		}
		return blockUntilCancelled(ctx)
	}
}

func TestEngineRun(t *testing.T) {
	t.Run("one attempt wins and the others are cancelled", func(t *testing.T) {
		fx := newFixture()
		fx.remote.claimFn = winOnIndex(3)

		out, err := fx.run(t, context.Background())
		require.NoError(t, err)
		require.True(t, out.Won)
		assert.Equal(t, "CONF-3", out.Confirmation)
		assert.Equal(t, 3, out.Winner.Index)
		assert.Equal(t, 1, out.Bursts)
		require.Len(t, out.Attempts, fx.cfg.BurstWidth)
		for _, a := range out.Attempts {
			if a.Index != 3 {
				assert.Equal(t, StateCancelled, a.State, "attempt %d", a.Index)
			}
		}
		assert.Empty(t, out.Reasons)
		assert.Empty(t, out.Risks)
		assert.False(t, out.Winner.StartedAt.Before(release))
		assert.Equal(t, []EventKind{EventResolving, EventWaiting, EventFiring, EventWon}, fx.kinds())
	})

	t.Run("rate limited bursts retry the same token", func(t *testing.T) {
		fx := newFixture()
		fx.remote.claimFn = func(ctx context.Context, a Attempt, _ SlotToken, _ string) (string, error) {
			if a.Burst == 1 {
				return "", claimErr(ReasonRateLimited, 429)
			}
			if a.Index == 1 {
				return "CONF", nil
			}
			return blockUntilCancelled(ctx)
		}

		out, err := fx.run(t, context.Background())
		require.NoError(t, err)
		require.True(t, out.Won)
		assert.Equal(t, 2, out.Bursts)
		assert.Equal(t, 1, fx.remote.lists())
		for _, tok := range fx.remote.claims() {
			assert.Equal(t, "tok-1", tok.Value)
		}
	})

	t.Run("an uncertain clock is accepted as a risk", func(t *testing.T) {
		fx := newFixture()
		fx.remote.rtt = 400 * time.Millisecond

		out, err := fx.run(t, context.Background())
		require.NoError(t, err)
		assert.True(t, out.Won)
		assert.Equal(t, []Risk{RiskClockUncertain}, out.Risks)
		assert.Contains(t, fx.kinds(), EventRisk)
	})

	t.Run("a strict clock refuses an uncertain offset", func(t *testing.T) {
		fx := newFixture()
		fx.remote.rtt = 400 * time.Millisecond
		fx.cfg.StrictClock = true

		out, err := fx.run(t, context.Background())
		require.ErrorIs(t, err, ErrClockUncertain)
		assert.False(t, out.Won)
		assert.Empty(t, fx.remote.claims())
		assert.Equal(t, []EventKind{EventLost}, fx.kinds())
	})

	t.Run("an unreachable clock falls back to the local one", func(t *testing.T) {
		fx := newFixture()
		fx.remote.timeErr = fmt.Errorf("dial tcp: connection refused")

		out, err := fx.run(t, context.Background())
		require.NoError(t, err)
		assert.True(t, out.Won)
		assert.Equal(t, []Risk{RiskClockUncertain}, out.Risks)
	})

	t.Run("a slot gone for good ends the run lost", func(t *testing.T) {
		fx := newFixture()
		fx.remote.listFn = func(call int, _ time.Time) ([]Slot, error) {
			if call == 1 {
				return []Slot{slotAt(at1900, "tok-1")}, nil
			}
			return nil, nil
		}
		fx.remote.claimFn = func(context.Context, Attempt, SlotToken, string) (string, error) {
			return "", claimErr(ReasonSlotGone, 412)
		}

		out, err := fx.run(t, context.Background())
		require.NoError(t, err)
		assert.False(t, out.Won)
		assert.ErrorIs(t, out.Err, ErrExpired)
		assert.Equal(t, 1, out.Bursts)
		require.NotEmpty(t, out.Reasons)
		assert.Contains(t, strings.Join(out.Reasons, "\n"), "slot_gone")
		assert.Equal(t, EventLost, fx.kinds()[len(fx.kinds())-1])
	})

	t.Run("persistent failures exhaust the budget", func(t *testing.T) {
		fx := newFixture()
		fx.remote.claimFn = func(context.Context, Attempt, SlotToken, string) (string, error) {
			return "", claimErr(ReasonTransient, 503)
		}

		out, err := fx.run(t, context.Background())
		require.NoError(t, err)
		assert.False(t, out.Won)
		assert.ErrorIs(t, out.Err, ErrBudgetExhausted)
		assert.Greater(t, out.Bursts, 1)
		assert.LessOrEqual(t, len(out.Reasons), maxReasons+1)

		bound := release.Add(fx.cfg.ResolveDeadline + fx.cfg.TotalBudget + fx.cfg.AttemptTimeout)
		assert.False(t, fx.clock.Now().After(bound))
	})

	t.Run("unauthorized refreshes once then fails", func(t *testing.T) {
		fx := newFixture()
		fx.remote.claimFn = func(context.Context, Attempt, SlotToken, string) (string, error) {
			return "", claimErr(ReasonUnauthorized, 401)
		}

		out, err := fx.run(t, context.Background())
		require.NoError(t, err)
		assert.False(t, out.Won)
		assert.ErrorIs(t, out.Err, ErrAuthFailure)
		assert.Equal(t, 1, fx.auth.refreshes)
		assert.Equal(t, 2, out.Bursts)
	})

	t.Run("a refreshed auth token is used for the next burst", func(t *testing.T) {
		fx := newFixture()
		fx.remote.claimFn = func(ctx context.Context, a Attempt, _ SlotToken, auth string) (string, error) {
			if auth == "auth-1" {
				return "", claimErr(ReasonUnauthorized, 419)
			}
			if a.Index == 1 {
				return "CONF", nil
			}
			return blockUntilCancelled(ctx)
		}

		out, err := fx.run(t, context.Background())
		require.NoError(t, err)
		assert.True(t, out.Won)
		assert.Equal(t, 1, fx.auth.refreshes)
	})

	t.Run("an unauthorized listing is refreshed and the run continues", func(t *testing.T) {
		fx := newFixture()
		fx.remote.listFn = func(call int, _ time.Time) ([]Slot, error) {
			if call == 1 {
				return nil, ErrUnauthorized
			}
			return []Slot{slotAt(at1900, "tok-1")}, nil
		}
		fx.remote.claimFn = winOnIndex(1)

		out, err := fx.run(t, context.Background())
		require.NoError(t, err)
		assert.True(t, out.Won)
		assert.Equal(t, 1, fx.auth.refreshes)
		auths, _ := fx.remote.listings()
		assert.Equal(t, []string{"auth-1", "auth-2"}, auths)
		for _, a := range fx.remote.claimAuths() {
			assert.Equal(t, "auth-2", a)
		}
	})

	t.Run("a listing refresh counts toward the single refresh per run", func(t *testing.T) {
		fx := newFixture()
		fx.remote.listFn = func(call int, _ time.Time) ([]Slot, error) {
			if call == 1 {
				return nil, ErrUnauthorized
			}
			return []Slot{slotAt(at1900, "tok-1")}, nil
		}
		fx.remote.claimFn = func(context.Context, Attempt, SlotToken, string) (string, error) {
			return "", claimErr(ReasonUnauthorized, 401)
		}

		out, err := fx.run(t, context.Background())
		require.NoError(t, err)
		assert.False(t, out.Won)
		assert.ErrorIs(t, out.Err, ErrAuthFailure)
		assert.Equal(t, 1, fx.auth.refreshes)
		assert.Equal(t, 1, out.Bursts)
	})

	t.Run("a rejected refreshed token during resolution ends the run", func(t *testing.T) {
		fx := newFixture()
		fx.remote.listFn = func(int, time.Time) ([]Slot, error) { return nil, ErrUnauthorized }

		out, err := fx.run(t, context.Background())
		require.NoError(t, err)
		assert.False(t, out.Won)
		assert.ErrorIs(t, out.Err, ErrAuthFailure)
		assert.Equal(t, 1, fx.auth.refreshes)
		assert.Empty(t, fx.remote.claims())
	})

	t.Run("a token expiring before wake is resolved again within the lead window", func(t *testing.T) {
		fx := newFixture()
		fx.remote.listFn = func(call int, _ time.Time) ([]Slot, error) {
			s := slotAt(at1900, fmt.Sprintf("tok-%d", call))
			s.ExpiresIn = 5 * time.Second
			return []Slot{s}, nil
		}

		out, err := fx.run(t, context.Background())
		require.NoError(t, err)
		require.True(t, out.Won)
		claims := fx.remote.claims()
		require.NotEmpty(t, claims)
		for _, tok := range claims {
			assert.Equal(t, "tok-2", tok.Value)
		}
		assert.Equal(t, []EventKind{EventResolving, EventWaiting, EventResolving, EventFiring, EventWon}, fx.kinds())

		var fired time.Time
		fx.mu.Lock()
		for _, ev := range fx.events {
			if ev.Kind == EventFiring {
				fired = ev.At
				break
			}
		}
		fx.mu.Unlock()
		_, listed := fx.remote.listings()
		require.Len(t, listed, 2)
		assert.True(t, listed[1].Before(fired), "re-resolved at %s, fired at %s", listed[1], fired)
		assert.False(t, listed[1].Before(fired.Add(-2*fx.cfg.LeadWindow)))
	})

	t.Run("a failed renewal before wake leaves resolution to the dispatcher", func(t *testing.T) {
		fx := newFixture()
		fx.remote.listFn = func(call int, now time.Time) ([]Slot, error) {
			if call > 1 && now.Before(release) {
				return nil, nil
			}
			s := slotAt(at1900, fmt.Sprintf("tok-%d", call))
			s.ExpiresIn = 5 * time.Second
			return []Slot{s}, nil
		}

		out, err := fx.run(t, context.Background())
		require.NoError(t, err)
		require.True(t, out.Won)
		claims := fx.remote.claims()
		require.NotEmpty(t, claims)
		for _, tok := range claims {
			assert.NotEqual(t, "tok-1", tok.Value)
			assert.False(t, tok.ResolvedAt.Before(release))
		}
	})

	t.Run("cancellation stops the run", func(t *testing.T) {
		fx := newFixture()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		fx.remote.claimFn = func(ctx context.Context, _ Attempt, _ SlotToken, _ string) (string, error) {
			cancel()
			return blockUntilCancelled(ctx)
		}

		out, err := fx.run(t, ctx)
		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, out.Won)
		kinds := fx.kinds()
		assert.Equal(t, EventLost, kinds[len(kinds)-1])
	})

	t.Run("exactly one terminal event ends the stream", func(t *testing.T) {
		fx := newFixture()
		_, err := fx.run(t, context.Background())
		require.NoError(t, err)
		terminal := 0
		for _, k := range fx.kinds() {
			if k == EventWon || k == EventLost {
				terminal++
			}
		}
		assert.Equal(t, 1, terminal)
	})
}

func TestEngineStart(t *testing.T) {
	fx := newFixture()
	e, err := New(fx.remote, fx.auth, fx.cfg, WithClock(fx.clock), WithLogger(discardLog))
	require.NoError(t, err)

	t.Run("invalid target", func(t *testing.T) {
		tgt := testTarget()
		tgt.PartySize = 0
		_, err := e.Start(context.Background(), tgt, release)
		assert.ErrorIs(t, err, ErrInvalidTarget)
	})

	t.Run("release required", func(t *testing.T) {
		_, err := e.Start(context.Background(), testTarget(), time.Time{})
		assert.ErrorIs(t, err, ErrInvalidTarget)
	})

	t.Run("terminal event carries the outcome", func(t *testing.T) {
		r, err := e.Start(context.Background(), testTarget(), release)
		require.NoError(t, err)
		var last Event
		for ev := range r.Events() {
			last = ev
		}
		out, err := r.Wait()
		require.NoError(t, err)
		require.True(t, last.Terminal())
		require.NotNil(t, last.Outcome)
		assert.Equal(t, out.Confirmation, last.Outcome.Confirmation)
	})
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BurstWidth = 0
	_, err := New(&fakeRemote{}, &fakeAuth{}, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(nil, &fakeAuth{}, testConfig())
	assert.Error(t, err)
}
