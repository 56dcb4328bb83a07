package sniper

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/example/resy-sniper/internal/clock"
)

var (
	release    = time.Date(2026, 10, 20, 10, 0, 0, 0, time.UTC)
	day        = time.Date(2026, 11, 19, 0, 0, 0, 0, time.UTC)
	at1900     = day.Add(19 * time.Hour)
	discardLog = log.New(io.Discard, "", 0)
)

func testTarget() Target {
	return Target{
		VenueID:     "1505",
		Day:         day,
		PartySize:   2,
		Preferred:   []time.Time{at1900},
		WindowStart: day.Add(18 * time.Hour),
		WindowEnd:   day.Add(21 * time.Hour),
	}
}

// testConfig keeps the defaults but removes the spin phase so a manual
// clock without a step cannot stall the trigger.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SpinWindow = 0
	cfg.RetryJitter = 0
	return cfg
}

type fakeRemote struct {
	clock  *clock.Manual
	offset time.Duration
	rtt    time.Duration

	mu         sync.Mutex
	timeErr    error
	listFn     func(call int, now time.Time) ([]Slot, error)
	listCalls  int
	listAuths  []string
	listedAt   []time.Time
	claimFn    func(ctx context.Context, a Attempt, tok SlotToken, auth string) (string, error)
	claimCalls int
	claimed    []SlotToken
	auths      []string
}

func (f *fakeRemote) ServerTime(ctx context.Context) (ServerTimestamp, error) {
	f.mu.Lock()
	err := f.timeErr
	f.mu.Unlock()
	f.clock.Advance(f.rtt / 2)
	at := f.clock.Now().Add(f.offset)
	f.clock.Advance(f.rtt / 2)
	if err != nil {
		return ServerTimestamp{}, err
	}
	return ServerTimestamp{At: at}, nil
}

func (f *fakeRemote) ListSlots(ctx context.Context, t Target, auth string) ([]Slot, error) {
	f.mu.Lock()
	f.listCalls++
	f.listAuths = append(f.listAuths, auth)
	f.listedAt = append(f.listedAt, f.clock.Now())
	call := f.listCalls
	fn := f.listFn
	f.mu.Unlock()
	if fn == nil {
		return []Slot{slotAt(at1900, "tok-1")}, nil
	}
	return fn(call, f.clock.Now())
}

func (f *fakeRemote) Claim(ctx context.Context, tok SlotToken, auth string) (string, error) {
	a, _ := AttemptFromContext(ctx)
	f.mu.Lock()
	f.claimCalls++
	f.claimed = append(f.claimed, tok)
	f.auths = append(f.auths, auth)
	fn := f.claimFn
	f.mu.Unlock()
	if fn == nil {
		return fmt.Sprintf("conf-%d-%d", a.Burst, a.Index), nil
	}
	return fn(ctx, a, tok, auth)
}

func (f *fakeRemote) lists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeRemote) listings() ([]string, []time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.listAuths...), append([]time.Time(nil), f.listedAt...)
}

func (f *fakeRemote) claimAuths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.auths...)
}

func (f *fakeRemote) claims() []SlotToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SlotToken(nil), f.claimed...)
}

type fakeAuth struct {
	mu        sync.Mutex
	token     string
	refreshed string
	refreshes int
}

func (a *fakeAuth) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token, nil
}

func (a *fakeAuth) Refresh(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshes++
	if a.refreshed != "" {
		a.token = a.refreshed
	}
	return a.token, nil
}

func slotAt(start time.Time, token string) Slot {
	return Slot{Token: token, Start: start, End: start.Add(2 * time.Hour), MinSize: 1, MaxSize: 4, Type: "Dining Room"}
}

func claimErr(r Reason, status int) error {
	return &ClaimError{Reason: r, Status: status}
}

// blockUntilCancelled models a claim that is still in flight when the
// burst is decided.
func blockUntilCancelled(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
