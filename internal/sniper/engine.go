package sniper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/resy-sniper/internal/clock"
)

// Engine runs sniping sessions against one remote.
type Engine struct {
	remote Remote
	auth   AuthSource
	cfg    Config
	clock  clock.Clock
	logger *log.Logger
	newID  func() string
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithIDs overrides how attempt ids are generated.
func WithIDs(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

func New(remote Remote, auth AuthSource, cfg Config, opts ...Option) (*Engine, error) {
	if remote == nil || auth == nil {
		return nil, errors.New("sniper: remote and auth source are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		remote: remote,
		auth:   auth,
		cfg:    cfg,
		clock:  clock.NewSystem(),
		logger: log.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run is one started sniping session.
type Run struct {
	events <-chan Event
	done   chan struct{}

	outcome Outcome
	err     error
}

// Events is the run's progress stream. It ends with exactly one won or lost
// event and is then closed. It must be drained.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Wait blocks until the run is decided. The error is non-nil only when the
// run was cancelled or could not start.
func (r *Run) Wait() (Outcome, error) {
	<-r.done
	return r.outcome, r.err
}

// Start validates t and begins sniping the slot released at release, an
// instant on the remote clock.
func (e *Engine) Start(ctx context.Context, t Target, release time.Time) (*Run, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if release.IsZero() {
		return nil, fmt.Errorf("%w: release instant required", ErrInvalidTarget)
	}

	p := newPump()
	r := &Run{events: p.out, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		defer p.close()
		r.outcome, r.err = e.run(ctx, t, release, p.emit)
		kind := EventLost
		if r.outcome.Won {
			kind = EventWon
		}
		out := r.outcome
		p.emit(Event{Kind: kind, At: e.clock.Now(), Detail: out.String(), Outcome: &out})
	}()
	return r, nil
}

// Run starts a session and hands every progress event to fn, which may be
// nil, until the outcome is decided.
func (e *Engine) Run(ctx context.Context, t Target, release time.Time, fn func(Event)) (Outcome, error) {
	r, err := e.Start(ctx, t, release)
	if err != nil {
		return Outcome{}, err
	}
	for ev := range r.Events() {
		if fn != nil {
			fn(ev)
		}
	}
	return r.Wait()
}

func (e *Engine) run(ctx context.Context, t Target, release time.Time, emit func(Event)) (Outcome, error) {
	sess := NewSession(t)
	ts := NewTimeSync(e.remote, e.clock, e.cfg.SyncProbes, e.cfg.ClockTolerance)

	off, risks, err := e.syncClock(ctx, ts, emit)
	if err != nil {
		return lose(Outcome{Risks: risks}, err), err
	}
	wake := off.LocalWake(release)
	e.logger.Printf("sniper: venue=%s day=%s party=%d wake=%s offset=%s (±%s)",
		t.VenueID, t.DayString(), t.PartySize, wake.Format(time.RFC3339Nano), off.Offset, off.Uncertainty)

	resolver := NewResolver(e.remote, e.auth, e.clock, e.cfg, e.logger)
	emit(Event{Kind: EventResolving, At: e.clock.Now(), ETA: wake.Sub(e.clock.Now())})
	tok, err := resolver.Await(ctx, t, wake, wake.Add(e.cfg.ResolveDeadline))
	if err != nil {
		out := lose(Outcome{Risks: risks}, err)
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, nil
	}
	sess.SwapToken(&tok)
	e.logger.Printf("sniper: resolved slot %s (%s)", tok.Start.Format("15:04"), tok.Type)

	emit(Event{Kind: EventWaiting, At: e.clock.Now(), ETA: wake.Sub(e.clock.Now())})
	trig := NewTrigger(e.clock, ts, e.cfg, e.logger)
	trig.OnFinalApproach(func(ctx context.Context, planned time.Time) error {
		return e.renewToken(ctx, resolver, sess, planned, emit)
	})
	w, err := trig.WaitUntil(ctx, release, off)
	if err != nil {
		out := lose(Outcome{Risks: risks}, err)
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, nil
	}

	d := NewDispatcher(e.remote, resolver, e.clock, e.cfg, w.Planned)
	d.emit = emit
	d.logger = e.logger
	d.newID = e.newID
	out := d.Fire(ctx, sess, e.cfg.BurstWidth, e.cfg.TotalBudget)
	out.Risks = risks
	if !out.Won && ctx.Err() != nil {
		return out, ctx.Err()
	}
	return out, nil
}

// renewToken resolves the session's token again when it would be expired at
// planned, so the first burst does not pay for a listing. Only cancellation
// and auth failures are fatal; anything else leaves the session without a
// token for the dispatcher to resolve after the wake.
func (e *Engine) renewToken(ctx context.Context, r *Resolver, sess *Session, planned time.Time, emit func(Event)) error {
	tok := sess.Token()
	if tok != nil && !tok.Expired(planned) {
		return nil
	}
	now := e.clock.Now()
	e.logger.Printf("sniper: token expires before the wake, resolving again")
	emit(Event{Kind: EventResolving, At: now, ETA: planned.Sub(now)})
	fresh, err := r.Await(ctx, sess.Target, planned, planned)
	switch {
	case err == nil:
		sess.SwapToken(&fresh)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, ErrAuthFailure):
		return err
	default:
		e.logger.Printf("sniper: resolving before the wake failed: %v", err)
		sess.SwapToken(nil)
		return nil
	}
}

// syncClock estimates the offset, retrying while it stays uncertain. A
// persistently uncertain or unavailable clock is accepted as a risk unless
// the config is strict.
func (e *Engine) syncClock(ctx context.Context, ts *TimeSync, emit func(Event)) (ClockOffset, []Risk, error) {
	var (
		best    ClockOffset
		have    bool
		lastErr error
	)
	for i := 0; i < e.cfg.SyncAttempts; i++ {
		off, err := ts.Estimate(ctx)
		if ctx.Err() != nil {
			return ClockOffset{}, nil, ctx.Err()
		}
		if err == nil {
			return off, nil, nil
		}
		lastErr = err
		if errors.Is(err, ErrClockUncertain) && (!have || off.Uncertainty < best.Uncertainty) {
			best, have = off, true
		}
	}

	if e.cfg.StrictClock {
		return ClockOffset{}, nil, lastErr
	}
	if !have {
		// No usable sample at all: trust the local clock.
		best = ClockOffset{MeasuredAt: e.clock.Now()}
	}
	e.logger.Printf("sniper: proceeding with uncertain clock: %v", lastErr)
	emit(Event{Kind: EventRisk, At: e.clock.Now(), Risk: RiskClockUncertain, Detail: lastErr.Error()})
	return best, []Risk{RiskClockUncertain}, nil
}
