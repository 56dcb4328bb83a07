package sniper

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/resy-sniper/internal/clock"
)

// Dispatcher fires bursts of concurrent claim attempts until one succeeds
// or the budget runs out. It shares the resolver's auth token, so a run
// refreshes it at most once whichever path was rejected first.
type Dispatcher struct {
	claimer        Claimer
	cred           *credential
	resolver       *Resolver
	clock          clock.Clock
	backoff        *Backoff
	attemptTimeout time.Duration

	// No attempt starts before notBefore, even if the caller is early.
	notBefore time.Time

	emit   func(Event)
	logger *log.Logger
	newID  func() string
}

func NewDispatcher(claimer Claimer, resolver *Resolver, clk clock.Clock, cfg Config, notBefore time.Time) *Dispatcher {
	return &Dispatcher{
		claimer:        claimer,
		cred:           resolver.cred,
		resolver:       resolver,
		clock:          clk,
		backoff:        NewBackoff(cfg.PollBackoff),
		attemptTimeout: cfg.AttemptTimeout,
		notBefore:      notBefore,
		emit:           func(Event) {},
		logger:         log.Default(),
		newID:          uuid.NewString,
	}
}

// Fire runs bursts of width attempts against the session's token. The
// budget counts from notBefore, or from now when that has already passed.
func (d *Dispatcher) Fire(ctx context.Context, s *Session, width int, budget time.Duration) Outcome {
	start := d.clock.Now()
	if start.Before(d.notBefore) {
		start = d.notBefore
	}
	deadline := start.Add(budget)

	var burst int
	for {
		if err := ctx.Err(); err != nil {
			return lose(Resolve(s.Attempts()), err)
		}
		now := d.clock.Now()
		if !now.Before(deadline) {
			return lose(Resolve(s.Attempts()), ErrBudgetExhausted)
		}

		tok := s.Token()
		if tok == nil || tok.Expired(now) {
			if tok != nil {
				d.logger.Printf("sniper: token for %s expired, re-resolving", tok.Start.Format("15:04"))
			}
			s.SwapToken(nil)
			d.emit(Event{Kind: EventResolving, At: now, Burst: burst})
			fresh, err := d.resolver.Await(ctx, s.Target, now, deadline)
			if err != nil {
				return lose(Resolve(s.Attempts()), err)
			}
			s.SwapToken(&fresh)
			continue
		}

		authToken, err := d.cred.get(ctx)
		if err != nil {
			return lose(Resolve(s.Attempts()), err)
		}
		if err := d.waitNotBefore(ctx); err != nil {
			return lose(Resolve(s.Attempts()), err)
		}
		burst++
		d.emit(Event{Kind: EventFiring, At: d.clock.Now(), Burst: burst})
		attempts, won := d.burst(ctx, burst, *tok, authToken, width)
		s.record(attempts...)
		if won {
			return Resolve(s.Attempts())
		}

		var invalid, unauthorized bool
		for _, a := range attempts {
			switch {
			case a.Reason.InvalidatesToken():
				invalid = true
			case a.Reason == ReasonUnauthorized:
				unauthorized = true
			}
		}
		if unauthorized {
			if _, err := d.cred.refresh(ctx); err != nil {
				return lose(Resolve(s.Attempts()), err)
			}
			d.logger.Printf("sniper: auth token refreshed after burst %d", burst)
		}
		if invalid {
			d.logger.Printf("sniper: burst %d reported the token invalid", burst)
			s.SwapToken(nil)
		}

		wait := d.backoff.Next()
		if left := deadline.Sub(d.clock.Now()); wait > left {
			wait = left
		}
		if err := d.clock.Sleep(ctx, wait); err != nil {
			return lose(Resolve(s.Attempts()), err)
		}
	}
}

// burst launches width attempts behind one start gate and returns their
// results in completion order. On a win, attempts that had not reported yet
// are appended still pending.
func (d *Dispatcher) burst(ctx context.Context, n int, tok SlotToken, authToken string, width int) ([]Attempt, bool) {
	bctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan Attempt, width)
	gate := make(chan struct{})
	launched := make([]Attempt, width)
	for i := range launched {
		launched[i] = Attempt{ID: d.newID(), Burst: n, Index: i + 1, Token: tok.Value, State: StatePending}
		go func(a Attempt) {
			<-gate
			a.StartedAt = d.clock.Now()
			actx, acancel := context.WithTimeout(ContextWithAttempt(bctx, a), d.attemptTimeout)
			conf, err := d.claimer.Claim(actx, tok, authToken)
			acancel()
			a.FinishedAt = d.clock.Now()
			if err == nil {
				a.State = StateSuccess
				a.Confirmation = conf
			} else {
				a.State = StateFailed
				a.Reason = ReasonOf(err)
				a.Err = err
			}
			results <- a
		}(launched[i])
	}
	fired := d.clock.Now()
	close(gate)

	done, won := collect(results, width, cancel)
	if !won {
		return done, false
	}
	seen := make(map[int]bool, len(done))
	for _, a := range done {
		seen[a.Index] = true
	}
	for _, a := range launched {
		if !seen[a.Index] {
			a.StartedAt = fired
			done = append(done, a)
		}
	}
	return done, true
}

func (d *Dispatcher) waitNotBefore(ctx context.Context) error {
	for {
		now := d.clock.Now()
		if !now.Before(d.notBefore) {
			return nil
		}
		if err := d.clock.Sleep(ctx, d.notBefore.Sub(now)); err != nil {
			return err
		}
	}
}
