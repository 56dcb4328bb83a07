package sniper

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Target describes the reservation to snipe. It must not change once a run
// has started.
type Target struct {
	VenueID   string
	Day       time.Time
	PartySize int

	// Preferred start times, strict ordering: earlier entries win.
	Preferred []time.Time

	// Acceptable start times, inclusive on both ends.
	WindowStart time.Time
	WindowEnd   time.Time

	// Optional reservation types, e.g. "Dining Room". Empty accepts any.
	Types []string
}

func (t Target) Validate() error {
	if strings.TrimSpace(t.VenueID) == "" {
		return fmt.Errorf("%w: venue_id required", ErrInvalidTarget)
	}
	if t.PartySize < 1 {
		return fmt.Errorf("%w: party_size must be >= 1", ErrInvalidTarget)
	}
	if t.Day.IsZero() {
		return fmt.Errorf("%w: day required", ErrInvalidTarget)
	}
	if t.WindowStart.IsZero() || t.WindowEnd.IsZero() {
		return fmt.Errorf("%w: time window required", ErrInvalidTarget)
	}
	if t.WindowEnd.Before(t.WindowStart) {
		return fmt.Errorf("%w: window end must not be before window start", ErrInvalidTarget)
	}
	for _, p := range t.Preferred {
		if p.Before(t.WindowStart) || p.After(t.WindowEnd) {
			return fmt.Errorf("%w: preferred time %s outside window", ErrInvalidTarget, p.Format("15:04"))
		}
	}
	return nil
}

// DayString is the calendar day in the remote's YYYY-MM-DD form.
func (t Target) DayString() string {
	return t.Day.Format("2006-01-02")
}

// Slot is one candidate returned by the availability endpoint.
type Slot struct {
	Token    string
	Start    time.Time
	End      time.Time
	MinSize  int
	MaxSize  int
	Quantity int
	Type     string
	TableID  string
	Price    float64

	// ExpiresIn is the remote's validity hint for Token; zero means unknown.
	ExpiresIn time.Duration
}

// SlotToken is a resolved, short-lived booking token for one slot.
type SlotToken struct {
	Value     string
	Start     time.Time
	Day       string
	PartySize int
	Type      string
	TableID   string
	Price     float64

	ResolvedAt time.Time
	ExpiresAt  time.Time
}

func (t SlotToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// ClockOffset estimates remote_time - local_time.
type ClockOffset struct {
	Offset      time.Duration
	Uncertainty time.Duration
	MeasuredAt  time.Time
}

// LocalWake converts a release instant on the remote clock to local time.
func (o ClockOffset) LocalWake(release time.Time) time.Time {
	return release.Add(-o.Offset)
}

type AttemptState string

const (
	StatePending   AttemptState = "pending"
	StateSuccess   AttemptState = "success"
	StateFailed    AttemptState = "failed"
	StateCancelled AttemptState = "cancelled"
)

// Attempt is one outbound claim request.
type Attempt struct {
	ID    string
	Burst int
	Index int // 1-based position within the burst
	Token string

	StartedAt  time.Time
	FinishedAt time.Time

	State        AttemptState
	Reason       Reason
	Confirmation string
	Err          error
}

func (a Attempt) String() string {
	s := fmt.Sprintf("burst %d attempt %d: %s", a.Burst, a.Index, a.State)
	if a.Err != nil {
		s += ": " + a.Err.Error()
	}
	return s
}

// Risk tags a run with a condition the caller accepted instead of aborting.
type Risk string

const RiskClockUncertain Risk = "clock_uncertain"

// Outcome is the terminal result of a run.
type Outcome struct {
	Won          bool
	Confirmation string
	Winner       *Attempt
	Attempts     []Attempt

	// Reasons holds the last known failure reasons of a lost run.
	Reasons []string
	// Err is the terminal cause of a lost run.
	Err error

	Risks  []Risk
	Bursts int
}

func (o Outcome) String() string {
	if o.Won {
		return fmt.Sprintf("won (confirmation=%s, bursts=%d)", o.Confirmation, o.Bursts)
	}
	return fmt.Sprintf("lost (bursts=%d): %s", o.Bursts, strings.Join(o.Reasons, "; "))
}

// Session is the state of one run. It is owned by that run; the token is
// replaced between bursts only and read by every attempt of a burst.
type Session struct {
	Target Target

	token atomic.Pointer[SlotToken]

	mu       sync.Mutex
	attempts []Attempt
}

func NewSession(t Target) *Session {
	return &Session{Target: t}
}

// Token returns the current token, or nil when it must be re-resolved.
func (s *Session) Token() *SlotToken {
	return s.token.Load()
}

// SwapToken replaces the current token and returns the previous one.
func (s *Session) SwapToken(t *SlotToken) *SlotToken {
	return s.token.Swap(t)
}

func (s *Session) record(as ...Attempt) {
	s.mu.Lock()
	s.attempts = append(s.attempts, as...)
	s.mu.Unlock()
}

// Attempts returns a copy of every attempt recorded so far.
func (s *Session) Attempts() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Attempt(nil), s.attempts...)
}
