package sniper

import "fmt"

const maxReasons = 10

// Resolve decides the outcome of a session from its attempts, listed in
// completion order. The success with the earliest completion time wins and
// every other attempt is reported cancelled: losing a race is not a request
// error.
func Resolve(attempts []Attempt) Outcome {
	out := Outcome{Attempts: append([]Attempt(nil), attempts...)}
	for _, a := range attempts {
		if a.Burst > out.Bursts {
			out.Bursts = a.Burst
		}
	}

	win := -1
	for i, a := range out.Attempts {
		if a.State != StateSuccess {
			continue
		}
		if win < 0 || a.FinishedAt.Before(out.Attempts[win].FinishedAt) {
			win = i
		}
	}

	if win >= 0 {
		for i := range out.Attempts {
			if i == win {
				continue
			}
			out.Attempts[i].State = StateCancelled
			out.Attempts[i].Reason = ReasonNone
			out.Attempts[i].Err = nil
			out.Attempts[i].Confirmation = ""
		}
		out.Won = true
		out.Winner = &out.Attempts[win]
		out.Confirmation = out.Winner.Confirmation
		return out
	}

	for i := range out.Attempts {
		a := &out.Attempts[i]
		switch a.State {
		case StatePending:
			a.State = StateCancelled
		case StateFailed:
			out.Reasons = append(out.Reasons, a.String())
		}
	}
	if len(out.Reasons) > maxReasons {
		out.Reasons = out.Reasons[len(out.Reasons)-maxReasons:]
	}
	return out
}

// lose finishes a lost outcome with its terminal cause, which is always
// reported as the last reason.
func lose(out Outcome, cause error) Outcome {
	out.Won = false
	out.Err = cause
	if cause != nil {
		out.Reasons = append(out.Reasons, cause.Error())
	}
	if len(out.Reasons) == 0 {
		out.Reasons = []string{fmt.Sprintf("no successful attempt in %d bursts", out.Bursts)}
	}
	return out
}

// collect is the single consumer of a burst's completion channel. It
// returns the attempts in completion order, stopping at the first success
// after calling cancel. Attempts still in flight are left to finish on
// their own; their results are never read.
func collect(results <-chan Attempt, n int, cancel func()) (done []Attempt, won bool) {
	for i := 0; i < n; i++ {
		a := <-results
		done = append(done, a)
		if a.State == StateSuccess {
			cancel()
			return done, true
		}
	}
	return done, false
}
