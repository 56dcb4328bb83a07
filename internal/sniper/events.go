package sniper

import "time"

type EventKind string

const (
	EventResolving EventKind = "resolving"
	EventWaiting   EventKind = "waiting"
	EventFiring    EventKind = "firing"
	EventRisk      EventKind = "risk"
	EventWon       EventKind = "won"
	EventLost      EventKind = "lost"
)

// Event is one entry of a run's progress stream.
type Event struct {
	Kind   EventKind     `json:"kind"`
	At     time.Time     `json:"at"`
	ETA    time.Duration `json:"eta,omitempty"`
	Burst  int           `json:"burst,omitempty"`
	Risk   Risk          `json:"risk,omitempty"`
	Detail string        `json:"detail,omitempty"`

	// Outcome is set on the terminal event.
	Outcome *Outcome `json:"-"`
}

func (e Event) Terminal() bool {
	return e.Kind == EventWon || e.Kind == EventLost
}

// pump decouples the engine from the consumer of its events: emit never
// waits for the consumer, events queue up in order instead.
type pump struct {
	in  chan Event
	out chan Event
}

func newPump() *pump {
	p := &pump{in: make(chan Event, 16), out: make(chan Event)}
	go p.run()
	return p
}

func (p *pump) run() {
	var queue []Event
	in := p.in
	for in != nil || len(queue) > 0 {
		var (
			out  chan Event
			next Event
		)
		if len(queue) > 0 {
			out = p.out
			next = queue[0]
		}
		select {
		case e, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, e)
		case out <- next:
			queue = queue[1:]
		}
	}
	close(p.out)
}

func (p *pump) emit(e Event) {
	p.in <- e
}

func (p *pump) close() {
	close(p.in)
}
