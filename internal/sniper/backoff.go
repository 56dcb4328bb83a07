package sniper

import (
	"math/rand"
	"time"
)

// Backoff yields jittered retry delays that never decrease and never exceed
// Cap. Each delay is drawn from [ceil/2, ceil] where ceil doubles from Base.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration

	// Rand returns a value in [0, n). Defaults to math/rand.
	Rand func(n int64) int64

	attempt int
	last    time.Duration
}

func NewBackoff(cfg BackoffConfig) *Backoff {
	return &Backoff{Base: cfg.Base, Cap: cfg.Cap}
}

func (b *Backoff) Next() time.Duration {
	ceil := b.Cap
	if b.attempt < 32 {
		if d := b.Base << b.attempt; d > 0 && d < b.Cap {
			ceil = d
		}
	}
	b.attempt++

	half := ceil / 2
	d := half + time.Duration(b.rand(int64(ceil-half)+1))
	if d < b.last {
		d = b.last
	}
	if d > b.Cap {
		d = b.Cap
	}
	b.last = d
	return d
}

func (b *Backoff) Reset() {
	b.attempt = 0
	b.last = 0
}

func (b *Backoff) rand(n int64) int64 {
	if b.Rand != nil {
		return b.Rand(n)
	}
	return rand.Int63n(n)
}
