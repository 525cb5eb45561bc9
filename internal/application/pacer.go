package application

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepContext is the production Sleeper.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pacer spaces out consecutive deletion attempts by a uniform random delay so
// a batch does not hammer sites at machine speed.
type Pacer struct {
	min, max time.Duration
	sleep    Sleeper

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPacer returns a pacer waiting between lo and hi. A nil rng is seeded
// randomly and a nil sleep uses a real timer.
func NewPacer(lo, hi time.Duration, rng *rand.Rand, sleep Sleeper) *Pacer {
	if hi < lo {
		lo, hi = hi, lo
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if sleep == nil {
		sleep = sleepContext
	}
	return &Pacer{min: lo, max: hi, sleep: sleep, rng: rng}
}

// Next returns the next delay.
func (p *Pacer) Next() time.Duration {
	spread := p.max - p.min
	if spread <= 0 {
		return p.min
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.min + time.Duration(p.rng.Int64N(int64(spread)+1))
}

// Wait sleeps for Next().
func (p *Pacer) Wait(ctx context.Context) error {
	return p.sleep(ctx, p.Next())
}
