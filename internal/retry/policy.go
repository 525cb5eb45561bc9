// Package retry decides whether a failed deletion task should be retried and
// how long to wait first.
package retry

import (
	"maps"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

const (
	// MaxDelay caps the computed backoff before jitter is applied.
	MaxDelay = time.Hour

	// MaxTaskAge is how long after creation a task stays retryable.
	MaxTaskAge = 30 * 24 * time.Hour

	jitterMin = 0.8
	jitterMax = 1.2
)

// Strategy is the retry schedule for one failure class.
type Strategy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Jitter      bool
}

// DefaultStrategies returns the built-in schedule per failure class.
func DefaultStrategies() map[model.FailureClass]Strategy {
	return map[model.FailureClass]Strategy{
		model.FailureNetwork:         {MaxAttempts: 5, BaseDelay: 30 * time.Second, Multiplier: 2, Jitter: true},
		model.FailureRateLimit:       {MaxAttempts: 3, BaseDelay: 300 * time.Second, Multiplier: 3, Jitter: false},
		model.FailureCaptcha:         {MaxAttempts: 2, BaseDelay: 600 * time.Second, Multiplier: 1, Jitter: false},
		model.FailureAuth:            {MaxAttempts: 3, BaseDelay: 60 * time.Second, Multiplier: 2, Jitter: true},
		model.FailureSiteUnavailable: {MaxAttempts: 5, BaseDelay: 120 * time.Second, Multiplier: 2, Jitter: true},
		model.FailureUnknown:         {MaxAttempts: 3, BaseDelay: 60 * time.Second, Multiplier: 2, Jitter: true},
	}
}

// Float64Source supplies uniform draws in [0, 1). *rand.Rand satisfies it.
type Float64Source interface {
	Float64() float64
}

// Option configures a Policy.
type Option func(*Policy)

// WithRand sets the jitter source. Tests pass a seeded *rand.Rand.
func WithRand(src Float64Source) Option {
	return func(p *Policy) { p.rng = src }
}

// WithStrategies replaces the strategy for each class present in s.
func WithStrategies(s map[model.FailureClass]Strategy) Option {
	return func(p *Policy) { maps.Copy(p.strategies, s) }
}

// Policy holds an immutable strategy table. The jitter source is its only
// mutable state and is guarded for concurrent use.
type Policy struct {
	strategies map[model.FailureClass]Strategy

	mu  sync.Mutex
	rng Float64Source
}

// NewPolicy returns a policy using DefaultStrategies unless overridden.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		strategies: DefaultStrategies(),
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Strategy returns the schedule for class, falling back to the unknown class.
func (p *Policy) Strategy(class model.FailureClass) Strategy {
	if s, ok := p.strategies[class]; ok {
		return s
	}
	return p.strategies[model.FailureUnknown]
}

// Strategies returns a copy of the strategy table.
func (p *Policy) Strategies() map[model.FailureClass]Strategy {
	return maps.Clone(p.strategies)
}

// Decision explains a ShouldRetry verdict.
type Decision struct {
	Retry       bool
	Class       model.FailureClass
	MaxAttempts int
	Reason      string
}

// Reasons a task is not retried.
const (
	ReasonMaxAttempts  = "max attempts reached"
	ReasonTooOld       = "task older than retry window"
	ReasonNonRetryable = "non-retryable error"
)

// ShouldRetry decides whether a failed task may be attempted again.
func (p *Policy) ShouldRetry(task model.DeletionTask, now time.Time) Decision {
	class := Classify(task.LastError)
	strategy := p.Strategy(class)
	d := Decision{Class: class, MaxAttempts: strategy.MaxAttempts}

	switch {
	case task.Attempts >= strategy.MaxAttempts:
		d.Reason = ReasonMaxAttempts
	case now.Sub(task.CreatedAt) > MaxTaskAge:
		d.Reason = ReasonTooOld
	case isNonRetryable(task.LastError):
		d.Reason = ReasonNonRetryable
	default:
		d.Retry = true
	}
	return d
}

// BaseDelay is the capped backoff for the given attempt, before jitter.
// Attempts below 1 are treated as 1.
func (p *Policy) BaseDelay(attempt int, class model.FailureClass) time.Duration {
	s := p.Strategy(class)
	attempt = max(attempt, 1)

	seconds := s.BaseDelay.Seconds() * math.Pow(s.Multiplier, float64(attempt-1))
	seconds = min(seconds, MaxDelay.Seconds())
	return time.Duration(seconds * float64(time.Second))
}

// Delay is BaseDelay with jitter applied, truncated to whole seconds.
func (p *Policy) Delay(attempt int, class model.FailureClass) time.Duration {
	base := p.BaseDelay(attempt, class)
	seconds := base.Seconds()
	if p.Strategy(class).Jitter {
		seconds *= jitterMin + (jitterMax-jitterMin)*p.draw()
	}
	return time.Duration(int64(seconds)) * time.Second
}

func (p *Policy) draw() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}
