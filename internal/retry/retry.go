package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"go-mensajeria/internal/apperr"
)

// Policy is a bounded exponential backoff. MaxAttempts counts the first try.
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Multiplier  float64
	Max         time.Duration
}

// Default mirrors the client's reconnect loop: three attempts starting at 1.5s, then escalating.
func Default() Policy {
	return Policy{MaxAttempts: 3, Initial: 1500 * time.Millisecond, Multiplier: 2, Max: 10 * time.Second}
}

// State is the position in a retry sequence: Attempt is the 1-based number of the
// attempt about to run, Delay the wait that precedes it.
type State struct {
	Attempt int
	Delay   time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Initial < 0 {
		p.Initial = 0
	}
	return p
}

// Start returns the state of the first attempt.
func (p Policy) Start() State {
	return State{Attempt: 1}
}

// Next returns the state after s failed, or false once the attempts are exhausted.
func (p Policy) Next(s State) (State, bool) {
	p = p.normalized()
	if s.Attempt >= p.MaxAttempts {
		return s, false
	}
	delay := p.Initial
	if s.Attempt > 1 {
		delay = time.Duration(float64(s.Delay) * p.Multiplier)
	}
	if p.Max > 0 && delay > p.Max {
		delay = p.Max
	}
	return State{Attempt: s.Attempt + 1, Delay: delay}, true
}

// schedule adapts the Policy state machine to backoff.BackOff.
type schedule struct {
	policy Policy
	state  State
}

func (b *schedule) NextBackOff() time.Duration {
	next, ok := b.policy.Next(b.state)
	if !ok {
		return backoff.Stop
	}
	b.state = next
	return next.Delay
}

func (b *schedule) Reset() { b.state = b.policy.Start() }

// Do runs op under the policy. Only transient failures are retried; every other error
// is returned immediately.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	p = p.normalized()
	b := &schedule{policy: p}
	b.Reset()
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && !apperr.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(p.MaxAttempts)))
}
