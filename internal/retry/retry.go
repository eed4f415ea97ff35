// Package retry runs an operation with bounded exponential backoff. Only
// failures classified as transient are retried; permanent failures and an
// exhausted budget propagate immediately.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	apierrors "github.com/zhengjr9/genrelay/internal/errors"
)

// Policy bounds one logical call chain.
type Policy struct {
	MaxRetries   int           `mapstructure:"max-retries" validate:"gte=0"`
	InitialDelay time.Duration `mapstructure:"retry-initial-delay" validate:"gt=0"`
	Multiplier   float64       `mapstructure:"retry-multiplier" validate:"gt=1"`
	// MaxDelay caps a single delay; zero leaves the schedule uncapped.
	MaxDelay time.Duration `mapstructure:"retry-max-delay" validate:"gte=0"`
}

// DefaultPolicy is three retries starting at one second, doubling each time.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		Multiplier:   2,
	}
}

// Validate reports a policy that cannot produce a sane schedule.
func (p Policy) Validate() error {
	switch {
	case p.MaxRetries < 0:
		return fmt.Errorf("retry: max retries must be >= 0, got %d", p.MaxRetries)
	case p.InitialDelay <= 0:
		return fmt.Errorf("retry: initial delay must be > 0, got %s", p.InitialDelay)
	case p.Multiplier <= 1:
		return fmt.Errorf("retry: multiplier must be > 1, got %g", p.Multiplier)
	case p.MaxDelay < 0:
		return fmt.Errorf("retry: max delay must be >= 0, got %s", p.MaxDelay)
	}
	return nil
}

// schedule returns a jitter-free exponential backoff for p.
func (p Policy) schedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = maxDuration
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.Reset()
	return b
}

// Budget is the total backoff time of a chain that spends every retry. It
// saturates at the largest time.Duration instead of overflowing.
func (p Policy) Budget() time.Duration {
	if p.Validate() != nil {
		return 0
	}
	sched := p.schedule()
	var total time.Duration
	for i := 0; i < p.MaxRetries && total < maxDuration; i++ {
		total = AddDurations(total, sched.NextBackOff())
	}
	return total
}

// ChainTimeout bounds a whole chain: every attempt at perAttempt plus the
// backoff budget, saturating like Budget.
func (p Policy) ChainTimeout(perAttempt time.Duration) time.Duration {
	total := p.Budget()
	for i := 0; i <= p.MaxRetries && total < maxDuration; i++ {
		total = AddDurations(total, perAttempt)
	}
	return total
}

const maxDuration = time.Duration(math.MaxInt64)

// AddDurations returns a+b for non-negative durations, clamped to the largest
// time.Duration.
func AddDurations(a, b time.Duration) time.Duration {
	if b > maxDuration-a {
		return maxDuration
	}
	return a + b
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// NotifyFunc observes a transient failure before the backoff delay.
// attempt is 1-based.
type NotifyFunc func(attempt int, err error, delay time.Duration)

type options struct {
	sleep  SleepFunc
	notify NotifyFunc
}

type Option func(*options)

// WithSleep replaces the wall-clock sleep, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WithNotify registers an observer called before every retry.
func WithNotify(fn NotifyFunc) Option {
	return func(o *options) { o.notify = fn }
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs op until it succeeds, fails permanently, or the retry budget is
// spent. Attempts are strictly sequential; the delay before retry k+1 is the
// delay before retry k times the policy multiplier.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, err
	}

	o := options{sleep: Sleep}
	for _, opt := range opts {
		opt(&o)
	}

	sched := p.schedule()
	retriesLeft := p.MaxRetries
	for attempt := 1; ; attempt++ {
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		if retriesLeft == 0 || !apierrors.IsTransient(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, err
		}

		delay := sched.NextBackOff()
		if o.notify != nil {
			o.notify(attempt, err, delay)
		}
		if serr := o.sleep(ctx, delay); serr != nil {
			return zero, fmt.Errorf("retry aborted after attempt %d: %w (last error: %v)", attempt, serr, err)
		}
		retriesLeft--
	}
}
