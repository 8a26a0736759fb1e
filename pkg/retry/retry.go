// Package retry provides a generic retry combinator with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy configures retry behavior for a fallible operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// InitialDelay is the backoff before the second attempt.
	// Default: 500ms
	InitialDelay time.Duration

	// MaxDelay caps the backoff between attempts.
	// Default: 10s
	MaxDelay time.Duration

	// Multiplier scales the delay after each failed attempt.
	// Default: 2.0
	Multiplier float64
}

// DefaultPolicy returns sensible retry defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// SetDefaults applies default values to unset fields.
func (p *Policy) SetDefaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 2.0
	}
}

// Sleeper is the clock used between attempts. Overridable in tests.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs op until it succeeds or the attempt budget is exhausted.
// Backoff starts at InitialDelay and is multiplied after each failure,
// capped at MaxDelay. The last attempt's error is returned unwrapped so
// callers can classify it.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	return DoWithSleeper[T](ctx, policy, defaultSleep, op)
}

// DoWithSleeper is Do with an explicit sleeper, used by tests to observe
// backoff delays without waiting.
func DoWithSleeper[T any](ctx context.Context, policy Policy, sleep Sleeper, op func(ctx context.Context) (T, error)) (T, error) {
	policy.SetDefaults()

	var zero T
	var lastErr error

	delay := policy.InitialDelay
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}

		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry aborted after attempt %d: %w", attempt, lastErr)
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return zero, lastErr
}
