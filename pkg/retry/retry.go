// Package retry reruns failing operations with capped exponential backoff.
// Delays use full jitter so the LLM, auth, and graph clients hitting the same
// recovering dependency do not retry in lockstep.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy describes how often and how patiently an operation is retried.
// The zero value retries 3 times starting at 100ms, capped at 10s.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Logger    *zap.Logger
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	return p
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do unwraps the marker and
// returns the original error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do runs op until it succeeds, returns a permanent error, exhausts the
// attempt budget, or the context ends.
func (p Policy) Do(ctx context.Context, op func() error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op()
		if err == nil {
			return nil
		}

		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		lastErr = err
		if attempt == p.Attempts {
			break
		}

		delay := p.delayFor(attempt)
		if p.Logger != nil {
			p.Logger.Warn("operation failed, backing off",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Int("budget", p.Attempts),
				zap.Duration("delay", delay),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// delayFor picks a uniform delay in (0, min(base*2^(attempt-1), max)].
func (p Policy) delayFor(attempt int) time.Duration {
	ceiling := p.BaseDelay
	for i := 1; i < attempt; i++ {
		ceiling *= 2
		if ceiling >= p.MaxDelay || ceiling <= 0 {
			ceiling = p.MaxDelay
			break
		}
	}
	return time.Duration(rand.Int63n(int64(ceiling))) + 1
}
