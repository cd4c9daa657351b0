// Package retry provides the bounded exponential backoff policy applied
// to non-streaming provider calls. Streams are never retried through it:
// once fragments have been delivered they cannot be un-emitted, so a
// mid-stream failure surfaces to the caller instead.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/quillgate/quillgate/pkg/api"
)

// Policy controls how failed calls are retried.
type Policy struct {
	// MaxAttempts is the total attempt ceiling, first try included.
	MaxAttempts int

	// BaseDelay is the wait before the first retry; it doubles after
	// each retryable failure (by Multiplier).
	BaseDelay time.Duration

	// Multiplier scales the delay between attempts.
	Multiplier float64

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// Sleep waits between attempts. Overridable in tests to observe
	// the schedule without wall-clock waits. Nil uses a context-aware
	// timer wait.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry, when set, is called before each retry with the attempt
	// number that failed and its error. Used for retry counters.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns the standard schedule: 3 attempts, 2s base delay
// doubling per retry, capped at 30s.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
	}
}

// Retryable classifies an error as transient or fatal. Rate limits and
// transport failures are transient; upstream errors only when the
// recorded status is a 5xx. Everything else — auth, protocol mismatch,
// caller errors, unclassified failures — returns immediately, because
// repeating those calls cannot change the outcome.
func Retryable(err error) bool {
	var e *api.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case api.ErrorKindRateLimited, api.ErrorKindNetwork:
		return true
	case api.ErrorKindUpstream:
		return e.HTTPStatus >= 500
	default:
		return false
	}
}

// NextDelay returns the backoff delay after the given attempt (1-based):
// BaseDelay * Multiplier^(attempt-1), capped at MaxDelay. A rate-limited
// error carrying a longer Retry-After hint stretches the delay to honor it.
func (p *Policy) NextDelay(attempt int, err error) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}

	var e *api.Error
	if errors.As(err, &e) && e.RetryAfter > delay {
		delay = e.RetryAfter
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do runs fn up to MaxAttempts times, sleeping between retryable
// failures. Fatal errors return immediately. On exhaustion the last
// error is returned: it carries the most specific information (the
// captured HTTP status reason rather than a generic message).
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return api.NewNetworkError("request cancelled: " + err.Error())
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}
		if err := p.sleep(ctx, p.NextDelay(attempt, lastErr)); err != nil {
			return lastErr
		}
	}

	return lastErr
}

func (p *Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
