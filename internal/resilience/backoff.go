// SPDX-License-Identifier: MIT

package resilience

import (
	"context"
	"errors"
	"time"
)

// permanentError marks a failure Retry must not repeat.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry gives up after the attempt that
// produced it. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err carries the Permanent marker.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// BackoffSchedule yields exponentially growing delays capped at Max.
// Attempt 0 waits Base, attempt n waits Base*2^n.
type BackoffSchedule struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before retry attempt n (0-based).
func (b BackoffSchedule) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Wait sleeps for the attempt's delay or until ctx is cancelled.
func (b BackoffSchedule) Wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(b.Delay(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retry runs fn up to attempts times with the schedule's delays between
// tries, stopping early on success, context cancellation, or an error
// marked Permanent.
func Retry(ctx context.Context, attempts int, b BackoffSchedule, fn func() error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := b.Wait(ctx, i-1); err != nil {
				return err
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) || ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}
