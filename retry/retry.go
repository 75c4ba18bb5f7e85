// Package retry wraps transient browser and network operations in plain
// exponential backoff: baseDelay * 2^attempt, attempt indexed from 0.
//
// The caller classifies errors. Wrapping an error in Permanent stops the
// loop immediately — terminal conditions (login walls, missing required
// fields) must never burn retry budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err carries the Permanent marker.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Options tunes the retry loop.
type Options struct {
	// MaxAttempts is the total number of tries. Default: 3.
	MaxAttempts int
	// BaseDelay is the sleep after the first failure; it doubles on each
	// subsequent failure. Default: 1s.
	BaseDelay time.Duration
}

func (o *Options) defaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
}

// Do runs fn up to opts.MaxAttempts times, sleeping baseDelay*2^attempt
// between failures. The sleep is cancellable: ctx cancellation surfaces
// immediately, wrapped around the last seen error.
//
// On exhaustion the final error is returned as-is so callers can keep
// classifying it with errors.Is/As.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	opts.defaults()

	var last error
	for attempt := range opts.MaxAttempts {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return fmt.Errorf("retry: cancelled after %d attempts: %w", attempt, last)
			}
			return err
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}

		var p *permanentError
		if errors.As(last, &p) {
			return p.err
		}

		if attempt == opts.MaxAttempts-1 {
			break
		}

		delay := opts.BaseDelay << attempt
		if err := sleepCtx(ctx, delay); err != nil {
			return fmt.Errorf("retry: cancelled during backoff: %w", last)
		}
	}
	return last
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
