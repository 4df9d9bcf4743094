package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Status is the tagged outcome of a bounded retry
type Status string

const (
	Connected Status = "connected"
	TimedOut  Status = "timed_out"
	Rejected  Status = "rejected"
)

// ErrAttemptTimeout is returned when a single attempt loses the race against its timer
var ErrAttemptTimeout = errors.New("attempt timed out")

type rejection struct {
	err error
}

func (r *rejection) Error() string { return r.err.Error() }
func (r *rejection) Unwrap() error { return r.err }

// Reject marks err as permanent so no further attempts are made
func Reject(err error) error {
	if err == nil {
		return nil
	}
	return &rejection{err: err}
}

// IsRejected reports whether err was marked permanent
func IsRejected(err error) bool {
	var r *rejection
	return errors.As(err, &r)
}

// Options bounds a retried operation
type Options struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// TimeoutPerAttempt bounds each attempt; zero means no per-attempt timer
	TimeoutPerAttempt time.Duration
	// Delay is the wait between attempts, or the base delay when MaxDelay is set
	Delay time.Duration
	// MaxDelay enables exponential backoff capped at this value
	MaxDelay time.Duration
	// OnAttempt observes every finished attempt
	OnAttempt func(attempt int, status Status, err error)
}

// Outcome is the tagged result of WithBackoff
type Outcome[T any] struct {
	Status   Status
	Value    T
	Err      error
	Attempts int
}

// OK reports whether the operation eventually succeeded
func (o Outcome[T]) OK() bool {
	return o.Status == Connected
}

// WithBackoff runs op until it succeeds, is rejected, or attempts run out.
// Each attempt races op against its own timer, so an op that ignores its context still cannot stall the caller.
func WithBackoff[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) Outcome[T] {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}

	builder := retrypolicy.NewBuilder[T]().
		HandleIf(func(_ T, err error) bool {
			return err != nil && !IsRejected(err) && !errors.Is(err, context.Canceled)
		}).
		WithMaxRetries(opts.MaxAttempts - 1).
		ReturnLastFailure()
	if opts.MaxDelay > opts.Delay && opts.Delay > 0 {
		builder = builder.WithBackoff(opts.Delay, opts.MaxDelay)
	} else if opts.Delay > 0 {
		builder = builder.WithDelay(opts.Delay)
	}

	attempts := 0
	var lastErr error
	value, err := failsafe.With[T](builder.Build()).WithContext(ctx).Get(func() (T, error) {
		attempts++
		v, err := runAttempt(ctx, op, opts.TimeoutPerAttempt)
		lastErr = err
		if opts.OnAttempt != nil {
			opts.OnAttempt(attempts, classify(err), err)
		}
		return v, err
	})
	if err == nil {
		return Outcome[T]{Status: Connected, Value: value, Attempts: attempts}
	}
	if lastErr == nil {
		lastErr = err
	}
	return Outcome[T]{Status: classify(lastErr), Err: lastErr, Attempts: attempts}
}

func runAttempt[T any](ctx context.Context, op func(ctx context.Context) (T, error), timeout time.Duration) (T, error) {
	var zero T
	if timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(attemptCtx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("%w after %s: %v", ErrAttemptTimeout, timeout, r.err)
		}
		return r.value, r.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w after %s", ErrAttemptTimeout, timeout)
	}
}

func classify(err error) Status {
	switch {
	case err == nil:
		return Connected
	case errors.Is(err, ErrAttemptTimeout):
		return TimedOut
	default:
		return Rejected
	}
}
