package sensor

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs op with a context bounded by d and returns no later than
// the bound.
//
// When d expires first, the op context is cancelled, the goroutine is
// abandoned and a KindTimeout error wrapping ErrTimeout is returned. The
// goroutine reports into a buffered channel so it exits whenever op does.
// If ctx itself ends, the result is a KindFatal error wrapping ErrShutdown.
// A non-positive d disables the bound.
func WithTimeout[T any](ctx context.Context, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, shutdownError(err)
	}

	opCtx, cancel := ctx, context.CancelFunc(func() {})
	if d > 0 {
		opCtx, cancel = context.WithTimeout(ctx, d)
	}
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &Error{Kind: KindFatal, Op: "update", Err: fmt.Errorf("%w: %v", ErrPanic, r)}}
			}
		}()
		v, err := op(opCtx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-opCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, shutdownError(err)
		}
		return zero, &Error{Kind: KindTimeout, Op: "update", Err: fmt.Errorf("%w after %s", ErrTimeout, d)}
	}
}

func shutdownError(cause error) error {
	return &Error{Kind: KindFatal, Op: "update", Err: fmt.Errorf("%w: %w", ErrShutdown, cause)}
}
