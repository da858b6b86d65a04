package sensor

import "context"

// Retry invokes op and, while it fails with an error accepted by
// isTransient, calls it again up to retries more times with no delay.
//
// retries = 0 means exactly one attempt; negative values are treated as 0.
// Errors rejected by isTransient are returned immediately. A cancelled ctx
// stops further attempts and the last failure is returned.
func Retry[T any](ctx context.Context, retries int, isTransient func(error) bool, op func(context.Context) (T, error)) (T, error) {
	if retries < 0 {
		retries = 0
	}

	var (
		value T
		err   error
	)
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 && ctx.Err() != nil {
			break
		}
		value, err = op(ctx)
		if err == nil || !isTransient(err) {
			return value, err
		}
	}
	return value, err
}
