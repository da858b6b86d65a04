package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeout_Completes(t *testing.T) {
	v, err := WithTimeout(context.Background(), time.Second, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestWithTimeout_PassesOpError(t *testing.T) {
	opErr := CommunicationError(errRadio)
	_, err := WithTimeout(context.Background(), time.Second, func(context.Context) (int, error) {
		return 0, opErr
	})
	assert.Equal(t, opErr, err)
}

func TestWithTimeout_Expires(t *testing.T) {
	start := time.Now()
	_, err := WithTimeout(context.Background(), 100*time.Millisecond, func(context.Context) (int, error) {
		time.Sleep(500 * time.Millisecond) // ignores its context
		return 1, nil
	})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 400*time.Millisecond)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWithTimeout_CancelsOpContext(t *testing.T) {
	cancelled := make(chan struct{})
	_, err := WithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	})
	assert.Equal(t, KindTimeout, KindOf(err))

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("op context was not cancelled")
	}
}

func TestWithTimeout_ParentCancelledIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := WithTimeout(ctx, time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return 0, nil
	})
	assert.Equal(t, KindFatal, KindOf(err))
	assert.ErrorIs(t, err, ErrShutdown)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestWithTimeout_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := WithTimeout(ctx, time.Second, func(context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.False(t, called)
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestWithTimeout_RecoversPanic(t *testing.T) {
	_, err := WithTimeout(context.Background(), time.Second, func(context.Context) (int, error) {
		panic("reader bug")
	})
	assert.Equal(t, KindFatal, KindOf(err))
	assert.ErrorIs(t, err, ErrPanic)
}
