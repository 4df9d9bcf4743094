package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithBackoff(t *testing.T) {
	ctx := context.Background()
	fast := Options{MaxAttempts: 3, TimeoutPerAttempt: 50 * time.Millisecond, Delay: time.Millisecond}

	t.Run("succeeds first try", func(t *testing.T) {
		out := WithBackoff(ctx, func(ctx context.Context) (string, error) {
			return "ok", nil
		}, fast)
		assert.Equal(t, Connected, out.Status)
		assert.Equal(t, "ok", out.Value)
		assert.Equal(t, 1, out.Attempts)
		assert.True(t, out.OK())
	})

	t.Run("succeeds after transient failures", func(t *testing.T) {
		var calls int32
		out := WithBackoff(ctx, func(ctx context.Context) (int, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return 0, errors.New("channel not ready")
			}
			return 42, nil
		}, fast)
		assert.Equal(t, Connected, out.Status)
		assert.Equal(t, 42, out.Value)
		assert.Equal(t, 3, out.Attempts)
	})

	t.Run("times out on every attempt", func(t *testing.T) {
		var seen []Status
		opts := fast
		opts.TimeoutPerAttempt = 10 * time.Millisecond
		opts.OnAttempt = func(attempt int, status Status, err error) {
			seen = append(seen, status)
		}
		out := WithBackoff(ctx, func(ctx context.Context) (int, error) {
			time.Sleep(100 * time.Millisecond)
			return 1, nil
		}, opts)
		assert.Equal(t, TimedOut, out.Status)
		assert.ErrorIs(t, out.Err, ErrAttemptTimeout)
		assert.Equal(t, 3, out.Attempts)
		assert.Equal(t, []Status{TimedOut, TimedOut, TimedOut}, seen)
	})

	t.Run("rejection stops immediately", func(t *testing.T) {
		sentinel := errors.New("user declined")
		out := WithBackoff(ctx, func(ctx context.Context) (int, error) {
			return 0, Reject(sentinel)
		}, fast)
		assert.Equal(t, Rejected, out.Status)
		assert.Equal(t, 1, out.Attempts)
		assert.ErrorIs(t, out.Err, sentinel)
		assert.True(t, IsRejected(out.Err))
	})

	t.Run("exhausted generic errors are rejected", func(t *testing.T) {
		out := WithBackoff(ctx, func(ctx context.Context) (int, error) {
			return 0, errors.New("boom")
		}, fast)
		assert.Equal(t, Rejected, out.Status)
		assert.Equal(t, 3, out.Attempts)
		require.Error(t, out.Err)
	})

	t.Run("single attempt when max attempts unset", func(t *testing.T) {
		out := WithBackoff(ctx, func(ctx context.Context) (int, error) {
			return 0, errors.New("boom")
		}, Options{})
		assert.Equal(t, 1, out.Attempts)
	})
}

func TestRejectNil(t *testing.T) {
	assert.NoError(t, Reject(nil))
	assert.False(t, IsRejected(errors.New("plain")))
}
