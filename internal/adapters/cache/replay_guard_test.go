package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safepay-org/safepay/internal/domain/config"
)

func setupGuard(t *testing.T, ttl time.Duration) (*ReplayGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReplayGuard(client, ttl), mr
}

func TestReplayGuard_SeenAfterMark(t *testing.T) {
	guard, mr := setupGuard(t, time.Hour)
	ctx := context.Background()

	seen, err := guard.Seen(ctx, "sig-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, guard.MarkSeen(ctx, "sig-1"))
	seen, err = guard.Seen(ctx, "sig-1")
	require.NoError(t, err)
	assert.True(t, seen)

	assert.True(t, mr.Exists("safepay:webhook:sig-1"))
	assert.Equal(t, time.Hour, mr.TTL("safepay:webhook:sig-1"))
}

func TestReplayGuard_Expiry(t *testing.T) {
	guard, mr := setupGuard(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, guard.MarkSeen(ctx, "sig-2"))
	mr.FastForward(2 * time.Minute)

	seen, err := guard.Seen(ctx, "sig-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestReplayGuard_RemarkKeepsExpiry(t *testing.T) {
	guard, mr := setupGuard(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, guard.MarkSeen(ctx, "sig-3"))
	mr.FastForward(30 * time.Second)
	require.NoError(t, guard.MarkSeen(ctx, "sig-3"))
	assert.Equal(t, 30*time.Second, mr.TTL("safepay:webhook:sig-3"))
}

func TestReplayGuard_DefaultTTL(t *testing.T) {
	guard, _ := setupGuard(t, 0)
	assert.Equal(t, DefaultReplayTTL, guard.ttl)
}

func TestReplayGuard_ServerDown(t *testing.T) {
	guard, mr := setupGuard(t, time.Minute)
	mr.Close()

	_, err := guard.Seen(context.Background(), "sig-4")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	t.Run("disabled without address", func(t *testing.T) {
		guard, closeFn, err := Open(&config.RuntimeConfig{})
		require.NoError(t, err)
		assert.Nil(t, guard)
		closeFn()
	})

	t.Run("connects", func(t *testing.T) {
		mr := miniredis.RunT(t)
		guard, closeFn, err := Open(&config.RuntimeConfig{Redis: config.RedisConfig{Addr: mr.Addr(), ReplayTTL: time.Minute}})
		require.NoError(t, err)
		defer closeFn()
		require.NotNil(t, guard)
		assert.Equal(t, time.Minute, guard.ttl)
	})
}
