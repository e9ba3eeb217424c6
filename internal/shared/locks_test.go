package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLockRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	mr, client := newLockRedis(t)
	locker := NewLocker(client, time.Minute)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, DayLifecycleLockKey)
	require.NoError(t, err)
	require.True(t, mr.Exists(DayLifecycleLockKey))

	_, err = locker.Acquire(ctx, DayLifecycleLockKey)
	require.ErrorIs(t, err, ErrLockHeld)

	release()
	require.False(t, mr.Exists(DayLifecycleLockKey))

	again, err := locker.Acquire(ctx, DayLifecycleLockKey)
	require.NoError(t, err)
	again()
}

func TestLockerReleaseKeepsForeignToken(t *testing.T) {
	mr, client := newLockRedis(t)
	locker := NewLocker(client, time.Second)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, DayLifecycleLockKey)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(DayLifecycleLockKey, "someone-else"))

	release()
	got, err := mr.Get(DayLifecycleLockKey)
	require.NoError(t, err)
	require.Equal(t, "someone-else", got)
}

func TestLockerWithoutClientNeverBlocks(t *testing.T) {
	var locker *Locker
	release, err := locker.Acquire(context.Background(), DayLifecycleLockKey)
	require.NoError(t, err)
	release()

	release, err = NewLocker(nil, 0).Acquire(context.Background(), DayLifecycleLockKey)
	require.NoError(t, err)
	release()
}
