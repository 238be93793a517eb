package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/dockpipe/pkg/errors"
)

func TestMutex_LockUnlock(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	lock := NewMutex(client, "dockpipe:", "workdir", nil, WithLockTTL(time.Second))

	require.NoError(t, lock.Lock(ctx))
	assert.True(t, mr.Exists("dockpipe:lock:workdir"))

	ttl, err := lock.TTL(ctx)
	require.NoError(t, err)
	assert.Positive(t, ttl)

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, mr.Exists("dockpipe:lock:workdir"))
}

func TestMutex_Contention(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	lock1 := NewMutex(client, "", "w", nil, WithRetryCount(1), WithRetryDelay(10*time.Millisecond))
	lock2 := NewMutex(client, "", "w", nil, WithRetryCount(2), WithRetryDelay(10*time.Millisecond))

	require.NoError(t, lock1.Lock(ctx))

	err := lock2.Lock(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))

	ok, err := lock2.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	err = lock2.Unlock(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict), "only the owner can unlock")

	require.NoError(t, lock1.Unlock(ctx))
	ok, err = lock2.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMutex_Extend(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	lock := NewMutex(client, "", "w", nil, WithLockTTL(time.Second))

	ok, err := lock.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "cannot extend a lock that is not held")

	require.NoError(t, lock.Lock(ctx))
	ok, err = lock.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := lock.TTL(ctx)
	require.NoError(t, err)
	assert.Greater(t, ttl, 30*time.Second)
}

func TestMutex_WatchdogStopsOnUnlock(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	lock := NewMutex(client, "", "w", nil,
		WithLockTTL(time.Second), WithWatchdog(true), WithWatchdogInterval(10*time.Millisecond))

	require.NoError(t, lock.Lock(ctx))
	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, lock.Unlock(ctx))
}
