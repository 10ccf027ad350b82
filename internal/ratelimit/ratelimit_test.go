package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMax    = 20
	testWindow = 10 * time.Minute
)

func newTestLimiter(now *time.Time) *Limiter {
	l := New(NewMemoryStore(), testMax, testWindow)
	l.now = func() time.Time { return *now }
	return l
}

func TestLimiterAllowsWithinWindow(t *testing.T) {
	now := time.Now()
	l := newTestLimiter(&now)
	ctx := context.Background()

	res, err := l.Check(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, testMax-1, res.Remaining)
	assert.Equal(t, now.Add(testWindow), res.ResetAt)
}

func TestLimiterRejectsTwentyFirstRequest(t *testing.T) {
	now := time.Now()
	l := newTestLimiter(&now)
	ctx := context.Background()

	for i := 0; i < testMax; i++ {
		res, err := l.Check(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d should be allowed", i+1)
	}

	res, err := l.Check(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, now.Add(testWindow), res.ResetAt)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	now := time.Now()
	l := newTestLimiter(&now)
	ctx := context.Background()

	for i := 0; i < testMax; i++ {
		_, err := l.Check(ctx, "1.2.3.4")
		require.NoError(t, err)
	}
	res, err := l.Check(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiterFreshWindowAfterReset(t *testing.T) {
	now := time.Now()
	l := newTestLimiter(&now)
	ctx := context.Background()

	for i := 0; i < testMax+1; i++ {
		_, err := l.Check(ctx, "1.2.3.4")
		require.NoError(t, err)
	}

	now = now.Add(testWindow + time.Second)

	res, err := l.Check(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, testMax-1, res.Remaining, "counter must restart")
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	require.NoError(t, store.Put(ctx, "stale", Entry{Count: 3, ResetTime: now.Add(-time.Minute)}))
	require.NoError(t, store.Put(ctx, "live", Entry{Count: 3, ResetTime: now.Add(time.Minute)}))

	require.NoError(t, store.Sweep(ctx, now))

	_, ok, err := store.Get(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.Get(ctx, "live")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	entry := Entry{Count: 2, ResetTime: time.Now().Add(time.Minute).Truncate(time.Millisecond)}
	require.NoError(t, store.Put(ctx, "1.2.3.4", entry))

	got, ok, err := store.Get(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.Count, got.Count)
	assert.True(t, entry.ResetTime.Equal(got.ResetTime))

	// Entries expire on their own at the window end.
	mr.FastForward(2 * time.Minute)
	_, ok, err = store.Get(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "5.6.7.8", Entry{Count: 1, ResetTime: time.Now().Add(time.Minute)}))
	require.NoError(t, store.Delete(ctx, "5.6.7.8"))
	_, ok, err = store.Get(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLimiterOnRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := New(NewRedisStore(client), 2, time.Minute)
	ctx := context.Background()

	res, err := l.Check(ctx, "unknown")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	res, err = l.Check(ctx, "unknown")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	res, err = l.Check(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}
