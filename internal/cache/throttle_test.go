package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSubmissionThrottle_Cooldown(t *testing.T) {
	mr, client := newTestRedis(t)
	throttle := NewSubmissionThrottle(NewCacheManager(client), 10*time.Second, 0)
	ctx := context.Background()

	d, err := throttle.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = throttle.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "cooldown", d.Reason)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	// other users are unaffected
	d, err = throttle.Allow(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	mr.FastForward(11 * time.Second)
	d, err = throttle.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestSubmissionThrottle_DailyLimit(t *testing.T) {
	_, client := newTestRedis(t)
	throttle := NewSubmissionThrottle(NewCacheManager(client), 0, 2)
	throttle.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := throttle.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := throttle.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "daily limit", d.Reason)
	assert.Equal(t, 12*time.Hour, d.RetryAfter)

	throttle.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 1, 0, time.UTC) }
	d, err = throttle.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestSubmissionThrottle_NoRedisFailsOpen(t *testing.T) {
	throttle := NewSubmissionThrottle(NewCacheManager(nil), time.Minute, 1)
	for i := 0; i < 3; i++ {
		d, err := throttle.Allow(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

func TestSubmissionThrottle_RedisDownFailsOpen(t *testing.T) {
	mr, client := newTestRedis(t)
	throttle := NewSubmissionThrottle(NewCacheManager(client), time.Minute, 0)
	mr.Close()

	d, err := throttle.Allow(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
