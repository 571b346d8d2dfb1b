package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRateLimiter(t *testing.T) {
	l := NewLocalRateLimiter(0)
	ctx := context.Background()
	limit := Limit{Rate: 1, Period: time.Hour, Burst: 2}

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "ip-a", limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := l.Allow(ctx, "ip-a", limit)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	res, err = l.Allow(ctx, "ip-b", limit)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLocalRateLimiterEvictsIdleKeys(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	l := NewLocalRateLimiter(time.Minute)
	l.now = func() time.Time { return now }
	limit := Limit{Rate: 60, Period: time.Minute, Burst: 1}

	for i := 0; i < 100; i++ {
		_, err := l.Allow(ctx, fmt.Sprintf("ip-%d", i), limit)
		require.NoError(t, err)
	}
	assert.Equal(t, 100, l.Len())

	now = now.Add(2 * time.Minute)
	_, err := l.Allow(ctx, "ip-fresh", limit)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Len())
}

func TestLocalRateLimiterKeepsDrainedKeys(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	l := NewLocalRateLimiter(time.Minute)
	l.now = func() time.Time { return now }
	limit := Limit{Rate: 1, Period: time.Hour, Burst: 1}

	res, err := l.Allow(ctx, "ip-a", limit)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	now = now.Add(2 * time.Minute)
	_, err = l.Allow(ctx, "ip-b", limit)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())

	res, err = l.Allow(ctx, "ip-a", limit)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	ttls   map[string]time.Duration
	err    error
}

func newMemCounter() *memCounter {
	return &memCounter{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (c *memCounter) IncrWithExpire(_ context.Context, key string, expiration time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.counts[key]++
	c.ttls[key] = expiration
	return c.counts[key], nil
}

func TestRedisRateLimiterWindow(t *testing.T) {
	ctx := context.Background()
	counter := newMemCounter()
	l := NewRedisRateLimiter(counter)
	start := time.Unix(1_700_000_040, 0)
	now := start
	l.now = func() time.Time { return now }
	limit := Limit{Rate: 2, Period: time.Minute, Burst: 1}

	for i, remaining := range []int{2, 1, 0} {
		res, err := l.Allow(ctx, "submit:10.0.0.1", limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, remaining, res.Remaining)
	}

	now = start.Add(15 * time.Second)
	res, err := l.Allow(ctx, "submit:10.0.0.1", limit)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	elapsed := time.Duration(now.UnixNano() % int64(time.Minute))
	assert.Equal(t, time.Minute-elapsed, res.RetryAfter)

	windowKey := fmt.Sprintf("submit:10.0.0.1:%d", now.UnixNano()/int64(time.Minute))
	assert.Equal(t, int64(4), counter.counts[windowKey])
	assert.Equal(t, time.Minute, counter.ttls[windowKey])

	now = now.Add(res.RetryAfter)
	res, err = l.Allow(ctx, "submit:10.0.0.1", limit)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedisRateLimiterError(t *testing.T) {
	counter := newMemCounter()
	counter.err = errors.New("connection refused")
	l := NewRedisRateLimiter(counter)

	_, err := l.Allow(context.Background(), "k", Limit{Rate: 1, Period: time.Second})
	require.ErrorIs(t, err, counter.err)
}
