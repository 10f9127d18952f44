package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/capsule/testkit"
	"github.com/ceyewan/capsule/xerrors"
)

func newTestLimiter(t *testing.T, opts ...Option) *limiter {
	t.Helper()
	kit := testkit.NewKit(t)
	l, err := New(nil, append([]Option{WithLogger(kit.Logger), WithMeter(kit.Meter)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l.(*limiter)
}

func TestAllow_Burst(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	limit := Limit{Rate: 0.001, Burst: 3}

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "api", limit)
		require.NoError(t, err)
		assert.True(t, ok, "token %d", i)
	}
	ok, err := l.Allow(ctx, "api", limit)
	require.NoError(t, err)
	assert.False(t, ok)

	// 不同的键互不影响
	ok, err = l.Allow(ctx, "other", limit)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllow_InvalidInput(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	_, err := l.Allow(ctx, "", Limit{Rate: 1, Burst: 1})
	assert.ErrorIs(t, err, ErrKeyEmpty)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = l.Allow(ctx, "api", Limit{Rate: 0, Burst: 1})
	assert.ErrorIs(t, err, ErrInvalidLimit)
	assert.ErrorIs(t, l.Wait(ctx, "api", Limit{Rate: 1}), ErrInvalidLimit)
}

func TestWait_SpacesRequests(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	limit := Limit{Rate: 50, Burst: 1}

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Wait(ctx, "api", limit))
	}
	// 首个令牌立即可用，其余三个各间隔 20ms
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWait_RespectsContext(t *testing.T) {
	l := newTestLimiter(t)
	limit := Limit{Rate: 0.01, Burst: 1}
	require.NoError(t, l.Wait(context.Background(), "api", limit))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "api", limit))
}

func TestWait_Concurrent(t *testing.T) {
	l := newTestLimiter(t)
	limit := Limit{Rate: 1000, Burst: 10}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Wait(context.Background(), "api", limit))
		}()
	}
	wg.Wait()
}

func TestSweep_RemovesIdleBuckets(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	l := newTestLimiter(t, WithClock(clock))
	ctx := context.Background()

	_, err := l.Allow(ctx, "idle", Limit{Rate: 1, Burst: 1})
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(3 * time.Minute)
	mu.Unlock()
	_, err = l.Allow(ctx, "busy", Limit{Rate: 1, Burst: 1})
	require.NoError(t, err)

	assert.Equal(t, 0, l.sweep(clock()))

	assert.Equal(t, 1, l.sweep(clock().Add(3*time.Minute)))
	_, ok := l.buckets.Load("busy:1:1")
	assert.True(t, ok)
	_, ok = l.buckets.Load("idle:1:1")
	assert.False(t, ok)
}

func TestClose_Idempotent(t *testing.T) {
	l := newTestLimiter(t)
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}
