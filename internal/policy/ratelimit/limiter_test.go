package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(l *Limiter, start time.Time) *time.Time {
	now := start
	l.now = func() time.Time { return now }
	return &now
}

func TestLimiterIsAllowedPerClient(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 2})
	now := fixedClock(l, time.Unix(1000, 0))

	require.True(t, l.IsAllowed("10.0.0.1"))
	require.True(t, l.IsAllowed("10.0.0.1"))
	require.False(t, l.IsAllowed("10.0.0.1"))
	require.True(t, l.IsAllowed("10.0.0.2"), "other clients keep their own bucket")

	wait := l.RemainingWait("10.0.0.1")
	require.InDelta(t, time.Second.Seconds(), wait.Seconds(), 0.01)
	require.InDelta(t, time.Second.Seconds(), l.RemainingWait("10.0.0.1").Seconds(), 0.01, "RemainingWait must not consume")

	*now = now.Add(time.Second)
	require.Zero(t, l.RemainingWait("10.0.0.1"))
	require.True(t, l.IsAllowed("10.0.0.1"))
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for range 100 {
		require.True(t, l.IsAllowed("client"))
	}
	require.Zero(t, l.RemainingWait("client"))
}

func TestLimiterWaitPerHost(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/1"))
	require.Less(t, time.Since(start), 50*time.Millisecond, "other hosts are not blocked")

	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://a.example/2"))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.001, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://a.example"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.Wait(ctx, "https://a.example"))
}
