package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatcore/internal/storage"
)

func TestClient_SlidingWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(storage.Limit{Max: 2, Window: 10 * time.Second}).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := c.Allow(ctx, "p1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, _ := c.Allow(ctx, "p1")
	require.False(t, ok)

	ok, _ = c.Allow(ctx, "p2")
	require.True(t, ok, "keys are independent")

	now = now.Add(11 * time.Second)
	ok, _ = c.Allow(ctx, "p1")
	require.True(t, ok)
}

func TestClient_ResetAndDisabled(t *testing.T) {
	ctx := context.Background()
	c := New(storage.Limit{Max: 1, Window: time.Minute})
	ok, _ := c.Allow(ctx, "p1")
	require.True(t, ok)
	ok, _ = c.Allow(ctx, "p1")
	require.False(t, ok)
	require.NoError(t, c.Reset(ctx, "p1"))
	ok, _ = c.Allow(ctx, "p1")
	require.True(t, ok)

	off := New(storage.Limit{})
	for i := 0; i < 100; i++ {
		ok, _ = off.Allow(ctx, "p1")
		require.True(t, ok)
	}
}
