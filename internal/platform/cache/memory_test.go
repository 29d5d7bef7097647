package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetGetAndExpiry(t *testing.T) {
	c := New[string](time.Minute)
	now := time.Unix(1000, 0)
	c.clock = func() time.Time { return now }

	c.Set("k", "v")
	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", got)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	require.False(t, ok, "entry must expire after ttl")
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := New[int](0)
	now := time.Unix(1000, 0)
	c.clock = func() time.Time { return now }

	c.Set("k", 7)
	now = now.Add(24 * time.Hour)
	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, 7, got)
}

func TestFetchMemoizesLoader(t *testing.T) {
	c := New[string](time.Minute)
	calls := 0
	loader := func(context.Context) (string, error) {
		calls++
		return "loaded", nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.Fetch(context.Background(), "k", loader)
		require.NoError(t, err)
		require.Equal(t, "loaded", got)
	}
	require.Equal(t, 1, calls)
}

func TestFetchLoaderErrorNotCached(t *testing.T) {
	c := New[string](time.Minute)
	boom := errors.New("boom")
	calls := 0
	loader := func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", boom
		}
		return "ok", nil
	}

	_, err := c.Fetch(context.Background(), "k", loader)
	require.ErrorIs(t, err, boom)
	got, err := c.Fetch(context.Background(), "k", loader)
	require.NoError(t, err)
	require.Equal(t, "ok", got)
}

func TestInvalidateAndClear(t *testing.T) {
	c := New[string](time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	c.Invalidate("a")
	_, ok := c.Get("a")
	require.False(t, ok)
	_, ok = c.Get("b")
	require.True(t, ok)

	c.Clear()
	_, ok = c.Get("b")
	require.False(t, ok)
}
