package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetRespectsTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := New[string](WithClock[string](func() time.Time { return now }))

	c.Set("k", "v", time.Minute)

	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", got)

	now = now.Add(time.Minute)
	_, ok = c.Get("k")
	require.False(t, ok, "entry must expire exactly at its deadline")
	require.Equal(t, 0, c.Len(), "expired entry must be removed lazily")
}

func TestSetIgnoresNonPositiveTTL(t *testing.T) {
	c := New[int]()
	c.Set("k", 1, 0)
	c.Set("k", 1, -time.Second)
	_, ok := c.Get("k")
	require.False(t, ok)
}

func TestDeleteMany(t *testing.T) {
	c := New[int]()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)

	c.DeleteMany([]string{"a", "c", "missing"})

	_, ok := c.Get("a")
	require.False(t, ok)
	_, ok = c.Get("c")
	require.False(t, ok)
	got, ok := c.Get("b")
	require.True(t, ok)
	require.Equal(t, 2, got)
}

func TestSweepDropsOnlyExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := New[int](WithClock[int](func() time.Time { return now }))

	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)

	now = now.Add(2 * time.Second)
	c.Sweep()

	require.Equal(t, 1, c.Len())
	got, ok := c.Get("long")
	require.True(t, ok)
	require.Equal(t, 2, got)
}

func TestGetKeepsConcurrentlyRefreshedEntry(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var offset atomic.Int64
	c := New[int](WithClock[int](func() time.Time {
		return base.Add(time.Duration(offset.Load()))
	}))

	// A lookup that finds an expired entry must not wipe a fresh value a
	// concurrent Set stored for the same key in the meantime.
	for i := 0; i < 200; i++ {
		c.Set("k", i, time.Nanosecond)
		offset.Add(int64(time.Millisecond))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Get("k")
		}()
		go func() {
			defer wg.Done()
			c.Set("k", -1, time.Hour)
		}()
		wg.Wait()

		got, ok := c.Get("k")
		require.True(t, ok, "fresh value stored during an expired lookup was evicted")
		require.Equal(t, -1, got)
		c.Delete("k")
	}
}

func TestJanitorStops(t *testing.T) {
	c := New[int]()
	stop := c.StartJanitor(time.Millisecond)
	stop()
	stop() // idempotent
}
