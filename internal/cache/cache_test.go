package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLValue_ExpiresOnClock(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewTTLValue[string](5 * time.Minute).WithClock(func() time.Time { return now })

	_, ok := c.Get()
	require.False(t, ok, "empty cache must miss")

	c.Put("example.com")
	got, ok := c.Get()
	require.True(t, ok)
	require.Equal(t, "example.com", got)

	now = now.Add(5*time.Minute - time.Second)
	_, ok = c.Get()
	require.True(t, ok, "still inside TTL")

	now = now.Add(2 * time.Second)
	_, ok = c.Get()
	require.False(t, ok, "expired")
}

func TestTTLValue_Invalidate(t *testing.T) {
	c := NewTTLValue[int](time.Hour)
	c.Put(42)
	c.Invalidate()
	_, ok := c.Get()
	require.False(t, ok)
}

func TestSlot_SingleSlotSemantics(t *testing.T) {
	s := NewSlot[string]()

	_, ok := s.Get("k1")
	require.False(t, ok)

	s.Put(s.Generation(), "k1", "v1")
	got, ok := s.Get("k1")
	require.True(t, ok)
	require.Equal(t, "v1", got)

	// Caching a second key evicts the first: there is exactly one slot.
	s.Put(s.Generation(), "k2", "v2")
	_, ok = s.Get("k1")
	require.False(t, ok)
	got, ok = s.Get("k2")
	require.True(t, ok)
	require.Equal(t, "v2", got)
}

func TestSlot_StalePutLosesToInvalidate(t *testing.T) {
	s := NewSlot[string]()

	// A load observes the generation, then rotation invalidates, then the
	// load tries to publish its (now stale) result.
	gen := s.Generation()
	s.Invalidate()
	s.Put(gen, "old-kid", "retired key")

	_, ok := s.Get("old-kid")
	require.False(t, ok, "stale put must not land after invalidation")

	// A load started after the invalidation lands fine.
	s.Put(s.Generation(), "new-kid", "fresh key")
	_, ok = s.Get("new-kid")
	require.True(t, ok)
}
