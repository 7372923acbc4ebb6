// Package cache provides the small in-process caches used by the gateway.
// They are best-effort accelerators only; nothing here is durable and no
// cross-request consistency is promised.
package cache

import (
	"sync"
	"time"
)

// TTLValue caches a single value with an expiry deadline. The zero clock is
// time.Now; tests inject their own to make expiry deterministic.
type TTLValue[V any] struct {
	mu       sync.Mutex
	val      V
	deadline time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewTTLValue constructs an empty cache with the given TTL.
func NewTTLValue[V any](ttl time.Duration) *TTLValue[V] {
	return &TTLValue[V]{ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. Test use only.
func (c *TTLValue[V]) WithClock(now func() time.Time) *TTLValue[V] {
	c.now = now
	return c
}

// Get returns the cached value if present and unexpired.
func (c *TTLValue[V]) Get() (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deadline.IsZero() || !c.now().Before(c.deadline) {
		var zero V
		return zero, false
	}
	return c.val, true
}

// Put stores a value and restarts the TTL.
func (c *TTLValue[V]) Put(v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.val = v
	c.deadline = c.now().Add(c.ttl)
}

// Invalidate empties the cache.
func (c *TTLValue[V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	c.val = zero
	c.deadline = time.Time{}
}

// Slot caches a single keyed value with a generation counter. A Put under
// any key overwrites the slot; Invalidate bumps the generation so a stale
// concurrent Put cannot resurrect an evicted entry.
type Slot[V any] struct {
	mu  sync.Mutex
	key string
	val V
	ok  bool
	gen uint64
}

// NewSlot constructs an empty slot.
func NewSlot[V any]() *Slot[V] { return &Slot[V]{} }

// Get returns the cached value if the slot currently holds this key.
func (s *Slot[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok || s.key != key {
		var zero V
		return zero, false
	}
	return s.val, true
}

// Generation returns the current invalidation generation.
func (s *Slot[V]) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Put overwrites the slot, unless the generation moved since the caller
// observed it (a rotation invalidated the slot mid-load).
func (s *Slot[V]) Put(gen uint64, key string, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.key, s.val, s.ok = key, v, true
}

// Invalidate empties the slot and bumps the generation.
func (s *Slot[V]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero V
	s.key, s.val, s.ok = "", zero, false
	s.gen++
}
