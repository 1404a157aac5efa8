package cache

import (
	"testing"
	"time"

	"finboard/internal/log"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("expected a to survive, got %v %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("expected size 2, got %d", c.Size())
	}
}

func TestLRUCacheTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](10, 5*time.Minute).WithClock(clock.Now)

	c.Set("monthly:6", "data")
	clock.Advance(4 * time.Minute)
	if _, ok := c.Get("monthly:6"); !ok {
		t.Fatal("expected entry within ttl")
	}

	clock.Advance(2 * time.Minute)
	if _, ok := c.Get("monthly:6"); ok {
		t.Fatal("expected entry to expire")
	}
	if c.Size() != 0 {
		t.Error("expired entry should be removed on read")
	}
}

func TestLRUCacheCleanExpiredAndClear(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := NewLRUCache[int](10, time.Minute).WithClock(clock.Now)

	c.Set("old", 1)
	clock.Advance(2 * time.Minute)
	c.Set("new", 2)

	if n := c.CleanExpired(); n != 1 {
		t.Errorf("expected one expired entry, got %d", n)
	}
	c.Clear()
	if c.Size() != 0 {
		t.Errorf("expected empty cache after Clear, got %d", c.Size())
	}
	c.Set("again", 3)
	if v, ok := c.Get("again"); !ok || v != 3 {
		t.Error("cache must stay usable after Clear")
	}
}

func TestManagerSweep(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	a := NewLRUCache[int](10, time.Second).WithClock(clock.Now)
	b := NewLRUCache[int](10, time.Hour).WithClock(clock.Now)
	a.Set("x", 1)
	b.Set("y", 2)

	m := NewManager(log.Discard())
	m.Register(a)
	m.Register(b)
	clock.Advance(time.Minute)

	if n := m.Sweep(); n != 1 {
		t.Errorf("expected one entry swept, got %d", n)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}

func TestManagerStopWithoutStart(t *testing.T) {
	NewManager(nil).Stop()
}
