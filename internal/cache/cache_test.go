package cache

import (
	"testing"
	"time"
)

func TestMemoryNoExpiration(t *testing.T) {
	c := NewMemory[float64](NoExpiration)
	if _, ok := c.Get("2020-07-16-EUR"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set("2020-07-16-EUR", 117.595)
	v, ok := c.Get("2020-07-16-EUR")
	if !ok || v != 117.595 {
		t.Fatalf("unexpected get: %v %v", v, ok)
	}
	if c.Size() != 1 {
		t.Fatalf("expected size 1, got %d", c.Size())
	}
	c.Delete("2020-07-16-EUR")
	if c.Size() != 0 {
		t.Fatalf("expected empty cache after delete")
	}
}

func TestMemoryTTL(t *testing.T) {
	c := NewMemory[string](20 * time.Millisecond)
	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss after expiry")
	}
}

func TestMemoryFlush(t *testing.T) {
	c := NewMemory[int](NoExpiration)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Flush()
	if c.Size() != 0 {
		t.Fatalf("expected empty cache after flush, got %d", c.Size())
	}
}
