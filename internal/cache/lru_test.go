package cache

import (
	"testing"
	"time"
)

func TestEviction(t *testing.T) {
	c := New[string, int](2, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Fatal("least recently used entry should be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a = %d, %v", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("len %d", c.Len())
	}
	c.Purge()
	if c.Len() != 0 {
		t.Fatal("purge left entries")
	}
}

func TestExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	c := New[int, string](4, time.Minute)
	c.now = func() time.Time { return now }
	c.Set(1, "one")
	now = now.Add(30 * time.Second)
	if _, ok := c.Get(1); !ok {
		t.Fatal("entry expired early")
	}
	now = now.Add(31 * time.Second)
	if _, ok := c.Get(1); ok {
		t.Fatal("entry should have expired")
	}
}
