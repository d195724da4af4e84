// Package cache is a small LRU with optional expiry.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type Cache[K comparable, V any] struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	now  func() time.Time
	ll   *list.List
	data map[K]*list.Element
}

type entry[K comparable, V any] struct {
	key   K
	value V
	exp   time.Time
}

// New returns a cache holding at most capacity entries. A zero ttl keeps
// entries until they are evicted.
func New[K comparable, V any](capacity int, ttl time.Duration) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 256
	}
	return &Cache[K, V]{
		cap:  capacity,
		ttl:  ttl,
		now:  time.Now,
		ll:   list.New(),
		data: make(map[K]*list.Element),
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	ele, ok := c.data[key]
	if !ok {
		return zero, false
	}
	e := ele.Value.(*entry[K, V])
	if !e.exp.IsZero() && c.now().After(e.exp) {
		c.ll.Remove(ele)
		delete(c.data, key)
		return zero, false
	}
	c.ll.MoveToFront(ele)
	return e.value, true
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, ok := c.data[key]; ok {
		c.ll.MoveToFront(ele)
		e := ele.Value.(*entry[K, V])
		e.value = value
		e.exp = c.expiry()
		return
	}
	el := c.ll.PushFront(&entry[K, V]{key: key, value: value, exp: c.expiry()})
	c.data[key] = el
	if c.ll.Len() > c.cap {
		if last := c.ll.Back(); last != nil {
			c.ll.Remove(last)
			delete(c.data, last.Value.(*entry[K, V]).key)
		}
	}
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Purge drops every entry.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	clear(c.data)
}

func (c *Cache[K, V]) expiry() time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(c.ttl)
}
