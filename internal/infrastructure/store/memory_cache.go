package store

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryCache is an LRU cache with sliding expiry: every hit pushes the
// expiry forward by the duration the entry was stored with.
type MemoryCache struct {
	capacity int
	items    map[string]*list.Element
	order    *list.List
	mu       sync.Mutex
	now      func() time.Time
}

type cacheItem struct {
	key       string
	value     string
	sliding   time.Duration
	expiresAt time.Time
}

// NewMemoryCache creates a cache holding at most capacity entries. A
// non-positive capacity means unbounded.
func NewMemoryCache(capacity int) *MemoryCache {
	return &MemoryCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

func (c *MemoryCache) GetString(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return "", ErrCacheMiss
	}
	item := elem.Value.(*cacheItem)
	now := c.now()
	if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
		c.removeElement(elem)
		return "", ErrCacheMiss
	}
	if item.sliding > 0 {
		item.expiresAt = now.Add(item.sliding)
	}
	c.order.MoveToFront(elem)
	return item.value, nil
}

func (c *MemoryCache) SetString(_ context.Context, key, value string, sliding time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if sliding > 0 {
		expiresAt = c.now().Add(sliding)
	}

	if elem, ok := c.items[key]; ok {
		item := elem.Value.(*cacheItem)
		item.value, item.sliding, item.expiresAt = value, sliding, expiresAt
		c.order.MoveToFront(elem)
		return nil
	}

	if c.capacity > 0 && c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	c.items[key] = c.order.PushFront(&cacheItem{key: key, value: value, sliding: sliding, expiresAt: expiresAt})
	return nil
}

func (c *MemoryCache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// Len returns the number of live and not yet collected entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *MemoryCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*cacheItem).key)
}
