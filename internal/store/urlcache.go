package store

import (
	"container/list"
	"sync"
)

// urlCache is a thread-safe LRU set of recently persisted canonical URLs.
// It short-circuits the duplicate path before touching the database; the
// unique index on articles.url remains the source of truth.
type urlCache struct {
	maxEntries int

	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element
}

func newURLCache(maxEntries int) *urlCache {
	return &urlCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element, maxEntries),
	}
}

func (c *urlCache) contains(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[url]
	if ok {
		c.order.MoveToFront(el)
	}
	return ok
}

func (c *urlCache) add(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[url]; ok {
		c.order.MoveToFront(el)
		return
	}
	c.entries[url] = c.order.PushFront(url)
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(string))
	}
}
