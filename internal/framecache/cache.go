// Package framecache serves exact video frames as encoded images while
// minimizing redundant decode work. A byte-budgeted LRU holds extracted
// frames and a coalescing group collapses concurrent requests for the same
// frame into one subprocess invocation.
package framecache

import (
	"container/list"
	"fmt"
	"math"
	"path/filepath"
	"sync"
)

// key identifies one extracted frame. Timestamps are canonicalized to
// millisecond precision so float jitter cannot split cache entries.
type key struct {
	src      string
	timeMS   int64
	format   string
}

func makeKey(src string, seconds float64, format string) key {
	return key{
		src:    filepath.Clean(src),
		timeMS: int64(math.Round(seconds * 1000)),
		format: format,
	}
}

func (k key) String() string {
	return fmt.Sprintf("%s|%d|%s", k.src, k.timeMS, k.format)
}

type entry struct {
	key  key
	data []byte
}

// lruCache is a byte-budgeted LRU. The least-recently-accessed entry is
// evicted first whenever an insert would exceed the budget.
type lruCache struct {
	mu     sync.Mutex
	budget int64
	size   int64
	order  *list.List
	items  map[key]*list.Element
}

func newLRUCache(budget int64) *lruCache {
	return &lruCache{
		budget: budget,
		order:  list.New(),
		items:  make(map[key]*list.Element),
	}
}

func (c *lruCache) get(k key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[k]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*entry).data, true
}

func (c *lruCache) put(k key, data []byte) {
	size := int64(len(data))
	if size > c.budget {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[k]; ok {
		old := elem.Value.(*entry)
		c.size += size - int64(len(old.data))
		old.data = data
		c.order.MoveToFront(elem)
	} else {
		c.items[k] = c.order.PushFront(&entry{key: k, data: data})
		c.size += size
	}
	for c.size > c.budget {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*entry)
		c.order.Remove(oldest)
		delete(c.items, evicted.key)
		c.size -= int64(len(evicted.data))
	}
}

func (c *lruCache) bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
