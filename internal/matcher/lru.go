package matcher

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ranker"
)

// Cache stores ranked hits by key. Implementations must be safe for
// concurrent use; stored slices are shared and must not be modified.
type Cache interface {
	Get(key string) ([]ranker.Hit, bool)
	Put(key string, hits []ranker.Hit)
}

// CacheStats is a point-in-time view of an LRU.
type CacheStats struct {
	Size     int   `json:"size"`
	Capacity int   `json:"capacity"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
}

type lruItem struct {
	key  string
	hits []ranker.Hit
}

// LRU is a bounded, mutex-guarded least-recently-used Cache.
type LRU struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[string]*list.Element
	hits     atomic.Int64
	misses   atomic.Int64
}

// NewLRU returns an LRU holding at most size keys. size <= 0 yields a cache
// that stores nothing.
func NewLRU(size int) *LRU {
	return &LRU{
		capacity: size,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *LRU) Get(key string) ([]ranker.Hit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits.Add(1)
	return el.Value.(*lruItem).hits, true
}

func (c *LRU) Put(key string, hits []ranker.Hit) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*lruItem).hits = hits
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&lruItem{key: key, hits: hits})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*lruItem).key)
	}
}

// Purge drops every entry.
func (c *LRU) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	clear(c.items)
}

func (c *LRU) Stats() CacheStats {
	c.mu.Lock()
	size := c.order.Len()
	c.mu.Unlock()
	return CacheStats{Size: size, Capacity: c.capacity, Hits: c.hits.Load(), Misses: c.misses.Load()}
}
