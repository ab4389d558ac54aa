package syntax

import (
	"container/list"
	"sync"

	"github.com/dhamidi/arbor/grammar"
)

// maxInternChildren bounds the child count of subtrees that are shared
// through the cache. Larger nodes are rarely identical.
const maxInternChildren = 4

// DefaultCacheSize is the capacity used when none is given.
const DefaultCacheSize = 4096

type internKey struct {
	lang       *grammar.Language
	symbol     grammar.Symbol
	production uint32
	size       Length
	flags      flags
	lookahead  int
	parseState grammar.StateID
	errorCost  int
	extBefore  string
	extAfter   string
	n          int
	children   [maxInternChildren]*Subtree
	fields     [maxInternChildren]grammar.FieldID
}

type cacheEntry struct {
	key internKey
	st  *Subtree
}

// Cache is a bounded LRU of subtrees keyed by their shape, so equal
// leaves and small nodes are stored once. Eviction only loses sharing.
//
// Safe for concurrent use; one cache may serve several parsers.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[internKey]*list.Element
	hits     int
	misses   int
}

// NewCache creates a cache holding up to capacity subtrees. A capacity
// of zero or less uses DefaultCacheSize.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[internKey]*list.Element, capacity),
	}
}

func (c *Cache) intern(lang *grammar.Language, s *Subtree) *Subtree {
	if len(s.children) > maxInternChildren {
		return s
	}
	key := internKey{
		lang:       lang,
		symbol:     s.symbol,
		production: s.production,
		size:       s.size,
		flags:      s.flags,
		lookahead:  s.lookahead,
		parseState: s.parseState,
		errorCost:  s.errorCost,
		extBefore:  s.extBefore,
		extAfter:   s.extAfter,
		n:          len(s.children),
	}
	copy(key.children[:], s.children)
	if s.fields != nil {
		copy(key.fields[:], s.fields)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		c.hits++
		return el.Value.(*cacheEntry).st
	}
	c.misses++
	if c.ll.Len() >= c.capacity {
		c.evictLocked()
	}
	c.items[key] = c.ll.PushFront(&cacheEntry{key: key, st: s})
	return s
}

// Len returns the number of cached subtrees.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Capacity returns the maximum number of cached subtrees.
func (c *Cache) Capacity() int { return c.capacity }

// Stats returns the number of lookups that found and did not find a
// shared subtree.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[internKey]*list.Element, c.capacity)
}

// evictLocked removes the least recently used entry. c.mu must be held.
func (c *Cache) evictLocked() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.ll.Remove(el)
	delete(c.items, el.Value.(*cacheEntry).key)
}
