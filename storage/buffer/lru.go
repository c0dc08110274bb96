package buffer

import (
	"container/list"

	"github.com/ryogrid/blitzkv/storage/page"
)

// lru is a bounded, capacity-evicting page cache. It is the single-
// threaded descendant of the teacher's hash-chain-plus-doubly-linked-list
// latch eviction in bufmgr.go's PinLatch/LatchLink: same intrusive-list
// eviction shape, with the clock-bit pin/unpin bookkeeping stripped out
// since spec.md §5 rules out concurrent access.
type lru struct {
	capacity int
	order    *list.List
	elements map[uint64]*list.Element
}

type lruEntry struct {
	pageID uint64
	page   *page.Page
}

func newLRU(capacity int) *lru {
	if capacity <= 0 {
		capacity = 1
	}
	return &lru{
		capacity: capacity,
		order:    list.New(),
		elements: make(map[uint64]*list.Element),
	}
}

func (c *lru) Get(pageID uint64) (*page.Page, bool) {
	el, ok := c.elements[pageID]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).page, true
}

// Put inserts or refreshes pageID's entry. When the cache is over capacity
// afterward, the least recently used page is evicted and onEvict is
// called with its id so the caller can clear that page's residency state.
func (c *lru) Put(pageID uint64, p *page.Page, onEvict func(uint64)) {
	if el, ok := c.elements[pageID]; ok {
		el.Value.(*lruEntry).page = p
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&lruEntry{pageID: pageID, page: p})
	c.elements[pageID] = el

	if c.order.Len() > c.capacity {
		back := c.order.Back()
		victim := back.Value.(*lruEntry)
		c.order.Remove(back)
		delete(c.elements, victim.pageID)
		if onEvict != nil {
			onEvict(victim.pageID)
		}
	}
}

func (c *lru) Len() int { return c.order.Len() }
