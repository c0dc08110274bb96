// Package buffer implements BlitzKV's page manager: a bounded page cache
// over a block device, a bin-packing allocator that segregates free space
// by hot/cold class, and the Location bookkeeping the database facade
// indexes by key. See SPEC_FULL.md §4.D.
//
// The free-space indexes generalize the single max-heap-by-available-space
// allocator of the original prototype (one BinaryHeap<PageWrapper> keyed
// purely by free space) into two smallest-fit maps, one per hotness class,
// so hot and cold entries never compete for the same page.
package buffer

import (
	"time"

	"github.com/ryogrid/blitzkv/storage/device"
	"github.com/ryogrid/blitzkv/storage/page"
)

// Location identifies where a key's entry lives: which page, and that
// entry's position within the page's entry vector at the time it was
// written.
type Location struct {
	PageID     uint64
	EntryIndex uint32
}

// Status is the page manager's bookkeeping record for one page, tracked
// regardless of whether the page is currently resident in the cache.
type Status struct {
	InMemory    *page.Page // nil while the page is evicted from cache
	IsHot       bool
	FreeSpace   uint32
	AccessCount uint64
	LastAccess  int64
}

// RebuiltEntry is one (key, value, location) triple recovered by Rebuild
// when reopening an existing file.
type RebuiltEntry struct {
	Key      []byte
	Value    []byte
	Location Location
}

// Manager is BlitzKV's page manager.
type Manager struct {
	dev      device.Device
	pageSize uint32
	nextID   uint64

	pages map[uint64]*Status
	cache *lru

	hotFree  map[uint32][]uint64
	coldFree map[uint32][]uint64

	hitCount, missCount uint64

	now func() int64
}

// NewManager constructs a page manager over dev with the given cache
// capacity (page count).
func NewManager(dev device.Device, pageSize uint32, cacheCapacity int) *Manager {
	return &Manager{
		dev:      dev,
		pageSize: pageSize,
		pages:    make(map[uint64]*Status),
		cache:    newLRU(cacheCapacity),
		hotFree:  make(map[uint32][]uint64),
		coldFree: make(map[uint32][]uint64),
		now:      func() int64 { return time.Now().Unix() },
	}
}

// Set writes (key, value) into the smallest page with enough free space in
// the requested hotness class, falling back to a freshly allocated page.
// It returns nil, nil (no error, no location) when the entry cannot fit
// even in a brand new page — the facade reports that as StorageFull.
func (m *Manager) Set(key, value []byte, isHot bool) (*Location, error) {
	class := m.classFor(isHot)
	required := uint32(len(key)) + uint32(len(value)) + page.EntryMetadataSize

	if pid, freeSpace, ok := findSmallestFit(class, required); ok {
		p, err := m.ensurePageLoaded(pid)
		if err != nil {
			return nil, err
		}
		if idx, pushed := p.PushEntry(key, value); pushed {
			if err := m.dev.WritePage(p); err != nil {
				return nil, err
			}
			m.reindexFreeSpace(class, pid, freeSpace, p.FreeSpace())
			st := m.pages[pid]
			st.FreeSpace = p.FreeSpace()
			st.IsHot = isHot
			return &Location{PageID: pid, EntryIndex: idx}, nil
		}
	}

	if page.MaxEntrySize(m.pageSize) < required {
		return nil, nil
	}

	pid := m.nextID
	m.nextID++
	p := page.New(pid, m.pageSize)
	idx, pushed := p.PushEntry(key, value)
	if !pushed {
		return nil, nil
	}
	if err := m.dev.WritePage(p); err != nil {
		return nil, err
	}

	m.pages[pid] = &Status{
		InMemory:    p,
		IsHot:       isHot,
		FreeSpace:   p.FreeSpace(),
		AccessCount: 1,
		LastAccess:  m.now(),
	}
	addToFreeIndex(class, p.FreeSpace(), pid)
	m.cache.Put(pid, p, m.onEvict)

	return &Location{PageID: pid, EntryIndex: idx}, nil
}

// Get returns the value stored at loc, verified against key. A nil value
// with a nil error means the page held no matching entry (the facade
// reports that as InvalidData — a dangling index entry).
func (m *Manager) Get(loc Location, key []byte) ([]byte, error) {
	p, err := m.ensurePageLoaded(loc.PageID)
	if err != nil {
		return nil, err
	}
	value, ok := p.Get(loc.EntryIndex, key)
	if !ok {
		return nil, nil
	}
	return value, nil
}

// RemoveEntry deletes key from the page identified by pageID and updates
// that page's free-space bookkeeping. This backs Database.Delete, which
// spec.md §9 leaves as an optional facade operation that this
// implementation chooses to provide.
func (m *Manager) RemoveEntry(pageID uint64, key []byte) (bool, error) {
	p, err := m.ensurePageLoaded(pageID)
	if err != nil {
		return false, err
	}
	oldFree := p.FreeSpace()
	if !p.RemoveEntry(key) {
		return false, nil
	}
	if err := m.dev.WritePage(p); err != nil {
		return false, err
	}

	st := m.pages[pageID]
	class := m.classFor(st.IsHot)
	m.reindexFreeSpace(class, pageID, oldFree, p.FreeSpace())
	st.FreeSpace = p.FreeSpace()
	return true, nil
}

// Rebuild scans every page slot the backing device already holds and
// replays its entries, for reconstructing the facade's in-memory key
// index after reopening an existing file. This adapts the teacher's
// page-id-mapping reload in BufMgr.NewBufMgr/loadPageIdMapping to a
// format with no separate serialized index: BlitzKV pages are
// self-describing, so rebuilding means reading every page sequentially
// rather than deserializing a dedicated mapping page.
func (m *Manager) Rebuild() ([]RebuiltEntry, error) {
	count, err := m.dev.PageCount()
	if err != nil {
		return nil, err
	}

	var entries []RebuiltEntry
	for pid := uint64(0); pid < count; pid++ {
		p, err := m.dev.ReadPage(pid)
		if err != nil {
			return nil, err
		}
		if len(p.Entries()) == 0 {
			continue
		}

		m.pages[pid] = &Status{
			FreeSpace:  p.FreeSpace(),
			LastAccess: m.now(),
		}
		addToFreeIndex(m.coldFree, p.FreeSpace(), pid)
		if pid >= m.nextID {
			m.nextID = pid + 1
		}

		for idx, e := range p.Entries() {
			entries = append(entries, RebuiltEntry{
				Key:      e.Key,
				Value:    e.Value,
				Location: Location{PageID: pid, EntryIndex: uint32(idx)},
			})
		}
	}
	return entries, nil
}

// TotalSize is the sum of current_size across every page the manager
// knows about.
func (m *Manager) TotalSize() uint64 {
	var total uint64
	for _, st := range m.pages {
		total += uint64(m.pageSize - st.FreeSpace)
	}
	return total
}

// TotalCapacity is the sum of capacity across every page the manager
// knows about.
func (m *Manager) TotalCapacity() uint64 {
	return uint64(len(m.pages)) * uint64(m.pageSize)
}

// HitRatio is the cache's hit count divided by total lookups since open.
func (m *Manager) HitRatio() float64 {
	total := m.hitCount + m.missCount
	if total == 0 {
		return 0
	}
	return float64(m.hitCount) / float64(total)
}

func (m *Manager) classFor(isHot bool) map[uint32][]uint64 {
	if isHot {
		return m.hotFree
	}
	return m.coldFree
}

func (m *Manager) ensurePageLoaded(pageID uint64) (*page.Page, error) {
	if p, ok := m.cache.Get(pageID); ok {
		m.hitCount++
		m.touch(pageID)
		return p, nil
	}

	m.missCount++
	p, err := m.dev.ReadPage(pageID)
	if err != nil {
		return nil, err
	}

	st, exists := m.pages[pageID]
	if !exists {
		st = &Status{}
		m.pages[pageID] = st
	}
	st.InMemory = p
	st.FreeSpace = p.FreeSpace()

	m.cache.Put(pageID, p, m.onEvict)
	m.touch(pageID)
	return p, nil
}

func (m *Manager) touch(pageID uint64) {
	st := m.pages[pageID]
	st.AccessCount++
	st.LastAccess = m.now()
}

// onEvict clears a page's in-memory residency when the LRU cache drops it.
// Free-space bookkeeping and access statistics are untouched: a page can
// be evicted and later reloaded transparently, per spec.md §4.D's
// Resident<->Evicted state machine.
func (m *Manager) onEvict(pageID uint64) {
	if st, ok := m.pages[pageID]; ok {
		st.InMemory = nil
	}
}

func (m *Manager) reindexFreeSpace(class map[uint32][]uint64, pageID uint64, oldFree, newFree uint32) {
	removeFromFreeIndex(class, oldFree, pageID)
	addToFreeIndex(class, newFree, pageID)
}

// addToFreeIndex registers pageID as an allocation candidate for freeSpace
// bytes. A page with no free space left is not a candidate for anything and
// is omitted, per spec.md §3's free-space index invariant.
func addToFreeIndex(idx map[uint32][]uint64, freeSpace uint32, pageID uint64) {
	if freeSpace == 0 {
		return
	}
	idx[freeSpace] = append(idx[freeSpace], pageID)
}

func removeFromFreeIndex(idx map[uint32][]uint64, freeSpace uint32, pageID uint64) {
	ids := idx[freeSpace]
	for i, id := range ids {
		if id == pageID {
			idx[freeSpace] = append(ids[:i], ids[i+1:]...)
			if len(idx[freeSpace]) == 0 {
				delete(idx, freeSpace)
			}
			return
		}
	}
}

// findSmallestFit returns the page with the smallest free-space bucket
// that is still >= required, implementing the bin-packing placement
// policy of spec.md §4.D.
func findSmallestFit(idx map[uint32][]uint64, required uint32) (pageID uint64, freeSpace uint32, ok bool) {
	found := false
	var bestKey uint32
	for k, ids := range idx {
		if len(ids) == 0 || k < required {
			continue
		}
		if !found || k < bestKey {
			bestKey = k
			found = true
		}
	}
	if !found {
		return 0, 0, false
	}
	return idx[bestKey][0], bestKey, true
}
