// Package page implements BlitzKV's on-disk page: a fixed-size unit that
// packs variable-length (key, value) entries behind a CRC-guarded header.
// See SPEC_FULL.md §4.B/§4.C for the full layout and operation contracts.
package page

import (
	"bytes"
	"errors"
)

// HeaderSize is the byte length of the fixed prefix every page carries:
// 7-byte magic + 8-byte id + 4-byte capacity + 4-byte crc32.
const HeaderSize = 23

// EntryCountSize is the width of the little-endian entry-count field that
// immediately follows HeaderSize.
const EntryCountSize = 4

// EntryMetadataSize is the per-entry length-prefix overhead: a 4-byte
// key_size plus a 4-byte value_size.
const EntryMetadataSize = 8

// overheadSize is the fixed cost of an empty page: header, crc32 and entry
// count, before any entry is written.
const overheadSize = HeaderSize + EntryCountSize

// Magic identifies a BlitzKV page on disk.
var Magic = [7]byte{'b', 'l', 'i', 't', 'z', 'k', 'v'}

// ErrEmptyKey describes the rejection of a zero-length key; keys must be at
// least one byte (spec.md §4.C). PushEntry does not return it: it reports an
// empty key by returning false.
var ErrEmptyKey = errors.New("page: key must not be empty")

// Header is the fixed prefix of every page.
type Header struct {
	ID       uint64
	Capacity uint32
	CRC32    uint32
}

// Entry is a single (key, value) pair stored inside a page.
type Entry struct {
	Key   []byte
	Value []byte
}

func (e Entry) totalSize() uint32 {
	return EntryMetadataSize + uint32(len(e.Key)) + uint32(len(e.Value))
}

// Page is the in-memory representation of one fixed-size storage unit.
// Entries preserve insertion order; an entry's position in the slice is
// its EntryIndex, per spec.md §9's resolution of the Location.entry_index
// ambiguity ("true position in the entry vector").
type Page struct {
	header      Header
	entries     []Entry
	currentSize uint32
}

// New creates an empty page with the given id and capacity.
func New(id uint64, capacity uint32) *Page {
	return &Page{
		header:      Header{ID: id, Capacity: capacity},
		currentSize: overheadSize,
	}
}

// MaxEntrySize is the largest single entry (8-byte metadata + key + value)
// that can ever fit in a freshly allocated page of the given capacity.
func MaxEntrySize(capacity uint32) uint32 {
	if capacity < overheadSize {
		return 0
	}
	return capacity - overheadSize
}

// PushEntry appends (key, value) to the page if there is room, returning
// its zero-based entry index. No duplicate-key detection happens here;
// the database facade is responsible for key uniqueness.
func (p *Page) PushEntry(key, value []byte) (uint32, bool) {
	if len(key) == 0 {
		return 0, false
	}
	needed := p.currentSize + EntryMetadataSize + uint32(len(key)) + uint32(len(value))
	if needed > p.header.Capacity {
		return 0, false
	}
	idx := uint32(len(p.entries))
	p.entries = append(p.entries, Entry{
		Key:   append([]byte(nil), key...),
		Value: append([]byte(nil), value...),
	})
	p.currentSize = needed
	return idx, true
}

// RemoveEntry removes the first entry whose key equals key, shifting later
// entries one index lower. Per spec.md §9, this invalidates any cached
// Location whose entry_index pointed past the removed slot; Get's
// key-scan fallback is what keeps that safe (see SPEC_FULL.md §4.C).
func (p *Page) RemoveEntry(key []byte) bool {
	for i, e := range p.entries {
		if bytes.Equal(e.Key, key) {
			p.currentSize -= e.totalSize()
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the value for key. It first checks entryIndex directly and
// falls back to a linear scan by key if that slot has gone stale (e.g.
// after an intervening RemoveEntry shifted the entry vector).
func (p *Page) Get(entryIndex uint32, key []byte) ([]byte, bool) {
	if int(entryIndex) < len(p.entries) && bytes.Equal(p.entries[entryIndex].Key, key) {
		return p.entries[entryIndex].Value, true
	}
	for _, e := range p.entries {
		if bytes.Equal(e.Key, key) {
			return e.Value, true
		}
	}
	return nil, false
}

// Size returns the number of bytes currently consumed by the page,
// including header, crc32 and entry-count overhead.
func (p *Page) Size() uint32 { return p.currentSize }

// Capacity returns the page's fixed byte capacity.
func (p *Page) Capacity() uint32 { return p.header.Capacity }

// FreeSpace returns the number of bytes still available for new entries.
func (p *Page) FreeSpace() uint32 { return p.header.Capacity - p.currentSize }

// ID returns the page's identifier.
func (p *Page) ID() uint64 { return p.header.ID }

// Entries returns the page's entries in insertion (and on-disk) order.
// The caller must not mutate the returned slice's backing array.
func (p *Page) Entries() []Entry { return p.entries }
