package page

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// ErrBadMagic is returned by Decode when a buffer does not start with Magic.
var ErrBadMagic = errors.New("page: bad magic header")

// ErrCRCMismatch is returned by Decode when the stored crc32 does not match
// the recomputed checksum over the entry-count-and-entries region.
var ErrCRCMismatch = errors.New("page: crc32 mismatch")

// ErrTruncated is returned by Decode when buf ends before an entry it
// claims to hold.
var ErrTruncated = errors.New("page: truncated entry data")

// Encode serializes p into buf, which must be at least p.Capacity() bytes
// long. It returns the number of bytes written (equal to p.Size()).
//
// Layout: magic[7] | id u64 LE | capacity u32 LE | crc32 u32 LE |
// entry_count u32 LE | entries... . crc32 covers everything from
// entry_count onward.
func Encode(p *Page, buf []byte) (int, error) {
	if uint32(len(buf)) < p.header.Capacity {
		return 0, fmt.Errorf("page: encode buffer (%d bytes) shorter than capacity (%d)", len(buf), p.header.Capacity)
	}
	for i := range buf {
		buf[i] = 0
	}

	copy(buf[0:7], Magic[:])
	binary.LittleEndian.PutUint64(buf[7:15], p.header.ID)
	binary.LittleEndian.PutUint32(buf[15:19], p.header.Capacity)
	binary.LittleEndian.PutUint32(buf[23:27], uint32(len(p.entries)))

	offset := 27
	for _, e := range p.entries {
		binary.LittleEndian.PutUint32(buf[offset:offset+4], uint32(len(e.Key)))
		binary.LittleEndian.PutUint32(buf[offset+4:offset+8], uint32(len(e.Value)))
		offset += 8
		offset += copy(buf[offset:], e.Key)
		offset += copy(buf[offset:], e.Value)
	}

	sum := crc32.ChecksumIEEE(buf[23:offset])
	binary.LittleEndian.PutUint32(buf[19:23], sum)
	p.header.CRC32 = sum

	return offset, nil
}

// Decode parses a page out of buf. A magic mismatch or crc32 mismatch is
// treated as a fatal, non-recoverable decode error, per spec.md §7.
func Decode(buf []byte) (*Page, error) {
	if len(buf) < overheadSize {
		return nil, fmt.Errorf("page: buffer (%d bytes) shorter than header", len(buf))
	}
	if !bytesEqual(buf[0:7], Magic[:]) {
		return nil, ErrBadMagic
	}

	id := binary.LittleEndian.Uint64(buf[7:15])
	capacity := binary.LittleEndian.Uint32(buf[15:19])
	crc := binary.LittleEndian.Uint32(buf[19:23])
	count := binary.LittleEndian.Uint32(buf[23:27])

	offset := 27
	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		if offset+EntryMetadataSize > len(buf) {
			return nil, ErrTruncated
		}
		keySize := binary.LittleEndian.Uint32(buf[offset : offset+4])
		valueSize := binary.LittleEndian.Uint32(buf[offset+4 : offset+8])
		offset += EntryMetadataSize

		if offset+int(keySize)+int(valueSize) > len(buf) {
			return nil, ErrTruncated
		}
		key := append([]byte(nil), buf[offset:offset+int(keySize)]...)
		offset += int(keySize)
		value := append([]byte(nil), buf[offset:offset+int(valueSize)]...)
		offset += int(valueSize)

		entries = append(entries, Entry{Key: key, Value: value})
	}

	sum := crc32.ChecksumIEEE(buf[23:offset])
	if sum != crc {
		return nil, ErrCRCMismatch
	}

	return &Page{
		header:      Header{ID: id, Capacity: capacity, CRC32: crc},
		entries:     entries,
		currentSize: uint32(offset),
	}, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
