// Package device implements BlitzKV's block-addressed page storage: fixed
// page-size reads and writes against a single backing file (buffered or
// O_DIRECT), and a drop-in in-memory backend for tests. See SPEC_FULL.md
// §4.A.
package device

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dsnet/golib/memfile"
	"github.com/ncw/directio"

	"github.com/ryogrid/blitzkv/storage/page"
)

// Config holds a device's construction-time options.
type Config struct {
	PageSize uint32
	DirectIO bool
}

// Device is the block-addressed storage abstraction the page manager reads
// and writes through.
type Device interface {
	ReadPage(pageID uint64) (*page.Page, error)
	WritePage(p *page.Page) error
	PageSize() uint32
	// PageCount reports how many page-sized slots are known to exist, for
	// rebuilding the in-memory key index on reopen.
	PageCount() (uint64, error)
	Metrics() Metrics
	Close() error
}

type blockStore interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// FileDevice is a page-aligned block device backed either by a buffered
// os.File, an O_DIRECT os.File, or an in-memory store for tests.
type FileDevice struct {
	backend    blockStore
	pageSize   uint32
	directIO   bool
	metrics    *metricsCollector
	knownPages uint64 // high-water mark: one past the largest page id seen
}

// Open opens (creating if necessary) the file at path as a block device
// with the given configuration. When cfg.DirectIO is set, cfg.PageSize
// must be a power of two, per spec.md §4.A.
func Open(path string, cfg Config) (*FileDevice, error) {
	if cfg.PageSize == 0 {
		return nil, &StorageError{Kind: InvalidPageSizeKind}
	}
	if cfg.DirectIO && cfg.PageSize&(cfg.PageSize-1) != 0 {
		return nil, &StorageError{Kind: InvalidPageSizeKind, Err: fmt.Errorf("direct I/O page size %d is not a power of two", cfg.PageSize)}
	}

	var backend blockStore
	var err error
	if cfg.DirectIO {
		backend, err = directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	} else {
		backend, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	}
	if err != nil {
		return nil, &StorageError{Kind: IOErr, Err: fmt.Errorf("open %s: %w", path, err)}
	}

	d := &FileDevice{
		backend:  backend,
		pageSize: cfg.PageSize,
		directIO: cfg.DirectIO,
		metrics:  newMetricsCollector(),
	}
	if f, ok := backend.(*os.File); ok {
		if info, err := f.Stat(); err == nil {
			d.knownPages = uint64(info.Size()) / uint64(cfg.PageSize)
		}
	}
	return d, nil
}

// OpenMemory returns an in-memory device backed by an ephemeral store,
// useful for tests that should not touch disk.
func OpenMemory(pageSize uint32) (*FileDevice, error) {
	if pageSize == 0 {
		return nil, &StorageError{Kind: InvalidPageSizeKind}
	}
	return &FileDevice{
		backend:  memoryBackend{memfile.New(nil)},
		pageSize: pageSize,
		metrics:  newMetricsCollector(),
	}, nil
}

type memoryBackend struct{ *memfile.File }

func (memoryBackend) Close() error { return nil }

func (d *FileDevice) PageSize() uint32 { return d.pageSize }

func (d *FileDevice) newBuffer() []byte {
	if d.directIO {
		return directio.AlignedBlock(int(d.pageSize))
	}
	return make([]byte, d.pageSize)
}

// ReadPage reads the page at pageID. A read that lands entirely beyond the
// current end of the backing store returns a fresh, empty page rather than
// an error, per spec.md §4.A.
func (d *FileDevice) ReadPage(pageID uint64) (*page.Page, error) {
	start := time.Now()
	buf := d.newBuffer()
	n, err := d.backend.ReadAt(buf, int64(pageID)*int64(d.pageSize))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &StorageError{Kind: IOErr, Err: fmt.Errorf("read page %d: %w", pageID, err)}
	}
	d.metrics.recordRead(n, time.Since(start).Nanoseconds())

	if n == 0 {
		return page.New(pageID, d.pageSize), nil
	}
	p, err := page.Decode(buf)
	if err != nil {
		return nil, &StorageError{Kind: DecodeKind, Err: fmt.Errorf("decode page %d: %w", pageID, err)}
	}
	return p, nil
}

// WritePage serializes p and writes it to its own page-aligned slot.
func (d *FileDevice) WritePage(p *page.Page) error {
	if p.Capacity() != d.pageSize {
		return &StorageError{Kind: InvalidPageSizeKind, Err: fmt.Errorf("page %d has capacity %d, device page size is %d", p.ID(), p.Capacity(), d.pageSize)}
	}
	start := time.Now()
	buf := d.newBuffer()
	n, err := page.Encode(p, buf)
	if err != nil {
		return &StorageError{Kind: IOErr, Err: err}
	}
	if _, err := d.backend.WriteAt(buf, int64(p.ID())*int64(d.pageSize)); err != nil {
		return &StorageError{Kind: IOErr, Err: fmt.Errorf("write page %d: %w", p.ID(), err)}
	}
	d.metrics.recordWrite(n, time.Since(start).Nanoseconds())
	if p.ID()+1 > d.knownPages {
		d.knownPages = p.ID() + 1
	}
	return nil
}

// PageCount reports how many page-sized slots are known to exist: the
// file's size at open time (for reopening a durable file) combined with
// every page id written since, so a page manager sharing a device within
// the same process (as the in-memory backend does in tests) also sees an
// accurate count.
func (d *FileDevice) PageCount() (uint64, error) {
	return d.knownPages, nil
}

func (d *FileDevice) Metrics() Metrics { return d.metrics.snapshot() }

func (d *FileDevice) Close() error { return d.backend.Close() }
