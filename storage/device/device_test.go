package device

import (
	"errors"
	"testing"

	"github.com/ryogrid/blitzkv/storage/page"
)

func TestReadPageBeyondEOFReturnsEmptyPage(t *testing.T) {
	d, err := OpenMemory(256)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer d.Close()

	p, err := d.ReadPage(5)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if p.ID() != 5 || p.Capacity() != 256 {
		t.Fatalf("ReadPage(5) = id %d cap %d, want id 5 cap 256", p.ID(), p.Capacity())
	}
	if len(p.Entries()) != 0 {
		t.Fatalf("ReadPage beyond EOF should be empty, got %d entries", len(p.Entries()))
	}
}

func TestWriteThenReadPageRoundTrip(t *testing.T) {
	d, err := OpenMemory(256)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer d.Close()

	p := page.New(3, 256)
	p.PushEntry([]byte("k"), []byte("v"))
	if err := d.WritePage(p); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	got, err := d.ReadPage(3)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	entries := got.Entries()
	if len(entries) != 1 || string(entries[0].Key) != "k" || string(entries[0].Value) != "v" {
		t.Fatalf("round trip entries = %+v, want [{k v}]", entries)
	}

	m := d.Metrics()
	if m.Reads != 1 || m.Writes != 1 {
		t.Fatalf("Metrics = %+v, want one read and one write", m)
	}
}

func TestWritePageRejectsMismatchedCapacity(t *testing.T) {
	d, err := OpenMemory(256)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer d.Close()

	p := page.New(0, 128)
	var se *StorageError
	if err := d.WritePage(p); !errors.As(err, &se) || se.Kind != InvalidPageSizeKind {
		t.Fatalf("WritePage with mismatched capacity: err = %v, want InvalidPageSizeKind StorageError", err)
	}
}

func TestOpenRejectsZeroPageSize(t *testing.T) {
	var se *StorageError
	if _, err := OpenMemory(0); !errors.As(err, &se) || se.Kind != InvalidPageSizeKind {
		t.Fatalf("OpenMemory(0): err = %v, want InvalidPageSizeKind StorageError", err)
	}
}

func TestDirectIORejectsNonPowerOfTwoPageSize(t *testing.T) {
	dir := t.TempDir()
	var se *StorageError
	_, err := Open(dir+"/direct.db", Config{PageSize: 100, DirectIO: true})
	if !errors.As(err, &se) || se.Kind != InvalidPageSizeKind {
		t.Fatalf("Open with non-power-of-two direct I/O page size: err = %v, want InvalidPageSizeKind", err)
	}
}

func TestPageCountReflectsFileSize(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir+"/pages.db", Config{PageSize: 256})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if n, _ := d.PageCount(); n != 0 {
		t.Fatalf("PageCount on fresh file = %d, want 0", n)
	}

	p := page.New(0, 256)
	p.PushEntry([]byte("k"), []byte("v"))
	if err := d.WritePage(p); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	p2 := page.New(2, 256)
	p2.PushEntry([]byte("k2"), []byte("v2"))
	if err := d.WritePage(p2); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	if n, err := d.PageCount(); err != nil || n != 3 {
		t.Fatalf("PageCount after writing page 2 = %d, %v; want 3, nil", n, err)
	}
}
