package page

import "testing"

func TestPushEntryRejectsEmptyKey(t *testing.T) {
	p := New(0, 256)
	if _, ok := p.PushEntry(nil, []byte("v")); ok {
		t.Fatal("expected PushEntry to reject an empty key")
	}
}

func TestPushEntryAllowsEmptyValue(t *testing.T) {
	p := New(0, 256)
	idx, ok := p.PushEntry([]byte("k"), nil)
	if !ok {
		t.Fatal("expected PushEntry to accept an empty value")
	}
	v, found := p.Get(idx, []byte("k"))
	if !found || len(v) != 0 {
		t.Fatalf("Get(%d, k) = %v, %v; want empty value, true", idx, v, found)
	}
}

func TestPushEntryRejectsOversizedEntry(t *testing.T) {
	p := New(0, 64)
	big := make([]byte, 128)
	if _, ok := p.PushEntry([]byte("k"), big); ok {
		t.Fatal("expected PushEntry to reject an entry larger than the page")
	}
}

func TestPushEntryRejectsEntryTooLargeForEmptyPage(t *testing.T) {
	capacity := uint32(40)
	p := New(0, capacity)
	maxEntry := MaxEntrySize(capacity)
	key := make([]byte, maxEntry) // metadata + key alone already exceeds the budget
	if _, ok := p.PushEntry(key, nil); ok {
		t.Fatal("expected PushEntry to reject an entry that cannot fit even in an empty page")
	}
}

func TestSizeAndFreeSpaceTrackPushes(t *testing.T) {
	p := New(0, 256)
	if got := p.Size(); got != overheadSize {
		t.Fatalf("empty page Size() = %d, want %d", got, overheadSize)
	}
	idx, ok := p.PushEntry([]byte("key"), []byte("value"))
	if !ok {
		t.Fatal("PushEntry failed unexpectedly")
	}
	if idx != 0 {
		t.Fatalf("first entry index = %d, want 0", idx)
	}
	want := overheadSize + EntryMetadataSize + uint32(len("key")+len("value"))
	if got := p.Size(); got != want {
		t.Fatalf("Size() after one push = %d, want %d", got, want)
	}
	if got := p.FreeSpace(); got != p.Capacity()-want {
		t.Fatalf("FreeSpace() = %d, want %d", got, p.Capacity()-want)
	}
}

func TestRoundTripGetByEntryIndex(t *testing.T) {
	p := New(7, 256)
	idx, _ := p.PushEntry([]byte("alpha"), []byte("one"))
	v, ok := p.Get(idx, []byte("alpha"))
	if !ok || string(v) != "one" {
		t.Fatalf("Get(%d, alpha) = %q, %v; want \"one\", true", idx, v, ok)
	}
}

func TestGetFallsBackToScanAfterRemoveShiftsIndices(t *testing.T) {
	p := New(0, 256)
	_, _ = p.PushEntry([]byte("a"), []byte("1"))
	bIdx, _ := p.PushEntry([]byte("b"), []byte("2"))
	_, _ = p.PushEntry([]byte("c"), []byte("3"))

	if !p.RemoveEntry([]byte("a")) {
		t.Fatal("RemoveEntry(a) = false, want true")
	}
	// b's true slot shifted down by one; the stale bIdx should still resolve
	// via the key-scan fallback.
	v, ok := p.Get(bIdx, []byte("b"))
	if !ok || string(v) != "2" {
		t.Fatalf("Get(%d, b) after shift = %q, %v; want \"2\", true", bIdx, v, ok)
	}
}

func TestRemoveEntryNotFound(t *testing.T) {
	p := New(0, 256)
	_, _ = p.PushEntry([]byte("a"), []byte("1"))
	if p.RemoveEntry([]byte("nope")) {
		t.Fatal("RemoveEntry(nope) = true, want false")
	}
}

func TestEntriesPreservesInsertionOrder(t *testing.T) {
	p := New(0, 256)
	keys := []string{"a", "b", "c"}
	for _, k := range keys {
		p.PushEntry([]byte(k), []byte(k))
	}
	entries := p.Entries()
	if len(entries) != len(keys) {
		t.Fatalf("len(Entries()) = %d, want %d", len(entries), len(keys))
	}
	for i, k := range keys {
		if string(entries[i].Key) != k {
			t.Fatalf("Entries()[%d].Key = %q, want %q", i, entries[i].Key, k)
		}
	}
}
