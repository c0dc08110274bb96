// Package blitzkv implements an embedded, single-process, hotness-aware
// page-packed key-value store: keys and values are opaque byte slices,
// packed many-per-page onto a block-addressed file, with page placement
// steered by an exponentially decayed per-key access frequency.
//
// A Database is not safe for concurrent use. Callers that need concurrent
// access must wrap a Database in their own synchronization; the package
// deliberately adds none, per spec.md §5.
package blitzkv

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/google/btree"

	"github.com/ryogrid/blitzkv/storage/buffer"
	"github.com/ryogrid/blitzkv/storage/device"
)

// ObjectMetadata tracks a key's storage location and decayed access
// frequency, per spec.md §3.
type ObjectMetadata struct {
	Location     buffer.Location
	Size         uint64
	FreqAccessed float64
	LastAccess   int64
}

type keyItem struct {
	key  []byte
	meta *ObjectMetadata
}

func (a *keyItem) Less(than btree.Item) bool {
	return bytes.Compare(a.key, than.(*keyItem).key) < 0
}

// Database is BlitzKV's facade over the page manager: it owns the primary
// key index, classifies keys as hot or cold, and is the sole entry point
// callers use. Per spec.md §3, a Database exclusively owns its page
// manager, which exclusively owns its device; there is no sharing.
type Database struct {
	index   *btree.BTree
	manager *buffer.Manager
	dev     device.Device
	cfg     Config

	freqHistogram *hdrhistogram.Histogram
	now           func() int64
}

// New opens (or creates) a database at path with the given hot threshold
// and every other option at its documented default.
func New(path string, hotThreshold uint32) (*Database, error) {
	return NewWithConfig(path, Config{HotThreshold: hotThreshold})
}

// NewWithConfig opens a database at path using cfg, filling any
// zero-valued field with its default (spec.md §6).
func NewWithConfig(path string, cfg Config) (*Database, error) {
	cfg = cfg.withDefaults()

	dev, err := device.Open(path, device.Config{PageSize: cfg.PageSize, DirectIO: cfg.DirectIO})
	if err != nil {
		return nil, &DatabaseError{Kind: DBStorage, Err: err}
	}

	db := &Database{
		index:         btree.New(32),
		manager:       buffer.NewManager(dev, cfg.PageSize, cfg.CacheCapacity),
		dev:           dev,
		cfg:           cfg,
		freqHistogram: hdrhistogram.New(1, 1_000_000, 3),
		now:           func() int64 { return time.Now().Unix() },
	}

	if err := db.rebuildIndex(); err != nil {
		return nil, &DatabaseError{Kind: DBStorage, Err: err}
	}
	return db, nil
}

// NewFromConfigFile loads a YAML config file and opens the database at
// path with it.
func NewFromConfigFile(path, configPath string) (*Database, error) {
	cfg, err := LoadConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(path, cfg)
}

// rebuildIndex replays every entry already present on the backing device
// into the in-memory key index, so a freshly reopened database answers
// Get for keys written in a previous run (spec.md §8's durability
// property). Replayed entries start cold with frequency 1; their hotness
// is re-learned from subsequent access, same as a key seen for the first
// time.
func (d *Database) rebuildIndex() error {
	entries, err := d.manager.Rebuild()
	if err != nil {
		return err
	}
	now := d.now()
	for _, e := range entries {
		d.index.ReplaceOrInsert(&keyItem{
			key: e.Key,
			meta: &ObjectMetadata{
				Location:     e.Location,
				Size:         uint64(len(e.Key) + len(e.Value)),
				FreqAccessed: 1,
				LastAccess:   now,
			},
		})
	}
	return nil
}

// Close releases the backing device.
func (d *Database) Close() error {
	if err := d.dev.Close(); err != nil {
		return &DatabaseError{Kind: DBStorage, Err: err}
	}
	return nil
}

// Set inserts or overwrites key with value. Last write wins; space
// occupied by a prior version of the same key is not reclaimed (spec.md
// §9's explicitly resolved "no automatic space reclamation" note).
func (d *Database) Set(key, value []byte) error {
	now := d.now()

	// The existing key's decayed frequency, if any, picks is_hot for page
	// placement only; per spec.md §4.E step 3 the persisted metadata always
	// restarts at freq_accessed=1.0 on a successful write.
	isHot := false
	if existing := d.index.Get(&keyItem{key: key}); existing != nil {
		existingMeta := existing.(*keyItem).meta
		isHot = d.applyDecay(existingMeta, now)
	}

	loc, err := d.manager.Set(key, value, isHot)
	if err != nil {
		return &DatabaseError{Kind: DBStorage, Err: err}
	}
	if loc == nil {
		return &DatabaseError{Kind: DBStorageFull, Err: fmt.Errorf("entry of %d bytes does not fit in a page of size %d", len(key)+len(value), d.cfg.PageSize)}
	}

	meta := &ObjectMetadata{
		Location:     *loc,
		Size:         uint64(len(key) + len(value)),
		FreqAccessed: 1,
		LastAccess:   now,
	}
	d.index.ReplaceOrInsert(&keyItem{key: append([]byte(nil), key...), meta: meta})
	return nil
}

// Get returns the value stored for key.
func (d *Database) Get(key []byte) ([]byte, error) {
	item := d.index.Get(&keyItem{key: key})
	if item == nil {
		return nil, &DatabaseError{Kind: DBKeyNotFound}
	}
	meta := item.(*keyItem).meta
	d.applyDecay(meta, d.now())

	value, err := d.manager.Get(meta.Location, key)
	if err != nil {
		return nil, &DatabaseError{Kind: DBStorage, Err: err}
	}
	if value == nil {
		return nil, &DatabaseError{Kind: DBInvalidData, Err: fmt.Errorf("index points at %+v but the page holds no matching entry", meta.Location)}
	}
	return value, nil
}

// Delete removes key from both the page-level storage and the key index.
// spec.md §9 leaves a public delete as optional; this facade provides one,
// mirroring the behavior kept in the prototype this spec was distilled
// from.
func (d *Database) Delete(key []byte) error {
	item := d.index.Get(&keyItem{key: key})
	if item == nil {
		return &DatabaseError{Kind: DBKeyNotFound}
	}
	meta := item.(*keyItem).meta

	removed, err := d.manager.RemoveEntry(meta.Location.PageID, key)
	if err != nil {
		return &DatabaseError{Kind: DBStorage, Err: err}
	}
	if !removed {
		return &DatabaseError{Kind: DBInvalidData, Err: fmt.Errorf("index points at %+v but the page holds no matching entry", meta.Location)}
	}

	d.index.Delete(&keyItem{key: key})
	return nil
}

// Keys returns every stored key in strictly increasing lexicographic
// order.
func (d *Database) Keys() [][]byte {
	keys := make([][]byte, 0, d.index.Len())
	d.index.Ascend(func(item btree.Item) bool {
		keys = append(keys, append([]byte(nil), item.(*keyItem).key...))
		return true
	})
	return keys
}

// Len returns the number of stored keys.
func (d *Database) Len() int { return d.index.Len() }

// IsEmpty reports whether the database holds no keys.
func (d *Database) IsEmpty() bool { return d.index.Len() == 0 }

// HitRatio reports the page manager's cache hit ratio since open.
func (d *Database) HitRatio() float64 { return d.manager.HitRatio() }

// DeviceMetrics reports the backing device's read/write counters and
// latency percentiles.
func (d *Database) DeviceMetrics() device.Metrics { return d.dev.Metrics() }

// FrequencyHistogram exposes the decayed access-frequency distribution
// observed across every key, for an external reporting collaborator.
func (d *Database) FrequencyHistogram() *hdrhistogram.Histogram { return d.freqHistogram }

// TotalSize returns the sum of current_size across every page.
func (d *Database) TotalSize() uint64 { return d.manager.TotalSize() }

// TotalCapacity returns the sum of capacity across every page.
func (d *Database) TotalCapacity() uint64 { return d.manager.TotalCapacity() }

// SpaceAmplification is TotalSize divided by the number of live keys, a
// reporting metric ported from the original prototype this spec was
// distilled from (its database.rs computed the same ratio).
func (d *Database) SpaceAmplification() float64 {
	if d.index.Len() == 0 {
		return math.NaN()
	}
	return float64(d.TotalSize()) / float64(d.index.Len())
}

// applyDecay updates meta's decayed access frequency in place using
// spec.md §4.E's exponential-decay formula and reports whether the key is
// now classified hot.
func (d *Database) applyDecay(meta *ObjectMetadata, now int64) bool {
	dt := now - meta.LastAccess
	if dt < 0 {
		dt = 0
	}
	meta.FreqAccessed = meta.FreqAccessed*math.Exp(-d.cfg.DecayRate*float64(dt)) + 1
	meta.LastAccess = now
	d.freqHistogram.RecordValue(int64(meta.FreqAccessed * 100))
	return meta.FreqAccessed >= float64(d.cfg.HotThreshold)
}
