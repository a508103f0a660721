// Package deletion implements DeletedRecord: the tombstone log a growing
// segment appends (uid, ts) pairs to, and the LRU-cached visibility bitmap
// get_deleted_bitmap builds against a query's del_barrier/ins_barrier pair.
// The LRU shape is grounded on internal/store/query_cache.go's
// container/list-backed QueryCache, generalized from a fixed TTL-expiry
// policy to a pure size-bounded one, since the visibility bitmap has no
// natural expiry — only staleness relative to the barrier it was built for.
// Cache keys combine (del_barrier, ins_barrier) through xxhash the way
// internal/store/hashing.go's HashHybridQuery folds multiple heterogeneous
// query fields into one uint64 key.
package deletion

import (
	"container/list"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"

	"github.com/ishine/segcore/internal/concurrency"
	"github.com/ishine/segcore/internal/core"
	"github.com/ishine/segcore/internal/metrics"
)

// bitmapCacheKey folds a (del_barrier, ins_barrier) pair into one uint64 so
// the LRU can key on a single comparable value despite tracking two axes of
// staleness.
func bitmapCacheKey(delBarrier, insBarrier int) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(delBarrier))
	binary.LittleEndian.PutUint64(buf[8:], uint64(insBarrier))
	return xxhash.Sum64(buf[:])
}

// tombstone is one published delete: the primary key it shadows and the
// timestamp at which the delete becomes visible.
type tombstone struct {
	uid core.PrimaryKey
	ts  core.Timestamp
}

// TmpBitmap is one LRU entry: a visibility bitmap built for a specific
// del_barrier, sized to the ins_barrier it was built against.
type TmpBitmap struct {
	DelBarrier int
	InsBarrier int
	Bitmap     *roaring.Bitmap
}

// DeletedRecord is the append-only delete log plus its visibility-bitmap
// LRU. One instance per growing segment.
type DeletedRecord struct {
	segment string

	ack *concurrency.AckResponder

	mu         sync.Mutex
	uids       []core.PrimaryKey
	timestamps []core.Timestamp

	cacheMu  sync.Mutex
	capacity int
	cache    map[uint64]*list.Element // bitmapCacheKey(del_barrier, ins_barrier) -> lru element
	lru      *list.List

	// insertOffsets resolves uid -> every insert offset for that uid, each
	// paired with the timestamp it was inserted at. Supplied by the owning
	// SegmentGrowing via InsertOffsetsFor, since DeletedRecord has no view
	// of InsertRecord's columns itself.
	insertOffsets func(uid core.PrimaryKey) []InsertOffset
}

// InsertOffset pairs a row offset with the timestamp it was inserted at,
// the lookup get_deleted_bitmap needs from InsertRecord's uid->offset
// multimap (spec §4.4).
type InsertOffset struct {
	Offset core.RowOffset
	Ts     core.Timestamp
}

// New creates a DeletedRecord for segment, with visibility-bitmap LRU
// capacity entries (spec default 16, per SUPPLEMENTED FEATURES item 2).
// insertOffsets must return, for any uid, every (offset, ts) pair that uid
// was ever inserted at.
func New(segment string, capacity int, insertOffsets func(core.PrimaryKey) []InsertOffset) *DeletedRecord {
	core.Assert(capacity > 0, "bitmap cache capacity must be positive, got %d", capacity)
	return &DeletedRecord{
		segment:       segment,
		ack:           concurrency.NewAckResponder(),
		capacity:      capacity,
		cache:         make(map[uint64]*list.Element),
		lru:           list.New(),
		insertOffsets: insertOffsets,
	}
}

// PreDelete reserves n tombstone slots and returns the begin offset, the
// delete-side analogue of SegmentGrowing.pre_insert.
func (d *DeletedRecord) PreDelete(n int) int {
	d.mu.Lock()
	begin := len(d.uids)
	d.uids = append(d.uids, make([]core.PrimaryKey, n)...)
	d.timestamps = append(d.timestamps, make([]core.Timestamp, n)...)
	d.mu.Unlock()
	return begin
}

// Remove publishes n deletes into the slots reserved at begin. Rows may
// arrive out of timestamp order within the batch; they are stably sorted
// by (ts, uid) before being written, per SUPPLEMENTED FEATURES item 1.
func (d *DeletedRecord) Remove(begin, n int, uids []core.PrimaryKey, timestamps []core.Timestamp) error {
	core.Assert(len(uids) == n && len(timestamps) == n, "remove: batch length mismatch")

	type row struct {
		uid core.PrimaryKey
		ts  core.Timestamp
	}
	rows := make([]row, n)
	for i := range rows {
		rows[i] = row{uids[i], timestamps[i]}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ts != rows[j].ts {
			return rows[i].ts < rows[j].ts
		}
		return rows[i].uid < rows[j].uid
	})

	d.mu.Lock()
	for i, r := range rows {
		d.uids[begin+i] = r.uid
		d.timestamps[begin+i] = r.ts
	}
	d.mu.Unlock()

	d.ack.Ack(int64(begin), int64(begin+n))
	metrics.DeleteRowsTotal.WithLabelValues(d.segment).Add(float64(n))
	return nil
}

// DelBarrier returns the number of deletes published with ts < tr, found
// by binary search over the published delete timestamps.
func (d *DeletedRecord) DelBarrier(tr core.Timestamp) int {
	horizon := int(d.ack.Horizon())
	d.mu.Lock()
	defer d.mu.Unlock()
	ts := d.timestamps[:horizon]
	return sort.Search(len(ts), func(i int) bool { return ts[i] >= tr })
}

func (d *DeletedRecord) tombstoneAt(i int) tombstone {
	d.mu.Lock()
	defer d.mu.Unlock()
	return tombstone{uid: d.uids[i], ts: d.timestamps[i]}
}

// GetDeletedBitmap implements get_deleted_bitmap (spec §4.3): a bitmap of
// length insBarrier where bit o is set iff row o is shadowed by a delete
// visible at tr. Consults the LRU first; on a miss it clones the nearest
// cached entry and incrementally patches forward or backward.
func (d *DeletedRecord) GetDeletedBitmap(delBarrier int, tr core.Timestamp, insBarrier int) *roaring.Bitmap {
	d.cacheMu.Lock()

	key := bitmapCacheKey(delBarrier, insBarrier)
	if elem, ok := d.cache[key]; ok {
		entry := elem.Value.(*TmpBitmap)
		d.lru.MoveToFront(elem)
		bm := entry.Bitmap.Clone()
		d.cacheMu.Unlock()
		metrics.BitmapCacheHitsTotal.Inc()
		return bm
	}

	nearest := d.nearestLocked(delBarrier)
	d.cacheMu.Unlock()
	metrics.BitmapCacheMissesTotal.Inc()

	var bm *roaring.Bitmap
	fromBarrier := 0
	if nearest != nil {
		bm = nearest.Bitmap.Clone()
		fromBarrier = nearest.DelBarrier
	} else {
		bm = roaring.New()
	}

	switch {
	case fromBarrier < delBarrier:
		for i := fromBarrier; i < delBarrier; i++ {
			ts := d.tombstoneAt(i)
			d.patchForward(bm, ts, tr, insBarrier)
		}
	case fromBarrier > delBarrier:
		for i := delBarrier; i < fromBarrier; i++ {
			ts := d.tombstoneAt(i)
			d.patchBackward(bm, ts, tr, insBarrier)
		}
	}

	d.install(delBarrier, insBarrier, bm)
	return bm.Clone()
}

// patchForward applies one more delete: find the maximum insert offset for
// ts.uid that's < insBarrier and inserted before tr, and set that bit.
func (d *DeletedRecord) patchForward(bm *roaring.Bitmap, ts tombstone, tr core.Timestamp, insBarrier int) {
	best := core.InvalidRowOffset
	for _, o := range d.insertOffsets(ts.uid) {
		if int(o.Offset) < insBarrier && o.Ts < tr && o.Offset > best {
			best = o.Offset
		}
	}
	if best != core.InvalidRowOffset {
		bm.Add(uint32(best))
	}
}

// patchBackward is the inverse: clear the bit a since-retired delete had
// set, re-deriving it from the same insert lookup.
func (d *DeletedRecord) patchBackward(bm *roaring.Bitmap, ts tombstone, tr core.Timestamp, insBarrier int) {
	best := core.InvalidRowOffset
	for _, o := range d.insertOffsets(ts.uid) {
		if int(o.Offset) < insBarrier && o.Ts < tr && o.Offset > best {
			best = o.Offset
		}
	}
	if best != core.InvalidRowOffset {
		bm.Remove(uint32(best))
	}
}

// nearestLocked returns the cache entry whose DelBarrier is closest to
// target, scanning the (small, LRU-bounded) cache. Caller holds cacheMu.
func (d *DeletedRecord) nearestLocked(target int) *TmpBitmap {
	var best *TmpBitmap
	bestDist := -1
	for elem := d.lru.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*TmpBitmap)
		dist := entry.DelBarrier - target
		if dist < 0 {
			dist = -dist
		}
		if best == nil || dist < bestDist {
			best, bestDist = entry, dist
		}
	}
	return best
}

func (d *DeletedRecord) install(delBarrier, insBarrier int, bm *roaring.Bitmap) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()

	key := bitmapCacheKey(delBarrier, insBarrier)
	if elem, ok := d.cache[key]; ok {
		d.lru.MoveToFront(elem)
		elem.Value.(*TmpBitmap).Bitmap = bm
		return
	}

	entry := &TmpBitmap{DelBarrier: delBarrier, InsBarrier: insBarrier, Bitmap: bm}
	elem := d.lru.PushFront(entry)
	d.cache[key] = elem

	if d.lru.Len() > d.capacity {
		back := d.lru.Back()
		d.lru.Remove(back)
		backEntry := back.Value.(*TmpBitmap)
		delete(d.cache, bitmapCacheKey(backEntry.DelBarrier, backEntry.InsBarrier))
	}
}

// Len returns the number of published tombstones (the delete horizon).
func (d *DeletedRecord) Len() int { return int(d.ack.Horizon()) }

// Reserved returns the number of tombstone slots handed out via
// PreDelete, which may run ahead of Len while a batch is still being
// written.
func (d *DeletedRecord) Reserved() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.uids)
}
