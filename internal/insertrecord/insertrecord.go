// Package insertrecord implements InsertRecord (spec §4.1/§4.4): a
// segment's per-field reserved-range columns, its timestamp and primary-key
// columns, and the uid -> offset multimap the deletion package's
// get_deleted_bitmap needs. The uid index is a 16-way sharded map guarded by
// a concurrency.ShardedMutex, grounded on internal/store/lww.go's
// TimestampMap sharding, generalized from a single int64 value to a slice
// of (offset, ts) pairs since one uid may be inserted more than once.
package insertrecord

import (
	"sort"

	"github.com/ishine/segcore/internal/concurrency"
	"github.com/ishine/segcore/internal/core"
	segerrors "github.com/ishine/segcore/internal/errors"
	"github.com/ishine/segcore/internal/metrics"
	"github.com/ishine/segcore/internal/schema"
)

const uidShards = 16

type uidEntry struct {
	offset core.RowOffset
	ts     core.Timestamp
}

// InsertRecord holds one segment's growing columns: a timestamp column, a
// primary-key column, one raw byte column per schema field, and the
// uid->offset multimap deletes consult. The multimap is striped across
// uidShards independent maps, guarded by a concurrency.ShardedMutex keyed
// on the uid's underlying int64 so unrelated uids never contend on one lock.
type InsertRecord struct {
	segment string
	schema  *schema.Schema

	timestamps *concurrency.ConcurrentVector[core.Timestamp]
	uids       *concurrency.ConcurrentVector[core.PrimaryKey]
	columns    []*concurrency.ConcurrentVector[byte]
	rowBytes   []int

	ack *concurrency.AckResponder

	uidLock *concurrency.ShardedMutex[int64]
	uidData []map[core.PrimaryKey][]uidEntry
}

// New creates an InsertRecord for segment, with one byte column per field
// in s, each sized s.Field(i).RowBytes() per row, chunked at chunkSize.
func New(segment string, s *schema.Schema, chunkSize int) *InsertRecord {
	ir := &InsertRecord{
		segment:    segment,
		schema:     s,
		timestamps: concurrency.NewConcurrentVector[core.Timestamp](chunkSize, segment+".ts"),
		uids:       concurrency.NewConcurrentVector[core.PrimaryKey](chunkSize, segment+".uid"),
		ack:        concurrency.NewAckResponder(),
		uidLock:    concurrency.NewShardedMutex[int64](uidShards),
		uidData:    make([]map[core.PrimaryKey][]uidEntry, uidShards),
	}
	for i := range ir.uidData {
		ir.uidData[i] = make(map[core.PrimaryKey][]uidEntry)
	}

	fields := s.Fields()
	ir.columns = make([]*concurrency.ConcurrentVector[byte], len(fields))
	ir.rowBytes = make([]int, len(fields))
	for i, f := range fields {
		rb := f.RowBytes()
		ir.rowBytes[i] = rb
		ir.columns[i] = concurrency.NewConcurrentVector[byte](chunkSize*rb, segment+"."+f.Name)
	}
	return ir
}

func (ir *InsertRecord) getUidEntries(uid core.PrimaryKey) []uidEntry {
	ir.uidLock.RLock(int64(uid))
	defer ir.uidLock.RUnlock(int64(uid))
	idx := ir.uidLock.ShardIndex(int64(uid))
	return append([]uidEntry(nil), ir.uidData[idx][uid]...)
}

func (ir *InsertRecord) appendUidEntry(uid core.PrimaryKey, e uidEntry) {
	ir.uidLock.Lock(int64(uid))
	defer ir.uidLock.Unlock(int64(uid))
	idx := ir.uidLock.ShardIndex(int64(uid))
	ir.uidData[idx][uid] = append(ir.uidData[idx][uid], e)
}

// PreInsert reserves n row slots and returns the begin offset. Only the
// timestamp column's counter is the source of truth for row offsets; byte
// columns are indexed by row*rowBytes directly and grown on demand inside
// Insert, so they carry no independent reservation counter to keep in
// lockstep.
func (ir *InsertRecord) PreInsert(n int) core.RowOffset {
	start := ir.timestamps.Reserve(n)
	ir.uids.Reserve(n)
	return core.RowOffset(start)
}

// Insert publishes n rows into the slots reserved at begin. uids and
// timestamps are stably sorted by (ts, uid) before being written — original
// arrival index is preserved as the tiebreak beneath that by sort.Stable's
// own guarantee (SUPPLEMENTED FEATURES item 1) — then rowMajorBlob is split
// per field and copied into each field's byte column. rowMajorBlob's stride
// must equal schema.TotalSizeof(), or Insert fails with
// ErrContractViolation.
func (ir *InsertRecord) Insert(begin core.RowOffset, n int, uids []core.PrimaryKey, timestamps []core.Timestamp, rowMajorBlob []byte) error {
	core.Assert(len(uids) == n && len(timestamps) == n, "insert: batch length mismatch")

	stride := ir.schema.TotalSizeof()
	if len(rowMajorBlob) != n*stride {
		return segerrors.NewContractViolationError("insert",
			"row-major blob stride does not match schema.total_sizeof()")
	}

	type row struct {
		uid core.PrimaryKey
		ts  core.Timestamp
		src int // original arrival index, used as blob offset
	}
	rows := make([]row, n)
	for i := range rows {
		rows[i] = row{uids[i], timestamps[i], i}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ts != rows[j].ts {
			return rows[i].ts < rows[j].ts
		}
		return rows[i].uid < rows[j].uid
	})

	end := int(begin) + n
	ir.timestamps.Grow(end)
	ir.uids.Grow(end)

	fieldOffsets := make([]int, len(ir.rowBytes))
	off := 0
	for i, rb := range ir.rowBytes {
		fieldOffsets[i] = off
		off += rb
	}

	for i, r := range rows {
		dst := int(begin) + i
		ir.timestamps.Set(dst, r.ts)
		ir.uids.Set(dst, r.uid)

		rowStart := r.src * stride
		for fi, col := range ir.columns {
			rb := ir.rowBytes[fi]
			if rb == 0 {
				continue
			}
			fieldStart := rowStart + fieldOffsets[fi]
			colGrowEnd := (dst + 1) * rb
			col.Grow(colGrowEnd)
			for b := 0; b < rb; b++ {
				col.Set(dst*rb+b, rowMajorBlob[fieldStart+b])
			}
		}

		ir.appendUidEntry(r.uid, uidEntry{offset: core.RowOffset(dst), ts: r.ts})
	}

	ir.ack.Ack(int64(begin), int64(end))
	metrics.InsertRowsTotal.WithLabelValues(ir.segment).Add(float64(n))
	metrics.AckHorizon.WithLabelValues(ir.segment).Set(float64(ir.ack.Horizon()))
	return nil
}

// GetRowCount returns the published insert horizon (spec's ack()).
func (ir *InsertRecord) GetRowCount() int { return int(ir.ack.Horizon()) }

// Reserved returns the number of row slots handed out via PreInsert,
// which may run ahead of GetRowCount while a batch is still being
// written. SegmentGrowing.Seal waits for these to converge before
// sealing, per the chosen concurrent-seal semantics.
func (ir *InsertRecord) Reserved() int { return ir.timestamps.Size() }

// ChunkSize returns the row-count chunk granularity every column in this
// InsertRecord shares, used by the executor's per-chunk kNN fan-out.
func (ir *InsertRecord) ChunkSize() int { return ir.timestamps.ChunkSize() }

// InsBarrier returns the number of inserts published with ts < tr, by
// binary search over the published timestamp column.
func (ir *InsertRecord) InsBarrier(tr core.Timestamp) int {
	horizon := ir.GetRowCount()
	return sort.Search(horizon, func(i int) bool { return ir.timestamps.Get(i) >= tr })
}

// UIDOffset pairs a row offset with the timestamp it was inserted at.
type UIDOffset struct {
	Offset core.RowOffset
	Ts     core.Timestamp
}

// InsertOffsetsFor returns every (offset, ts) pair uid was ever inserted
// at, the lookup deletion.DeletedRecord.GetDeletedBitmap needs. The owning
// SegmentGrowing adapts this into the deletion package's own InsertOffset
// shape when wiring a DeletedRecord.
func (ir *InsertRecord) InsertOffsetsFor(uid core.PrimaryKey) []UIDOffset {
	entries := ir.getUidEntries(uid)
	out := make([]UIDOffset, len(entries))
	for i, e := range entries {
		out[i] = UIDOffset{Offset: e.offset, Ts: e.ts}
	}
	return out
}

// BulkSubscript gathers rowBytes-sized rows for field at fieldOffset from
// the given row offsets; an offset of core.InvalidRowOffset produces a
// zeroed row, the sentinel for "absent after reduce".
func (ir *InsertRecord) BulkSubscript(fieldOffset core.FieldOffset, offsets []core.RowOffset) []byte {
	rb := ir.rowBytes[fieldOffset]
	col := ir.columns[fieldOffset]
	out := make([]byte, len(offsets)*rb)
	for i, o := range offsets {
		if o == core.InvalidRowOffset {
			continue
		}
		for b := 0; b < rb; b++ {
			out[i*rb+b] = col.Get(int(o)*rb + b)
		}
	}
	return out
}

// Timestamp returns the timestamp stored at row offset i.
func (ir *InsertRecord) Timestamp(i core.RowOffset) core.Timestamp { return ir.timestamps.Get(int(i)) }

// UID returns the primary key stored at row offset i.
func (ir *InsertRecord) UID(i core.RowOffset) core.PrimaryKey { return ir.uids.Get(int(i)) }

// Column returns field fieldOffset's raw byte ConcurrentVector, for callers
// (executor brute-force search, scalar index builders) that need direct
// chunked access instead of BulkSubscript's per-offset gather.
func (ir *InsertRecord) Column(fieldOffset core.FieldOffset) *concurrency.ConcurrentVector[byte] {
	return ir.columns[fieldOffset]
}

// RowBytes returns field fieldOffset's fixed row byte width.
func (ir *InsertRecord) RowBytes(fieldOffset core.FieldOffset) int {
	return ir.rowBytes[fieldOffset]
}
