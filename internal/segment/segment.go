// Package segment implements the dual segment model spec.md §1/§4.4/§4.5
// describe: SegmentGrowing (append-only, unindexed, MVCC-visible) and
// SegmentSealed (immutable, optionally indexed), unified behind the
// Segment capability interface §9 calls for so the executor dispatches on
// a capability set, not a concrete kind switch. Grounded on
// internal/store.Dataset's split between a mutable ingest path and an
// immutable queryable snapshot.
package segment

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/ishine/segcore/internal/core"
	"github.com/ishine/segcore/internal/index"
	"github.com/ishine/segcore/internal/plan"
	"github.com/ishine/segcore/internal/scalarindex"
	"github.com/ishine/segcore/internal/schema"
)

// Segment is the capability set the executor holds a reference to,
// regardless of whether the concrete segment is growing or sealed (spec
// §9's "two-variant sum with a shared capability set").
type Segment interface {
	Schema() *schema.Schema

	// RowCount is the published insert horizon for a growing segment, or
	// the loaded row_count for a sealed one.
	RowCount() int

	// BulkSubscript gathers field's row bytes at offsets; an offset of
	// core.InvalidRowOffset produces a zeroed row.
	BulkSubscript(field core.FieldOffset, offsets []core.RowOffset) []byte

	// VectorSearch runs queries against field's attached index or raw
	// column fallback, restricted to bitset (nil means unrestricted).
	VectorSearch(info plan.VectorQueryInfo, queries [][]float32, bitset index.Bitset) ([][]index.Candidate, error)

	// CheckSearch reports whether every field p touches is ready to serve
	// a query (spec §9's check_search).
	CheckSearch(p *plan.Plan) error

	// MemoryUsage sums column and index byte footprints
	// (SUPPLEMENTED FEATURES item 4).
	MemoryUsage() int64

	// DeletedBitmap returns the visibility bitmap (spec §4.3) for a query
	// at tr: bit o set means row o is shadowed by a delete at tr. Sized
	// to InsBarrier(tr).
	DeletedBitmap(tr core.Timestamp) *roaring.Bitmap

	// InsBarrier returns the number of rows published/loaded with
	// ts < tr (growing) or simply RowCount (sealed, which carries no
	// per-row timestamp ordering once loaded).
	InsBarrier(tr core.Timestamp) int

	// ScalarInt64Index returns field's sorted equality/range index if one
	// has been built (sealed only), or nil to signal "fall back to scan".
	ScalarInt64Index(field core.FieldOffset) *scalarindex.Index[int64]

	// ScalarFloat64Index is ScalarInt64Index's float64 counterpart.
	ScalarFloat64Index(field core.FieldOffset) *scalarindex.Index[float64]

	// ReadScalar decodes field's raw bytes at offset into a plan.Value,
	// the scan-fallback and CompareExpr primitive.
	ReadScalar(field core.FieldOffset, offset core.RowOffset) plan.Value
}

// decodeScalar interprets a fixed-width scalar field's raw bytes as a
// plan.Value, little-endian, the same lane order InsertRecord.Insert and
// SegmentSealed.LoadFieldData copy row-major blobs in under.
func decodeScalar(dt core.DataType, b []byte) plan.Value {
	switch dt {
	case core.DataTypeBool:
		if b[0] != 0 {
			return plan.IntValue(1)
		}
		return plan.IntValue(0)
	case core.DataTypeInt8:
		return plan.IntValue(int64(int8(b[0])))
	case core.DataTypeInt16:
		return plan.IntValue(int64(int16(uint16(b[0]) | uint16(b[1])<<8)))
	case core.DataTypeInt32:
		return plan.IntValue(int64(int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)))
	case core.DataTypeInt64:
		v := uint64(0)
		for i := 0; i < 8; i++ {
			v |= uint64(b[i]) << (8 * i)
		}
		return plan.IntValue(int64(v))
	case core.DataTypeFloat:
		bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		return plan.FloatValue(float64(math.Float32frombits(bits)))
	case core.DataTypeDouble:
		v := uint64(0)
		for i := 0; i < 8; i++ {
			v |= uint64(b[i]) << (8 * i)
		}
		return plan.FloatValue(math.Float64frombits(v))
	default:
		return plan.Value{}
	}
}
