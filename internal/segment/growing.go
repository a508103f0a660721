package segment

import (
	"math"
	"runtime"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ishine/segcore/internal/core"
	"github.com/ishine/segcore/internal/deletion"
	segerrors "github.com/ishine/segcore/internal/errors"
	"github.com/ishine/segcore/internal/index"
	"github.com/ishine/segcore/internal/index/bruteforce"
	"github.com/ishine/segcore/internal/insertrecord"
	"github.com/ishine/segcore/internal/logging"
	"github.com/ishine/segcore/internal/plan"
	"github.com/ishine/segcore/internal/scalarindex"
	"github.com/ishine/segcore/internal/schema"
)

// SegmentGrowing is the append-only, unindexed, MVCC-visible segment
// variant (spec §4.4): an InsertRecord plus a DeletedRecord, searched by
// brute force fanned out across chunks.
type SegmentGrowing struct {
	name   string
	schema *schema.Schema
	ir     *insertrecord.InsertRecord
	dr     *deletion.DeletedRecord

	fanOut int
	sealed atomic.Bool

	logger zerolog.Logger
}

// NewGrowing creates an open SegmentGrowing over s, chunked at chunkSize
// rows, with a deleted-bitmap LRU of bitmapCacheCapacity entries and a
// search fan-out of fanOut chunks (spec config.Runtime tunables).
func NewGrowing(name string, s *schema.Schema, chunkSize, bitmapCacheCapacity, fanOut int) *SegmentGrowing {
	ir := insertrecord.New(name, s, chunkSize)
	g := &SegmentGrowing{
		name:   name,
		schema: s,
		ir:     ir,
		fanOut: fanOut,
		logger: logging.New("segment.growing." + name),
	}
	g.dr = deletion.New(name, bitmapCacheCapacity, adaptInsertOffsets(ir))
	g.logger.Debug().Msg("growing segment created")
	return g
}

func adaptInsertOffsets(ir *insertrecord.InsertRecord) func(core.PrimaryKey) []deletion.InsertOffset {
	return func(uid core.PrimaryKey) []deletion.InsertOffset {
		raw := ir.InsertOffsetsFor(uid)
		out := make([]deletion.InsertOffset, len(raw))
		for i, o := range raw {
			out[i] = deletion.InsertOffset{Offset: o.Offset, Ts: o.Ts}
		}
		return out
	}
}

func (g *SegmentGrowing) Schema() *schema.Schema { return g.schema }

func (g *SegmentGrowing) requireOpen(op string) error {
	if g.sealed.Load() {
		return segerrors.NewNotReadyError(op, "growing segment is closed after sealing")
	}
	return nil
}

// PreInsert reserves n row slots, the pre_insert operation spec §4.4
// names. Fails if the segment has already been sealed.
func (g *SegmentGrowing) PreInsert(n int) (core.RowOffset, error) {
	if err := g.requireOpen("pre_insert"); err != nil {
		return core.InvalidRowOffset, err
	}
	return g.ir.PreInsert(n), nil
}

// Insert publishes rows into the slots reserved at begin.
func (g *SegmentGrowing) Insert(begin core.RowOffset, n int, uids []core.PrimaryKey, timestamps []core.Timestamp, rowMajorBlob []byte) error {
	if err := g.requireOpen("insert"); err != nil {
		return err
	}
	return g.ir.Insert(begin, n, uids, timestamps, rowMajorBlob)
}

// PreDelete reserves n tombstone slots, the pre_delete operation.
func (g *SegmentGrowing) PreDelete(n int) (int, error) {
	if err := g.requireOpen("pre_delete"); err != nil {
		return 0, err
	}
	return g.dr.PreDelete(n), nil
}

// Remove publishes deletes into the slots reserved at begin.
func (g *SegmentGrowing) Remove(begin, n int, uids []core.PrimaryKey, timestamps []core.Timestamp) error {
	if err := g.requireOpen("remove"); err != nil {
		return err
	}
	return g.dr.Remove(begin, n, uids, timestamps)
}

// RowCount returns the published insert horizon.
func (g *SegmentGrowing) RowCount() int { return g.ir.GetRowCount() }

// InsBarrier returns the number of inserts published with ts < tr.
func (g *SegmentGrowing) InsBarrier(tr core.Timestamp) int { return g.ir.InsBarrier(tr) }

// DeletedBitmap builds the visibility bitmap for a query at tr (spec
// §4.3), sized to InsBarrier(tr).
func (g *SegmentGrowing) DeletedBitmap(tr core.Timestamp) *roaring.Bitmap {
	insBarrier := g.ir.InsBarrier(tr)
	delBarrier := g.dr.DelBarrier(tr)
	return g.dr.GetDeletedBitmap(delBarrier, tr, insBarrier)
}

func (g *SegmentGrowing) BulkSubscript(field core.FieldOffset, offsets []core.RowOffset) []byte {
	return g.ir.BulkSubscript(field, offsets)
}

// ScalarInt64Index / ScalarFloat64Index always return nil: a growing
// segment never builds a sorted scalar index, since its rows keep
// arriving; every predicate against it falls back to a scan.
func (g *SegmentGrowing) ScalarInt64Index(core.FieldOffset) *scalarindex.Index[int64]     { return nil }
func (g *SegmentGrowing) ScalarFloat64Index(core.FieldOffset) *scalarindex.Index[float64] { return nil }

// ReadScalar decodes field's raw bytes at offset via BulkSubscript.
func (g *SegmentGrowing) ReadScalar(field core.FieldOffset, offset core.RowOffset) plan.Value {
	b := g.ir.BulkSubscript(field, []core.RowOffset{offset})
	return decodeScalar(g.schema.Field(field).DataType, b)
}

// MemoryUsage sums every column's reserved byte footprint.
func (g *SegmentGrowing) MemoryUsage() int64 {
	var total int64
	for _, f := range g.schema.Fields() {
		off := g.schema.OffsetByID(f.ID)
		total += int64(g.ir.Reserved()) * int64(g.ir.RowBytes(off))
	}
	return total
}

// CheckSearch reports whether p's fields are all ready: a growing
// segment is always ready for any field in its own schema, since columns
// exist (possibly empty) from creation.
func (g *SegmentGrowing) CheckSearch(p *plan.Plan) error {
	all := roaring.New()
	for i := range g.schema.Fields() {
		all.Add(uint32(i))
	}
	return p.CheckSearch(all)
}

// VectorSearch fans a per-chunk brute-force kNN out across the growing
// segment's chunks via errgroup (spec §4.7 Phase 3, growing path),
// merging each chunk's partial top-K into one per-query TopKHeap.
// Grounded on the parallel AddBatch fan-out in internal/store/hnsw2.
func (g *SegmentGrowing) VectorSearch(info plan.VectorQueryInfo, queries [][]float32, bitset index.Bitset) ([][]index.Candidate, error) {
	vf := g.schema.VectorField()
	if info.FieldOffset != g.schema.OffsetByID(vf.ID) {
		return nil, segerrors.NewContractViolationError("vector_search", "vector_query_info does not target the segment's vector field")
	}

	rowCount := g.RowCount()
	chunkSize := g.ir.ChunkSize()
	numChunks := (rowCount + chunkSize - 1) / chunkSize

	heaps := make([]*index.TopKHeap, len(queries))
	for i := range heaps {
		heaps[i] = index.NewTopKHeap(info.TopK, info.Metric)
	}
	if numChunks == 0 || info.TopK == 0 {
		return heapResults(heaps), nil
	}

	partials := make([][][]index.Candidate, numChunks) // [chunk][query][]Candidate

	var eg errgroup.Group
	eg.SetLimit(g.fanOut)
	col := g.ir.Column(info.FieldOffset)
	rb := g.ir.RowBytes(info.FieldOffset)

	for c := 0; c < numChunks; c++ {
		c := c
		eg.Go(func() error {
			base := c * chunkSize
			n := chunkSize
			if base+n > rowCount {
				n = rowCount - base
			}
			chunkBytes := col.Chunk(c)[:n*rb]
			chunkIdx, err := buildChunkIndex(vf, chunkBytes, n)
			if err != nil {
				return err
			}
			chunkBitset := &offsetBitset{base: uint32(base), inner: bitset}
			results := make([][]index.Candidate, len(queries))
			for qi, q := range queries {
				cands, err := chunkIdx.Search(q, info.TopK, chunkBitset)
				if err != nil {
					return err
				}
				for i := range cands {
					cands[i].Offset += core.RowOffset(base)
				}
				results[qi] = cands
			}
			partials[c] = results
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for _, chunkResults := range partials {
		for qi, cands := range chunkResults {
			for _, c := range cands {
				heaps[qi].Offer(c)
			}
		}
	}
	return heapResults(heaps), nil
}

func heapResults(heaps []*index.TopKHeap) [][]index.Candidate {
	out := make([][]index.Candidate, len(heaps))
	for i, h := range heaps {
		out[i] = h.Sorted()
	}
	return out
}

// buildChunkIndex decodes one chunk's raw vector bytes and wraps them in
// a bruteforce.Index, the per-chunk search unit the growing path always
// uses regardless of whether a sealed sibling has a real ANN index.
func buildChunkIndex(vf schema.FieldMeta, chunkBytes []byte, n int) (index.VectorIndex, error) {
	if vf.DataType == core.DataTypeBinaryVector {
		rb := (vf.Dim + 7) / 8
		vectors := make([][]byte, n)
		for i := 0; i < n; i++ {
			vectors[i] = chunkBytes[i*rb : (i+1)*rb]
		}
		return bruteforce.NewBinary(vf.Metric, vf.Dim, vectors), nil
	}
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		vectors[i] = decodeFloat32Row(chunkBytes[i*vf.Dim*4 : (i+1)*vf.Dim*4])
	}
	return bruteforce.NewFloat(vf.Metric, vf.Dim, vectors), nil
}

func decodeFloat32Row(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// offsetBitset rebases a segment-global bitset to a chunk's local row
// numbering, so bruteforce.Index (which only knows local offsets) can
// still honor the combined filter/delete bitset.
type offsetBitset struct {
	base  uint32
	inner index.Bitset
}

func (b *offsetBitset) Contains(offset uint32) bool {
	if b.inner == nil {
		return true
	}
	return b.inner.Contains(offset + b.base)
}

// Seal waits for every outstanding pre_insert slot to finish ack'ing (the
// chosen concurrent-seal semantics: option (a) from spec §9's open
// question), marks the growing segment closed, and returns a fresh
// SegmentSealed with every field's raw data already loaded. The returned
// segment's LoadIndex rejects the vector field while its raw data is
// loaded; DropFieldData on that field comes first.
func (g *SegmentGrowing) Seal() (*SegmentSealed, error) {
	for g.ir.Reserved() != g.ir.GetRowCount() {
		// Spin until the last in-flight insert batch acks; the library
		// has no hidden scheduler to park on, so callers that care about
		// CPU spend should call Seal only once they know inserts drained.
		runtime.Gosched()
	}

	g.sealed.Store(true)
	g.logger.Debug().Msg("growing segment sealed")

	rowCount := g.RowCount()
	sealed := NewSealed(g.name, g.schema)
	for _, f := range g.schema.Fields() {
		off := g.schema.OffsetByID(f.ID)
		offsets := make([]core.RowOffset, rowCount)
		for i := range offsets {
			offsets[i] = core.RowOffset(i)
		}
		blob := g.ir.BulkSubscript(off, offsets)
		if err := sealed.LoadFieldData(off, rowCount, blob); err != nil {
			return nil, err
		}
	}
	return sealed, nil
}
