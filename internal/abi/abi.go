// Package abi mirrors the C-shaped ABI boundary spec.md §6 describes —
// one opaque handle type per concept (CCollection, CSegment, CPlan,
// CPlaceholderGroup, CQueryResult), every operation returning the
// {error_code, error_msg} Status shape — without an actual cgo boundary,
// since the real C ABI bridge is named out of scope in §1 as an external
// collaborator. Handles are runtime/cgo.Handle values, the standard-library
// type purpose-built for passing Go values across exactly this kind of
// boundary; nothing here depends on "C" or unsafe.Pointer the way the
// teacher's own GPU adapters (internal/gpu/faiss_gpu.go) do for a real
// cgo call, because segcore's ABI has no C library on the other side to
// call into — only the documented operation shapes to expose.
package abi

import (
	"runtime/cgo"

	"github.com/ishine/segcore/internal/config"
	"github.com/ishine/segcore/internal/core"
	segerrors "github.com/ishine/segcore/internal/errors"
	"github.com/ishine/segcore/internal/executor"
	"github.com/ishine/segcore/internal/index"
	"github.com/ishine/segcore/internal/plan"
	"github.com/ishine/segcore/internal/schema"
	"github.com/ishine/segcore/internal/segment"
)

// Status is the {error_code, error_msg} shape every ABI operation returns
// (spec §6/§7). Code 0 is success; non-zero codes are
// google.golang.org/grpc/codes.Code values, the same reused status space
// internal/errors.ToStatus produces.
type Status struct {
	Code    int32
	Message string
}

// OK reports whether s represents success.
func (s Status) OK() bool { return s.Code == 0 }

func statusOf(err error) Status {
	code, msg := segerrors.ToStatus(err)
	return Status{Code: code, Message: msg}
}

// CCollection, CSegment, CPlan, CPlaceholderGroup, and CQueryResult are the
// opaque handle types spec §6 names. Each wraps a runtime/cgo.Handle over
// the corresponding Go value held in this package's registry.
type (
	CCollection       = cgo.Handle
	CSegment          = cgo.Handle
	CPlan             = cgo.Handle
	CPlaceholderGroup = cgo.Handle
	CQueryResult      = cgo.Handle
)

// collection bundles the schema a CCollection handle resolves to plus the
// config.Runtime tunables new segments created under it inherit.
type collection struct {
	schema  *schema.Schema
	runtime config.Runtime
}

var exec = executor.New("abi")

// CreateCollection registers s and rt behind a new CCollection handle.
// spec §6 describes create_collection as taking schema_proto_bytes; this
// module does not implement the protobuf schema decoder (protobuf message
// definitions are named out of scope in §1), so this Go-level wrapper
// takes the already-built *schema.Schema a caller's own decoder would
// have produced.
func CreateCollection(s *schema.Schema, rt config.Runtime) (CCollection, Status) {
	if err := rt.Validate(); err != nil {
		return 0, statusOf(segerrors.NewContractViolationError("create_collection", err.Error()))
	}
	h := cgo.NewHandle(&collection{schema: s, runtime: rt})
	return h, Status{}
}

// DeleteCollection releases h. Any segment created under it remains valid
// until its own handle is deleted — segments hold their own *schema.Schema
// reference, not a pointer back to the collection.
func DeleteCollection(h CCollection) Status {
	if _, ok := lookup[*collection](h); !ok {
		return statusOf(invalidHandle("delete_collection"))
	}
	h.Delete()
	return Status{}
}

// CreateGrowingSegment creates an open SegmentGrowing under h's schema and
// runtime tunables, registered behind a new CSegment handle.
func CreateGrowingSegment(h CCollection, name string) (CSegment, Status) {
	c, ok := lookup[*collection](h)
	if !ok {
		return 0, statusOf(invalidHandle("create_growing_segment"))
	}
	g := segment.NewGrowing(name, c.schema, c.runtime.SizePerChunk, c.runtime.BitmapCacheCapacity, c.runtime.SearchFanOut)
	return cgo.NewHandle(segment.Segment(g)), Status{}
}

// CreateSealedSegment creates an empty SegmentSealed under h's schema.
func CreateSealedSegment(h CCollection, name string) (CSegment, Status) {
	c, ok := lookup[*collection](h)
	if !ok {
		return 0, statusOf(invalidHandle("create_sealed_segment"))
	}
	s := segment.NewSealed(name, c.schema)
	return cgo.NewHandle(segment.Segment(s)), Status{}
}

// DeleteSegment releases h.
func DeleteSegment(h CSegment) Status {
	if _, ok := lookup[segment.Segment](h); !ok {
		return statusOf(invalidHandle("delete_segment"))
	}
	h.Delete()
	return Status{}
}

// PreInsert reserves n row slots on h's growing segment.
func PreInsert(h CSegment, n int) (int64, Status) {
	g, err := growingOf(h, "pre_insert")
	if err != nil {
		return 0, statusOf(err)
	}
	off, err := g.PreInsert(n)
	if err != nil {
		return 0, statusOf(err)
	}
	return int64(off), Status{}
}

// Insert publishes n rows into the slots reserved at begin.
func Insert(h CSegment, begin int64, n int, uids []int64, timestamps []uint64, rowBlob []byte) Status {
	g, err := growingOf(h, "insert")
	if err != nil {
		return statusOf(err)
	}
	return statusOf(g.Insert(core.RowOffset(begin), n, asPKs(uids), asTimestamps(timestamps), rowBlob))
}

// PreDelete reserves n tombstone slots on h's growing segment.
func PreDelete(h CSegment, n int) (int64, Status) {
	g, err := growingOf(h, "pre_delete")
	if err != nil {
		return 0, statusOf(err)
	}
	off, err := g.PreDelete(n)
	if err != nil {
		return 0, statusOf(err)
	}
	return int64(off), Status{}
}

// Remove publishes n deletes into the slots reserved at begin.
func Remove(h CSegment, begin int64, n int, uids []int64, timestamps []uint64) Status {
	g, err := growingOf(h, "remove")
	if err != nil {
		return statusOf(err)
	}
	return statusOf(g.Remove(int(begin), n, asPKs(uids), asTimestamps(timestamps)))
}

// LoadFieldData installs rowCount rows of blob for fieldID on h's sealed
// segment.
func LoadFieldData(h CSegment, fieldID int64, rowCount int, blob []byte) Status {
	s, err := sealedOf(h, "load_field_data")
	if err != nil {
		return statusOf(err)
	}
	off := s.Schema().OffsetByID(core.FieldID(fieldID))
	if off == core.InvalidFieldOffset {
		return statusOf(segerrors.NewContractViolationError("load_field_data", "unknown field id"))
	}
	return statusOf(s.LoadFieldData(off, rowCount, blob))
}

// LoadIndex attaches idx as fieldID's vector index on h's sealed segment.
// spec §6 names load_index as taking a LoadIndexInfo wire record that
// identifies a previously-built index by its own out-of-band handle — the
// ANN index implementation itself is named out of scope in §1, so this
// wrapper takes the already-built index.VectorIndex a caller's own index
// build step (internal/index/bruteforce, internal/index/hnswadapter, or a
// future adapter) would have produced.
func LoadIndex(h CSegment, fieldID int64, idx index.VectorIndex) Status {
	s, err := sealedOf(h, "load_index")
	if err != nil {
		return statusOf(err)
	}
	off := s.Schema().OffsetByID(core.FieldID(fieldID))
	if off == core.InvalidFieldOffset {
		return statusOf(segerrors.NewContractViolationError("load_index", "unknown field id"))
	}
	return statusOf(s.LoadIndex(off, idx))
}

// DropFieldData clears fieldID's raw data on h's sealed segment.
func DropFieldData(h CSegment, fieldID int64) Status {
	s, err := sealedOf(h, "drop_field_data")
	if err != nil {
		return statusOf(err)
	}
	off := s.Schema().OffsetByID(core.FieldID(fieldID))
	if off == core.InvalidFieldOffset {
		return statusOf(segerrors.NewContractViolationError("drop_field_data", "unknown field id"))
	}
	return statusOf(s.DropFieldData(off))
}

// DropIndex clears fieldID's attached vector index on h's sealed segment.
func DropIndex(h CSegment, fieldID int64) Status {
	s, err := sealedOf(h, "drop_index")
	if err != nil {
		return statusOf(err)
	}
	off := s.Schema().OffsetByID(core.FieldID(fieldID))
	if off == core.InvalidFieldOffset {
		return statusOf(segerrors.NewContractViolationError("drop_index", "unknown field id"))
	}
	return statusOf(s.DropIndex(off))
}

// CreatePlan registers p behind a new CPlan handle. spec §6 names
// create_plan(dsl_string) and create_plan_by_expr(serialized_expr); the
// DSL/plan-bytes parser producing a *plan.Plan from either wire form is
// named out of scope in §1 ("we specify the plan shape it must produce"),
// so this wrapper registers an already-constructed *plan.Plan.
func CreatePlan(p *plan.Plan) CPlan {
	return cgo.NewHandle(p)
}

// DeletePlan releases h.
func DeletePlan(h CPlan) Status {
	if _, ok := lookup[*plan.Plan](h); !ok {
		return statusOf(invalidHandle("delete_plan"))
	}
	h.Delete()
	return Status{}
}

// ParsePlaceholderGroup decodes blob into a PlaceholderGroup and registers
// it behind a new CPlaceholderGroup handle.
func ParsePlaceholderGroup(blob []byte) (CPlaceholderGroup, Status) {
	g, err := plan.DecodePlaceholderGroup(blob)
	if err != nil {
		return 0, statusOf(err)
	}
	return cgo.NewHandle(g), Status{}
}

// DeletePlaceholderGroup releases h.
func DeletePlaceholderGroup(h CPlaceholderGroup) Status {
	if _, ok := lookup[plan.PlaceholderGroup](h); !ok {
		return statusOf(invalidHandle("delete_placeholder_group"))
	}
	h.Delete()
	return Status{}
}

// Search runs planHandle against segHandle's segment at timestamp tr with
// the query vectors in phHandle, returning a new CQueryResult handle. spec
// §6's search takes a timestamps[] array for a batch of read timestamps;
// this wrapper exposes the single-timestamp primitive a C-ABI bridge loop
// would call once per element of that array.
func Search(segHandle CSegment, planHandle CPlan, phHandle CPlaceholderGroup, tr uint64) (CQueryResult, Status) {
	seg, err := segmentOf(segHandle, "search")
	if err != nil {
		return 0, statusOf(err)
	}
	p, ok := lookup[*plan.Plan](planHandle)
	if !ok {
		return 0, statusOf(invalidHandle("search"))
	}
	group, ok := lookup[plan.PlaceholderGroup](phHandle)
	if !ok {
		return 0, statusOf(invalidHandle("search"))
	}

	result, err := exec.Search(p, seg, group, core.Timestamp(tr))
	if err != nil {
		return 0, statusOf(err)
	}
	return cgo.NewHandle(result), Status{}
}

// RetrieveResult is the {ids, offset, fields_data} shape spec §6's
// RetrieveResults wire record names, resolved here to Go values rather
// than a length-delimited byte blob since internal/abi has no cgo
// boundary to serialize across.
type RetrieveResult struct {
	Offsets    []int64
	FieldsData map[int64][]byte // keyed by field id, row-major per returned offset
}

// Retrieve gathers fieldIDs for every row offset in offsets on
// segHandle's segment, filtered by tr's deleted-bitmap the same way Search
// is, restoring the retrieve operation spec §6 names alongside search.
func Retrieve(segHandle CSegment, offsets []int64, fieldIDs []int64, tr uint64) (CQueryResult, Status) {
	seg, err := segmentOf(segHandle, "retrieve")
	if err != nil {
		return 0, statusOf(err)
	}

	deleted := seg.DeletedBitmap(core.Timestamp(tr))
	insBarrier := seg.InsBarrier(core.Timestamp(tr))

	rowOffsets := make([]core.RowOffset, len(offsets))
	for i, o := range offsets {
		ro := core.RowOffset(o)
		if o < 0 || int(ro) >= insBarrier || deleted.Contains(uint32(ro)) {
			rowOffsets[i] = core.InvalidRowOffset
			continue
		}
		rowOffsets[i] = ro
	}

	result := &RetrieveResult{
		Offsets:    offsets,
		FieldsData: make(map[int64][]byte, len(fieldIDs)),
	}
	for _, fid := range fieldIDs {
		off := seg.Schema().OffsetByID(core.FieldID(fid))
		if off == core.InvalidFieldOffset {
			return 0, statusOf(segerrors.NewContractViolationError("retrieve", "unknown field id"))
		}
		result.FieldsData[fid] = seg.BulkSubscript(off, rowOffsets)
	}
	return cgo.NewHandle(result), Status{}
}

// GetRowCount returns segHandle's published row count.
func GetRowCount(segHandle CSegment) (int64, Status) {
	seg, err := segmentOf(segHandle, "get_row_count")
	if err != nil {
		return 0, statusOf(err)
	}
	return int64(seg.RowCount()), Status{}
}

// GetMemoryUsage returns segHandle's estimated memory footprint
// (SUPPLEMENTED FEATURES item 4).
func GetMemoryUsage(segHandle CSegment) (int64, Status) {
	seg, err := segmentOf(segHandle, "get_memory_usage")
	if err != nil {
		return 0, statusOf(err)
	}
	return seg.MemoryUsage(), Status{}
}

// GetNumQueries returns phHandle's query-vector count.
func GetNumQueries(phHandle CPlaceholderGroup) (int64, Status) {
	g, ok := lookup[plan.PlaceholderGroup](phHandle)
	if !ok {
		return 0, statusOf(invalidHandle("get_num_queries"))
	}
	return g.NumQueries, Status{}
}

// GetTopK returns planHandle's requested top-K.
func GetTopK(planHandle CPlan) (int64, Status) {
	p, ok := lookup[*plan.Plan](planHandle)
	if !ok {
		return 0, statusOf(invalidHandle("get_topk"))
	}
	return int64(p.VectorQuery.TopK), Status{}
}

// GetMetricType returns planHandle's vector sub-query metric.
func GetMetricType(planHandle CPlan) (int32, Status) {
	p, ok := lookup[*plan.Plan](planHandle)
	if !ok {
		return 0, statusOf(invalidHandle("get_metric_type"))
	}
	return int32(p.VectorQuery.Metric), Status{}
}

// GetSearchResult resolves a CQueryResult handle produced by Search back
// to its *executor.Result.
func GetSearchResult(resultHandle CQueryResult) (*executor.Result, Status) {
	r, ok := lookup[*executor.Result](resultHandle)
	if !ok {
		return nil, statusOf(invalidHandle("get_search_result"))
	}
	return r, Status{}
}

// GetRetrieveResult resolves a CQueryResult handle produced by Retrieve
// back to its *RetrieveResult.
func GetRetrieveResult(resultHandle CQueryResult) (*RetrieveResult, Status) {
	r, ok := lookup[*RetrieveResult](resultHandle)
	if !ok {
		return nil, statusOf(invalidHandle("get_retrieve_result"))
	}
	return r, Status{}
}

// DeleteQueryResult releases a CQueryResult handle from either Search or
// Retrieve.
func DeleteQueryResult(resultHandle CQueryResult) Status {
	v, ok := safeValue(resultHandle)
	if !ok {
		return statusOf(invalidHandle("delete_query_result"))
	}
	switch v.(type) {
	case *executor.Result, *RetrieveResult:
		resultHandle.Delete()
		return Status{}
	default:
		return statusOf(invalidHandle("delete_query_result"))
	}
}

func lookup[T any](h cgo.Handle) (T, bool) {
	v, ok := safeValue(h)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// safeValue recovers from cgo.Handle.Value's panic on a deleted or
// never-issued handle, turning it into an ordinary "not found" the way
// every other lookup miss in this package is reported.
func safeValue(h cgo.Handle) (v any, ok bool) {
	defer func() {
		if recover() != nil {
			v, ok = nil, false
		}
	}()
	return h.Value(), true
}

func invalidHandle(op string) error {
	return segerrors.NewContractViolationError(op, "invalid or already-deleted handle")
}

func segmentOf(h CSegment, op string) (segment.Segment, error) {
	seg, ok := lookup[segment.Segment](h)
	if !ok {
		return nil, invalidHandle(op)
	}
	return seg, nil
}

func growingOf(h CSegment, op string) (*segment.SegmentGrowing, error) {
	seg, err := segmentOf(h, op)
	if err != nil {
		return nil, err
	}
	g, ok := seg.(*segment.SegmentGrowing)
	if !ok {
		return nil, segerrors.NewContractViolationError(op, "handle does not refer to a growing segment")
	}
	return g, nil
}

func sealedOf(h CSegment, op string) (*segment.SegmentSealed, error) {
	seg, err := segmentOf(h, op)
	if err != nil {
		return nil, err
	}
	s, ok := seg.(*segment.SegmentSealed)
	if !ok {
		return nil, segerrors.NewContractViolationError(op, "handle does not refer to a sealed segment")
	}
	return s, nil
}

func asPKs(uids []int64) []core.PrimaryKey {
	out := make([]core.PrimaryKey, len(uids))
	for i, v := range uids {
		out[i] = core.PrimaryKey(v)
	}
	return out
}

func asTimestamps(ts []uint64) []core.Timestamp {
	out := make([]core.Timestamp, len(ts))
	for i, v := range ts {
		out[i] = core.Timestamp(v)
	}
	return out
}
