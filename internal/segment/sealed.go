package segment

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/rs/zerolog"

	"github.com/ishine/segcore/internal/core"
	segerrors "github.com/ishine/segcore/internal/errors"
	"github.com/ishine/segcore/internal/index"
	"github.com/ishine/segcore/internal/index/bruteforce"
	"github.com/ishine/segcore/internal/logging"
	"github.com/ishine/segcore/internal/metrics"
	"github.com/ishine/segcore/internal/plan"
	"github.com/ishine/segcore/internal/scalarindex"
	"github.com/ishine/segcore/internal/schema"
)

// SegmentSealed is the immutable, optionally indexed segment variant
// (spec §4.5): per-field aligned blobs, an optional scalar index per
// scalar field, an optional VectorIndex for the vector field, guarded by
// a single reader-writer lock.
type SegmentSealed struct {
	name   string
	schema *schema.Schema

	mu       sync.RWMutex
	rowCount int // -1 until the first load_field_data call sets it

	fieldData     [][]byte // per field offset, row-major raw bytes
	scalarInt64   []*scalarindex.Index[int64]
	scalarFloat64 []*scalarindex.Index[float64]

	vectorIndex    index.VectorIndex
	vectorFallback index.VectorIndex // brute-force wrapper built when raw vector data is loaded but no real index is attached

	fieldDataReady *roaring.Bitmap
	vecIndexReady  *roaring.Bitmap

	logger zerolog.Logger
}

// NewSealed creates an empty SegmentSealed over s, ready to accept
// load_field_data / load_index calls.
func NewSealed(name string, s *schema.Schema) *SegmentSealed {
	n := s.NumFields()
	return &SegmentSealed{
		name:           name,
		schema:         s,
		rowCount:       -1,
		fieldData:      make([][]byte, n),
		scalarInt64:    make([]*scalarindex.Index[int64], n),
		scalarFloat64:  make([]*scalarindex.Index[float64], n),
		fieldDataReady: roaring.New(),
		vecIndexReady:  roaring.New(),
		logger:         logging.New("segment.sealed." + name),
	}
}

func (s *SegmentSealed) Schema() *schema.Schema { return s.schema }

// RowCount returns the loaded row_count, or 0 before the first load.
func (s *SegmentSealed) RowCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rowCount < 0 {
		return 0
	}
	return s.rowCount
}

// InsBarrier always equals RowCount for a sealed segment: once loaded,
// every row is visible to every query regardless of T_r, since a sealed
// segment carries no live insert stream to barrier against.
func (s *SegmentSealed) InsBarrier(core.Timestamp) int { return s.RowCount() }

// DeletedBitmap returns an all-clear bitmap: spec §4.7 notes sealed
// segments have no delete path in this library (a future delete-on-sealed
// extension would populate one); per the chosen open-question answer,
// Remove on a sealed segment is rejected outright instead.
func (s *SegmentSealed) DeletedBitmap(core.Timestamp) *roaring.Bitmap { return roaring.New() }

// Remove always fails: spec §9's open question on delete-on-sealed is
// resolved here by rejecting with a contract violation rather than a
// silent no-op, so callers don't mistake a rejected delete for a
// successful but invisible one.
func (s *SegmentSealed) Remove(int, int, []core.PrimaryKey, []core.Timestamp) error {
	return segerrors.NewContractViolationError("remove", "sealed segments do not accept deletes")
}

// LoadFieldData installs row_count rows of blob for field, asserting
// row-count consistency across every prior load and building a scalar
// index for scalar fields. Fails if field is the vector field and an
// index is already attached (spec §4.5: raw data and an index for the
// same vector field are mutually exclusive).
func (s *SegmentSealed) LoadFieldData(field core.FieldOffset, rowCount int, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := s.schema.Field(field)

	if meta.DataType.IsVector() && s.vecIndexReady.Contains(uint32(field)) {
		return segerrors.NewContractViolationError("load_field_data",
			"vector field already has an index attached; cannot also load raw data")
	}
	if s.fieldDataReady.Contains(uint32(field)) {
		return segerrors.NewContractViolationError("load_field_data", "field data already loaded")
	}
	if s.rowCount >= 0 && s.rowCount != rowCount {
		return segerrors.NewContractViolationError("load_field_data", "row_count does not match previously loaded fields")
	}

	rb := meta.RowBytes()
	if len(blob) != rowCount*rb {
		return segerrors.NewContractViolationError("load_field_data", "blob length does not match row_count * row_bytes")
	}

	s.rowCount = rowCount
	s.fieldData[field] = blob
	s.fieldDataReady.Add(uint32(field))

	if err := s.buildScalarIndexLocked(field, meta, rowCount, blob); err != nil {
		return err
	}
	if meta.DataType.IsVector() {
		s.vectorFallback = buildFallbackIndex(meta, blob, rowCount)
	}

	metrics.SealedFieldsLoaded.WithLabelValues(s.name).Set(float64(s.fieldDataReady.GetCardinality() + s.vecIndexReady.GetCardinality()))
	s.logger.Debug().Str("field", meta.Name).Int("row_count", rowCount).Msg("field data loaded")
	return nil
}

func (s *SegmentSealed) buildScalarIndexLocked(field core.FieldOffset, meta schema.FieldMeta, rowCount int, blob []byte) error {
	if meta.DataType.IsVector() {
		return nil
	}
	rb := meta.RowBytes()
	switch meta.DataType {
	case core.DataTypeInt8, core.DataTypeInt16, core.DataTypeInt32, core.DataTypeInt64, core.DataTypeBool:
		values := make([]int64, rowCount)
		for i := 0; i < rowCount; i++ {
			values[i] = decodeScalar(meta.DataType, blob[i*rb:(i+1)*rb]).Int
		}
		s.scalarInt64[field] = scalarindex.Build(values)
	case core.DataTypeFloat, core.DataTypeDouble:
		values := make([]float64, rowCount)
		for i := 0; i < rowCount; i++ {
			values[i] = decodeScalar(meta.DataType, blob[i*rb:(i+1)*rb]).Float
		}
		s.scalarFloat64[field] = scalarindex.Build(values)
	default:
		return segerrors.NewUnimplementedError("scalar index for data type " + meta.DataType.String())
	}
	return nil
}

func buildFallbackIndex(meta schema.FieldMeta, blob []byte, rowCount int) index.VectorIndex {
	if meta.DataType == core.DataTypeBinaryVector {
		rb := (meta.Dim + 7) / 8
		vectors := make([][]byte, rowCount)
		for i := 0; i < rowCount; i++ {
			vectors[i] = blob[i*rb : (i+1)*rb]
		}
		return bruteforce.NewBinary(meta.Metric, meta.Dim, vectors)
	}
	vectors := make([][]float32, rowCount)
	for i := 0; i < rowCount; i++ {
		vectors[i] = decodeFloat32Row(blob[i*meta.Dim*4 : (i+1)*meta.Dim*4])
	}
	return bruteforce.NewFloat(meta.Metric, meta.Dim, vectors)
}

// LoadIndex attaches idx as field's vector index. Fails if raw field data
// is currently loaded for the same field (mutual exclusion, spec §4.5) or
// if idx's row count disagrees with the segment's established row_count.
func (s *SegmentSealed) LoadIndex(field core.FieldOffset, idx index.VectorIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := s.schema.Field(field)
	if !meta.DataType.IsVector() {
		return segerrors.NewContractViolationError("load_index", "field is not a vector field")
	}
	if s.fieldDataReady.Contains(uint32(field)) {
		return segerrors.NewContractViolationError("load_index", "raw field data already loaded; cannot also attach an index")
	}
	if s.vecIndexReady.Contains(uint32(field)) {
		return segerrors.NewContractViolationError("load_index", "index already attached")
	}
	if s.rowCount >= 0 && idx.Count() != s.rowCount {
		return segerrors.NewIndexMismatchError(meta.Name, "index row count disagrees with loaded columns")
	}
	if s.rowCount < 0 {
		s.rowCount = idx.Count()
	}

	s.vectorIndex = idx
	s.vecIndexReady.Add(uint32(field))
	metrics.SealedFieldsLoaded.WithLabelValues(s.name).Set(float64(s.fieldDataReady.GetCardinality() + s.vecIndexReady.GetCardinality()))
	s.logger.Debug().Str("field", meta.Name).Msg("index attached")
	return nil
}

// DropFieldData clears field's raw bytes and scalar index. Callers
// already holding a shared lock for an in-flight query block this call
// until they finish (spec §5's shared-resource policy).
func (s *SegmentSealed) DropFieldData(field core.FieldOffset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fieldDataReady.Contains(uint32(field)) {
		return segerrors.NewContractViolationError("drop_field_data", "field data is not loaded")
	}
	s.fieldData[field] = nil
	s.scalarInt64[field] = nil
	s.scalarFloat64[field] = nil
	if s.schema.Field(field).DataType.IsVector() {
		s.vectorFallback = nil
	}
	s.fieldDataReady.Remove(uint32(field))
	return nil
}

// DropIndex clears field's attached vector index.
func (s *SegmentSealed) DropIndex(field core.FieldOffset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.vecIndexReady.Contains(uint32(field)) {
		return segerrors.NewContractViolationError("drop_index", "index is not loaded")
	}
	s.vectorIndex = nil
	s.vecIndexReady.Remove(uint32(field))
	return nil
}

func (s *SegmentSealed) BulkSubscript(field core.FieldOffset, offsets []core.RowOffset) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rb := s.schema.Field(field).RowBytes()
	blob := s.fieldData[field]
	out := make([]byte, len(offsets)*rb)
	for i, o := range offsets {
		if o == core.InvalidRowOffset || blob == nil {
			continue
		}
		copy(out[i*rb:(i+1)*rb], blob[int(o)*rb:(int(o)+1)*rb])
	}
	return out
}

func (s *SegmentSealed) ScalarInt64Index(field core.FieldOffset) *scalarindex.Index[int64] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scalarInt64[field]
}

func (s *SegmentSealed) ScalarFloat64Index(field core.FieldOffset) *scalarindex.Index[float64] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scalarFloat64[field]
}

func (s *SegmentSealed) ReadScalar(field core.FieldOffset, offset core.RowOffset) plan.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta := s.schema.Field(field)
	rb := meta.RowBytes()
	blob := s.fieldData[field]
	return decodeScalar(meta.DataType, blob[int(offset)*rb:(int(offset)+1)*rb])
}

// CheckSearch reports whether ready covers every field p touches.
func (s *SegmentSealed) CheckSearch(p *plan.Plan) error {
	s.mu.RLock()
	ready := roaring.Or(s.fieldDataReady, s.vecIndexReady)
	s.mu.RUnlock()
	return p.CheckSearch(ready)
}

// MemoryUsage sums loaded column bytes plus the attached index's own
// footprint (SUPPLEMENTED FEATURES item 4).
func (s *SegmentSealed) MemoryUsage() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, b := range s.fieldData {
		total += int64(len(b))
	}
	if s.vectorIndex != nil {
		total += s.vectorIndex.EstimateMemory()
	}
	metrics.MemoryUsageBytes.WithLabelValues(s.name).Set(float64(total))
	return total
}

// VectorSearch delegates to the attached index if one is ready, else
// falls back to the brute-force wrapper built at load_field_data time,
// else fails "field data is not loaded" (spec §4.5).
func (s *SegmentSealed) VectorSearch(info plan.VectorQueryInfo, queries [][]float32, bitset index.Bitset) ([][]index.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var vi index.VectorIndex
	switch {
	case s.vectorIndex != nil:
		vi = s.vectorIndex
	case s.vectorFallback != nil:
		vi = s.vectorFallback
	default:
		return nil, segerrors.NewNotReadyError("vector_search", "field data is not loaded")
	}

	out := make([][]index.Candidate, len(queries))
	for i, q := range queries {
		cands, err := vi.Search(q, info.TopK, bitset)
		if err != nil {
			return nil, err
		}
		out[i] = cands
	}
	return out, nil
}
