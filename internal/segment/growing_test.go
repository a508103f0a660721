package segment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishine/segcore/internal/core"
	"github.com/ishine/segcore/internal/plan"
	"github.com/ishine/segcore/internal/schema"
)

func vecSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.FieldMeta{
		{ID: 1, Name: "pk", DataType: core.DataTypeInt64, IsPrimary: true},
		{ID: 2, Name: "vec", DataType: core.DataTypeFloatVector, Dim: 4, Metric: core.MetricL2},
	})
	require.NoError(t, err)
	return s
}

func rowBlob(pk int64, vec [4]float32) []byte {
	out := make([]byte, 8+16)
	for i := 0; i < 8; i++ {
		out[i] = byte(pk >> (8 * i))
	}
	for i, f := range vec {
		bits := math.Float32bits(f)
		for b := 0; b < 4; b++ {
			out[8+i*4+b] = byte(bits >> (8 * b))
		}
	}
	return out
}

func newTestGrowing(t *testing.T) (*SegmentGrowing, *schema.Schema) {
	t.Helper()
	s := vecSchema(t)
	g := NewGrowing("s1", s, 8, 16, 4)
	return g, s
}

// S1: growing segment basic kNN.
func TestGrowingBasicKNN(t *testing.T) {
	g, s := newTestGrowing(t)

	begin, err := g.PreInsert(3)
	require.NoError(t, err)

	blob := append(rowBlob(100, [4]float32{1, 0, 0, 0}), rowBlob(101, [4]float32{0, 1, 0, 0})...)
	blob = append(blob, rowBlob(102, [4]float32{0, 0, 1, 0})...)
	require.NoError(t, g.Insert(begin, 3, []core.PrimaryKey{100, 101, 102}, []core.Timestamp{1, 2, 3}, blob))

	vecOff := s.OffsetByID(2)
	results, err := g.VectorSearch(
		plan.VectorQueryInfo{FieldOffset: vecOff, Metric: core.MetricL2, TopK: 2},
		[][]float32{{1, 0, 0, 0}}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0], 2)
	assert.Equal(t, core.RowOffset(0), results[0][0].Offset)
	assert.InDelta(t, 0.0, results[0][0].Distance, 1e-6)
	assert.Equal(t, core.RowOffset(1), results[0][1].Offset)
	assert.InDelta(t, 2.0, results[0][1].Distance, 1e-6)
}

// S2/S3: MVCC delete and time travel over the same data.
func TestGrowingMVCCDeleteAndTimeTravel(t *testing.T) {
	g, s := newTestGrowing(t)

	begin, err := g.PreInsert(3)
	require.NoError(t, err)
	blob := append(rowBlob(100, [4]float32{1, 0, 0, 0}), rowBlob(101, [4]float32{0, 1, 0, 0})...)
	blob = append(blob, rowBlob(102, [4]float32{0, 0, 1, 0})...)
	require.NoError(t, g.Insert(begin, 3, []core.PrimaryKey{100, 101, 102}, []core.Timestamp{1, 2, 3}, blob))

	delBegin, err := g.PreDelete(1)
	require.NoError(t, err)
	require.NoError(t, g.Remove(delBegin, 1, []core.PrimaryKey{101}, []core.Timestamp{5}))

	vecOff := s.OffsetByID(2)

	bmAt10 := g.DeletedBitmap(10)
	assert.True(t, bmAt10.Contains(1))

	results, err := g.VectorSearch(
		plan.VectorQueryInfo{FieldOffset: vecOff, Metric: core.MetricL2, TopK: 3},
		[][]float32{{1, 0, 0, 0}}, &roaringNotContains{bmAt10})
	require.NoError(t, err)
	var offsets []core.RowOffset
	for _, c := range results[0] {
		offsets = append(offsets, c.Offset)
	}
	assert.Contains(t, offsets, core.RowOffset(0))
	assert.Contains(t, offsets, core.RowOffset(2))
	assert.NotContains(t, offsets, core.RowOffset(1))

	// S3: at T_r=4 the delete (ts=5) is not yet visible.
	bmAt4 := g.DeletedBitmap(4)
	assert.False(t, bmAt4.Contains(1))
}

// roaringNotContains adapts a roaring "deleted" bitmap into the positive
// index.Bitset the VectorIndex interface expects ("is this row allowed").
type roaringNotContains struct {
	deleted interface{ Contains(uint32) bool }
}

func (r *roaringNotContains) Contains(offset uint32) bool { return !r.deleted.Contains(offset) }

// S4: out-of-order insert within a batch must still sort by timestamp.
func TestGrowingOutOfOrderInsert(t *testing.T) {
	g, _ := newTestGrowing(t)

	begin, err := g.PreInsert(3)
	require.NoError(t, err)
	blob := append(rowBlob(1, [4]float32{}), rowBlob(2, [4]float32{})...)
	blob = append(blob, rowBlob(3, [4]float32{})...)
	require.NoError(t, g.Insert(begin, 3, []core.PrimaryKey{1, 2, 3}, []core.Timestamp{5, 2, 8}, blob))

	assert.Equal(t, 3, g.RowCount())
	insBarrier := g.InsBarrier(6)
	assert.Equal(t, 2, insBarrier) // ts=2 and ts=5 rows are < 6
}

func TestGrowingSealProducesMatchingRowCount(t *testing.T) {
	g, s := newTestGrowing(t)
	begin, err := g.PreInsert(2)
	require.NoError(t, err)
	blob := append(rowBlob(1, [4]float32{1, 1, 1, 1}), rowBlob(2, [4]float32{2, 2, 2, 2})...)
	require.NoError(t, g.Insert(begin, 2, []core.PrimaryKey{1, 2}, []core.Timestamp{1, 2}, blob))

	sealed, err := g.Seal()
	require.NoError(t, err)
	assert.Equal(t, 2, sealed.RowCount())

	_, err = g.PreInsert(1)
	assert.Error(t, err)

	vecOff := s.OffsetByID(2)
	out := sealed.BulkSubscript(vecOff, []core.RowOffset{0})
	assert.Len(t, out, 16)
}
