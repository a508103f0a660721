package insertrecord

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishine/segcore/internal/core"
	"github.com/ishine/segcore/internal/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	s, err := schema.New([]schema.FieldMeta{
		{ID: 1, Name: "pk", DataType: core.DataTypeInt64, IsPrimary: true},
		{ID: 2, Name: "vec", DataType: core.DataTypeFloatVector, Dim: 4, Metric: core.MetricL2},
	})
	require.NoError(t, err)
	return s
}

func rowBlob(pk int64, vec [4]float32) []byte {
	out := make([]byte, 8+16)
	le := func(v int64) []byte {
		b := make([]byte, 8)
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
		return b
	}
	copy(out[0:8], le(pk))
	for i, f := range vec {
		bits := math.Float32bits(f)
		for b := 0; b < 4; b++ {
			out[8+i*4+b] = byte(bits >> (8 * b))
		}
	}
	return out
}

func TestInsertAndBulkSubscript(t *testing.T) {
	s := testSchema(t)
	ir := New("seg1", s, 8)

	n := 3
	begin := ir.PreInsert(n)

	blob := make([]byte, 0, n*s.TotalSizeof())
	blob = append(blob, rowBlob(10, [4]float32{1, 2, 3, 4})...)
	blob = append(blob, rowBlob(20, [4]float32{5, 6, 7, 8})...)
	blob = append(blob, rowBlob(30, [4]float32{9, 10, 11, 12})...)

	require.NoError(t, ir.Insert(begin, n, []core.PrimaryKey{10, 20, 30}, []core.Timestamp{3, 1, 2}, blob))

	assert.Equal(t, 3, ir.GetRowCount())

	pkOff := s.OffsetByID(1)
	pkBytes := ir.BulkSubscript(pkOff, []core.RowOffset{0, 1, 2})
	assert.Len(t, pkBytes, 3*8)
}

func TestInsertRejectsWrongStride(t *testing.T) {
	s := testSchema(t)
	ir := New("seg1", s, 8)

	begin := ir.PreInsert(1)
	err := ir.Insert(begin, 1, []core.PrimaryKey{1}, []core.Timestamp{1}, []byte{0, 1, 2})
	assert.Error(t, err)
}

func TestInsertOffsetsForTracksLatestInsert(t *testing.T) {
	s := testSchema(t)
	ir := New("seg1", s, 8)

	begin := ir.PreInsert(2)
	blob := append(rowBlob(7, [4]float32{}), rowBlob(7, [4]float32{})...)
	require.NoError(t, ir.Insert(begin, 2, []core.PrimaryKey{7, 7}, []core.Timestamp{1, 5}, blob))

	offsets := ir.InsertOffsetsFor(7)
	assert.Len(t, offsets, 2)
	assert.Contains(t, offsets, UIDOffset{Offset: 1, Ts: 5})
}

func TestBulkSubscriptZerosInvalidOffset(t *testing.T) {
	s := testSchema(t)
	ir := New("seg1", s, 8)

	begin := ir.PreInsert(1)
	require.NoError(t, ir.Insert(begin, 1, []core.PrimaryKey{1}, []core.Timestamp{1}, rowBlob(1, [4]float32{1, 2, 3, 4})))

	pkOff := s.OffsetByID(1)
	out := ir.BulkSubscript(pkOff, []core.RowOffset{core.InvalidRowOffset})
	for _, b := range out {
		assert.Equal(t, byte(0), b)
	}
}
