package segment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishine/segcore/internal/core"
	"github.com/ishine/segcore/internal/index/hnswadapter"
	"github.com/ishine/segcore/internal/plan"
)

func packFloats(vecs [][4]float32) []byte {
	out := make([]byte, 0, len(vecs)*16)
	for _, v := range vecs {
		for _, f := range v {
			bits := math.Float32bits(f)
			for b := 0; b < 4; b++ {
				out = append(out, byte(bits>>(8*b)))
			}
		}
	}
	return out
}

func packInt64s(vals []int64) []byte {
	out := make([]byte, 0, len(vals)*8)
	for _, v := range vals {
		for b := 0; b < 8; b++ {
			out = append(out, byte(v>>(8*b)))
		}
	}
	return out
}

// S5: sealed segment load + search, with a real coder/hnsw index attached.
func TestSealedLoadAndSearchWithIndex(t *testing.T) {
	s := vecSchema(t)
	sealed := NewSealed("sealed1", s)

	pkOff := s.OffsetByID(1)
	vecOff := s.OffsetByID(2)

	n := 1000
	pks := make([]int64, n)
	vecs := make([][4]float32, n)
	for i := 0; i < n; i++ {
		pks[i] = int64(i)
		vecs[i] = [4]float32{float32(i), 0, 0, 0}
	}
	require.NoError(t, sealed.LoadFieldData(pkOff, n, packInt64s(pks)))

	idx, err := hnswadapter.Build(core.MetricL2, 4, toFloatSlices(vecs))
	require.NoError(t, err)
	require.NoError(t, sealed.LoadIndex(vecOff, idx))

	results, err := sealed.VectorSearch(
		plan.VectorQueryInfo{FieldOffset: vecOff, Metric: core.MetricL2, TopK: 10},
		[][]float32{{0, 0, 0, 0}}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0], 10)
	for _, c := range results[0] {
		assert.True(t, c.Offset >= 0 && int(c.Offset) < n)
	}
}

func toFloatSlices(vecs [][4]float32) [][]float32 {
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		out[i] = v[:]
	}
	return out
}

func TestLoadFieldDataAndLoadIndexAreMutuallyExclusive(t *testing.T) {
	s := vecSchema(t)
	sealed := NewSealed("sealed2", s)
	vecOff := s.OffsetByID(2)

	require.NoError(t, sealed.LoadFieldData(vecOff, 2, packFloats([][4]float32{{1, 1, 1, 1}, {2, 2, 2, 2}})))

	idx, err := hnswadapter.Build(core.MetricL2, 4, [][]float32{{1, 1, 1, 1}, {2, 2, 2, 2}})
	require.NoError(t, err)
	assert.Error(t, sealed.LoadIndex(vecOff, idx))
}

func TestLoadFieldDataRejectsRowCountMismatch(t *testing.T) {
	s := vecSchema(t)
	sealed := NewSealed("sealed3", s)
	pkOff := s.OffsetByID(1)
	vecOff := s.OffsetByID(2)

	require.NoError(t, sealed.LoadFieldData(pkOff, 2, packInt64s([]int64{1, 2})))
	assert.Error(t, sealed.LoadFieldData(vecOff, 3, packFloats([][4]float32{{0, 0, 0, 0}, {1, 1, 1, 1}, {2, 2, 2, 2}})))
}

func TestSealedRemoveAlwaysRejected(t *testing.T) {
	s := vecSchema(t)
	sealed := NewSealed("sealed4", s)
	err := sealed.Remove(0, 1, []core.PrimaryKey{1}, []core.Timestamp{1})
	assert.Error(t, err)
}

func TestDropFieldDataClearsScalarIndex(t *testing.T) {
	s := vecSchema(t)
	sealed := NewSealed("sealed5", s)
	pkOff := s.OffsetByID(1)

	require.NoError(t, sealed.LoadFieldData(pkOff, 2, packInt64s([]int64{1, 2})))
	assert.NotNil(t, sealed.ScalarInt64Index(pkOff))

	require.NoError(t, sealed.DropFieldData(pkOff))
	assert.Nil(t, sealed.ScalarInt64Index(pkOff))
	assert.Error(t, sealed.DropFieldData(pkOff))
}
