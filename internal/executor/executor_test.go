package executor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishine/segcore/internal/core"
	"github.com/ishine/segcore/internal/index"
	"github.com/ishine/segcore/internal/plan"
	"github.com/ishine/segcore/internal/schema"
	"github.com/ishine/segcore/internal/segment"
)

func combinedSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.FieldMeta{
		{ID: 1, Name: "pk", DataType: core.DataTypeInt64, IsPrimary: true},
		{ID: 2, Name: "tag", DataType: core.DataTypeInt64},
		{ID: 3, Name: "vec", DataType: core.DataTypeFloatVector, Dim: 4, Metric: core.MetricL2},
	})
	require.NoError(t, err)
	return s
}

func combinedRow(pk, tag int64, vec [4]float32) []byte {
	out := make([]byte, 8+8+16)
	for i := 0; i < 8; i++ {
		out[i] = byte(pk >> (8 * i))
	}
	for i := 0; i < 8; i++ {
		out[8+i] = byte(tag >> (8 * i))
	}
	for i, f := range vec {
		bits := math.Float32bits(f)
		for b := 0; b < 4; b++ {
			out[16+i*4+b] = byte(bits >> (8 * b))
		}
	}
	return out
}

// S6: predicate AND vector search combined, against a growing segment
// whose scalar field has no index yet, forcing the scan fallback.
func TestSearchCombinesPredicateAndVectorQuery(t *testing.T) {
	s := combinedSchema(t)
	g := segment.NewGrowing("s6", s, 8, 16, 4)

	n := 5
	begin, err := g.PreInsert(n)
	require.NoError(t, err)

	uids := make([]core.PrimaryKey, n)
	tss := make([]core.Timestamp, n)
	var blob []byte
	tags := []int64{0, 1, 1, 1, 0}
	for i := 0; i < n; i++ {
		uids[i] = core.PrimaryKey(i)
		tss[i] = core.Timestamp(i + 1)
		blob = append(blob, combinedRow(int64(i), tags[i], [4]float32{float32(i), 0, 0, 0})...)
	}
	require.NoError(t, g.Insert(begin, n, uids, tss, blob))

	tagOff := s.OffsetByID(2)
	vecOff := s.OffsetByID(3)

	p, err := plan.New(s, plan.UnaryRange{Field: tagOff, Op: plan.OpEQ, Value: plan.IntValue(1)},
		plan.VectorQueryInfo{FieldOffset: vecOff, Metric: core.MetricL2, TopK: 2, RoundDecimal: -1})
	require.NoError(t, err)

	group := plan.PlaceholderGroup{
		NumQueries: 1,
		Dim:        4,
		DataType:   core.DataTypeFloatVector,
		Data:       packQuery([4]float32{0, 0, 0, 0}),
	}

	ex := New("test")
	result, err := ex.Search(p, g, group, core.Timestamp(100))
	require.NoError(t, err)
	require.Equal(t, 1, result.NumQueries)
	require.Equal(t, 2, result.TopK)

	// Rows 1, 2, 3 have tag == 1; nearest by L2 to origin among them is
	// row 1 (dist 1), then row 2 (dist 4). Rows 0 and 4 (tag == 0) must
	// never appear despite row 0 being literally closest overall.
	assert.Equal(t, core.RowOffset(1), result.Offsets[0])
	assert.Equal(t, core.RowOffset(2), result.Offsets[1])
}

func TestSearchRespectsDeleteVisibility(t *testing.T) {
	s := combinedSchema(t)
	g := segment.NewGrowing("s6b", s, 8, 16, 4)

	begin, err := g.PreInsert(3)
	require.NoError(t, err)
	blob := append(combinedRow(1, 1, [4]float32{1, 0, 0, 0}), combinedRow(2, 1, [4]float32{0, 1, 0, 0})...)
	blob = append(blob, combinedRow(3, 1, [4]float32{0, 0, 1, 0})...)
	require.NoError(t, g.Insert(begin, 3, []core.PrimaryKey{1, 2, 3}, []core.Timestamp{1, 2, 3}, blob))

	delBegin, err := g.PreDelete(1)
	require.NoError(t, err)
	require.NoError(t, g.Remove(delBegin, 1, []core.PrimaryKey{1}, []core.Timestamp{5}))

	tagOff := s.OffsetByID(2)
	vecOff := s.OffsetByID(3)

	p, err := plan.New(s, plan.UnaryRange{Field: tagOff, Op: plan.OpEQ, Value: plan.IntValue(1)},
		plan.VectorQueryInfo{FieldOffset: vecOff, Metric: core.MetricL2, TopK: 3, RoundDecimal: -1})
	require.NoError(t, err)

	group := plan.PlaceholderGroup{NumQueries: 1, Dim: 4, DataType: core.DataTypeFloatVector, Data: packQuery([4]float32{1, 0, 0, 0})}

	ex := New("test")
	result, err := ex.Search(p, g, group, core.Timestamp(10))
	require.NoError(t, err)

	var offsets []core.RowOffset
	for _, o := range result.Offsets {
		if o != core.InvalidRowOffset {
			offsets = append(offsets, o)
		}
	}
	assert.NotContains(t, offsets, core.RowOffset(0))
}

func TestFinalizeFillsSentinelForShortfall(t *testing.T) {
	info := plan.VectorQueryInfo{Metric: core.MetricL2, TopK: 3, RoundDecimal: -1}
	result := Finalize([][]index.Candidate{{{Offset: 0, Distance: 1.5}}}, info)
	require.Len(t, result.Offsets, 3)
	assert.Equal(t, core.RowOffset(0), result.Offsets[0])
	assert.Equal(t, core.InvalidRowOffset, result.Offsets[1])
	assert.Equal(t, core.InvalidRowOffset, result.Offsets[2])
	assert.True(t, math.IsInf(float64(result.Distances[1]), 1))
}

func packQuery(v [4]float32) []byte {
	out := make([]byte, 16)
	for i, f := range v {
		bits := math.Float32bits(f)
		for b := 0; b < 4; b++ {
			out[i*4+b] = byte(bits >> (8 * b))
		}
	}
	return out
}
