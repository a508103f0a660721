package plan

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishine/segcore/internal/core"
	"github.com/ishine/segcore/internal/schema"
)

func roaringOf(values ...uint32) *roaring.Bitmap {
	return roaring.BitmapOf(values...)
}

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.FieldMeta{
		{ID: 1, Name: "pk", DataType: core.DataTypeInt64, IsPrimary: true},
		{ID: 2, Name: "tag", DataType: core.DataTypeInt64},
		{ID: 3, Name: "vec", DataType: core.DataTypeFloatVector, Dim: 4, Metric: core.MetricL2},
	})
	require.NoError(t, err)
	return s
}

func TestNewRejectsNonVectorField(t *testing.T) {
	s := testSchema(t)
	_, err := New(s, AlwaysTrue{}, VectorQueryInfo{FieldOffset: 0, Metric: core.MetricL2, TopK: 5})
	assert.Error(t, err)
}

func TestInvolvedFieldsUnionsPredicateAndVectorField(t *testing.T) {
	s := testSchema(t)
	pred := And{Clauses: []Predicate{
		UnaryRange{Field: 1, Op: OpEQ, Value: IntValue(1)},
	}}
	p, err := New(s, pred, VectorQueryInfo{FieldOffset: 2, Metric: core.MetricL2, TopK: 5})
	require.NoError(t, err)

	involved := p.InvolvedFields()
	assert.True(t, involved.Contains(1))
	assert.True(t, involved.Contains(2))
	assert.False(t, involved.Contains(0))
}

func TestCheckSearchRejectsMissingFields(t *testing.T) {
	s := testSchema(t)
	p, err := New(s, UnaryRange{Field: 1, Op: OpEQ, Value: IntValue(1)},
		VectorQueryInfo{FieldOffset: 2, Metric: core.MetricL2, TopK: 5})
	require.NoError(t, err)

	ready := roaringOf(2) // vector field ready, tag field not loaded
	assert.Error(t, p.CheckSearch(ready))

	ready2 := roaringOf(1, 2)
	assert.NoError(t, p.CheckSearch(ready2))
}
