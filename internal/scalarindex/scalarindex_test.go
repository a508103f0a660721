package scalarindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqualityFindsAllMatchingOffsets(t *testing.T) {
	idx := Build([]int64{30, 10, 20, 10, 30})
	bm := idx.Equality(10)
	assert.ElementsMatch(t, []uint32{1, 3}, bm.ToArray())
}

func TestTermUnionsMultipleValues(t *testing.T) {
	idx := Build([]int64{1, 2, 3, 4, 5})
	bm := idx.Term([]int64{2, 4})
	assert.ElementsMatch(t, []uint32{1, 3}, bm.ToArray())
}

func TestUnaryRangeOperators(t *testing.T) {
	idx := Build([]int64{5, 1, 3, 2, 4})

	gt := idx.UnaryRange(OpGT, 3)
	assert.ElementsMatch(t, []uint32{0, 4}, gt.ToArray())

	le := idx.UnaryRange(OpLE, 2)
	assert.ElementsMatch(t, []uint32{1, 3}, le.ToArray())

	ne := idx.UnaryRange(OpNE, 3)
	assert.ElementsMatch(t, []uint32{0, 1, 3, 4}, ne.ToArray())
}

func TestBinaryRangeInclusiveExclusive(t *testing.T) {
	idx := Build([]int64{10, 20, 30, 40, 50})

	bm := idx.BinaryRange(OpLE, 20, OpLT, 40)
	assert.ElementsMatch(t, []uint32{1, 2}, bm.ToArray())

	bm2 := idx.BinaryRange(OpLT, 20, OpLE, 40)
	assert.ElementsMatch(t, []uint32{2, 3}, bm2.ToArray())
}

func TestFloatIndex(t *testing.T) {
	idx := Build([]float64{3.5, 1.5, 2.5})
	bm := idx.UnaryRange(OpGE, 2.0)
	assert.ElementsMatch(t, []uint32{0, 2}, bm.ToArray())
}
