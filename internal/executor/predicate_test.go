package executor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishine/segcore/internal/plan"
	"github.com/ishine/segcore/internal/schema"
	"github.com/ishine/segcore/internal/segment"
)

func sealedWithTags(t *testing.T, tags []int64) (*segment.SegmentSealed, *schema.Schema) {
	t.Helper()
	s := combinedSchema(t)
	sealed := segment.NewSealed("sealed-exec", s)

	pkOff := s.OffsetByID(1)
	tagOff := s.OffsetByID(2)
	vecOff := s.OffsetByID(3)

	n := len(tags)
	pkBlob := make([]byte, n*8)
	tagBlob := make([]byte, n*8)
	vecBlob := make([]byte, n*16)
	for i, tag := range tags {
		pk := int64(i)
		for b := 0; b < 8; b++ {
			pkBlob[i*8+b] = byte(pk >> (8 * b))
			tagBlob[i*8+b] = byte(tag >> (8 * b))
		}
		bits := math.Float32bits(float32(i))
		for b := 0; b < 4; b++ {
			vecBlob[i*16+b] = byte(bits >> (8 * b))
		}
	}
	require.NoError(t, sealed.LoadFieldData(pkOff, n, pkBlob))
	require.NoError(t, sealed.LoadFieldData(tagOff, n, tagBlob))
	require.NoError(t, sealed.LoadFieldData(vecOff, n, vecBlob))
	return sealed, s
}

func TestEvaluatePredicateUsesScalarIndexWhenAvailable(t *testing.T) {
	sealed, s := sealedWithTags(t, []int64{0, 1, 1, 2, 1})
	tagOff := s.OffsetByID(2)

	bm := EvaluatePredicate(plan.UnaryRange{Field: tagOff, Op: plan.OpEQ, Value: plan.IntValue(1)}, sealed, 5)
	assert.Equal(t, []uint32{1, 2, 4}, bm.ToArray())
}

func TestEvaluatePredicateTermAndBinaryRange(t *testing.T) {
	sealed, s := sealedWithTags(t, []int64{0, 1, 2, 3, 4})
	tagOff := s.OffsetByID(2)

	term := EvaluatePredicate(plan.Term{Field: tagOff, Values: []plan.Value{plan.IntValue(1), plan.IntValue(3)}}, sealed, 5)
	assert.Equal(t, []uint32{1, 3}, term.ToArray())

	rng := EvaluatePredicate(plan.BinaryRange{Field: tagOff, LoOp: plan.OpGE, Lo: plan.IntValue(1), HiOp: plan.OpLT, Hi: plan.IntValue(4)}, sealed, 5)
	assert.Equal(t, []uint32{1, 2, 3}, rng.ToArray())
}

func TestEvaluatePredicateAndOrNot(t *testing.T) {
	sealed, s := sealedWithTags(t, []int64{0, 1, 1, 2, 1})
	tagOff := s.OffsetByID(2)

	and := EvaluatePredicate(plan.And{Clauses: []plan.Predicate{
		plan.UnaryRange{Field: tagOff, Op: plan.OpEQ, Value: plan.IntValue(1)},
		plan.Not{Clause: plan.UnaryRange{Field: tagOff, Op: plan.OpEQ, Value: plan.IntValue(1)}},
	}}, sealed, 5)
	assert.True(t, and.IsEmpty())

	or := EvaluatePredicate(plan.Or{Clauses: []plan.Predicate{
		plan.UnaryRange{Field: tagOff, Op: plan.OpEQ, Value: plan.IntValue(0)},
		plan.UnaryRange{Field: tagOff, Op: plan.OpEQ, Value: plan.IntValue(2)},
	}}, sealed, 5)
	assert.Equal(t, []uint32{0, 3}, or.ToArray())
}

func TestEvaluatePredicateCompareExprIsAlwaysScan(t *testing.T) {
	sealed, s := sealedWithTags(t, []int64{0, 1, 2, 3, 4})
	pkOff := s.OffsetByID(1)
	tagOff := s.OffsetByID(2)

	bm := EvaluatePredicate(plan.CompareExpr{FieldL: tagOff, Op: plan.OpEQ, FieldR: pkOff}, sealed, 5)
	assert.Equal(t, []uint32{0, 1, 2, 3, 4}, bm.ToArray())
}

func TestCompareOpPromotesToFloatWhenEitherSideIsFloat(t *testing.T) {
	assert.True(t, compareOp(plan.OpLT, plan.IntValue(1), plan.FloatValue(1.5)))
	assert.False(t, compareOp(plan.OpGT, plan.IntValue(1), plan.FloatValue(1.5)))
	assert.True(t, compareOp(plan.OpEQ, plan.IntValue(2), plan.IntValue(2)))
}
