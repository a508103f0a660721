// Package executor implements the four-phase query path spec.md §4.7
// describes: predicate evaluation down to a bitmap, combining it with the
// segment's delete visibility, dispatching the vector sub-query through
// whichever kNN strategy the segment capability hides behind VectorSearch,
// and finalizing raw candidates into a dense per-query result. Grounded on
// internal/query/filter_evaluator.go's per-type comparison ops, generalized
// from a single Arrow RecordBatch scan into a tree that prefers an attached
// scalarindex.Index and falls back to Segment.ReadScalar only when one
// isn't built.
package executor

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/ishine/segcore/internal/core"
	"github.com/ishine/segcore/internal/plan"
	"github.com/ishine/segcore/internal/scalarindex"
	"github.com/ishine/segcore/internal/segment"
)

// EvaluatePredicate walks pred bottom-up into a bitmap of matching row
// offsets in [0, bound), consulting seg's scalar indexes where one exists
// for the referenced field and falling back to a per-row scan via
// Segment.ReadScalar otherwise (spec §4.7 Phase 1).
func EvaluatePredicate(pred plan.Predicate, seg segment.Segment, bound int) *roaring.Bitmap {
	switch n := pred.(type) {
	case plan.AlwaysTrue:
		return allOnes(bound)
	case plan.And:
		return evalAnd(n, seg, bound)
	case plan.Or:
		return evalOr(n, seg, bound)
	case plan.Not:
		sub := EvaluatePredicate(n.Clause, seg, bound)
		all := allOnes(bound)
		all.AndNot(sub)
		return all
	case plan.UnaryRange:
		return evalUnaryRange(n, seg, bound)
	case plan.BinaryRange:
		return evalBinaryRange(n, seg, bound)
	case plan.Term:
		return evalTerm(n, seg, bound)
	case plan.CompareExpr:
		return evalCompareExpr(n, seg, bound)
	default:
		return allOnes(bound)
	}
}

func allOnes(bound int) *roaring.Bitmap {
	bm := roaring.New()
	if bound > 0 {
		bm.AddRange(0, uint64(bound))
	}
	return bm
}

func evalAnd(n plan.And, seg segment.Segment, bound int) *roaring.Bitmap {
	if len(n.Clauses) == 0 {
		return allOnes(bound)
	}
	result := EvaluatePredicate(n.Clauses[0], seg, bound)
	for _, c := range n.Clauses[1:] {
		result.And(EvaluatePredicate(c, seg, bound))
	}
	return result
}

func evalOr(n plan.Or, seg segment.Segment, bound int) *roaring.Bitmap {
	if len(n.Clauses) == 0 {
		return roaring.New()
	}
	result := EvaluatePredicate(n.Clauses[0], seg, bound)
	for _, c := range n.Clauses[1:] {
		result.Or(EvaluatePredicate(c, seg, bound))
	}
	return result
}

func toScalarOp(op plan.Op) scalarindex.Op {
	switch op {
	case plan.OpEQ:
		return scalarindex.OpEQ
	case plan.OpNE:
		return scalarindex.OpNE
	case plan.OpGT:
		return scalarindex.OpGT
	case plan.OpLT:
		return scalarindex.OpLT
	case plan.OpGE:
		return scalarindex.OpGE
	default:
		return scalarindex.OpLE
	}
}

func evalUnaryRange(n plan.UnaryRange, seg segment.Segment, bound int) *roaring.Bitmap {
	if idx := seg.ScalarInt64Index(n.Field); idx != nil {
		return idx.UnaryRange(toScalarOp(n.Op), n.Value.Int64())
	}
	if idx := seg.ScalarFloat64Index(n.Field); idx != nil {
		return idx.UnaryRange(toScalarOp(n.Op), n.Value.Float64())
	}
	return scanFilter(seg, n.Field, bound, func(v plan.Value) bool {
		return compareOp(n.Op, v, n.Value)
	})
}

func evalBinaryRange(n plan.BinaryRange, seg segment.Segment, bound int) *roaring.Bitmap {
	if idx := seg.ScalarInt64Index(n.Field); idx != nil {
		return idx.BinaryRange(toScalarOp(n.LoOp), n.Lo.Int64(), toScalarOp(n.HiOp), n.Hi.Int64())
	}
	if idx := seg.ScalarFloat64Index(n.Field); idx != nil {
		return idx.BinaryRange(toScalarOp(n.LoOp), n.Lo.Float64(), toScalarOp(n.HiOp), n.Hi.Float64())
	}
	return scanFilter(seg, n.Field, bound, func(v plan.Value) bool {
		return compareOp(n.LoOp, n.Lo, v) && compareOp(n.HiOp, v, n.Hi)
	})
}

func evalTerm(n plan.Term, seg segment.Segment, bound int) *roaring.Bitmap {
	if idx := seg.ScalarInt64Index(n.Field); idx != nil {
		vals := make([]int64, len(n.Values))
		for i, v := range n.Values {
			vals[i] = v.Int64()
		}
		return idx.Term(vals)
	}
	if idx := seg.ScalarFloat64Index(n.Field); idx != nil {
		vals := make([]float64, len(n.Values))
		for i, v := range n.Values {
			vals[i] = v.Float64()
		}
		return idx.Term(vals)
	}
	return scanFilter(seg, n.Field, bound, func(v plan.Value) bool {
		for _, want := range n.Values {
			if compareOp(plan.OpEQ, v, want) {
				return true
			}
		}
		return false
	})
}

// evalCompareExpr matches rows where two columns of the same row compare
// true, a column-to-column predicate no sorted scalar index can serve —
// always a scan (SUPPLEMENTED FEATURES item 3).
func evalCompareExpr(n plan.CompareExpr, seg segment.Segment, bound int) *roaring.Bitmap {
	bm := roaring.New()
	for i := 0; i < bound; i++ {
		l := seg.ReadScalar(n.FieldL, core.RowOffset(i))
		r := seg.ReadScalar(n.FieldR, core.RowOffset(i))
		if compareOp(n.Op, l, r) {
			bm.Add(uint32(i))
		}
	}
	return bm
}

func scanFilter(seg segment.Segment, field core.FieldOffset, bound int, match func(plan.Value) bool) *roaring.Bitmap {
	bm := roaring.New()
	for i := 0; i < bound; i++ {
		v := seg.ReadScalar(field, core.RowOffset(i))
		if match(v) {
			bm.Add(uint32(i))
		}
	}
	return bm
}

// compareOp evaluates a Op b, promoting both sides to float64 if either
// operand is float-typed so int64 columns keep exact integer comparisons
// otherwise.
func compareOp(op plan.Op, a, b plan.Value) bool {
	if a.IsFloat || b.IsFloat {
		af, bf := a.Float64(), b.Float64()
		switch op {
		case plan.OpEQ:
			return af == bf
		case plan.OpNE:
			return af != bf
		case plan.OpGT:
			return af > bf
		case plan.OpLT:
			return af < bf
		case plan.OpGE:
			return af >= bf
		case plan.OpLE:
			return af <= bf
		}
		return false
	}
	ai, bi := a.Int64(), b.Int64()
	switch op {
	case plan.OpEQ:
		return ai == bi
	case plan.OpNE:
		return ai != bi
	case plan.OpGT:
		return ai > bi
	case plan.OpLT:
		return ai < bi
	case plan.OpGE:
		return ai >= bi
	case plan.OpLE:
		return ai <= bi
	}
	return false
}
