// Package plan defines the query plan IR spec.md §4.6 describes: a
// schema-bound predicate tree plus one vector sub-query. This package
// accepts the plan shape as Go values — constructing one is the caller's
// job, mirroring how the DSL/plan-bytes parser is named out of scope in
// §1 and only the resulting tree is specified. Grounded on
// internal/query/filter_evaluator.go's operator set, generalized from a
// column-scan evaluator into a standalone tree the executor walks.
package plan

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/ishine/segcore/internal/core"
	segerrors "github.com/ishine/segcore/internal/errors"
	"github.com/ishine/segcore/internal/schema"
)

// Op is a comparison operator carried by UnaryRange, BinaryRange, Term
// (implicitly OpEQ per value), and CompareExpr nodes.
type Op int

const (
	OpEQ Op = iota
	OpNE
	OpGT
	OpLT
	OpGE
	OpLE
)

// Value is a scalar literal carried by a predicate leaf. Exactly one of
// Int/Float is meaningful, selected by IsFloat, so int64 columns compare
// without float64's precision loss.
type Value struct {
	Int     int64
	Float   float64
	IsFloat bool
}

// IntValue wraps an int64 literal.
func IntValue(v int64) Value { return Value{Int: v} }

// FloatValue wraps a float64 literal.
func FloatValue(v float64) Value { return Value{Float: v, IsFloat: true} }

// Int64 returns v as an int64, truncating a float literal if IsFloat.
func (v Value) Int64() int64 {
	if v.IsFloat {
		return int64(v.Float)
	}
	return v.Int
}

// Float64 returns v as a float64, widening an int literal if !IsFloat.
func (v Value) Float64() float64 {
	if v.IsFloat {
		return v.Float
	}
	return float64(v.Int)
}

// Predicate is one node of the boolean expression tree a Plan's root
// points to. The concrete types below are the only implementations; the
// interface exists purely to let the executor switch on concrete type
// without an open type hierarchy.
type Predicate interface {
	predicateNode()
}

// AlwaysTrue matches every row; Phase 1 evaluates it to an all-ones bitmap
// without touching any column.
type AlwaysTrue struct{}

// And matches rows satisfying every clause.
type And struct{ Clauses []Predicate }

// Or matches rows satisfying any clause.
type Or struct{ Clauses []Predicate }

// Not matches rows not satisfying Clause.
type Not struct{ Clause Predicate }

// UnaryRange matches rows where Field Op Value holds.
type UnaryRange struct {
	Field core.FieldOffset
	Op    Op
	Value Value
}

// BinaryRange matches rows where LoOp(Lo, field) AND HiOp(field, Hi) hold —
// e.g. lo <= field < hi for (OpLE, lo, OpLT, hi).
type BinaryRange struct {
	Field core.FieldOffset
	LoOp  Op
	Lo    Value
	HiOp  Op
	Hi    Value
}

// Term matches rows where Field's value is a member of Values.
type Term struct {
	Field  core.FieldOffset
	Values []Value
}

// CompareExpr matches rows where FieldL Op FieldR holds, comparing two
// columns of the same row rather than a column against a literal —
// restored per SUPPLEMENTED FEATURES item 3; never index-backed, always a
// scan.
type CompareExpr struct {
	FieldL core.FieldOffset
	Op     Op
	FieldR core.FieldOffset
}

func (AlwaysTrue) predicateNode()  {}
func (And) predicateNode()         {}
func (Or) predicateNode()          {}
func (Not) predicateNode()         {}
func (UnaryRange) predicateNode()  {}
func (BinaryRange) predicateNode() {}
func (Term) predicateNode()        {}
func (CompareExpr) predicateNode() {}

// VectorQueryInfo is the one vector sub-query a Plan carries (spec §4.6).
type VectorQueryInfo struct {
	FieldOffset  core.FieldOffset
	Metric       core.MetricType
	TopK         int
	SearchParams map[string]string
	RoundDecimal int // negative means "no truncation"
}

// Plan bundles a schema-bound predicate tree with the one vector
// sub-query the executor must run, plus the involved-fields bitset
// check_search consults to decide whether a segment can serve it.
type Plan struct {
	Schema      *schema.Schema
	Predicate   Predicate
	VectorQuery VectorQueryInfo

	involvedFields *roaring.Bitmap
}

// New builds a Plan, validating the vector field is really a vector field
// of the given schema and computing involved_fields as the union of every
// field-offset the predicate references plus the vector field.
func New(s *schema.Schema, predicate Predicate, vq VectorQueryInfo) (*Plan, error) {
	if predicate == nil {
		predicate = AlwaysTrue{}
	}
	vf := s.Field(vq.FieldOffset)
	if !vf.DataType.IsVector() {
		return nil, segerrors.NewMalformedPlanError("plan.New", "vector_query_info.field_offset is not a vector field")
	}
	if vq.TopK < 0 {
		return nil, segerrors.NewMalformedPlanError("plan.New", "topK must be non-negative")
	}

	involved := roaring.New()
	involved.Add(uint32(vq.FieldOffset))
	collectFields(predicate, involved)

	return &Plan{Schema: s, Predicate: predicate, VectorQuery: vq, involvedFields: involved}, nil
}

// InvolvedFields returns the union of field offsets this plan's predicate
// and vector query reference, the set check_search validates against a
// segment's ready fields.
func (p *Plan) InvolvedFields() *roaring.Bitmap { return p.involvedFields }

func collectFields(pred Predicate, into *roaring.Bitmap) {
	switch n := pred.(type) {
	case AlwaysTrue:
	case And:
		for _, c := range n.Clauses {
			collectFields(c, into)
		}
	case Or:
		for _, c := range n.Clauses {
			collectFields(c, into)
		}
	case Not:
		collectFields(n.Clause, into)
	case UnaryRange:
		into.Add(uint32(n.Field))
	case BinaryRange:
		into.Add(uint32(n.Field))
	case Term:
		into.Add(uint32(n.Field))
	case CompareExpr:
		into.Add(uint32(n.FieldL))
		into.Add(uint32(n.FieldR))
	}
}

// CheckSearch reports whether ready (a bitset of field offsets with data
// or index loaded) covers every field this plan touches, the
// check_search capability spec §9 names on the shared Segment interface.
func (p *Plan) CheckSearch(ready *roaring.Bitmap) error {
	missing := roaring.AndNot(p.involvedFields, ready)
	if !missing.IsEmpty() {
		return segerrors.NewNotReadyError("check_search", "plan references fields not yet loaded")
	}
	return nil
}
