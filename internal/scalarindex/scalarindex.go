// Package scalarindex builds the sorted (value, row_offset) lookup
// structure spec.md §4.5 describes for equality and range predicates over
// loaded sealed-segment columns, so the executor can answer Term/
// UnaryRange/BinaryRange nodes without scanning. Operator semantics
// (=, !=, >, <, >=, <=) are grounded on internal/query/filter_evaluator.go's
// int64FilterOp/float32FilterOp, generalized from a column scan into a
// binary-searchable sorted index built once at load time.
package scalarindex

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/ishine/segcore/internal/core"
)

// Op is a comparison operator a range/term predicate may carry.
type Op int

const (
	OpEQ Op = iota
	OpNE
	OpGT
	OpLT
	OpGE
	OpLE
)

// entry is one sorted (value, row_offset) pair.
type entry[T int64 | float64] struct {
	value  T
	offset core.RowOffset
}

// Index is a sorted equality/range lookup over one scalar column, built
// once at load_field_data time (spec §4.5).
type Index[T int64 | float64] struct {
	entries []entry[T]
}

// Build sorts values (paired with their row offsets) ascending by value,
// breaking ties by offset for determinism, and returns the ready index.
func Build[T int64 | float64](values []T) *Index[T] {
	entries := make([]entry[T], len(values))
	for i, v := range values {
		entries[i] = entry[T]{value: v, offset: core.RowOffset(i)}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].value != entries[j].value {
			return entries[i].value < entries[j].value
		}
		return entries[i].offset < entries[j].offset
	})
	return &Index[T]{entries: entries}
}

// Len returns the number of indexed rows.
func (idx *Index[T]) Len() int { return len(idx.entries) }

func (idx *Index[T]) lowerBound(v T) int {
	return sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].value >= v })
}

func (idx *Index[T]) upperBound(v T) int {
	return sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].value > v })
}

// Equality evaluates field == v into a bitmap of matching row offsets.
func (idx *Index[T]) Equality(v T) *roaring.Bitmap {
	bm := roaring.New()
	lo, hi := idx.lowerBound(v), idx.upperBound(v)
	for i := lo; i < hi; i++ {
		bm.Add(uint32(idx.entries[i].offset))
	}
	return bm
}

// Term evaluates field IN values into a bitmap of matching row offsets.
func (idx *Index[T]) Term(values []T) *roaring.Bitmap {
	bm := roaring.New()
	for _, v := range values {
		lo, hi := idx.lowerBound(v), idx.upperBound(v)
		for i := lo; i < hi; i++ {
			bm.Add(uint32(idx.entries[i].offset))
		}
	}
	return bm
}

// UnaryRange evaluates field <op> v for op in {>, <, >=, <=, =, !=}.
func (idx *Index[T]) UnaryRange(op Op, v T) *roaring.Bitmap {
	bm := roaring.New()
	switch op {
	case OpEQ:
		return idx.Equality(v)
	case OpNE:
		bm.AddRange(0, uint64(len(idx.entries)))
		bm.RemoveRange(uint64(idx.lowerBound(v)), uint64(idx.upperBound(v)))
		return idx.remapToOffsets(bm)
	case OpGT:
		return idx.rangeOffsets(idx.upperBound(v), len(idx.entries))
	case OpGE:
		return idx.rangeOffsets(idx.lowerBound(v), len(idx.entries))
	case OpLT:
		return idx.rangeOffsets(0, idx.lowerBound(v))
	case OpLE:
		return idx.rangeOffsets(0, idx.upperBound(v))
	}
	return bm
}

// BinaryRange evaluates loOp(v, field) AND hiOp(field, hi) — e.g.
// lo <= field < hi for (OpLE, lo, OpLT, hi).
func (idx *Index[T]) BinaryRange(loOp Op, lo T, hiOp Op, hi T) *roaring.Bitmap {
	start := idx.lowerBound(lo)
	if loOp == OpLT {
		start = idx.upperBound(lo)
	}
	end := idx.upperBound(hi)
	if hiOp == OpLE {
		end = idx.upperBound(hi)
	} else if hiOp == OpLT {
		end = idx.lowerBound(hi)
	}
	return idx.rangeOffsets(start, end)
}

func (idx *Index[T]) rangeOffsets(lo, hi int) *roaring.Bitmap {
	bm := roaring.New()
	for i := lo; i < hi; i++ {
		bm.Add(uint32(idx.entries[i].offset))
	}
	return bm
}

// remapToOffsets converts a bitmap of sorted-entry positions into a bitmap
// of the row offsets those positions hold, used by OpNE's complement path.
func (idx *Index[T]) remapToOffsets(positions *roaring.Bitmap) *roaring.Bitmap {
	bm := roaring.New()
	it := positions.Iterator()
	for it.HasNext() {
		pos := it.Next()
		if int(pos) < len(idx.entries) {
			bm.Add(uint32(idx.entries[pos].offset))
		}
	}
	return bm
}
