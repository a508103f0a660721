// Package index defines the VectorIndex capability interface spec.md §1,
// §4.5, and §9 deliberately leave abstract: SegmentSealed.load_index
// attaches one, SearchOnSealed delegates to it. Two concrete adapters
// satisfy it: internal/index/bruteforce (the explicit §4.5 fallback) and
// internal/index/hnswadapter (coder/hnsw).
package index

import "github.com/ishine/segcore/internal/core"

// Candidate is one kNN result: a row offset within the segment and the
// distance that earned it its rank.
type Candidate struct {
	Offset   core.RowOffset
	Distance float32
}

// VectorIndex is the capability a sealed segment's vector field can have
// attached, or a growing segment's per-chunk search can consult. Its
// count() must agree with the row-count load_index asserts against.
type VectorIndex interface {
	// Metric reports the distance function this index was built for.
	Metric() core.MetricType

	// Dim reports the vector dimension this index was built for.
	Dim() int

	// Count reports how many vectors are indexed, asserted against a
	// sealed segment's row-count at load_index time.
	Count() int

	// Search returns up to topK candidates for query, restricted to rows
	// set in bitset (nil means unrestricted), ordered best-first per the
	// index's own Metric direction.
	Search(query []float32, topK int, bitset Bitset) ([]Candidate, error)

	// EstimateMemory returns the index's own byte footprint, folded into
	// Segment.MemoryUsage (SUPPLEMENTED FEATURES item 4).
	EstimateMemory() int64
}

// Bitset is the minimal read-only predicate the index package depends on
// from internal/deletion and internal/executor's combined search bitmap,
// kept as an interface here so this package never imports roaring
// directly — only whether a row offset survived the filter/delete combine.
type Bitset interface {
	Contains(offset uint32) bool
}
