// Package hnswadapter wires github.com/coder/hnsw as a concrete
// index.VectorIndex — the one real ANN index this module ships, per
// spec.md §1/§4.5/§9's "we specify the capability interface, not the ANN
// index implementations" stance. Grounded on internal/store/hnsw.go and
// internal/store/index_build.go's Graph construction, MakeNode/Add/Search
// calls, and custom Distance assignment.
package hnswadapter

import (
	"github.com/coder/hnsw"

	"github.com/ishine/segcore/internal/core"
	segerrors "github.com/ishine/segcore/internal/errors"
	"github.com/ishine/segcore/internal/index"
)

// Index wraps a *hnsw.Graph[uint64] keyed by row offset, built for exactly
// one metric and dimension — load_index (spec §4.5) attaches one per
// vector field.
type Index struct {
	graph  *hnsw.Graph[uint64]
	metric core.MetricType
	dim    int
	count  int
}

// Build constructs an Index over vectors (row-offset-indexed) for metric.
// Only L2 and IP are supported; binary metrics route through
// internal/index/bruteforce instead, since coder/hnsw's graph operates on
// float32 distance functions.
func Build(metric core.MetricType, dim int, vectors [][]float32) (*Index, error) {
	if metric != core.MetricL2 && metric != core.MetricIP {
		return nil, segerrors.NewIndexMismatchError("vector",
			"hnswadapter supports only L2 and IP; use bruteforce for binary metrics")
	}

	g := hnsw.NewGraph[uint64]()
	g.Distance = distanceFunc(metric)

	idx := &Index{graph: g, metric: metric, dim: dim, count: len(vectors)}
	for i, v := range vectors {
		g.Add(hnsw.MakeNode(uint64(i), v))
	}
	return idx, nil
}

func distanceFunc(metric core.MetricType) func(a, b []float32) float32 {
	if metric == core.MetricIP {
		return func(a, b []float32) float32 {
			var sum float32
			for i := range a {
				sum += a[i] * b[i]
			}
			// coder/hnsw's graph always treats smaller as closer; negate so
			// the largest inner product sorts first.
			return -sum
		}
	}
	return func(a, b []float32) float32 {
		var sum float32
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return sum
	}
}

func (idx *Index) Metric() core.MetricType { return idx.metric }
func (idx *Index) Dim() int                { return idx.dim }
func (idx *Index) Count() int              { return idx.count }

// EstimateMemory approximates the graph's footprint as its vector payload;
// coder/hnsw doesn't expose its own internal edge-list accounting.
func (idx *Index) EstimateMemory() int64 {
	return int64(idx.count) * int64(idx.dim) * 4
}

// Search delegates to the underlying graph and re-derives the metric's own
// distance (undoing the IP negation coder/hnsw needed internally) so
// callers see spec §4.7's metric semantics, not the graph's internal
// ordering convention. bitset filtering is applied by over-fetching and
// trimming, since coder/hnsw's Graph.Search has no bitset parameter.
func (idx *Index) Search(query []float32, topK int, bitset index.Bitset) ([]index.Candidate, error) {
	fetch := topK
	if bitset != nil {
		fetch = topK * 4
		if fetch > idx.count {
			fetch = idx.count
		}
	}
	if fetch == 0 {
		return nil, nil
	}

	nodes := idx.graph.Search(query, fetch)

	heap := index.NewTopKHeap(topK, idx.metric)
	for _, n := range nodes {
		offset := core.RowOffset(n.Key)
		if bitset != nil && !bitset.Contains(uint32(offset)) {
			continue
		}
		d := realDistance(idx.metric, query, n.Value)
		heap.Offer(index.Candidate{Offset: offset, Distance: d})
	}
	return heap.Sorted(), nil
}

func realDistance(metric core.MetricType, query, value []float32) float32 {
	if metric == core.MetricIP {
		var sum float32
		for i := range query {
			sum += query[i] * value[i]
		}
		return sum
	}
	var sum float32
	for i := range query {
		d := query[i] - value[i]
		sum += d * d
	}
	return sum
}
