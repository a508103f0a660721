// Package bruteforce implements the brute-force VectorIndex adapter spec.md
// §4.5 names explicitly as SegmentSealed's fallback when no index is
// attached, and what SegmentGrowing always uses per-chunk. Distance
// formulas are grounded on internal/store/hnsw.go's euclidean and
// internal/store/arrow_distance.go's ComputeL2Distances, generalized from
// L2-only to the full metric table in spec §4.7.
package bruteforce

import (
	"math"
	"math/bits"

	"github.com/ishine/segcore/internal/concurrency"
	"github.com/ishine/segcore/internal/core"
	"github.com/ishine/segcore/internal/index"
	"github.com/ishine/segcore/internal/metrics"
)

// Index is a flat, unindexed column of vectors searched by full scan. It
// satisfies index.VectorIndex so SegmentSealed can attach one as a
// fallback, and SegmentGrowing can run one per chunk without the overhead
// of a real graph structure.
type Index struct {
	metric  core.MetricType
	dim     int
	vectors [][]float32 // float vectors, nil for binary
	binary  [][]byte    // binary vectors, nil for float

	queryBufPool *concurrency.ConcurrentPool[[]byte] // binary path only: reused packed-query scratch
}

// NewFloat builds a brute-force index over float vectors for an L2 or IP
// metric.
func NewFloat(metric core.MetricType, dim int, vectors [][]float32) *Index {
	core.Assert(metric == core.MetricL2 || metric == core.MetricIP,
		"bruteforce.NewFloat: metric %s is not a float metric", metric)
	return &Index{metric: metric, dim: dim, vectors: vectors}
}

// NewBinary builds a brute-force index over binary vectors (packed bits)
// for a Hamming, Jaccard, or Tanimoto metric.
func NewBinary(metric core.MetricType, dim int, vectors [][]byte) *Index {
	core.Assert(metric == core.MetricHamming || metric == core.MetricJaccard || metric == core.MetricTanimoto,
		"bruteforce.NewBinary: metric %s is not a binary metric", metric)
	return &Index{metric: metric, dim: dim, binary: vectors, queryBufPool: concurrency.NewConcurrentPool[[]byte](4)}
}

func (idx *Index) Metric() core.MetricType { return idx.metric }
func (idx *Index) Dim() int                { return idx.dim }

func (idx *Index) Count() int {
	if idx.vectors != nil {
		return len(idx.vectors)
	}
	return len(idx.binary)
}

func (idx *Index) EstimateMemory() int64 {
	if idx.vectors != nil {
		return int64(len(idx.vectors)) * int64(idx.dim) * 4
	}
	return int64(len(idx.binary)) * int64((idx.dim+7)/8)
}

// Search scans every row not excluded by bitset and keeps the topK best by
// the index's metric, per spec §4.7's brute-force fallback.
func (idx *Index) Search(query []float32, topK int, bitset index.Bitset) ([]index.Candidate, error) {
	heap := index.NewTopKHeap(topK, idx.metric)

	if idx.vectors != nil {
		for i, v := range idx.vectors {
			if bitset != nil && !bitset.Contains(uint32(i)) {
				continue
			}
			d := floatDistance(idx.metric, query, v)
			heap.Offer(index.Candidate{Offset: core.RowOffset(i), Distance: d})
		}
		metrics.BruteForceComparisons.WithLabelValues(idx.metric.String()).Add(float64(len(idx.vectors)))
		return heap.Sorted(), nil
	}

	need := (len(query) + 7) / 8
	buf := idx.queryBufPool.Get()
	if cap(buf) < need {
		buf = make([]byte, need)
	} else {
		buf = buf[:need]
		for i := range buf {
			buf[i] = 0
		}
	}
	queryBits := packFloatQueryInto(buf, query)
	defer idx.queryBufPool.Put(queryBits)

	for i, v := range idx.binary {
		if bitset != nil && !bitset.Contains(uint32(i)) {
			continue
		}
		d := binaryDistance(idx.metric, queryBits, v)
		heap.Offer(index.Candidate{Offset: core.RowOffset(i), Distance: d})
	}
	metrics.BruteForceComparisons.WithLabelValues(idx.metric.String()).Add(float64(len(idx.binary)))
	return heap.Sorted(), nil
}

// floatDistance computes the L2 (min, Σ(a-b)²) or IP (max, Σ a·b) distance
// per spec §4.7's metric table.
func floatDistance(metric core.MetricType, a, b []float32) float32 {
	var sum float32
	switch metric {
	case core.MetricIP:
		for i := range a {
			sum += a[i] * b[i]
		}
	default: // L2
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
	}
	return sum
}

// binaryDistance computes Hamming (popcount(a^b)), Jaccard
// (1 - |A∩B|/|A∪B|), or Tanimoto (-log2(|A∩B|/|A∪B|)) per spec §4.7.
func binaryDistance(metric core.MetricType, a, b []byte) float32 {
	var andCount, orCount, xorCount int
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		andCount += bits.OnesCount8(a[i] & b[i])
		orCount += bits.OnesCount8(a[i] | b[i])
		xorCount += bits.OnesCount8(a[i] ^ b[i])
	}

	switch metric {
	case core.MetricHamming:
		return float32(xorCount)
	case core.MetricTanimoto:
		if orCount == 0 || andCount == 0 {
			return float32(math.Inf(1))
		}
		ratio := float64(andCount) / float64(orCount)
		return float32(-math.Log2(ratio))
	default: // Jaccard
		if orCount == 0 {
			return 0
		}
		return 1 - float32(andCount)/float32(orCount)
	}
}

// packFloatQueryInto packs a {0,1}-valued float32 query vector (the shape
// PlaceholderGroup.Vectors unpacks a binary group into)
// into dst using the same packed-bit layout segment columns store binary
// vectors in. dst must be zeroed and at least (len(query)+7)/8 bytes.
func packFloatQueryInto(dst []byte, query []float32) []byte {
	for i, v := range query {
		if v != 0 {
			dst[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return dst
}
