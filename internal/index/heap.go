// TopKHeap is a fixed-capacity heap that keeps the topK best Candidates by
// a metric's comparison direction, evicting the current worst survivor
// when a better candidate arrives. Grounded on internal/store's MaxHeap
// (push/pop/bubbleUp/bubbleDown over a flat array), generalized from
// always-largest-at-root to "worst survivor at root" so one implementation
// serves both min-is-best metrics (L2, Hamming, Jaccard, Tanimoto) and
// max-is-best metrics (IP) via core.MetricType.Better as the comparator.
package index

import "github.com/ishine/segcore/internal/core"

type TopKHeap struct {
	metric core.MetricType
	items  []Candidate
	size   int
	cap    int
}

// NewTopKHeap creates a TopKHeap bounded to capacity under metric's
// comparison direction.
func NewTopKHeap(capacity int, metric core.MetricType) *TopKHeap {
	return &TopKHeap{
		metric: metric,
		items:  make([]Candidate, capacity),
		cap:    capacity,
	}
}

// betterOrTie breaks an exact distance tie by lower seg_offset wins,
// per spec §4.7's deterministic tie-break.
func (h *TopKHeap) betterOrTie(a, b Candidate) bool {
	if a.Distance != b.Distance {
		return h.metric.Better(a.Distance, b.Distance)
	}
	return a.Offset < b.Offset
}

// worse reports whether a ranks behind b under the heap's metric — i.e.
// whether a is the one that should be evicted first. Defers entirely to
// betterOrTie so the heap's own sift invariant applies the same
// lower-offset-wins tie-break that Offer and Sorted already use, instead
// of treating equal distances as an arbitrary swap.
func (h *TopKHeap) worse(a, b Candidate) bool {
	return !h.betterOrTie(a, b)
}

// Offer inserts c if the heap isn't full, or if c beats the current worst
// survivor, evicting that survivor. Returns true if c was kept.
func (h *TopKHeap) Offer(c Candidate) bool {
	if h.size < h.cap {
		h.items[h.size] = c
		h.size++
		h.bubbleUp(h.size - 1)
		return true
	}
	if h.size == 0 {
		return false
	}
	worst := h.items[0]
	if h.betterOrTie(c, worst) && !h.sameCandidate(c, worst) {
		h.items[0] = c
		h.bubbleDown(0)
		return true
	}
	return false
}

func (h *TopKHeap) sameCandidate(a, b Candidate) bool {
	return a.Offset == b.Offset && a.Distance == b.Distance
}

// Len returns the number of survivors currently held.
func (h *TopKHeap) Len() int { return h.size }

// Sorted drains the heap into a best-first ordered slice, breaking exact
// ties by lower seg_offset per spec §4.7.
func (h *TopKHeap) Sorted() []Candidate {
	out := make([]Candidate, h.size)
	copy(out, h.items[:h.size])
	// Simple insertion sort: survivor counts are bounded by topK, typically small.
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && h.betterOrTie(out[j], out[j-1]) {
			out[j], out[j-1] = out[j-1], out[j]
			j--
		}
	}
	return out
}

func (h *TopKHeap) bubbleUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if !h.worse(h.items[idx], h.items[parent]) {
			break
		}
		h.items[idx], h.items[parent] = h.items[parent], h.items[idx]
		idx = parent
	}
}

func (h *TopKHeap) bubbleDown(idx int) {
	for {
		left, right := 2*idx+1, 2*idx+2
		worstIdx := idx
		if left < h.size && h.worse(h.items[left], h.items[worstIdx]) {
			worstIdx = left
		}
		if right < h.size && h.worse(h.items[right], h.items[worstIdx]) {
			worstIdx = right
		}
		if worstIdx == idx {
			break
		}
		h.items[idx], h.items[worstIdx] = h.items[worstIdx], h.items[idx]
		idx = worstIdx
	}
}
