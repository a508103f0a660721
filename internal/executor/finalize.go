package executor

import (
	"math"

	"github.com/ishine/segcore/internal/core"
	"github.com/ishine/segcore/internal/index"
	"github.com/ishine/segcore/internal/plan"
)

// Result is the dense per-query reduce output spec §4.7 Phase 4 describes:
// NumQueries stripes of TopK slots each, row-major in Offsets/Distances.
// A slot with fewer than TopK surviving candidates is filled with
// core.InvalidRowOffset and the metric's WorstDistance sentinel.
type Result struct {
	NumQueries int
	TopK       int
	Offsets    []core.RowOffset
	Distances  []float32
}

// Finalize packs per-query candidate lists (already ordered best-first by
// Segment.VectorSearch) into a dense Result, truncating each distance to
// info.RoundDecimal places when non-negative.
func Finalize(results [][]index.Candidate, info plan.VectorQueryInfo) *Result {
	nq := len(results)
	topK := info.TopK
	r := &Result{
		NumQueries: nq,
		TopK:       topK,
		Offsets:    make([]core.RowOffset, nq*topK),
		Distances:  make([]float32, nq*topK),
	}
	worst := info.Metric.WorstDistance()
	for qi, cands := range results {
		for ki := 0; ki < topK; ki++ {
			slot := qi*topK + ki
			if ki < len(cands) {
				r.Offsets[slot] = cands[ki].Offset
				r.Distances[slot] = roundDecimal(cands[ki].Distance, info.RoundDecimal)
			} else {
				r.Offsets[slot] = core.InvalidRowOffset
				r.Distances[slot] = worst
			}
		}
	}
	return r
}

// roundDecimal truncates d to places decimal digits. A negative places
// means no truncation, the "round_decimal == -1" convention spec.md
// carries over for "full precision".
func roundDecimal(d float32, places int) float32 {
	if places < 0 {
		return d
	}
	scale := math.Pow10(places)
	return float32(math.Trunc(float64(d)*scale) / scale)
}
