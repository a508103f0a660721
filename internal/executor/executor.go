package executor

import (
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/rs/zerolog"

	"github.com/ishine/segcore/internal/core"
	"github.com/ishine/segcore/internal/logging"
	"github.com/ishine/segcore/internal/metrics"
	"github.com/ishine/segcore/internal/plan"
	"github.com/ishine/segcore/internal/segment"
)

// Executor runs a Plan against one Segment end to end: predicate
// evaluation, delete-visibility combine, vector search dispatch, and
// result finalization (spec §4.7's four phases).
type Executor struct {
	logger zerolog.Logger
}

// New creates an Executor. name only labels its log lines.
func New(name string) *Executor {
	return &Executor{logger: logging.New("executor." + name)}
}

// Search runs p against seg at read timestamp tr with query vectors
// drawn from group, returning the dense reduced Result.
func (e *Executor) Search(p *plan.Plan, seg segment.Segment, group plan.PlaceholderGroup, tr core.Timestamp) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.SearchDurationSeconds.WithLabelValues(segmentKind(seg)).Observe(time.Since(start).Seconds())
	}()

	if err := seg.CheckSearch(p); err != nil {
		return nil, err
	}

	bound := seg.InsBarrier(tr)
	filter := EvaluatePredicate(p.Predicate, seg, bound)
	deleted := seg.DeletedBitmap(tr)
	combined := roaring.AndNot(filter, deleted)

	queries := group.Vectors()
	results, err := seg.VectorSearch(p.VectorQuery, queries, &roaringBitset{combined})
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Int("num_queries", len(queries)).
		Uint64("candidates", combined.GetCardinality()).
		Msg("search complete")

	return Finalize(results, p.VectorQuery), nil
}

// roaringBitset adapts a *roaring.Bitmap to the index.Bitset interface
// VectorIndex.Search and the growing per-chunk fallback expect.
type roaringBitset struct{ bm *roaring.Bitmap }

func (b *roaringBitset) Contains(offset uint32) bool { return b.bm.Contains(offset) }

func segmentKind(seg segment.Segment) string {
	switch seg.(type) {
	case *segment.SegmentGrowing:
		return "growing"
	case *segment.SegmentSealed:
		return "sealed"
	default:
		return "unknown"
	}
}
