// ConcurrentVector and AckResponder implement the growing segment's
// chunked column storage and its MVCC publish horizon.
// Grounded on internal/store/lww.go's sharded-map shape for the
// fetch-add/shard split, generalized from a fixed int64 map to an
// arbitrary, chunked, append-only column of T.
package concurrency

import (
	"sync"
	"sync/atomic"

	"github.com/ishine/segcore/internal/core"
	"github.com/ishine/segcore/internal/metrics"
)

// ConcurrentVector is an append-only, chunked column of T. Writers reserve
// a disjoint [start, start+n) range via a single atomic fetch-add, then
// write into their reserved chunks. Set, Get and Chunk each take mu's
// shared lock briefly to look up the chunk slice; the element write or
// read itself happens after that lock is released. Reads are therefore
// not lock-free: they wait while Grow holds mu exclusively to append a
// chunk.
type ConcurrentVector[T any] struct {
	chunkSize int
	fieldName string

	mu     sync.RWMutex // guards chunks slice growth only, not element access
	chunks [][]T

	size atomic.Int64 // reserved length; may exceed a not-yet-visible row
}

// NewConcurrentVector creates a ConcurrentVector with the given fixed chunk
// size (spec default: config.Runtime.SizePerChunk).
func NewConcurrentVector[T any](chunkSize int, fieldName string) *ConcurrentVector[T] {
	core.Assert(chunkSize > 0, "chunk size must be positive, got %d", chunkSize)
	return &ConcurrentVector[T]{
		chunkSize: chunkSize,
		fieldName: fieldName,
	}
}

// Reserve atomically grows the vector's logical size by n and returns the
// start offset the caller now owns exclusively for [start, start+n).
// Callers must call Grow before writing past an existing chunk boundary.
func (v *ConcurrentVector[T]) Reserve(n int) int {
	start := v.size.Add(int64(n)) - int64(n)
	return int(start)
}

// Grow ensures chunks exist to cover offsets [0, upTo). Safe to call
// concurrently from multiple reserving writers; only the writer that
// actually allocates a new chunk appends it, guarded by mu.
func (v *ConcurrentVector[T]) Grow(upTo int) {
	needChunks := (upTo + v.chunkSize - 1) / v.chunkSize
	v.mu.RLock()
	have := len(v.chunks)
	v.mu.RUnlock()
	if have >= needChunks {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for len(v.chunks) < needChunks {
		v.chunks = append(v.chunks, make([]T, v.chunkSize))
		metrics.ChunkGrowthsTotal.WithLabelValues(v.fieldName).Inc()
	}
}

// Set writes value at row offset idx. idx must already be covered by Grow.
func (v *ConcurrentVector[T]) Set(idx int, value T) {
	chunkIdx, within := idx/v.chunkSize, idx%v.chunkSize
	v.mu.RLock()
	chunk := v.chunks[chunkIdx]
	v.mu.RUnlock()
	chunk[within] = value
}

// Get reads the value at row offset idx.
func (v *ConcurrentVector[T]) Get(idx int) T {
	chunkIdx, within := idx/v.chunkSize, idx%v.chunkSize
	v.mu.RLock()
	chunk := v.chunks[chunkIdx]
	v.mu.RUnlock()
	return chunk[within]
}

// Size returns the vector's reserved length (which may be ahead of the
// AckResponder horizon for in-flight writers).
func (v *ConcurrentVector[T]) Size() int { return int(v.size.Load()) }

// NumChunks returns the number of allocated chunks.
func (v *ConcurrentVector[T]) NumChunks() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.chunks)
}

// ChunkSize returns the fixed chunk row capacity.
func (v *ConcurrentVector[T]) ChunkSize() int { return v.chunkSize }

// Chunk returns a read-only view of chunk i, sized to the vector's chunk
// capacity regardless of how many rows within it are currently visible —
// callers must bound reads by the ack horizon themselves.
func (v *ConcurrentVector[T]) Chunk(i int) []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.chunks[i]
}

// AckResponder tracks out-of-order completions of reserved write ranges and
// exposes the largest contiguous prefix that has fully landed — the
// visibility horizon every reader must clamp against. Grounded on the
// reserve/commit split in ConcurrentVector.Reserve, generalized into its
// own type because InsertRecord and DeletedRecord both need one
// independently of which columns they're publishing.
type AckResponder struct {
	mu      sync.Mutex
	acked   int64           // contiguous prefix fully published
	pending map[int64]int64 // start -> end of ranges finished out of order
}

// NewAckResponder returns an AckResponder with horizon 0.
func NewAckResponder() *AckResponder {
	return &AckResponder{pending: make(map[int64]int64)}
}

// Ack marks [start, end) as fully written and advances the contiguous
// horizon as far as pending completions allow.
func (a *AckResponder) Ack(start, end int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if start == a.acked {
		a.acked = end
	} else {
		a.pending[start] = end
	}

	for {
		next, ok := a.pending[a.acked]
		if !ok {
			break
		}
		delete(a.pending, a.acked)
		a.acked = next
	}
}

// Horizon returns the largest offset such that every row below it has
// been published, per spec's ack() semantics.
func (a *AckResponder) Horizon() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acked
}
