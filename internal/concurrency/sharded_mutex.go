// ShardedMutex stripes a key space across a fixed number of RWMutexes, so
// unrelated keys don't contend on one global lock. internal/insertrecord
// uses it to guard its uid->offset multimap shards, keying by the int64
// underlying a core.PrimaryKey.
package concurrency

import (
	"sync"
)

type ShardedMutex[T any] struct {
	shards    []sync.RWMutex
	numShards int
}

func NewShardedMutex[T any](numShards int) *ShardedMutex[T] {
	if numShards < 1 {
		numShards = 16
	}

	return &ShardedMutex[T]{
		shards:    make([]sync.RWMutex, numShards),
		numShards: numShards,
	}
}

// NumShards returns the shard count, so callers keeping shard-local state
// alongside a ShardedMutex (a parallel array of per-shard maps, say) can
// size it consistently and reuse ShardIndex for both the lock and the array.
func (sm *ShardedMutex[T]) NumShards() int { return sm.numShards }

// ShardIndex returns the shard key maps to, for callers that keep their own
// per-shard state array alongside the lock.
func (sm *ShardedMutex[T]) ShardIndex(key T) int {
	i := sm.hash(key) % sm.numShards
	if i < 0 {
		i += sm.numShards
	}
	return i
}

func (sm *ShardedMutex[T]) Lock(key T) {
	sm.shards[sm.ShardIndex(key)].Lock()
}

func (sm *ShardedMutex[T]) Unlock(key T) {
	sm.shards[sm.ShardIndex(key)].Unlock()
}

func (sm *ShardedMutex[T]) RLock(key T) {
	sm.shards[sm.ShardIndex(key)].RLock()
}

func (sm *ShardedMutex[T]) RUnlock(key T) {
	sm.shards[sm.ShardIndex(key)].RUnlock()
}

func (sm *ShardedMutex[T]) hash(key T) int {
	switch k := any(key).(type) {
	case int:
		return abs(k)
	case int32:
		return abs(int(k))
	case int64:
		return abs(int(k))
	case string:
		h := 0
		for _, c := range k {
			h = h*31 + int(c)
		}
		return abs(h)
	default:
		return 0
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
