package deletion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishine/segcore/internal/core"
)

// fixedOffsets builds an insertOffsets lookup from a uid -> []InsertOffset map.
func fixedOffsets(m map[core.PrimaryKey][]InsertOffset) func(core.PrimaryKey) []InsertOffset {
	return func(uid core.PrimaryKey) []InsertOffset { return m[uid] }
}

func TestDelBarrierBinarySearch(t *testing.T) {
	d := New("seg", 4, fixedOffsets(nil))
	begin := d.PreDelete(3)
	require.NoError(t, d.Remove(begin, 3,
		[]core.PrimaryKey{1, 2, 3},
		[]core.Timestamp{10, 20, 30}))

	assert.Equal(t, 0, d.DelBarrier(5))
	assert.Equal(t, 1, d.DelBarrier(15))
	assert.Equal(t, 3, d.DelBarrier(100))
}

func TestGetDeletedBitmapPicksMaxOffset(t *testing.T) {
	offsets := fixedOffsets(map[core.PrimaryKey][]InsertOffset{
		42: {
			{Offset: 0, Ts: 5},
			{Offset: 3, Ts: 12}, // latest insert for uid 42 before the delete
		},
	})
	d := New("seg", 4, offsets)

	begin := d.PreDelete(1)
	require.NoError(t, d.Remove(begin, 1, []core.PrimaryKey{42}, []core.Timestamp{20}))

	bm := d.GetDeletedBitmap(1, core.Timestamp(100), 10)
	assert.True(t, bm.Contains(3))
	assert.False(t, bm.Contains(0))
}

func TestGetDeletedBitmapCacheHitAndIncrementalPatch(t *testing.T) {
	offsets := fixedOffsets(map[core.PrimaryKey][]InsertOffset{
		1: {{Offset: 0, Ts: 1}},
		2: {{Offset: 1, Ts: 2}},
	})
	d := New("seg", 4, offsets)

	begin := d.PreDelete(2)
	require.NoError(t, d.Remove(begin, 2, []core.PrimaryKey{1, 2}, []core.Timestamp{10, 20}))

	bm1 := d.GetDeletedBitmap(1, core.Timestamp(100), 5)
	assert.True(t, bm1.Contains(0))
	assert.False(t, bm1.Contains(1))

	// Forward patch from cached del_barrier 1 to 2.
	bm2 := d.GetDeletedBitmap(2, core.Timestamp(100), 5)
	assert.True(t, bm2.Contains(0))
	assert.True(t, bm2.Contains(1))

	// Cache hit on exact (del_barrier, ins_barrier) match.
	bm2Again := d.GetDeletedBitmap(2, core.Timestamp(100), 5)
	assert.True(t, bm2Again.Equals(bm2))

	// The (1, 5) entry is still cached, so this is a cache hit as well.
	bm1Again := d.GetDeletedBitmap(1, core.Timestamp(100), 5)
	assert.True(t, bm1Again.Contains(0))
	assert.False(t, bm1Again.Contains(1))
}

func TestBitmapLRUEviction(t *testing.T) {
	d := New("seg", 2, fixedOffsets(nil))
	begin := d.PreDelete(3)
	require.NoError(t, d.Remove(begin, 3,
		[]core.PrimaryKey{1, 2, 3}, []core.Timestamp{10, 20, 30}))

	d.GetDeletedBitmap(0, 1, 10)
	d.GetDeletedBitmap(1, 1, 10)
	d.GetDeletedBitmap(2, 1, 10)
	d.GetDeletedBitmap(3, 1, 10)

	assert.LessOrEqual(t, d.lru.Len(), 2)
}

func TestRemoveStableSortByTimestampThenUID(t *testing.T) {
	d := New("seg", 4, fixedOffsets(nil))
	begin := d.PreDelete(3)
	require.NoError(t, d.Remove(begin, 3,
		[]core.PrimaryKey{3, 1, 2},
		[]core.Timestamp{5, 5, 1}))

	// Expect sorted by (ts, uid): (1,2), (5,1), (5,3)
	assert.Equal(t, core.PrimaryKey(2), d.uids[0])
	assert.Equal(t, core.PrimaryKey(1), d.uids[1])
	assert.Equal(t, core.PrimaryKey(3), d.uids[2])
}
