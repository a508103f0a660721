package bruteforce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishine/segcore/internal/core"
)

func TestFloatL2RanksNearestFirst(t *testing.T) {
	idx := NewFloat(core.MetricL2, 2, [][]float32{
		{0, 0},
		{10, 10},
		{1, 1},
	})
	results, err := idx.Search([]float32{0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, core.RowOffset(0), results[0].Offset)
	assert.Equal(t, core.RowOffset(2), results[1].Offset)
}

func TestFloatIPRanksLargestFirst(t *testing.T) {
	idx := NewFloat(core.MetricIP, 2, [][]float32{
		{1, 1},
		{10, 10},
		{0, 0},
	})
	results, err := idx.Search([]float32{1, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.RowOffset(1), results[0].Offset)
}

func TestSearchRespectsBitset(t *testing.T) {
	idx := NewFloat(core.MetricL2, 1, [][]float32{{0}, {1}, {2}})
	bs := fakeBitset{1: true}
	results, err := idx.Search([]float32{0}, 3, bs)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.RowOffset(1), results[0].Offset)
}

func TestBinaryHamming(t *testing.T) {
	idx := NewBinary(core.MetricHamming, 8, [][]byte{
		{0b11111111},
		{0b00000000},
		{0b11110000},
	})
	results, err := idx.Search(ones(8), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, core.RowOffset(0), results[0].Offset)
}

func ones(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

type fakeBitset map[uint32]bool

func (b fakeBitset) Contains(offset uint32) bool { return b[offset] }
