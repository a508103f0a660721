package hnswadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishine/segcore/internal/core"
)

func TestBuildRejectsBinaryMetric(t *testing.T) {
	_, err := Build(core.MetricHamming, 8, nil)
	assert.Error(t, err)
}

func TestBuildAndSearchL2(t *testing.T) {
	idx, err := Build(core.MetricL2, 2, [][]float32{
		{0, 0},
		{5, 5},
		{1, 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Count())

	results, err := idx.Search([]float32{0, 0}, 2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, core.RowOffset(0), results[0].Offset)
}
