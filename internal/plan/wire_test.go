package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishine/segcore/internal/core"
)

func TestLoadIndexInfoRoundTrip(t *testing.T) {
	info := LoadIndexInfo{
		FieldID:    3,
		MetricType: core.MetricL2,
		IndexParams: []IndexParam{
			{Key: "M", Value: "16"},
			{Key: "efConstruction", Value: "200"},
		},
	}
	decoded, err := DecodeLoadIndexInfo(EncodeLoadIndexInfo(info))
	require.NoError(t, err)
	assert.Equal(t, info, decoded)
}

func TestLoadSegmentMetaRoundTrip(t *testing.T) {
	meta := LoadSegmentMeta{
		Metas: []LoadFieldMeta{
			{MinTimestamp: 1, MaxTimestamp: 100, RowCount: 1000},
			{MinTimestamp: 2, MaxTimestamp: 90, RowCount: 500},
		},
		TotalSize: 123456,
	}
	decoded, err := DecodeLoadSegmentMeta(EncodeLoadSegmentMeta(meta))
	require.NoError(t, err)
	assert.Equal(t, meta, decoded)
}
