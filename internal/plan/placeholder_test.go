package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishine/segcore/internal/core"
)

func TestPlaceholderGroupRoundTrip(t *testing.T) {
	data := make([]byte, 2*4*4) // 2 queries, dim 4, float32
	for i := range data {
		data[i] = byte(i)
	}
	g := PlaceholderGroup{NumQueries: 2, Dim: 4, DataType: core.DataTypeFloatVector, Data: data}

	wire := EncodePlaceholderGroup(g)
	decoded, err := DecodePlaceholderGroup(wire)
	require.NoError(t, err)
	assert.Equal(t, g, decoded)
}

func TestPlaceholderGroupVectors(t *testing.T) {
	g := PlaceholderGroup{NumQueries: 1, Dim: 2, DataType: core.DataTypeFloatVector,
		Data: []byte{0, 0, 128, 63, 0, 0, 0, 64}} // [1.0, 2.0]
	vecs := g.Vectors()
	require.Len(t, vecs, 1)
	assert.Equal(t, []float32{1.0, 2.0}, vecs[0])
}

func TestDecodePlaceholderGroupRejectsLengthMismatch(t *testing.T) {
	g := PlaceholderGroup{NumQueries: 2, Dim: 4, DataType: core.DataTypeFloatVector, Data: []byte{1, 2, 3}}
	_, err := DecodePlaceholderGroup(EncodePlaceholderGroup(g))
	assert.Error(t, err)
}
