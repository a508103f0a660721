package plan

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ishine/segcore/internal/core"
	segerrors "github.com/ishine/segcore/internal/errors"
)

// PlaceholderGroup carries the query vectors accompanying a Plan (spec
// §4.6/§6): NumQueries vectors of Dim lanes, typed DataType, packed
// row-major into Data. Field numbers below are this module's own wire
// layout, decoded with protowire's length-delimited primitives directly
// rather than committing generated .pb.go files, per the DOMAIN STACK
// note on protowire usage.
type PlaceholderGroup struct {
	NumQueries int64
	Dim        int32
	DataType   core.DataType
	Data       []byte
}

const (
	phFieldNumQueries protowire.Number = 1
	phFieldDim        protowire.Number = 2
	phFieldDataType   protowire.Number = 3
	phFieldData       protowire.Number = 4
)

// EncodePlaceholderGroup serializes g into its wire form, the inverse of
// DecodePlaceholderGroup; used by tests and the bench CLI fixture builder.
func EncodePlaceholderGroup(g PlaceholderGroup) []byte {
	var b []byte
	b = protowire.AppendTag(b, phFieldNumQueries, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(g.NumQueries))
	b = protowire.AppendTag(b, phFieldDim, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(g.Dim))
	b = protowire.AppendTag(b, phFieldDataType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(g.DataType))
	b = protowire.AppendTag(b, phFieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, g.Data)
	return b
}

// DecodePlaceholderGroup parses a PlaceholderGroup from its wire form.
// Unknown field numbers are skipped rather than rejected, the usual
// protobuf forward-compatibility stance. Any malformed varint/length
// surfaces as an ErrMalformedPlan (spec §7: "parse errors, reported at
// plan construction; query path never sees a malformed plan").
func DecodePlaceholderGroup(data []byte) (PlaceholderGroup, error) {
	var g PlaceholderGroup
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return PlaceholderGroup{}, segerrors.WrapMalformedPlanError(
				protowire.ParseError(n), "DecodePlaceholderGroup", "bad tag")
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, vn := protowire.ConsumeVarint(b)
			if vn < 0 {
				return PlaceholderGroup{}, segerrors.WrapMalformedPlanError(
					protowire.ParseError(vn), "DecodePlaceholderGroup", "bad varint")
			}
			b = b[vn:]
			switch num {
			case phFieldNumQueries:
				g.NumQueries = int64(v)
			case phFieldDim:
				g.Dim = int32(v)
			case phFieldDataType:
				g.DataType = core.DataType(v)
			}
		case protowire.BytesType:
			v, vn := protowire.ConsumeBytes(b)
			if vn < 0 {
				return PlaceholderGroup{}, segerrors.WrapMalformedPlanError(
					protowire.ParseError(vn), "DecodePlaceholderGroup", "bad bytes")
			}
			b = b[vn:]
			if num == phFieldData {
				g.Data = append([]byte(nil), v...)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return PlaceholderGroup{}, segerrors.WrapMalformedPlanError(
					protowire.ParseError(n), "DecodePlaceholderGroup", "bad field")
			}
			b = b[n:]
		}
	}

	expect := int(g.NumQueries) * vectorRowBytes(g.DataType, int(g.Dim))
	if expect != len(g.Data) {
		return PlaceholderGroup{}, segerrors.NewMalformedPlanError("DecodePlaceholderGroup",
			"data length does not match num_queries * vector row bytes")
	}
	return g, nil
}

// vectorRowBytes mirrors schema.FieldMeta.RowBytes()'s float/binary split,
// duplicated here rather than imported to keep this package independent
// of schema's field-metadata shape — a PlaceholderGroup only ever carries
// dim and dtype, not a full FieldMeta.
func vectorRowBytes(dt core.DataType, dim int) int {
	if dt == core.DataTypeBinaryVector {
		return (dim + 7) / 8
	}
	return dim * 4
}

// Vectors splits Data into NumQueries float32 vectors of Dim lanes each.
// A binary-typed group's packed bits (least significant bit first) are
// unpacked into one 0 or 1 lane per bit.
func (g PlaceholderGroup) Vectors() [][]float32 {
	out := make([][]float32, g.NumQueries)
	if g.DataType == core.DataTypeBinaryVector {
		stride := vectorRowBytes(g.DataType, int(g.Dim))
		for i := range out {
			row := g.Data[i*stride : (i+1)*stride]
			v := make([]float32, g.Dim)
			for j := range v {
				if row[j/8]&(1<<(uint(j)%8)) != 0 {
					v[j] = 1
				}
			}
			out[i] = v
		}
		return out
	}
	stride := int(g.Dim) * 4
	for i := range out {
		out[i] = decodeFloat32LE(g.Data[i*stride : (i+1)*stride])
	}
	return out
}

func decodeFloat32LE(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
