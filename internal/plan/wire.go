package plan

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ishine/segcore/internal/core"
	segerrors "github.com/ishine/segcore/internal/errors"
)

// IndexParam is one key/value pair of an index's build/search parameters
// (e.g. "M": "16", "efConstruction": "200"), opaque to this module beyond
// passing them through to the index adapter that understands them.
type IndexParam struct {
	Key   string
	Value string
}

// LoadIndexInfo is the wire record load_index (spec §4.5/§6) decodes
// before attaching a VectorIndex to a sealed segment's field.
type LoadIndexInfo struct {
	FieldID     core.FieldID
	MetricType  core.MetricType
	IndexParams []IndexParam
}

const (
	liiFieldID          protowire.Number = 1
	liiFieldMetricType  protowire.Number = 2
	liiFieldIndexParams protowire.Number = 3
)

// EncodeLoadIndexInfo serializes info into its wire form.
func EncodeLoadIndexInfo(info LoadIndexInfo) []byte {
	var b []byte
	b = protowire.AppendTag(b, liiFieldID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(info.FieldID))
	b = protowire.AppendTag(b, liiFieldMetricType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(info.MetricType))
	for _, p := range info.IndexParams {
		b = protowire.AppendTag(b, liiFieldIndexParams, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeIndexParam(p))
	}
	return b
}

func encodeIndexParam(p IndexParam) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, p.Key)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, p.Value)
	return b
}

func decodeIndexParam(data []byte) (IndexParam, error) {
	var p IndexParam
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return IndexParam{}, protowire.ParseError(n)
		}
		b = b[n:]
		v, vn := protowire.ConsumeBytes(b)
		if vn < 0 {
			return IndexParam{}, protowire.ParseError(vn)
		}
		b = b[vn:]
		if typ != protowire.BytesType {
			continue
		}
		switch num {
		case 1:
			p.Key = string(v)
		case 2:
			p.Value = string(v)
		}
	}
	return p, nil
}

// DecodeLoadIndexInfo parses a LoadIndexInfo from its wire form.
func DecodeLoadIndexInfo(data []byte) (LoadIndexInfo, error) {
	var info LoadIndexInfo
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return LoadIndexInfo{}, segerrors.WrapMalformedPlanError(protowire.ParseError(n), "DecodeLoadIndexInfo", "bad tag")
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, vn := protowire.ConsumeVarint(b)
			if vn < 0 {
				return LoadIndexInfo{}, segerrors.WrapMalformedPlanError(protowire.ParseError(vn), "DecodeLoadIndexInfo", "bad varint")
			}
			b = b[vn:]
			switch num {
			case liiFieldID:
				info.FieldID = core.FieldID(v)
			case liiFieldMetricType:
				info.MetricType = core.MetricType(v)
			}
		case protowire.BytesType:
			v, vn := protowire.ConsumeBytes(b)
			if vn < 0 {
				return LoadIndexInfo{}, segerrors.WrapMalformedPlanError(protowire.ParseError(vn), "DecodeLoadIndexInfo", "bad bytes")
			}
			b = b[vn:]
			if num == liiFieldIndexParams {
				p, err := decodeIndexParam(v)
				if err != nil {
					return LoadIndexInfo{}, segerrors.WrapMalformedPlanError(err, "DecodeLoadIndexInfo", "bad index_params entry")
				}
				info.IndexParams = append(info.IndexParams, p)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return LoadIndexInfo{}, segerrors.WrapMalformedPlanError(protowire.ParseError(n), "DecodeLoadIndexInfo", "bad field")
			}
			b = b[n:]
		}
	}
	return info, nil
}

// LoadFieldMeta is one field's timestamp range and row count within a
// LoadSegmentMeta record (spec §6).
type LoadFieldMeta struct {
	MinTimestamp core.Timestamp
	MaxTimestamp core.Timestamp
	RowCount     int64
}

// LoadSegmentMeta is the wire record describing a sealed segment's
// field-level load manifest before any load_field_data call (spec §6).
type LoadSegmentMeta struct {
	Metas     []LoadFieldMeta
	TotalSize int64
}

const (
	lfmFieldMinTs    protowire.Number = 1
	lfmFieldMaxTs    protowire.Number = 2
	lfmFieldRowCount protowire.Number = 3

	lsmFieldMetas     protowire.Number = 1
	lsmFieldTotalSize protowire.Number = 2
)

func encodeLoadFieldMeta(m LoadFieldMeta) []byte {
	var b []byte
	b = protowire.AppendTag(b, lfmFieldMinTs, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.MinTimestamp))
	b = protowire.AppendTag(b, lfmFieldMaxTs, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.MaxTimestamp))
	b = protowire.AppendTag(b, lfmFieldRowCount, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.RowCount))
	return b
}

func decodeLoadFieldMeta(data []byte) (LoadFieldMeta, error) {
	var m LoadFieldMeta
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 || typ != protowire.VarintType {
			return LoadFieldMeta{}, protowire.ParseError(n)
		}
		b = b[n:]
		v, vn := protowire.ConsumeVarint(b)
		if vn < 0 {
			return LoadFieldMeta{}, protowire.ParseError(vn)
		}
		b = b[vn:]
		switch num {
		case lfmFieldMinTs:
			m.MinTimestamp = core.Timestamp(v)
		case lfmFieldMaxTs:
			m.MaxTimestamp = core.Timestamp(v)
		case lfmFieldRowCount:
			m.RowCount = int64(v)
		}
	}
	return m, nil
}

// EncodeLoadSegmentMeta serializes meta into its wire form.
func EncodeLoadSegmentMeta(meta LoadSegmentMeta) []byte {
	var b []byte
	for _, m := range meta.Metas {
		b = protowire.AppendTag(b, lsmFieldMetas, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeLoadFieldMeta(m))
	}
	b = protowire.AppendTag(b, lsmFieldTotalSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(meta.TotalSize))
	return b
}

// DecodeLoadSegmentMeta parses a LoadSegmentMeta from its wire form.
func DecodeLoadSegmentMeta(data []byte) (LoadSegmentMeta, error) {
	var meta LoadSegmentMeta
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return LoadSegmentMeta{}, segerrors.WrapMalformedPlanError(protowire.ParseError(n), "DecodeLoadSegmentMeta", "bad tag")
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, vn := protowire.ConsumeVarint(b)
			if vn < 0 {
				return LoadSegmentMeta{}, segerrors.WrapMalformedPlanError(protowire.ParseError(vn), "DecodeLoadSegmentMeta", "bad varint")
			}
			b = b[vn:]
			if num == lsmFieldTotalSize {
				meta.TotalSize = int64(v)
			}
		case protowire.BytesType:
			v, vn := protowire.ConsumeBytes(b)
			if vn < 0 {
				return LoadSegmentMeta{}, segerrors.WrapMalformedPlanError(protowire.ParseError(vn), "DecodeLoadSegmentMeta", "bad bytes")
			}
			b = b[vn:]
			if num == lsmFieldMetas {
				m, err := decodeLoadFieldMeta(v)
				if err != nil {
					return LoadSegmentMeta{}, segerrors.WrapMalformedPlanError(err, "DecodeLoadSegmentMeta", "bad metas entry")
				}
				meta.Metas = append(meta.Metas, m)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return LoadSegmentMeta{}, segerrors.WrapMalformedPlanError(protowire.ParseError(n), "DecodeLoadSegmentMeta", "bad field")
			}
			b = b[n:]
		}
	}
	return meta, nil
}
