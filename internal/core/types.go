// Package core defines the scalar types shared by every segcore package:
// timestamps, row offsets, primary keys, and the schema-level type/metric
// enums. Nothing here owns storage — it is the vocabulary the rest of the
// module is written in.
package core

import "math"

// Timestamp is segcore's monotone-per-segment (not globally monotone) row
// version. Two rows may share a Timestamp; ordering within one is by
// insertion order.
type Timestamp uint64

// RowOffset is a row's position within a segment's columns — a
// ConcurrentVector index for a growing segment, a flat array index for a
// sealed one. -1 is the sentinel for "row absent after reduce".
type RowOffset int64

// InvalidRowOffset marks a reduced slot that has no backing row (all
// candidates were filtered, or fewer than topK survived).
const InvalidRowOffset RowOffset = -1

// PrimaryKey is the external, non-unique row identifier (spec's uid/idx_t).
type PrimaryKey int64

// FieldID is a field's stable external identifier, distinct from its
// FieldOffset (its position in schema order).
type FieldID int64

// RowIDFieldID is the reserved FieldID for the system row-id column.
const RowIDFieldID FieldID = 0

// FieldOffset is a field's position in schema order; O(1) array index.
type FieldOffset int

// InvalidFieldOffset marks "field not found" from a Schema lookup.
const InvalidFieldOffset FieldOffset = -1

// DataType enumerates the fixed-size element types segcore columns may hold.
type DataType int32

const (
	DataTypeUnknown DataType = iota
	DataTypeBool
	DataTypeInt8
	DataTypeInt16
	DataTypeInt32
	DataTypeInt64
	DataTypeFloat
	DataTypeDouble
	DataTypeFloatVector
	DataTypeBinaryVector
)

func (t DataType) String() string {
	switch t {
	case DataTypeBool:
		return "bool"
	case DataTypeInt8:
		return "int8"
	case DataTypeInt16:
		return "int16"
	case DataTypeInt32:
		return "int32"
	case DataTypeInt64:
		return "int64"
	case DataTypeFloat:
		return "float"
	case DataTypeDouble:
		return "double"
	case DataTypeFloatVector:
		return "vector<float>"
	case DataTypeBinaryVector:
		return "vector<binary>"
	default:
		return "unknown"
	}
}

// IsVector reports whether the type is a vector type (float or binary).
func (t DataType) IsVector() bool {
	return t == DataTypeFloatVector || t == DataTypeBinaryVector
}

// Sizeof returns the fixed element size in bytes for scalar types. Vector
// types have no fixed per-field sizeof independent of dim; callers must use
// FieldMeta.RowBytes() for those.
func (t DataType) Sizeof() int {
	switch t {
	case DataTypeBool, DataTypeInt8:
		return 1
	case DataTypeInt16:
		return 2
	case DataTypeInt32, DataTypeFloat:
		return 4
	case DataTypeInt64, DataTypeDouble:
		return 8
	default:
		return 0
	}
}

// MetricType enumerates the distance/similarity functions the executor and
// attached vector indexes understand. Comparison direction (min/max-is-best)
// is derived per metric; see MetricType.MinIsBest.
type MetricType int32

const (
	MetricUnknown MetricType = iota
	MetricL2
	MetricIP
	MetricHamming
	MetricJaccard
	MetricTanimoto
)

func (m MetricType) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricIP:
		return "IP"
	case MetricHamming:
		return "HAMMING"
	case MetricJaccard:
		return "JACCARD"
	case MetricTanimoto:
		return "TANIMOTO"
	default:
		return "UNKNOWN"
	}
}

// MinIsBest reports whether smaller distances rank better for this metric.
// Only IP ranks larger-is-better; every binary/L2 metric here minimizes.
func (m MetricType) MinIsBest() bool {
	return m != MetricIP
}

// WorstDistance returns the sentinel distance for a filtered-out slot:
// +Inf for min-metrics, -Inf for max-metrics, per spec boundary behavior.
func (m MetricType) WorstDistance() float32 {
	if m.MinIsBest() {
		return float32(math.Inf(1))
	}
	return float32(math.Inf(-1))
}

// Better reports whether candidate distance a should rank ahead of b under
// this metric's comparison direction.
func (m MetricType) Better(a, b float32) bool {
	if m.MinIsBest() {
		return a < b
	}
	return a > b
}
