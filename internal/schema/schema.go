// Package schema defines a segment's field layout: the FieldID/FieldOffset
// lookup every other package uses to locate a column, and the per-row byte
// footprint (RowBytes/TotalSizeof) the row-major blob formats of insert,
// load_field_data, and bulk_subscript are all struck from.
package schema

import (
	"github.com/ishine/segcore/internal/core"
	segerrors "github.com/ishine/segcore/internal/errors"
)

// FieldMeta describes one field: its stable id, its wire name, its element
// type, and (for vector fields) its dimension and metric.
type FieldMeta struct {
	ID         core.FieldID
	Name       string
	DataType   core.DataType
	Dim        int             // 0 for scalar fields
	Metric     core.MetricType // MetricUnknown for scalar fields
	IsPrimary  bool
	Nullable   bool
}

// RowBytes returns this field's fixed per-row byte footprint: Dim *
// element size for a vector field, the scalar element size otherwise.
func (f FieldMeta) RowBytes() int {
	if f.DataType.IsVector() {
		if f.DataType == core.DataTypeBinaryVector {
			return (f.Dim + 7) / 8
		}
		return f.Dim * 4 // float32 lanes only; segcore carries no float64 vectors
	}
	return f.DataType.Sizeof()
}

// Schema is a segment's immutable field layout, built once at segment
// creation and shared by every SegmentGrowing/SegmentSealed column.
type Schema struct {
	fields      []FieldMeta
	byID        map[core.FieldID]core.FieldOffset
	byName      map[string]core.FieldOffset
	primaryIdx  core.FieldOffset
	vectorIdx   core.FieldOffset
	totalSizeof int
}

// New builds a Schema from fields in wire order. FieldOffset is assigned
// by position; exactly one field must be IsPrimary and exactly one must be
// a vector field, or New returns an *errors.ErrContractViolation.
func New(fields []FieldMeta) (*Schema, error) {
	s := &Schema{
		fields:     make([]FieldMeta, len(fields)),
		byID:       make(map[core.FieldID]core.FieldOffset, len(fields)),
		byName:     make(map[string]core.FieldOffset, len(fields)),
		primaryIdx: core.InvalidFieldOffset,
		vectorIdx:  core.InvalidFieldOffset,
	}
	copy(s.fields, fields)

	for i, f := range s.fields {
		off := core.FieldOffset(i)
		if _, dup := s.byID[f.ID]; dup {
			return nil, segerrors.NewContractViolationError("schema.New", "duplicate field id")
		}
		s.byID[f.ID] = off
		s.byName[f.Name] = off
		if f.IsPrimary {
			if s.primaryIdx != core.InvalidFieldOffset {
				return nil, segerrors.NewContractViolationError("schema.New", "more than one primary field")
			}
			s.primaryIdx = off
		}
		if f.DataType.IsVector() {
			if s.vectorIdx != core.InvalidFieldOffset {
				return nil, segerrors.NewContractViolationError("schema.New", "more than one vector field")
			}
			s.vectorIdx = off
		}
		s.totalSizeof += f.RowBytes()
	}

	if s.primaryIdx == core.InvalidFieldOffset {
		return nil, segerrors.NewContractViolationError("schema.New", "schema has no primary field")
	}
	if s.vectorIdx == core.InvalidFieldOffset {
		return nil, segerrors.NewContractViolationError("schema.New", "schema has no vector field")
	}
	return s, nil
}

// Fields returns the field metadata in wire order. The slice must not be
// mutated by callers.
func (s *Schema) Fields() []FieldMeta { return s.fields }

// NumFields returns the field count, excluding the reserved row-id column.
func (s *Schema) NumFields() int { return len(s.fields) }

// OffsetByID resolves a FieldID to its FieldOffset, or InvalidFieldOffset.
func (s *Schema) OffsetByID(id core.FieldID) core.FieldOffset {
	if off, ok := s.byID[id]; ok {
		return off
	}
	return core.InvalidFieldOffset
}

// OffsetByName resolves a field name to its FieldOffset, or InvalidFieldOffset.
func (s *Schema) OffsetByName(name string) core.FieldOffset {
	if off, ok := s.byName[name]; ok {
		return off
	}
	return core.InvalidFieldOffset
}

// Field returns the FieldMeta at off. Callers must have validated off via
// OffsetByID/OffsetByName first; out-of-range off is a contract violation.
func (s *Schema) Field(off core.FieldOffset) FieldMeta {
	core.Assert(off >= 0 && int(off) < len(s.fields), "field offset %d out of range [0,%d)", off, len(s.fields))
	return s.fields[off]
}

// PrimaryField returns the schema's designated primary-key field.
func (s *Schema) PrimaryField() FieldMeta { return s.fields[s.primaryIdx] }

// VectorField returns the schema's designated vector field.
func (s *Schema) VectorField() FieldMeta { return s.fields[s.vectorIdx] }

// TotalSizeof returns the fixed per-row byte footprint across every field,
// the total_sizeof spec.md's InsertRecord/DeletedRecord memory accounting
// needs.
func (s *Schema) TotalSizeof() int { return s.totalSizeof }
