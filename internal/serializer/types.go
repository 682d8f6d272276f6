// Package serializer builds the per-class flattened serializer graph (C5)
// from a wire.Schema and decodes individual property values against it
// (C6).
//
// Storage shape: the teacher's Type/field graph addresses fields by byte
// offset into an unsafe.Pointer-backed blob (type.go's typeHeader, field.go's
// getter/setter pairs). That shape exists there to let a single compiled
// Type describe arbitrary runtime messages with zero per-message Go types.
// Entities here are always one of a small, closed set of networked classes
// with growable array fields (§3 invariant I-E2), so the safe, idiomatic
// translation is a recursive value tree: a Blob mirrors the Layout tree
// directly, with Go slices standing in for the teacher's manually placed
// array headers. A field's position within its parent's Fields slice IS the
// field-path index the decoder addresses it by (spec §4.3's "descend into
// child i_k of the table" falls out of plain slice indexing), so there is no
// separate offset table the way a byte-blob layout would need — Layout.Size
// is kept as a bottom-up leaf-slot count instead. It is reported in the
// build trace only; Blob allocation does not read it (each Blob level is
// sized by its Layout's Fields).
package serializer

import (
	"errors"

	"github.com/ButterflyStats/butterfly/internal/arena"
	"github.com/ButterflyStats/butterfly/internal/quantized"
)

// Tag is a C6 decoder tag.
type Tag uint8

const (
	TagBool Tag = iota
	TagFixed64
	TagVarUInt
	TagVarInt
	TagCoord
	TagFloat
	TagFloatRaw
	TagSimTime
	TagVector2
	TagVector3
	TagCoordVector
	TagNormalVector
	TagQAnglePitchYaw
	TagQAngle
	TagQuaternion
	TagString
	TagResource
	TagTable
	TagArray
	TagTablePtr
)

func (t Tag) String() string {
	switch t {
	case TagBool:
		return "Bool"
	case TagFixed64:
		return "Fixed64"
	case TagVarUInt:
		return "VarUInt"
	case TagVarInt:
		return "VarInt"
	case TagCoord:
		return "Coord"
	case TagFloat:
		return "Float"
	case TagFloatRaw:
		return "FloatRaw"
	case TagSimTime:
		return "SimTime"
	case TagVector2:
		return "Vector2"
	case TagVector3:
		return "Vector3"
	case TagCoordVector:
		return "CoordVector"
	case TagNormalVector:
		return "NormalVector"
	case TagQAnglePitchYaw:
		return "QAnglePitchYaw"
	case TagQAngle:
		return "QAngle"
	case TagQuaternion:
		return "Quaternion"
	case TagString:
		return "String"
	case TagResource:
		return "Resource"
	case TagTable:
		return "Table"
	case TagArray:
		return "Array"
	case TagTablePtr:
		return "TablePtr"
	default:
		return "Unknown"
	}
}

// ValueType selects the Go-level width/shape a decoded Value carries.
type ValueType uint8

const (
	ValInt32 ValueType = iota
	ValUint32
	ValInt64
	ValUint64
	ValBool
	ValFloat32
	ValFloat32x2
	ValFloat32x3
	ValFloat32x4
	ValString
	ValPresence
)

// FieldInfo is one leaf or container field of a Layout.
type FieldInfo struct {
	Name  string
	Tag   Tag
	Value ValueType

	Quant *quantized.Decoder // set for Float, Vector2, Vector3, Quaternion, QAnglePitchYaw, and QAngle with bits != 0; nil otherwise

	ArrayLen int // fixed-size array length; 0 means dynamic (CUtlVector-family)

	HasElem bool      // true when Elem names a sub-Layout (TagTable/TagTablePtr/array-of-table)
	Elem    arena.Ref // sub-Layout for TagTable/TagTablePtr/array element-is-table

	// ElemField describes the element shape for TagArray fields whose
	// elements are themselves scalar (e.g. an array of floats): Tag/Value
	// /Quant of the per-element decoder. Nil when Elem is valid (array of
	// tables) or the field is not an array.
	ElemField *FieldInfo
}

// Layout is the flattened per-class (or per-embedded-struct) field table
// built from one ProtoFlattenedSerializerT.
type Layout struct {
	Name    string
	Version int32
	Fields  []FieldInfo

	// Size is the bottom-up leaf-slot count described in the package doc:
	// 1 per scalar or table-pointer field, ArrayLen (or a small default for
	// dynamic arrays) per array field, multiplied by the element table's
	// Size for arrays of tables, and the child's Size for embedded tables.
	Size int
}

// FieldByName returns the index of the named field, or -1.
func (l *Layout) FieldByName(name string) int {
	for i := range l.Fields {
		if l.Fields[i].Name == name {
			return i
		}
	}
	return -1
}

// Graph owns every Layout built from one schema, keyed by (name, version)
// and additionally by network class name for root lookup.
type Graph struct {
	layouts *arena.Arena[Layout]
	byKey   map[serializerKey]arena.Ref
	roots   map[string]arena.Ref
}

type serializerKey struct {
	name    string
	version int32
}

// Root returns the root layout for a networked class name.
func (g *Graph) Root(className string) (arena.Ref, bool) {
	ref, ok := g.roots[className]
	return ref, ok
}

// Layout dereferences a Ref into its Layout.
func (g *Graph) Layout(ref arena.Ref) *Layout {
	return g.layouts.Get(ref)
}

var (
	// ErrUnknownType is returned when a field's type string cannot be
	// resolved against the closed known-type table or any suffix rule.
	ErrUnknownType = errors.New("serializer: unknown type")
	// ErrMissingSerializer is returned when a field references a
	// sub-serializer by (name, version) that was never declared.
	ErrMissingSerializer = errors.New("serializer: missing sub-serializer")
	// ErrHashCollision is returned when two fields of one table share a
	// name.
	ErrHashCollision = errors.New("serializer: duplicate field name in table")
)
