// Package entitystore implements the fixed-capacity entity slot table (C7):
// create/update/leave/delete dispatch, instance-baseline application, and
// the field-path-addressed property blob each live entity carries.
//
// Storage shape: rather than a byte blob addressed by FieldInfo offsets (the
// teacher's message.go/field_*.go shape, built for an unsafe.Pointer
// layout), each entity's properties live in a Blob tree that mirrors its
// class's serializer.Layout directly — a table's fields are a parallel
// []FieldSlot, an array field's elements are a growable []ArrayElem. A
// field-path step descends exactly one level of this tree, which is what
// §4.3 describes ("descend into child i_k of the table" / "descend into its
// element layout, growing the backing storage if needed") without requiring
// any manual offset arithmetic.
package entitystore

import (
	"github.com/ButterflyStats/butterfly/internal/serializer"
)

// ArrayElem is one element of a growable or fixed array field.
type ArrayElem struct {
	Scalar serializer.Value
	Table  *Blob
}

// FieldSlot is the storage for one field of a Blob, shaped by the field's
// decoder tag: exactly one of Scalar, Table, or Array is meaningful.
type FieldSlot struct {
	Scalar serializer.Value
	Table  *Blob // TagTable (always present) or TagTablePtr (present once Scalar.Present)
	Array  []ArrayElem
}

// Blob is the property storage for one table instance: a class's root
// layout, or an embedded sub-table reached through a TagTable/TagTablePtr
// field.
type Blob struct {
	Layout *serializer.Layout
	Fields []FieldSlot
}

// NewBlob allocates storage for layout, eagerly materializing embedded
// (non-pointer) sub-tables so a fresh entity's tree shape matches its class
// before any delta is applied.
func NewBlob(layout *serializer.Layout, g *serializer.Graph) *Blob {
	b := &Blob{Layout: layout, Fields: make([]FieldSlot, len(layout.Fields))}
	for i := range layout.Fields {
		f := &layout.Fields[i]
		if f.Tag == serializer.TagTable && f.HasElem {
			b.Fields[i].Table = NewBlob(g.Layout(f.Elem), g)
		}
	}
	return b
}

// growArray extends a field's Array slice so index idx is addressable,
// zero-filling (or instantiating fresh sub-Blobs, for an array of tables)
// any newly created elements. This is I-E2's dynamic array growth.
func growArray(slot *FieldSlot, f *serializer.FieldInfo, idx int, g *serializer.Graph) {
	for len(slot.Array) <= idx {
		var elem ArrayElem
		if f.HasElem {
			elem.Table = NewBlob(g.Layout(f.Elem), g)
		}
		slot.Array = append(slot.Array, elem)
	}
}
