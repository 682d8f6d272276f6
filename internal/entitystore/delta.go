package entitystore

import (
	"errors"

	"github.com/ButterflyStats/butterfly/internal/bitread"
	"github.com/ButterflyStats/butterfly/internal/fieldpath"
	"github.com/ButterflyStats/butterfly/internal/serializer"
)

// ErrCorruptPath is returned when a field path addresses a field index or
// array element outside what the current class layout can represent.
var ErrCorruptPath = errors.New("entitystore: field path does not resolve against layout")

// target is the leaf a resolved field path names: the FieldInfo shape to
// decode with, and where its Value should land. set is a closure rather
// than a *FieldSlot because an array element's Scalar lives inside a slice
// element, not behind a stable pointer the way a table field's FieldSlot
// does.
type target struct {
	field *serializer.FieldInfo
	table **Blob // non-nil only for a TagTablePtr leaf, so ApplyDelta can clear it on present=false
	get   func() serializer.Value
	set   func(serializer.Value)
}

// resolve walks path against b (and b's Layout), descending one tree level
// per index per §4.3: an index addresses a field of the current table, or
// an element of the current array, growing the array's backing storage per
// I-E2 when the index is new.
func resolve(path *fieldpath.Path, b *Blob, g *serializer.Graph) (target, error) {
	indices := path.Indices()
	if len(indices) == 0 {
		return target{}, ErrCorruptPath
	}

	curBlob := b
	var curArrayField *serializer.FieldInfo
	var curArraySlot *FieldSlot

	for step, raw := range indices {
		i := int(raw)
		last := step == len(indices)-1

		if curArraySlot != nil {
			if i < 0 {
				return target{}, ErrCorruptPath
			}
			growArray(curArraySlot, curArrayField, i, g)
			elem := &curArraySlot.Array[i]

			if curArrayField.HasElem {
				if elem.Table == nil {
					elem.Table = NewBlob(g.Layout(curArrayField.Elem), g)
				}
				curBlob = elem.Table
				curArrayField, curArraySlot = nil, nil
				continue
			}

			if !last {
				return target{}, ErrCorruptPath
			}
			return target{
				field: curArrayField.ElemField,
				get:   func() serializer.Value { return elem.Scalar },
				set:   func(v serializer.Value) { elem.Scalar = v },
			}, nil
		}

		if curBlob == nil || i < 0 || i >= len(curBlob.Fields) {
			return target{}, ErrCorruptPath
		}
		f := &curBlob.Layout.Fields[i]
		slot := &curBlob.Fields[i]

		switch f.Tag {
		case serializer.TagTable:
			if last {
				return target{field: f, get: func() serializer.Value { return slot.Scalar }, set: func(v serializer.Value) { slot.Scalar = v }}, nil
			}
			curBlob = slot.Table

		case serializer.TagTablePtr:
			if last {
				return target{field: f, table: &slot.Table, get: func() serializer.Value { return slot.Scalar }, set: func(v serializer.Value) { slot.Scalar = v }}, nil
			}
			if slot.Table == nil {
				slot.Table = NewBlob(g.Layout(f.Elem), g)
			}
			curBlob = slot.Table

		case serializer.TagArray:
			if last {
				// A bare array-field path step (no element index yet)
				// addresses the array's own presence/length; treat it as
				// the array's FieldInfo with no scalar payload.
				return target{field: f, get: func() serializer.Value { return slot.Scalar }, set: func(v serializer.Value) { slot.Scalar = v }}, nil
			}
			curArrayField, curArraySlot = f, slot
			curBlob = nil

		default:
			if !last {
				return target{}, ErrCorruptPath
			}
			return target{field: f, get: func() serializer.Value { return slot.Scalar }, set: func(v serializer.Value) { slot.Scalar = v }}, nil
		}
	}

	return target{}, ErrCorruptPath
}

// ApplyDelta reads field-path operations from r until FieldPathEncodeFinish,
// decoding and storing one property value per resolved path per §4.7's
// delta-application rule.
func ApplyDelta(r *bitread.Reader, b *Blob, g *serializer.Graph, res serializer.ResourceResolver) error {
	var path fieldpath.Path
	path.Reset()

	for {
		err := fieldpath.Next(r, &path)
		if fieldpath.IsFinish(err) {
			return nil
		}
		if err != nil {
			return err
		}

		t, err := resolve(&path, b, g)
		if err != nil {
			return err
		}
		if t.field == nil {
			continue
		}

		var prior serializer.Value
		if t.get != nil {
			prior = t.get()
		}
		v, err := serializer.Decode(t.field, r, res, prior)
		if err != nil {
			return err
		}
		t.set(v)
		if t.table != nil && !v.Present {
			*t.table = nil
		}
	}
}
