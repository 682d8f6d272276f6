package serializer

import (
	"github.com/ButterflyStats/butterfly/internal/arena"
	"github.com/ButterflyStats/butterfly/internal/dbg"
	"github.com/ButterflyStats/butterfly/internal/quantized"
	"github.com/ButterflyStats/butterfly/internal/wire"
)

const defaultDynamicArrayCap = 4

// Build runs the four phases of spec §4.5 over a decoded schema, producing
// a Graph with one root Layout per networked class.
func Build(schema *wire.Schema) (*Graph, error) {
	sym := func(i int32) string {
		if i < 0 || int(i) >= len(schema.Symbols) {
			return ""
		}
		return schema.Symbols[i]
	}

	g := &Graph{
		layouts: arena.New[Layout](len(schema.Serializers)),
		byKey:   make(map[serializerKey]arena.Ref, len(schema.Serializers)),
		roots:   make(map[string]arena.Ref, len(schema.Serializers)),
	}

	// Phase 3 (graph linking), forward-declaration half: every serializer
	// gets a Ref before any field is resolved, so a field referencing a
	// serializer later in the table (or itself, recursively) still finds a
	// valid target.
	for _, sd := range schema.Serializers {
		key := serializerKey{name: sym(sd.NameSym), version: sd.Version}
		if _, ok := g.byKey[key]; !ok {
			g.byKey[key] = g.layouts.Alloc()
		}
	}

	for _, sd := range schema.Serializers {
		key := serializerKey{name: sym(sd.NameSym), version: sd.Version}
		ref := g.byKey[key]

		layout, err := buildLayout(schema, sym, sd, g)
		if err != nil {
			return nil, err
		}
		*g.layouts.Get(ref) = layout
		g.roots[key.name] = ref
		dbg.Log("build", "serializer %s v%d: %d fields, %d slots", key.name, key.version, len(layout.Fields), layout.Size)
	}

	// Phase 4 again, now that every layout exists: a table field built before
	// its sub-serializer's row saw a Size of 0, so sizes are recomputed until
	// they settle (each pass settles one more level of nesting).
	for pass, changed := 0, true; changed && pass <= len(g.byKey); pass++ {
		changed = false
		for _, ref := range g.byKey {
			l := g.layouts.Get(ref)
			n := 0
			for i := range l.Fields {
				n += slotCount(&l.Fields[i], g)
			}
			if n != l.Size {
				l.Size, changed = n, true
			}
		}
	}

	return g, nil
}

func buildLayout(schema *wire.Schema, sym func(int32) string, sd wire.SerializerDesc, g *Graph) (Layout, error) {
	layout := Layout{Name: sym(sd.NameSym), Version: sd.Version}
	layout.Fields = make([]FieldInfo, 0, len(sd.FieldIndices))

	seen := make(map[string]bool, len(sd.FieldIndices))
	for _, idx := range sd.FieldIndices {
		if idx < 0 || int(idx) >= len(schema.Fields) {
			return Layout{}, ErrUnknownType
		}
		fd := schema.Fields[idx]
		name := sym(fd.VarNameSym)
		if seen[name] {
			return Layout{}, ErrHashCollision
		}
		seen[name] = true

		field, err := buildField(name, sym(fd.VarTypeSym), sym(fd.VarEncoderSym), fd, sym, g)
		if err != nil {
			return Layout{}, err
		}
		layout.Fields = append(layout.Fields, field)
	}

	// Phase 4 (size assignment), translated to leaf-slot counting: see the
	// package doc for why this replaces byte offset/alignment math.
	layout.Size = 0
	for i := range layout.Fields {
		layout.Size += slotCount(&layout.Fields[i], g)
	}

	return layout, nil
}

func slotCount(f *FieldInfo, g *Graph) int {
	switch f.Tag {
	case TagTable:
		return g.Layout(f.Elem).Size
	case TagTablePtr:
		return 1 // presence bool; the sub-table's own slots are allocated lazily
	case TagArray:
		n := f.ArrayLen
		if n == 0 {
			n = defaultDynamicArrayCap
		}
		if f.HasElem {
			return n * g.Layout(f.Elem).Size
		}
		return n
	default:
		return 1
	}
}

func buildField(name, typeStr, encoder string, fd wire.FieldDesc, sym func(int32) string, g *Graph) (FieldInfo, error) {
	shape := parseTypeString(typeStr)

	base, err := resolveBase(shape, fd, sym, g)
	if err != nil {
		return FieldInfo{}, err
	}

	// Phase 2: encoder overrides and name-based forces.
	switch encoder {
	case "coord":
		switch base.Tag {
		case TagFloat:
			base.Tag = TagCoord
		case TagVector3:
			base.Tag = TagCoordVector
		}
	case "fixed64":
		base.Tag = TagFixed64
		base.Value = ValUint64
	case "normal":
		base.Tag = TagNormalVector
		base.Value = ValFloat32x3
	case "qangle_pitch_yaw":
		base.Tag = TagQAnglePitchYaw
		base.Value = ValFloat32x3
	}
	if name == "m_flSimulationTime" || name == "m_flAnimTime" {
		base.Tag = TagSimTime
		base.Value = ValFloat32
	}

	switch base.Tag {
	case TagFloat, TagVector2, TagVector3, TagQuaternion, TagQAnglePitchYaw:
		if fd.BitCount == 0 && fd.EncodeFlags == 0 {
			dbg.Log("build", "field %s: quantized float with bits=0 and flags=0, decoding raw bit pattern", name)
		}
		base.Quant = quantized.Build(quantized.Params{
			Bits:  int(fd.BitCount),
			Flags: quantizedFlags(fd.EncodeFlags),
			Min:   fd.LowValue,
			Max:   fd.HighValue,
		})
	case TagQAngle:
		// §4.6: bits==0 selects the presence+coord fallback entirely, not
		// the generic Float raw-bit-pattern passthrough, so Quant is left
		// nil rather than built with a forced-raw decoder.
		if fd.BitCount != 0 {
			base.Quant = quantized.Build(quantized.Params{
				Bits:  int(fd.BitCount),
				Flags: quantizedFlags(fd.EncodeFlags),
				Min:   fd.LowValue,
				Max:   fd.HighValue,
			})
		}
	}

	base.Name = name

	// Pointer suffix: collapse to a presence bool over the resolved
	// sub-table, per spec §4.5 phase 1.
	if shape.pointer {
		base = FieldInfo{Name: name, Tag: TagTablePtr, Value: ValPresence, HasElem: base.HasElem, Elem: base.Elem}
	}

	// Array wrapping (fixed or dynamic) applies after pointer collapse and
	// encoder overrides, wrapping whatever scalar/table shape resulted.
	if shape.arrayLen > 0 || shape.dynamicArray {
		elemField := base
		wrapped := FieldInfo{
			Name:     name,
			Tag:      TagArray,
			Value:    ValPresence,
			ArrayLen: shape.arrayLen,
		}
		if elemField.Tag == TagTable || elemField.Tag == TagTablePtr {
			wrapped.HasElem = elemField.HasElem
			wrapped.Elem = elemField.Elem
		} else {
			wrapped.ElemField = &elemField
		}
		return wrapped, nil
	}

	return base, nil
}

func quantizedFlags(encodeFlags int32) quantized.Flag {
	var f quantized.Flag
	if encodeFlags&1 != 0 {
		f |= quantized.FlagRoundDown
	}
	if encodeFlags&2 != 0 {
		f |= quantized.FlagRoundUp
	}
	if encodeFlags&4 != 0 {
		f |= quantized.FlagZeroExactly
	}
	if encodeFlags&8 != 0 {
		f |= quantized.FlagIntegersExactly
	}
	return f
}

// resolveBase handles the non-wrapper part of phase 1: char, CHandle/
// CStrongHandle, the closed known-type table, and the final
// sub-serializer/UVarint fallback.
func resolveBase(shape typeShape, fd wire.FieldDesc, sym func(int32) string, g *Graph) (FieldInfo, error) {
	switch {
	case shape.base == "char":
		return FieldInfo{Tag: TagString, Value: ValString}, nil

	case shape.handle:
		return FieldInfo{Tag: TagVarUInt, Value: ValUint32}, nil

	case shape.strongHandle:
		return FieldInfo{Tag: TagResource, Value: ValString}, nil
	}

	if kt, ok := knownTypes[shape.base]; ok {
		return FieldInfo{Tag: kt.tag, Value: kt.val}, nil
	}

	if fd.HasSerializer {
		key := serializerKey{name: sym(fd.FieldSerializerNameSym), version: fd.FieldSerializerVersion}
		ref, ok := g.byKey[key]
		if !ok {
			return FieldInfo{}, ErrMissingSerializer
		}
		return FieldInfo{Tag: TagTable, Value: ValPresence, HasElem: true, Elem: ref}, nil
	}

	return FieldInfo{Tag: TagVarUInt, Value: ValUint32}, nil
}
