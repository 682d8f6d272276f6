// Package wire projects the outer protobuf envelopes the replay format wraps
// its payloads in onto plain Go structs, using only the wire-format
// primitives of google.golang.org/protobuf/encoding/protowire.
//
// No .proto schema is compiled in: the message shapes here are fixed by the
// game's wire format, not discovered at runtime, so a field-number table
// walked by hand is the whole of what's needed — the same spirit as the
// teacher library's own direct use of protowire.DecodeTag/AppendTag in its
// field codec rather than full descriptor-based reflection.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field is one top-level field observed while walking a message: exactly one
// of the typed accessors below is meaningful, selected by Type.
type Field struct {
	Num     protowire.Number
	Type    protowire.Type
	Varint  uint64
	Fixed32 uint32
	Fixed64 uint64
	Bytes   []byte
}

// Err wraps a malformed wire payload.
type Err struct {
	Context string
	Offset  int
}

func (e *Err) Error() string {
	return fmt.Sprintf("wire: malformed %s at offset %d", e.Context, e.Offset)
}

// Walk iterates the top-level fields of data, invoking fn for each. Walking
// stops at the first error fn returns, or when the buffer is exhausted.
func Walk(context string, data []byte, fn func(Field) error) error {
	off := 0
	for off < len(data) {
		num, typ, n := protowire.ConsumeTag(data[off:])
		if n < 0 {
			return &Err{Context: context, Offset: off}
		}
		off += n

		var f Field
		f.Num, f.Type = num, typ

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data[off:])
			if n < 0 {
				return &Err{Context: context, Offset: off}
			}
			f.Varint = v
			off += n
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(data[off:])
			if n < 0 {
				return &Err{Context: context, Offset: off}
			}
			f.Fixed32 = v
			off += n
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data[off:])
			if n < 0 {
				return &Err{Context: context, Offset: off}
			}
			f.Fixed64 = v
			off += n
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data[off:])
			if n < 0 {
				return &Err{Context: context, Offset: off}
			}
			f.Bytes = v
			off += n
		case protowire.StartGroupType:
			n := protowire.ConsumeFieldValue(num, typ, data[off:])
			if n < 0 {
				return &Err{Context: context, Offset: off}
			}
			off += n
			continue
		default:
			return &Err{Context: context, Offset: off}
		}

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// consumePackedVarint decodes a packed-repeated varint field's bytes payload
// into a slice, used for the field-index lists on serializer descriptors.
func consumePackedVarint(b []byte) ([]uint64, error) {
	var out []uint64
	off := 0
	for off < len(b) {
		v, n := protowire.ConsumeVarint(b[off:])
		if n < 0 {
			return nil, &Err{Context: "packed varint", Offset: off}
		}
		out = append(out, v)
		off += n
	}
	return out, nil
}
