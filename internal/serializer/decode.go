package serializer

import (
	"math"
	"strconv"

	"github.com/ButterflyStats/butterfly/internal/bitread"
)

// ResourceResolver looks up a resource path by its manifest id, the
// collaborator the Resource decoder tag delegates to (C11).
type ResourceResolver interface {
	Lookup(id uint64) string
}

// Value is the decoded result of one property read: exactly the fields
// relevant to v.Tag are populated.
type Value struct {
	Tag     Tag
	Bool    bool
	I64     int64
	U64     uint64
	F32     [4]float32
	Str     string
	Present bool
}

// Decode reads one property value per f's decoder tag from r, per the C6
// contract table. res may be nil; a Resource field with a nil resolver
// decodes its raw id into Str as a decimal fallback. prior is the field's
// currently stored value; only the bits==0 QAngle path reads it, to leave
// components whose present bit is false untouched.
func Decode(f *FieldInfo, r *bitread.Reader, res ResourceResolver, prior Value) (Value, error) {
	v := Value{Tag: f.Tag}

	switch f.Tag {
	case TagBool:
		b, err := r.ReadBool()
		v.Bool = b
		return v, err

	case TagFixed64:
		lo, err := r.Read(32)
		if err != nil {
			return v, err
		}
		hi, err := r.Read(32)
		if err != nil {
			return v, err
		}
		v.U64 = uint64(lo) | uint64(hi)<<32
		return v, nil

	case TagVarUInt:
		u, err := r.ReadUvarint(10)
		v.U64 = u
		return v, err

	case TagVarInt:
		i, err := r.ReadSvarint(10)
		v.I64 = i
		return v, err

	case TagCoord:
		c, err := r.ReadCoord()
		v.F32[0] = c
		return v, err

	case TagFloat:
		fv, err := f.Quant.Decode(r)
		v.F32[0] = fv
		return v, err

	case TagFloatRaw:
		u, err := r.Read(32)
		if err != nil {
			return v, err
		}
		v.F32[0] = math.Float32frombits(u)
		return v, nil

	case TagSimTime:
		u, err := r.ReadUvarint(10)
		if err != nil {
			return v, err
		}
		v.F32[0] = float32(u) * (1.0 / 30.0)
		return v, nil

	case TagVector2:
		for i := 0; i < 2; i++ {
			fv, err := f.Quant.Decode(r)
			if err != nil {
				return v, err
			}
			v.F32[i] = fv
		}
		return v, nil

	case TagVector3:
		for i := 0; i < 3; i++ {
			fv, err := f.Quant.Decode(r)
			if err != nil {
				return v, err
			}
			v.F32[i] = fv
		}
		return v, nil

	case TagCoordVector:
		for i := 0; i < 3; i++ {
			c, err := r.ReadCoord()
			if err != nil {
				return v, err
			}
			v.F32[i] = c
		}
		return v, nil

	case TagNormalVector:
		n, err := r.Read3BitNormal()
		v.F32[0], v.F32[1], v.F32[2] = n[0], n[1], n[2]
		return v, err

	case TagQAnglePitchYaw:
		for i := 0; i < 2; i++ {
			fv, err := f.Quant.Decode(r)
			if err != nil {
				return v, err
			}
			v.F32[i] = fv
		}
		v.F32[2] = 0
		return v, nil

	case TagQAngle:
		return decodeQAngle(f, r, prior)

	case TagQuaternion:
		for i := 0; i < 4; i++ {
			fv, err := f.Quant.Decode(r)
			if err != nil {
				return v, err
			}
			v.F32[i] = fv
		}
		return v, nil

	case TagString:
		var buf [1024]byte
		n, err := r.ReadString(buf[:], len(buf))
		v.Str = string(buf[:n])
		return v, err

	case TagResource:
		id, err := r.ReadUvarint(10)
		if err != nil {
			return v, err
		}
		v.U64 = id
		if res != nil {
			v.Str = res.Lookup(id)
		} else {
			v.Str = strconv.FormatUint(id, 10)
		}
		return v, nil

	case TagTable:
		_, err := r.ReadUvarint(10)
		return v, err

	case TagArray:
		_, err := r.ReadUvarint(10)
		return v, err

	case TagTablePtr:
		b, err := r.ReadBool()
		v.Present = b
		return v, err

	default:
		return v, ErrUnknownType
	}
}

// decodeQAngle implements the §4.6 QAngle row: when bits != 0, three
// quantized floats; otherwise three independent present+coord components
// updating in place (only the present components are overwritten, so the
// caller must pass in the entity's prior value via prior).
func decodeQAngle(f *FieldInfo, r *bitread.Reader, prior Value) (Value, error) {
	if f.Quant != nil {
		for i := 0; i < 3; i++ {
			fv, err := f.Quant.Decode(r)
			if err != nil {
				return prior, err
			}
			prior.F32[i] = fv
		}
		prior.Tag = TagQAngle
		return prior, nil
	}

	for i := 0; i < 3; i++ {
		present, err := r.ReadBool()
		if err != nil {
			return prior, err
		}
		if present {
			c, err := r.ReadCoord()
			if err != nil {
				return prior, err
			}
			prior.F32[i] = c
		}
	}
	prior.Tag = TagQAngle
	return prior, nil
}
