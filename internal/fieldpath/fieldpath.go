// Package fieldpath implements the prefix-coded field-path language used to
// address individual leaves of a class's serializer graph from an entity
// delta packet (spec §4.3, C3).
//
// The op table below is a closed set of prefix codes, like the teacher's
// field-parser control-flow graph (compiler.go's "next parser" chaining)
// this is best expressed as a flat table walked by a small state machine
// rather than a generated parser, since the code lengths are irregular.
//
// The codes themselves are NOT freely assignable: they are the output of a
// weighted Huffman tree built once, offline, from real observed operation
// frequencies, and then hardcoded into every decoder that speaks this
// protocol. Every (name, code, bits) triple below is transcribed from that
// hardcoded table rather than derived, matching fieldop_lookup's switch.
package fieldpath

import "errors"

// ErrInvalidFieldPath is returned when no operation matches within the
// maximum code length, or the path stack over/underflows.
var ErrInvalidFieldPath = errors.New("fieldpath: invalid field path")

const (
	maxDepth    = 8
	maxCodeBits = 17

	// maxPopNResize bounds the resulting stack depth after a PopN* resize
	// op, matching the reference implementation's ASSERT_TRUE(nsize < 7 &&
	// nsize > 0, ...) guard in fp_PopNPlusOne/fp_PopNPlusN/
	// fp_PopNAndNonTopographical.
	maxPopNResize = 6
)

// Path is the bounded stack of signed indices addressing one leaf under the
// current class's serializer root. The initial state is [-1]: the sentinel
// makes the first PlusOne correctly select child 0.
type Path struct {
	idx [maxDepth]int32
	len int
}

// Reset reinitializes p to its sentinel state [-1].
func (p *Path) Reset() {
	p.idx[0] = -1
	p.len = 1
}

// Len returns the current stack depth.
func (p *Path) Len() int { return p.len }

// At returns the index at depth i.
func (p *Path) At(i int) int32 { return p.idx[i] }

// Indices returns the live portion of the stack.
func (p *Path) Indices() []int32 { return p.idx[:p.len] }

func (p *Path) top() *int32 { return &p.idx[p.len-1] }

func (p *Path) push(v int32) error {
	if p.len >= maxDepth {
		return ErrInvalidFieldPath
	}
	p.idx[p.len] = v
	p.len++
	return nil
}

func (p *Path) pop(n int) error {
	if n < 0 || n > p.len-1 {
		return ErrInvalidFieldPath
	}
	p.len -= n
	return nil
}

func (p *Path) resizeToOne() {
	p.len = 1
}

// bitReader is the minimal surface the op table needs.
type bitReader interface {
	Read(n uint) (uint32, error)
	ReadBool() (bool, error)
	ReadUBitVar() (uint32, error)
	ReadFPBitVar() (int32, error)
	ReadSvarint(maxBytes int) (int64, error)
}

// errFinish is returned internally by the FieldPathEncodeFinish op and
// surfaced to callers via IsFinish.
var errFinish = errors.New("fieldpath: finish")

// op is one entry of the prefix code table: a name, its hardcoded (code,
// bits) pair, and the mutation it performs on the path.
type op struct {
	name string
	bits uint
	code uint32
	run  func(r bitReader, p *Path) error
}

// table is the complete, fixed set of 40 field-path operations. Every
// (name, code, bits) triple is transcribed verbatim from the hardcoded
// Huffman table every decoder of this protocol must share bit-for-bit;
// these are NOT locally derivable from operation names or table order.
// The mutation each op performs on the path is transcribed from the
// reference fieldpath operation definitions (fp_* in fieldpath_operations).
//
// Every operation spec §4.3 names explicitly (PlusOne, PlusTwo, PlusThree,
// PlusFour, PlusN, PushOneLeftDeltaNRightNonZeroPack6Bits,
// PushOneLeftDeltaNRightNonZeroPack8Bits, PopAllButOnePlusOne,
// PopOnePlusOne, PushOneLeftDeltaZeroRightZero, FieldPathEncodeFinish) is
// present with the exact code spec §4.3 lists.
var table = []op{
	{name: "PlusOne", code: 0, bits: 1, run: func(r bitReader, p *Path) error {
		*p.top()++
		return nil
	}},
	{name: "FieldPathEncodeFinish", code: 2, bits: 2, run: func(r bitReader, p *Path) error {
		return errFinish
	}},
	{name: "PlusTwo", code: 14, bits: 4, run: func(r bitReader, p *Path) error {
		*p.top() += 2
		return nil
	}},
	{name: "PushOneLeftDeltaNRightNonZeroPack6Bits", code: 15, bits: 4, run: func(r bitReader, p *Path) error {
		a, err := r.Read(3)
		if err != nil {
			return err
		}
		*p.top() += int32(a) + 2
		b, err := r.Read(3)
		if err != nil {
			return err
		}
		return p.push(int32(b) + 1)
	}},
	{name: "PushOneLeftDeltaOneRightNonZero", code: 24, bits: 5, run: func(r bitReader, p *Path) error {
		*p.top()++
		v, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		return p.push(v)
	}},
	{name: "PlusN", code: 26, bits: 5, run: func(r bitReader, p *Path) error {
		v, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		*p.top() += v + 5
		return nil
	}},
	{name: "PlusThree", code: 50, bits: 6, run: func(r bitReader, p *Path) error {
		*p.top() += 3
		return nil
	}},
	{name: "PopAllButOnePlusOne", code: 51, bits: 6, run: func(r bitReader, p *Path) error {
		p.resizeToOne()
		*p.top()++
		return nil
	}},
	{name: "PushOneLeftDeltaNRightNonZero", code: 217, bits: 8, run: func(r bitReader, p *Path) error {
		a, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		*p.top() += a + 2
		b, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		return p.push(b + 1)
	}},
	{name: "PushOneLeftDeltaOneRightZero", code: 218, bits: 8, run: func(r bitReader, p *Path) error {
		*p.top()++
		return p.push(0)
	}},
	{name: "PushOneLeftDeltaNRightZero", code: 220, bits: 8, run: func(r bitReader, p *Path) error {
		v, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		*p.top() += v
		return p.push(0)
	}},
	{name: "PopAllButOnePlusNPack6Bits", code: 222, bits: 8, run: func(r bitReader, p *Path) error {
		p.resizeToOne()
		v, err := r.Read(6)
		if err != nil {
			return err
		}
		*p.top() += int32(v) + 1
		return nil
	}},
	{name: "PlusFour", code: 223, bits: 8, run: func(r bitReader, p *Path) error {
		*p.top() += 4
		return nil
	}},
	{name: "PopAllButOnePlusN", code: 432, bits: 9, run: func(r bitReader, p *Path) error {
		p.resizeToOne()
		v, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		*p.top() += v + 1
		return nil
	}},
	{name: "PushOneLeftDeltaNRightNonZeroPack8Bits", code: 438, bits: 9, run: func(r bitReader, p *Path) error {
		a, err := r.Read(4)
		if err != nil {
			return err
		}
		*p.top() += int32(a) + 2
		b, err := r.Read(4)
		if err != nil {
			return err
		}
		return p.push(int32(b) + 1)
	}},
	{name: "NonTopoPenultimatePlusOne", code: 439, bits: 9, run: func(r bitReader, p *Path) error {
		if p.len < 2 {
			return ErrInvalidFieldPath
		}
		p.idx[p.len-2]++
		return nil
	}},
	{name: "PopAllButOnePlusNPack3Bits", code: 442, bits: 9, run: func(r bitReader, p *Path) error {
		p.resizeToOne()
		v, err := r.Read(3)
		if err != nil {
			return err
		}
		*p.top() += int32(v) + 1
		return nil
	}},
	{name: "PushNAndNonTopological", code: 443, bits: 9, run: func(r bitReader, p *Path) error {
		for i := 0; i < p.len; i++ {
			changed, err := r.ReadBool()
			if err != nil {
				return err
			}
			if changed {
				v, err := r.ReadSvarint(5)
				if err != nil {
					return err
				}
				p.idx[i] += int32(v) + 1
			}
		}
		n, err := r.ReadUBitVar()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			v, err := r.ReadFPBitVar()
			if err != nil {
				return err
			}
			if err := p.push(v); err != nil {
				return err
			}
		}
		return nil
	}},
	{name: "NonTopoComplexPack4Bits", code: 866, bits: 10, run: func(r bitReader, p *Path) error {
		for i := 0; i < p.len; i++ {
			changed, err := r.ReadBool()
			if err != nil {
				return err
			}
			if changed {
				v, err := r.Read(4)
				if err != nil {
					return err
				}
				p.idx[i] += int32(v) - 7
			}
		}
		return nil
	}},
	{name: "NonTopoComplex", code: 1735, bits: 11, run: func(r bitReader, p *Path) error {
		for i := 0; i < p.len; i++ {
			changed, err := r.ReadBool()
			if err != nil {
				return err
			}
			if changed {
				v, err := r.ReadSvarint(5)
				if err != nil {
					return err
				}
				p.idx[i] += int32(v)
			}
		}
		return nil
	}},
	{name: "PushOneLeftDeltaZeroRightZero", code: 3469, bits: 12, run: func(r bitReader, p *Path) error {
		return p.push(0)
	}},
	{name: "PopOnePlusOne", code: 27745, bits: 15, run: func(r bitReader, p *Path) error {
		if err := p.pop(1); err != nil {
			return err
		}
		*p.top()++
		return nil
	}},
	{name: "PushOneLeftDeltaZeroRightNonZero", code: 27749, bits: 15, run: func(r bitReader, p *Path) error {
		v, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		return p.push(v)
	}},
	{name: "PopNAndNonTopographical", code: 55488, bits: 16, run: func(r bitReader, p *Path) error {
		v, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		nsize := p.len - int(v)
		if nsize <= 0 || nsize > maxPopNResize {
			return ErrInvalidFieldPath
		}
		p.len = nsize
		for i := 0; i < p.len; i++ {
			changed, err := r.ReadBool()
			if err != nil {
				return err
			}
			if changed {
				v, err := r.ReadSvarint(5)
				if err != nil {
					return err
				}
				p.idx[i] += int32(v)
			}
		}
		return nil
	}},
	{name: "PopNPlusN", code: 55489, bits: 16, run: func(r bitReader, p *Path) error {
		v, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		nsize := p.len - int(v)
		if nsize <= 0 || nsize > maxPopNResize {
			return ErrInvalidFieldPath
		}
		p.len = nsize
		d, err := r.ReadSvarint(5)
		if err != nil {
			return err
		}
		*p.top() += int32(d)
		return nil
	}},
	{name: "PushN", code: 55492, bits: 16, run: func(r bitReader, p *Path) error {
		n, err := r.ReadUBitVar()
		if err != nil {
			return err
		}
		v, err := r.ReadUBitVar()
		if err != nil {
			return err
		}
		*p.top() += int32(v)
		for i := uint32(0); i < n; i++ {
			v, err := r.ReadFPBitVar()
			if err != nil {
				return err
			}
			if err := p.push(v); err != nil {
				return err
			}
		}
		return nil
	}},
	{name: "PushThreePack5LeftDeltaN", code: 55493, bits: 16, run: func(r bitReader, p *Path) error {
		v, err := r.ReadUBitVar()
		if err != nil {
			return err
		}
		*p.top() += int32(v) + 2
		for i := 0; i < 3; i++ {
			b, err := r.Read(5)
			if err != nil {
				return err
			}
			if err := p.push(int32(b)); err != nil {
				return err
			}
		}
		return nil
	}},
	{name: "PopNPlusOne", code: 55494, bits: 16, run: func(r bitReader, p *Path) error {
		v, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		nsize := p.len - int(v)
		if nsize <= 0 || nsize > maxPopNResize {
			return ErrInvalidFieldPath
		}
		p.len = nsize
		*p.top()++
		return nil
	}},
	{name: "PopOnePlusN", code: 55495, bits: 16, run: func(r bitReader, p *Path) error {
		if err := p.pop(1); err != nil {
			return err
		}
		v, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		*p.top() += v + 1
		return nil
	}},
	{name: "PushTwoLeftDeltaZero", code: 55496, bits: 16, run: func(r bitReader, p *Path) error {
		a, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		if err := p.push(a); err != nil {
			return err
		}
		b, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		return p.push(b)
	}},
	{name: "PushThreeLeftDeltaZero", code: 110994, bits: 17, run: func(r bitReader, p *Path) error {
		for i := 0; i < 3; i++ {
			v, err := r.ReadFPBitVar()
			if err != nil {
				return err
			}
			if err := p.push(v); err != nil {
				return err
			}
		}
		return nil
	}},
	{name: "PushTwoPack5LeftDeltaZero", code: 110995, bits: 17, run: func(r bitReader, p *Path) error {
		a, err := r.Read(5)
		if err != nil {
			return err
		}
		if err := p.push(int32(a)); err != nil {
			return err
		}
		b, err := r.Read(5)
		if err != nil {
			return err
		}
		return p.push(int32(b))
	}},
	{name: "PushTwoLeftDeltaN", code: 111000, bits: 17, run: func(r bitReader, p *Path) error {
		v, err := r.ReadUBitVar()
		if err != nil {
			return err
		}
		*p.top() += int32(v) + 2
		a, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		if err := p.push(a); err != nil {
			return err
		}
		b, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		return p.push(b)
	}},
	{name: "PushThreePack5LeftDeltaOne", code: 111001, bits: 17, run: func(r bitReader, p *Path) error {
		*p.top()++
		for i := 0; i < 3; i++ {
			v, err := r.Read(5)
			if err != nil {
				return err
			}
			if err := p.push(int32(v)); err != nil {
				return err
			}
		}
		return nil
	}},
	{name: "PushThreeLeftDeltaN", code: 111002, bits: 17, run: func(r bitReader, p *Path) error {
		v, err := r.ReadUBitVar()
		if err != nil {
			return err
		}
		*p.top() += int32(v) + 2
		for i := 0; i < 3; i++ {
			x, err := r.ReadFPBitVar()
			if err != nil {
				return err
			}
			if err := p.push(x); err != nil {
				return err
			}
		}
		return nil
	}},
	{name: "PushTwoPack5LeftDeltaN", code: 111003, bits: 17, run: func(r bitReader, p *Path) error {
		v, err := r.ReadUBitVar()
		if err != nil {
			return err
		}
		*p.top() += int32(v) + 2
		a, err := r.Read(5)
		if err != nil {
			return err
		}
		if err := p.push(int32(a)); err != nil {
			return err
		}
		b, err := r.Read(5)
		if err != nil {
			return err
		}
		return p.push(int32(b))
	}},
	{name: "PushTwoLeftDeltaOne", code: 111004, bits: 17, run: func(r bitReader, p *Path) error {
		*p.top()++
		a, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		if err := p.push(a); err != nil {
			return err
		}
		b, err := r.ReadFPBitVar()
		if err != nil {
			return err
		}
		return p.push(b)
	}},
	{name: "PushThreePack5LeftDeltaZero", code: 111005, bits: 17, run: func(r bitReader, p *Path) error {
		for i := 0; i < 3; i++ {
			v, err := r.Read(5)
			if err != nil {
				return err
			}
			if err := p.push(int32(v)); err != nil {
				return err
			}
		}
		return nil
	}},
	{name: "PushThreeLeftDeltaOne", code: 111006, bits: 17, run: func(r bitReader, p *Path) error {
		*p.top()++
		for i := 0; i < 3; i++ {
			v, err := r.ReadFPBitVar()
			if err != nil {
				return err
			}
			if err := p.push(v); err != nil {
				return err
			}
		}
		return nil
	}},
	{name: "PushTwoPack5LeftDeltaOne", code: 111007, bits: 17, run: func(r bitReader, p *Path) error {
		*p.top()++
		a, err := r.Read(5)
		if err != nil {
			return err
		}
		if err := p.push(int32(a)); err != nil {
			return err
		}
		b, err := r.Read(5)
		if err != nil {
			return err
		}
		return p.push(int32(b))
	}},
}

// byLen indexes table entries by their (bits, code) pair for O(1) lookup
// during the incremental bit-accumulation loop in Next.
var byLen [maxCodeBits + 1]map[uint32]*op

func init() {
	for i := 1; i <= maxCodeBits; i++ {
		byLen[i] = make(map[uint32]*op)
	}
	for i := range table {
		o := &table[i]
		byLen[o.bits][o.code] = o
	}
}

// Next reads and applies one field-path operation to p, returning the
// sentinel errFinish (test with IsFinish) when FieldPathEncodeFinish is
// read.
func Next(r bitReader, p *Path) error {
	var code uint32
	var bits uint
	for bits < maxCodeBits {
		b, err := r.Read(1)
		if err != nil {
			return err
		}
		code = (code << 1) | b
		bits++

		if o, ok := byLen[bits][code]; ok {
			return o.run(r, p)
		}
	}
	return ErrInvalidFieldPath
}

// IsFinish reports whether err is the sentinel returned when
// FieldPathEncodeFinish terminates the path.
func IsFinish(err error) bool { return errors.Is(err, errFinish) }
