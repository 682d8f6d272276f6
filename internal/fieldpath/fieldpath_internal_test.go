package fieldpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ButterflyStats/butterfly/internal/bitread"
)

// bitWriter packs individual bits MSB-first per code, matching how Next
// accumulates code = (code<<1)|b while reading one bit at a time.
type bitWriter struct {
	buf []byte
	pos uint
}

func (w *bitWriter) writeBit(b uint32) {
	byteIdx := w.pos / 8
	for byteIdx >= uint(len(w.buf)) {
		w.buf = append(w.buf, 0)
	}
	if b != 0 {
		w.buf[byteIdx] |= 1 << (w.pos % 8)
	}
	w.pos++
}

func (w *bitWriter) writeCode(code uint32, bits uint) {
	for i := int(bits) - 1; i >= 0; i-- {
		w.writeBit((code >> uint(i)) & 1)
	}
}

func (w *bitWriter) writeBits(v uint32, n uint) {
	for i := uint(0); i < n; i++ {
		w.writeBit((v >> i) & 1)
	}
}

// Every literal code/bits pair below is transcribed directly from
// fieldop_lookup's switch, independent of this package's table ordering, so
// a wrong (code, bits) assignment in table cannot make these pass by
// coincidence the way deriving "expected" from table itself would.
const (
	codePlusOne                             = 0
	bitsPlusOne                             = 1
	codeFieldPathEncodeFinish               = 2
	bitsFieldPathEncodeFinish               = 2
	codePlusTwo                             = 14
	bitsPlusTwo                             = 4
	codePushOneLeftDeltaNRightNonZeroPack6  = 15
	bitsPushOneLeftDeltaNRightNonZeroPack6  = 4
	codePushOneLeftDeltaOneRightNonZero     = 24
	bitsPushOneLeftDeltaOneRightNonZero     = 5
	codePlusN                               = 26
	bitsPlusN                               = 5
	codePlusThree                           = 50
	bitsPlusThree                           = 6
	codePopAllButOnePlusOne                 = 51
	bitsPopAllButOnePlusOne                 = 6
	codePushOneLeftDeltaOneRightZero        = 218
	bitsPushOneLeftDeltaOneRightZero        = 8
	codePlusFour                            = 223
	bitsPlusFour                            = 8
	codePushOneLeftDeltaNRightNonZeroPack8  = 438
	bitsPushOneLeftDeltaNRightNonZeroPack8  = 9
	codePushOneLeftDeltaZeroRightZero       = 3469
	bitsPushOneLeftDeltaZeroRightZero       = 12
	codePopOnePlusOne                       = 27745
	bitsPopOnePlusOne                       = 15
	codePushOneLeftDeltaZeroRightNonZero    = 27749
	bitsPushOneLeftDeltaZeroRightNonZero    = 15
)

// TestPushOneLeftDeltaZeroRightZeroThenPlusOne starts from the sentinel path
// [-1] and applies PushOneLeftDeltaZeroRightZero (a bare push_back(0), per
// fp_PushOneLeftDeltaZeroRightZero) followed by PlusOne, which increments
// whatever is now on top. The codes used here are spec-mandated literals,
// not whatever this package's table happens to assign.
func TestPushOneLeftDeltaZeroRightZeroThenPlusOne(t *testing.T) {
	t.Parallel()

	var w bitWriter
	w.writeCode(codePushOneLeftDeltaZeroRightZero, bitsPushOneLeftDeltaZeroRightZero)
	w.writeCode(codePlusOne, bitsPlusOne)

	r := bitread.New(w.buf)
	var p Path
	p.Reset()
	require.Equal(t, []int32{-1}, p.Indices())

	require.NoError(t, Next(r, &p))
	assert.Equal(t, []int32{-1, 0}, p.Indices())

	require.NoError(t, Next(r, &p))
	assert.Equal(t, []int32{-1, 1}, p.Indices())
}

func TestFieldPathEncodeFinishSignalsEnd(t *testing.T) {
	t.Parallel()

	var w bitWriter
	w.writeCode(codeFieldPathEncodeFinish, bitsFieldPathEncodeFinish)

	r := bitread.New(w.buf)
	var p Path
	p.Reset()

	err := Next(r, &p)
	assert.True(t, IsFinish(err))
}

func TestPopOnePlusOne(t *testing.T) {
	t.Parallel()

	var w bitWriter
	w.writeCode(codePushOneLeftDeltaOneRightZero, bitsPushOneLeftDeltaOneRightZero)
	w.writeCode(codePopOnePlusOne, bitsPopOnePlusOne)

	r := bitread.New(w.buf)
	var p Path
	p.Reset()

	require.NoError(t, Next(r, &p))
	assert.Equal(t, []int32{0, 0}, p.Indices())

	require.NoError(t, Next(r, &p))
	assert.Equal(t, []int32{1}, p.Indices())
}

// TestLiteralCodes decodes each op from its hardcoded ground-truth bit
// pattern, independent of table's internal (code, bits) fields, and checks
// the resulting path mutation. A wrong entry in table (wrong code, wrong
// bits, or a swapped run closure) shows up here as either a lookup miss
// (ErrInvalidFieldPath) or a wrong resulting path.
func TestLiteralCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		code  uint32
		bits  uint
		extra func(w *bitWriter) // payload bits read after the op code
		start []int32
		want  []int32
	}{
		{
			name:  "PlusOne",
			code:  codePlusOne,
			bits:  bitsPlusOne,
			start: []int32{-1},
			want:  []int32{0},
		},
		{
			name:  "PlusTwo",
			code:  codePlusTwo,
			bits:  bitsPlusTwo,
			start: []int32{0},
			want:  []int32{2},
		},
		{
			name:  "PlusThree",
			code:  codePlusThree,
			bits:  bitsPlusThree,
			start: []int32{0},
			want:  []int32{3},
		},
		{
			name:  "PlusFour",
			code:  codePlusFour,
			bits:  bitsPlusFour,
			start: []int32{0},
			want:  []int32{4},
		},
		{
			name: "PlusN",
			code: codePlusN,
			bits: bitsPlusN,
			extra: func(w *bitWriter) {
				w.writeBits(1, 1)    // fpbitvar stop bit
				w.writeBits(0b11, 2) // fpbitvar payload = 3
			},
			start: []int32{0},
			want:  []int32{8}, // 0 + (3 + 5)
		},
		{
			name:  "PopAllButOnePlusOne",
			code:  codePopAllButOnePlusOne,
			bits:  bitsPopAllButOnePlusOne,
			start: []int32{5, 6, 7},
			want:  []int32{6},
		},
		{
			name: "PushOneLeftDeltaOneRightNonZero",
			code: codePushOneLeftDeltaOneRightNonZero,
			bits: bitsPushOneLeftDeltaOneRightNonZero,
			extra: func(w *bitWriter) {
				w.writeBits(1, 1)    // fpbitvar stop bit
				w.writeBits(0b01, 2) // fpbitvar payload = 1
			},
			start: []int32{0},
			want:  []int32{1, 1},
		},
		{
			name:  "PushOneLeftDeltaOneRightZero",
			code:  codePushOneLeftDeltaOneRightZero,
			bits:  bitsPushOneLeftDeltaOneRightZero,
			start: []int32{0},
			want:  []int32{1, 0},
		},
		{
			name: "PushOneLeftDeltaZeroRightNonZero",
			code: codePushOneLeftDeltaZeroRightNonZero,
			bits: bitsPushOneLeftDeltaZeroRightNonZero,
			extra: func(w *bitWriter) {
				w.writeBits(1, 1)    // fpbitvar stop bit
				w.writeBits(0b11, 2) // fpbitvar payload = 3
			},
			start: []int32{0},
			want:  []int32{0, 3},
		},
		{
			name: "PushOneLeftDeltaNRightNonZeroPack6Bits",
			code: codePushOneLeftDeltaNRightNonZeroPack6,
			bits: bitsPushOneLeftDeltaNRightNonZeroPack6,
			extra: func(w *bitWriter) {
				w.writeBits(0b011, 3) // top += 3+2
				w.writeBits(0b010, 3) // push 2+1
			},
			start: []int32{0},
			want:  []int32{5, 3},
		},
		{
			name: "PushOneLeftDeltaNRightNonZeroPack8Bits",
			code: codePushOneLeftDeltaNRightNonZeroPack8,
			bits: bitsPushOneLeftDeltaNRightNonZeroPack8,
			extra: func(w *bitWriter) {
				w.writeBits(0b0001, 4) // top += 1+2
				w.writeBits(0b0010, 4) // push 2+1
			},
			start: []int32{0},
			want:  []int32{3, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var w bitWriter
			w.writeCode(tt.code, tt.bits)
			if tt.extra != nil {
				tt.extra(&w)
			}

			r := bitread.New(w.buf)
			var p Path
			p.Reset()
			p.len = len(tt.start)
			copy(p.idx[:p.len], tt.start)

			require.NoError(t, Next(r, &p))
			assert.Equal(t, tt.want, p.Indices())
		})
	}
}

func TestCanonicalCodesArePrefixFree(t *testing.T) {
	t.Parallel()

	type entry struct {
		code uint32
		bits uint
	}
	var seen []entry
	for i := range table {
		o := table[i]
		for _, e := range seen {
			var collide bool
			if e.bits <= o.bits {
				collide = o.code>>(o.bits-e.bits) == e.code
			} else {
				collide = e.code>>(e.bits-o.bits) == o.code
			}
			assert.False(t, collide, "code for %s collides with a shorter prefix", o.name)
		}
		seen = append(seen, entry{o.code, o.bits})
	}
}

func TestTableHasAllFortyOperations(t *testing.T) {
	t.Parallel()
	assert.Len(t, table, 40)
}
