package bitread_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ButterflyStats/butterfly/internal/bitread"
)

// bitWriter packs bits in the same little-endian-per-byte order bitread.Reader
// consumes them in: the first bit written becomes the least significant bit
// of the next multi-bit Read.
type bitWriter struct {
	buf []byte
	pos uint
}

func (w *bitWriter) writeBits(v uint32, n uint) {
	for i := uint(0); i < n; i++ {
		byteIdx := w.pos / 8
		for byteIdx >= uint(len(w.buf)) {
			w.buf = append(w.buf, 0)
		}
		if v&(1<<i) != 0 {
			w.buf[byteIdx] |= 1 << (w.pos % 8)
		}
		w.pos++
	}
}

func TestReadUvarint86942(t *testing.T) {
	t.Parallel()

	r := bitread.New([]byte{0x9E, 0xA7, 0x05})
	v, err := r.ReadUvarint(5)
	require.NoError(t, err)
	assert.EqualValues(t, 86942, v)
	assert.EqualValues(t, 24, r.BitPos())
}

func TestReadCoordNegativeOneAndAFraction(t *testing.T) {
	t.Parallel()

	var w bitWriter
	w.writeBits(1, 1)  // hasInt
	w.writeBits(1, 1)  // hasFrac
	w.writeBits(1, 1)  // negative
	w.writeBits(1, 14) // intPart = 1
	w.writeBits(1, 5)  // fracPart = 1

	r := bitread.New(w.buf)
	v, err := r.ReadCoord()
	require.NoError(t, err)
	assert.InDelta(t, -1.03125, v, 1e-9)
}

func TestReadCoordAllAbsent(t *testing.T) {
	t.Parallel()

	r := bitread.New([]byte{0x00})
	v, err := r.ReadCoord()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.EqualValues(t, 2, r.BitPos())
}

func TestReadUBitVarSelectorWidths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pack func(w *bitWriter)
		want uint32
	}{
		{
			name: "6-bit only",
			pack: func(w *bitWriter) { w.writeBits(0b001010, 6) },
			want: 0b001010,
		},
		{
			name: "4-bit extra",
			pack: func(w *bitWriter) {
				w.writeBits(0b01_0011, 6) // selector bits 0b01 -> +4 bits
				w.writeBits(0b1010, 4)
			},
			want: 0b1010<<4 | 0b0011,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var w bitWriter
			tt.pack(&w)
			r := bitread.New(w.buf)
			v, err := r.ReadUBitVar()
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestReadFPBitVarSelectorWidths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pack func(w *bitWriter)
		want int32
	}{
		{
			// stop=1 at the first selector: 2-bit payload, no further bits
			// consumed.
			name: "2-bit, stop immediately",
			pack: func(w *bitWriter) {
				w.writeBits(1, 1)    // stop
				w.writeBits(0b10, 2) // payload = 2
			},
			want: 0b10,
		},
		{
			// stop=0, stop=1: widen once to the 4-bit payload.
			name: "4-bit, widen once",
			pack: func(w *bitWriter) {
				w.writeBits(0, 1)      // continue
				w.writeBits(1, 1)      // stop
				w.writeBits(0b1011, 4) // payload = 11
			},
			want: 0b1011,
		},
		{
			// stop=0, stop=0, stop=1: widen twice to the 10-bit payload.
			name: "10-bit, widen twice",
			pack: func(w *bitWriter) {
				w.writeBits(0, 1)             // continue
				w.writeBits(0, 1)             // continue
				w.writeBits(1, 1)             // stop
				w.writeBits(0b1100110011, 10) // payload
			},
			want: 0b1100110011,
		},
		{
			// all four selector bits clear: falls through to the
			// unconditional 31-bit width.
			name: "31-bit, all selectors clear",
			pack: func(w *bitWriter) {
				w.writeBits(0, 1) // continue
				w.writeBits(0, 1) // continue
				w.writeBits(0, 1) // continue
				w.writeBits(0, 1) // continue
				w.writeBits(0x7FFFFFFF, 31)
			},
			want: 0x7FFFFFFF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var w bitWriter
			tt.pack(&w)
			r := bitread.New(w.buf)
			v, err := r.ReadFPBitVar()
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestReadOverflow(t *testing.T) {
	t.Parallel()

	r := bitread.New([]byte{0xFF})
	_, err := r.Read(9)
	assert.ErrorIs(t, err, bitread.ErrOverflow)
}

func TestReadBytesByteAlignedFastPath(t *testing.T) {
	t.Parallel()

	r := bitread.New([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	buf := make([]byte, 4)
	require.NoError(t, r.ReadBytes(buf, 4))
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, buf)
}

func TestReadStringStopsAtNUL(t *testing.T) {
	t.Parallel()

	r := bitread.New([]byte("dota\x00trailing"))
	buf := make([]byte, 16)
	n, err := r.ReadString(buf, len(buf))
	require.NoError(t, err)
	assert.Equal(t, "dota", string(buf[:n]))
}
