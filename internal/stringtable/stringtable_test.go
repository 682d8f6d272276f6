package stringtable_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ButterflyStats/butterfly/internal/bitread"
	"github.com/ButterflyStats/butterfly/internal/stringtable"
)

// bitWriter packs bits in the same little-endian-per-byte order
// bitread.Reader consumes them in.
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

func (w *bitWriter) writeRawBytes(s string) {
	for i := 0; i < len(s); i++ {
		w.writeBits(uint32(s[i]), 8)
	}
}

func (w *bitWriter) writeCString(s string) {
	w.writeRawBytes(s)
	w.writeBits(0, 8)
}

// TestApplyDeltaFooThenFootBackreference reproduces the worked example: a
// fresh entry "foo"="bar", then a second entry whose name back-references
// the first 2 characters of history slot 0 ("fo") and appends "ot" to spell
// "foot".
func TestApplyDeltaFooThenFootBackreference(t *testing.T) {
	t.Parallel()

	var w bitWriter

	// Entry 0: index++ (0), hasName, no substring, "foo", hasValue, size=3, "bar".
	w.writeBits(1, 1) // incBit
	w.writeBits(1, 1) // hasName
	w.writeBits(0, 1) // substring
	w.writeCString("foo")
	w.writeBits(1, 1)  // hasValue
	w.writeBits(3, 17) // size
	w.writeRawBytes("bar")

	// Entry 1: index++ (1), hasName, substring back-ref idx=0 len=2, "ot", no value.
	w.writeBits(1, 1) // incBit
	w.writeBits(1, 1) // hasName
	w.writeBits(1, 1) // substring
	w.writeBits(0, 5) // backRefIdx
	w.writeBits(2, 5) // backRefLen
	w.writeCString("ot")
	w.writeBits(0, 1) // hasValue

	tbl := stringtable.New("testtable", false, 0, 0, false)
	r := bitread.New(w.buf)
	require.NoError(t, tbl.ApplyDelta(r, 2))

	require.Equal(t, 2, tbl.Size())
	e0, ok := tbl.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, "foo", e0.Name)
	assert.Equal(t, []byte("bar"), e0.Value)

	e1, ok := tbl.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "foot", e1.Name)
}

func TestApplyDeltaNonContiguousInsertIsRejected(t *testing.T) {
	t.Parallel()

	var w bitWriter
	w.writeBits(0, 1) // incBit=false
	w.writeBits(3, 8) // uvarint delta=3 (single byte, continuation bit clear) -> index = -1+3+2 = 4, past table end

	tbl := stringtable.New("testtable", false, 0, 0, false)
	r := bitread.New(w.buf)
	err := tbl.ApplyDelta(r, 1)
	assert.ErrorIs(t, err, stringtable.ErrNonContiguousInsert)
}

// TestNoNameUpdateDoesNotConsumeRingSlot reproduces stringtable.cpp's
// invariant that the name-history ring position only advances inside
// `if (hasName)`: a no-name update between two named inserts must not
// shift where a later back-reference's raw offset lands. The table starts
// with two named entries ("foo", "bar") from one delta batch, then a
// second batch updates entry 0 with no name change, inserts "baz", and
// finally inserts a third entry that back-references offset 2 (the slot
// "baz" occupies if, and only if, the no-name update above did not
// spuriously advance the ring).
func TestNoNameUpdateDoesNotConsumeRingSlot(t *testing.T) {
	t.Parallel()

	tbl := stringtable.New("testtable", false, 0, 0, false)

	var w1 bitWriter
	// entry 0: insert "foo", no value.
	w1.writeBits(1, 1) // incBit -> index 0
	w1.writeBits(1, 1) // hasName
	w1.writeBits(0, 1) // substring
	w1.writeCString("foo")
	w1.writeBits(0, 1) // hasValue
	// entry 1: insert "bar", no value.
	w1.writeBits(1, 1) // incBit -> index 1
	w1.writeBits(1, 1) // hasName
	w1.writeBits(0, 1) // substring
	w1.writeCString("bar")
	w1.writeBits(0, 1) // hasValue
	require.NoError(t, tbl.ApplyDelta(bitread.New(w1.buf), 2))

	var w2 bitWriter
	// entry A: update index 0, no name change, no value.
	w2.writeBits(1, 1) // incBit -> index 0
	w2.writeBits(0, 1) // hasName = false
	w2.writeBits(0, 1) // hasValue
	// entry B: insert "baz" at index 2, no value.
	w2.writeBits(0, 1) // incBit = false
	w2.writeBits(0, 8) // uvarint delta=0 -> index = 0+0+2 = 2
	w2.writeBits(1, 1) // hasName
	w2.writeBits(0, 1) // substring
	w2.writeCString("baz")
	w2.writeBits(0, 1) // hasValue
	// entry C: insert at index 3, substring back-ref offset=2 len=3, no suffix.
	w2.writeBits(1, 1) // incBit -> index 3
	w2.writeBits(1, 1) // hasName
	w2.writeBits(1, 1) // substring
	w2.writeBits(2, 5) // backRefOffset
	w2.writeBits(3, 5) // backRefLen
	w2.writeCString("")
	w2.writeBits(0, 1) // hasValue
	require.NoError(t, tbl.ApplyDelta(bitread.New(w2.buf), 3))

	e2, ok := tbl.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, "baz", e2.Name)
}

func TestRestoreReplacesEntriesAndHistory(t *testing.T) {
	t.Parallel()

	tbl := stringtable.New("testtable", false, 0, 0, false)
	tbl.Restore([]stringtable.Item{
		{Name: "a", Value: []byte{1}},
		{Name: "b", Value: []byte{2}},
	})

	require.Equal(t, 2, tbl.Size())
	e1, ok := tbl.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "b", e1.Name)

	tbl.Restore(nil)
	assert.Equal(t, 0, tbl.Size())
}
