// Package stringtable implements the delta-encoded key/value tables (C8):
// name/value entries addressed by position, a 32-slot substring
// back-reference window, optional per-entry snappy compression, and
// full-snapshot replace for seek checkpoints.
package stringtable

import (
	"errors"

	"github.com/ButterflyStats/butterfly/internal/bitread"
	"github.com/klauspost/compress/snappy"
)

const maxNameLen = 4096
const historySize = 32

// flagCompressed is the CreateStringTable.flags bit this package's grammar
// tests as "flags & COMPRESSED" per §4.8.
const flagCompressed = 0x1

// ErrNonContiguousInsert is I-ST1: an entry naming a position beyond the
// table's current end is not a valid insert.
var ErrNonContiguousInsert = errors.New("stringtable: insert is not contiguous at table end")

// Entry is one (name, value) pair of a Table.
type Entry struct {
	Name  string
	Value []byte
}

// Table is one named string table, addressed by entry position.
type Table struct {
	Name             string
	UserDataFixed    bool
	UserDataSizeBits int32
	Flags            int32
	VarintBitcounts  bool

	Entries []Entry

	history    [historySize]string
	historyPos int
}

// New constructs an empty table from a CreateStringTable header.
func New(name string, userDataFixed bool, userDataSizeBits, flags int32, varintBitcounts bool) *Table {
	return &Table{
		Name:             name,
		UserDataFixed:    userDataFixed,
		UserDataSizeBits: userDataSizeBits,
		Flags:            flags,
		VarintBitcounts:  varintBitcounts,
	}
}

// Size is the table's current entry count, the position I-ST1 requires a
// fresh insert to land at.
func (t *Table) Size() int { return len(t.Entries) }

// Lookup returns the entry by position, or (Entry{}, false).
func (t *Table) Lookup(index int) (Entry, bool) {
	if index < 0 || index >= len(t.Entries) {
		return Entry{}, false
	}
	return t.Entries[index], true
}

// historyDeltaZero is the base the raw 5-bit back-reference field is an
// offset from, matching stringtable.cpp's
// `delta_pos > STRINGTABLE_NAME_HISTORY ? delta_pos & MASK : 0`: the ring
// only "wraps" once it has actually filled once.
func (t *Table) historyDeltaZero() uint32 {
	if t.historyPos > historySize {
		return uint32(t.historyPos) & (historySize - 1)
	}
	return 0
}

// recordHistory writes name into the ring slot this entry occupies and
// advances the ring position. It must only be called for entries that
// actually carry a name — the ring position in stringtable.cpp only moves
// inside `if (hasName)`.
func (t *Table) recordHistory(name string) {
	t.history[t.historyPos&(historySize-1)] = name
	t.historyPos++
}

// ApplyDelta parses `entries` records of the shared Create/Update bitstream
// grammar from r (§4.8) and applies each to t.
func (t *Table) ApplyDelta(r *bitread.Reader, entries int32) error {
	index := int32(-1)

	for n := int32(0); n < entries; n++ {
		incBit, err := r.ReadBool()
		if err != nil {
			return err
		}
		if !incBit {
			delta, err := r.ReadUvarint(5)
			if err != nil {
				return err
			}
			index += int32(delta) + 2
		} else {
			index++
		}
		if index < 0 || int(index) > len(t.Entries) {
			return ErrNonContiguousInsert
		}

		isInsert := int(index) == len(t.Entries)

		var name string
		if !isInsert {
			name = t.Entries[index].Name
		}

		hasName, err := r.ReadBool()
		if err != nil {
			return err
		}
		if hasName {
			substring, err := r.ReadBool()
			if err != nil {
				return err
			}
			prefix := ""
			if substring {
				backRefOffset, err := r.Read(5)
				if err != nil {
					return err
				}
				backRefLen, err := r.Read(5)
				if err != nil {
					return err
				}
				// The raw 5-bit field is an offset from the ring's current
				// write position, not an absolute index into history.
				sIndex := (t.historyDeltaZero() + backRefOffset) & (historySize - 1)
				hist := t.history[sIndex]
				if uint32(t.historyPos) >= sIndex && int(backRefLen) <= len(hist) {
					prefix = hist[:backRefLen]
				}
			}
			var buf [maxNameLen]byte
			nRead, err := r.ReadString(buf[:], len(buf))
			if err != nil {
				return err
			}
			name = prefix + string(buf[:nRead])
			t.recordHistory(name)
		}

		hasValue, err := r.ReadBool()
		if err != nil {
			return err
		}
		var value []byte
		if hasValue {
			value, err = t.readValue(r)
			if err != nil {
				return err
			}
		}

		if isInsert {
			t.Entries = append(t.Entries, Entry{Name: name, Value: value})
		} else {
			t.Entries[index].Name = name
			if hasValue {
				t.Entries[index].Value = value
			}
		}
	}

	return nil
}

func (t *Table) readValue(r *bitread.Reader) ([]byte, error) {
	if t.UserDataSizeBits != 0 {
		n := int(t.UserDataSizeBits)
		buf := make([]byte, (n+7)/8)
		if _, err := r.ReadBits(buf, n); err != nil {
			return nil, err
		}
		return buf, nil
	}

	compressed := false
	if t.Flags&flagCompressed != 0 {
		b, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		compressed = b
	}

	var size uint64
	var err error
	if t.VarintBitcounts {
		v, e := r.ReadUBitVar()
		size, err = uint64(v), e
	} else {
		v, e := r.Read(17)
		size, err = uint64(v), e
	}
	if err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	if err := r.ReadBytes(buf, int(size)); err != nil {
		return nil, err
	}
	if !compressed {
		return buf, nil
	}
	return snappy.Decode(nil, buf)
}

// Restore replaces t's entries wholesale from a full-packet snapshot item
// list (§4.8's "Full-packet restore"), used by the seek engine.
func (t *Table) Restore(items []Item) {
	t.Entries = t.Entries[:0]
	t.history = [historySize]string{}
	t.historyPos = 0
	for _, it := range items {
		t.Entries = append(t.Entries, Entry{Name: it.Name, Value: it.Value})
		t.recordHistory(it.Name)
	}
}

// Item is one (name, value) pair of a full-snapshot restore.
type Item struct {
	Name  string
	Value []byte
}
