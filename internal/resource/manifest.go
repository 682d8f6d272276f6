// Package resource implements the resource-path manifest and event
// descriptor registry (C11): the two lookup-table collaborators the
// property decoders and stream driver consult by id rather than decoding
// inline.
package resource

import (
	"bytes"
	"strconv"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic is the self-describing frame header a resource manifest block
// carries when it was written zstd-framed rather than snappy-framed; the
// outer packet's own IsCompressed flag only ever signals snappy (§4.2), so
// a manifest block that starts with this magic needs its own decompression
// step before the entries inside it are walked.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Manifest is a uint64 path-hash → string path lookup, the collaborator the
// Resource decoder tag (§4.6) consults.
type Manifest struct {
	paths map[uint64]string
}

// NewManifest returns an empty manifest; Lookup falls back to the decimal
// id until entries are loaded.
func NewManifest() *Manifest {
	return &Manifest{paths: make(map[uint64]string)}
}

// Lookup returns the path for id, or its decimal string if unknown.
func (m *Manifest) Lookup(id uint64) string {
	if p, ok := m.paths[id]; ok {
		return p
	}
	return strconv.FormatUint(id, 10)
}

// Add registers one (id, path) pair, overwriting any prior entry for id.
func (m *Manifest) Add(id uint64, path string) {
	m.paths[id] = path
}

// Load decompresses data if it is zstd-framed, then decodes it as a
// sequence of (varint id, NUL-terminated path) entries and
// merges them into m.
func (m *Manifest) Load(data []byte) error {
	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return err
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return err
		}
		data = out
	}

	for len(data) > 0 {
		id, n := decodeUvarint(data)
		if n == 0 {
			return ErrTruncatedManifest
		}
		data = data[n:]

		nul := bytes.IndexByte(data, 0)
		if nul < 0 {
			return ErrTruncatedManifest
		}
		m.paths[id] = string(data[:nul])
		data = data[nul+1:]
	}
	return nil
}

func decodeUvarint(b []byte) (uint64, int) {
	var v uint64
	for i := 0; i < len(b) && i < 10; i++ {
		v |= uint64(b[i]&0x7f) << (7 * uint(i))
		if b[i]&0x80 == 0 {
			return v, i + 1
		}
	}
	return 0, 0
}
