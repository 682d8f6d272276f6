// Package frame implements the outer packet framing and decompression
// layer (C2): the file magic and offset header, the (type, tick, size,
// data) packet loop, and the IsCompressed flag's snappy delegation.
package frame

import (
	"encoding/binary"
	"errors"

	"github.com/klauspost/compress/snappy"
)

// Magic is the fixed 8-byte file header every replay begins with.
const Magic = "PBDEMS2\x00"

// isCompressedFlag is the high bit DEM_IsCompressed sets on a packet's
// type code; every real packet type code is well under this value.
const isCompressedFlag int32 = 0x40

// Packet type codes used by the core (§6).
const (
	TypeStop           int32 = 0
	TypeFileHeader     int32 = 1
	TypeSignonPacket   int32 = 4
	TypePacket         int32 = 7
	TypeSendTables     int32 = 8
	TypeClassInfo      int32 = 9
	TypeStringTables   int32 = 10
	TypeFullPacket     int32 = 12
	TypeConsoleCmd     int32 = 5
	TypeCustomData     int32 = 6
	TypeAnimationData  int32 = 13
	TypeSaveGame       int32 = 14
)

var (
	// ErrBadMagic is returned when the byte source does not begin with Magic.
	ErrBadMagic = errors.New("frame: missing PBDEMS2 magic")
	// ErrTruncated is returned when fewer bytes remain than a length field
	// promises.
	ErrTruncated = errors.New("frame: truncated packet")
)

// Header is the two offsets following the magic: a byte offset to the
// summary packet and a secondary offset, both currently informational (the
// driver reads packets sequentially regardless).
type Header struct {
	SummaryOffset   int32
	SecondaryOffset int32
}

// Decompressor turns compressed packet payload bytes into their decoded
// form. snappyDecompressor is the default, matching §6's
// Decompressor.snappy_raw_uncompress collaborator.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

type snappyDecompressor struct{}

func (snappyDecompressor) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

// DefaultDecompressor is the snappy-backed Decompressor every Source
// reader uses unless overridden.
var DefaultDecompressor Decompressor = snappyDecompressor{}

// Packet is one decoded outer packet: its type (with IsCompressed already
// stripped and resolved), tick, and payload.
type Packet struct {
	Type int32
	Tick int32
	Data []byte
}

// Reader is a non-owning cursor over a whole replay's bytes, yielding
// framed packets one at a time.
type Reader struct {
	buf          []byte
	pos          int
	Decompressor Decompressor
}

// NewReader validates the magic and two header offsets, returning a Reader
// positioned at the first packet.
func NewReader(buf []byte) (*Reader, Header, error) {
	if len(buf) < len(Magic)+8 || string(buf[:len(Magic)]) != Magic {
		return nil, Header{}, ErrBadMagic
	}
	h := Header{
		SummaryOffset:   int32(binary.LittleEndian.Uint32(buf[len(Magic):])),
		SecondaryOffset: int32(binary.LittleEndian.Uint32(buf[len(Magic)+4:])),
	}
	r := &Reader{buf: buf, pos: len(Magic) + 8, Decompressor: DefaultDecompressor}
	return r, h, nil
}

// Pos returns the current byte offset into the backing buffer, used by the
// seek engine to capture and rewind to the seek origin.
func (r *Reader) Pos() int { return r.pos }

// SeekTo rewinds the cursor to a previously captured byte offset.
func (r *Reader) SeekTo(pos int) { r.pos = pos }

// AtEOF reports whether every byte has been consumed.
func (r *Reader) AtEOF() bool { return r.pos >= len(r.buf) }

func (r *Reader) readUvarint() (int32, error) {
	var v uint64
	for i := 0; i < 10; i++ {
		if r.pos >= len(r.buf) {
			return 0, ErrTruncated
		}
		b := r.buf[r.pos]
		r.pos++
		v |= uint64(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			return int32(v), nil
		}
	}
	return 0, ErrTruncated
}

// Next decodes the next (type, tick, size, data) triplet, transparently
// snappy-decompressing the payload and clearing IsCompressed when set.
func (r *Reader) Next() (Packet, error) {
	rawType, err := r.readUvarint()
	if err != nil {
		return Packet{}, err
	}
	tick, err := r.readUvarint()
	if err != nil {
		return Packet{}, err
	}
	size, err := r.readUvarint()
	if err != nil {
		return Packet{}, err
	}
	if size < 0 || r.pos+int(size) > len(r.buf) {
		return Packet{}, ErrTruncated
	}
	data := r.buf[r.pos : r.pos+int(size)]
	r.pos += int(size)

	typ := rawType &^ isCompressedFlag
	if rawType&isCompressedFlag != 0 {
		dec := r.Decompressor
		if dec == nil {
			dec = DefaultDecompressor
		}
		out, err := dec.Decompress(data)
		if err != nil {
			return Packet{}, err
		}
		data = out
	}

	return Packet{Type: typ, Tick: tick, Data: data}, nil
}
