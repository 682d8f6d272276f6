package wire

import (
	"math"
	"strconv"
)

// FileHeader is the projection of CDemoFileHeader needed by the driver: a
// build number recovered from a fixed offset inside the game_directory
// string, per the external-interfaces table (older replays never populated
// a dedicated build-number field).
type FileHeader struct {
	GameDirectory string
	BuildNumber   int32
	BuildKnown    bool
}

const gameDirectoryFieldNum = 6
const buildNumberOffset = 30

// DecodeFileHeader projects a CDemoFileHeader payload.
func DecodeFileHeader(data []byte) (*FileHeader, error) {
	h := &FileHeader{}
	err := Walk("CDemoFileHeader", data, func(f Field) error {
		if f.Num == gameDirectoryFieldNum && f.Type == 2 {
			h.GameDirectory = string(f.Bytes)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(h.GameDirectory) > buildNumberOffset {
		tail := h.GameDirectory[buildNumberOffset:]
		end := 0
		for end < len(tail) && tail[end] >= '0' && tail[end] <= '9' {
			end++
		}
		if end > 0 {
			if n, err := strconv.ParseInt(tail[:end], 10, 32); err == nil {
				h.BuildNumber = int32(n)
				h.BuildKnown = true
			}
		}
	}
	return h, nil
}

// ClassInfoEntry pairs a network class id with its class name.
type ClassInfoEntry struct {
	ClassID     int32
	NetworkName string
}

// DecodeClassInfo projects a CDemoClassInfo payload: repeated (class_id,
// network_name) pairs, each itself a nested message.
func DecodeClassInfo(data []byte) ([]ClassInfoEntry, error) {
	var out []ClassInfoEntry
	err := Walk("CDemoClassInfo", data, func(f Field) error {
		if f.Num != 1 || f.Type != 2 {
			return nil
		}
		var entry ClassInfoEntry
		err := Walk("CDemoClassInfo.class_t", f.Bytes, func(inner Field) error {
			switch inner.Num {
			case 1:
				entry.ClassID = int32(inner.Varint)
			case 2:
				entry.NetworkName = string(inner.Bytes)
			}
			return nil
		})
		if err != nil {
			return err
		}
		out = append(out, entry)
		return nil
	})
	return out, err
}

// DecodeSendTables extracts the embedded CSVCMsg_FlattenedSerializer bytes
// from a CDemoSendTables payload (field 1).
func DecodeSendTables(data []byte) ([]byte, error) {
	var out []byte
	err := Walk("CDemoSendTables", data, func(f Field) error {
		if f.Num == 1 && f.Type == 2 {
			out = f.Bytes
		}
		return nil
	})
	return out, err
}

// FieldDesc is one row of a FlattenedSerializer's field table: a name and
// type symbol, an optional encoder override symbol, quantization
// parameters, and an optional sub-serializer reference.
type FieldDesc struct {
	VarTypeSym             int32
	VarNameSym             int32
	BitCount               int32
	LowValue               float32
	HighValue              float32
	EncodeFlags            int32
	FieldSerializerNameSym int32
	FieldSerializerVersion int32
	VarEncoderSym          int32
	HasSerializer          bool
}

// SerializerDesc is one row of a FlattenedSerializer's serializer table.
type SerializerDesc struct {
	NameSym      int32
	Version      int32
	FieldIndices []int32
}

// Schema is the full projection of a CSVCMsg_FlattenedSerializer message:
// a symbol pool plus the two parallel field/serializer tables C5 consumes.
type Schema struct {
	Symbols     []string
	Fields      []FieldDesc
	Serializers []SerializerDesc
}

// DecodeFlattenedSerializer projects a CSVCMsg_FlattenedSerializer payload.
func DecodeFlattenedSerializer(data []byte) (*Schema, error) {
	s := &Schema{}
	err := Walk("CSVCMsg_FlattenedSerializer", data, func(f Field) error {
		switch f.Num {
		case 1: // symbols: repeated string
			s.Symbols = append(s.Symbols, string(f.Bytes))
		case 2: // fields: repeated ProtoFlattenedSerializerFieldT
			fd, err := decodeFieldDesc(f.Bytes)
			if err != nil {
				return err
			}
			s.Fields = append(s.Fields, fd)
		case 3: // serializers: repeated ProtoFlattenedSerializerT
			sd, err := decodeSerializerDesc(f.Bytes)
			if err != nil {
				return err
			}
			s.Serializers = append(s.Serializers, sd)
		}
		return nil
	})
	return s, err
}

func decodeFieldDesc(data []byte) (FieldDesc, error) {
	var fd FieldDesc
	err := Walk("ProtoFlattenedSerializerFieldT", data, func(f Field) error {
		switch f.Num {
		case 1:
			fd.VarTypeSym = int32(f.Varint)
		case 2:
			fd.VarNameSym = int32(f.Varint)
		case 3:
			fd.BitCount = int32(f.Varint)
		case 4:
			fd.LowValue = math.Float32frombits(f.Fixed32)
		case 5:
			fd.HighValue = math.Float32frombits(f.Fixed32)
		case 6:
			fd.EncodeFlags = int32(f.Varint)
		case 7:
			fd.FieldSerializerNameSym = int32(f.Varint)
			fd.HasSerializer = true
		case 8:
			fd.FieldSerializerVersion = int32(f.Varint)
		case 10:
			fd.VarEncoderSym = int32(f.Varint)
		}
		return nil
	})
	return fd, err
}

func decodeSerializerDesc(data []byte) (SerializerDesc, error) {
	var sd SerializerDesc
	err := Walk("ProtoFlattenedSerializerT", data, func(f Field) error {
		switch f.Num {
		case 1:
			sd.NameSym = int32(f.Varint)
		case 2:
			sd.Version = int32(f.Varint)
		case 3:
			if f.Type == 2 {
				vals, err := consumePackedVarint(f.Bytes)
				if err != nil {
					return err
				}
				for _, v := range vals {
					sd.FieldIndices = append(sd.FieldIndices, int32(v))
				}
			} else {
				sd.FieldIndices = append(sd.FieldIndices, int32(f.Varint))
			}
		}
		return nil
	})
	return sd, err
}

// PacketEntities is the projection of CSVCMsg_PacketEntities: the bitstream
// payload consumed by the entity store's delta loop (C7).
type PacketEntities struct {
	UpdatedEntries int32
	Data           []byte
}

// DecodePacketEntities projects a CSVCMsg_PacketEntities payload.
func DecodePacketEntities(data []byte) (*PacketEntities, error) {
	pe := &PacketEntities{}
	err := Walk("CSVCMsg_PacketEntities", data, func(f Field) error {
		switch f.Num {
		case 1:
			pe.UpdatedEntries = int32(f.Varint)
		case 2:
			pe.Data = f.Bytes
		}
		return nil
	})
	return pe, err
}

// CreateStringTable is the projection of CSVCMsg_CreateStringTable.
type CreateStringTable struct {
	Name             string
	NumEntries       int32
	UserDataFixed    bool
	UserDataSize     int32
	UserDataSizeBits int32
	Flags            int32
	VarintBitcounts  bool
	Data             []byte
}

// DecodeCreateStringTable projects a CSVCMsg_CreateStringTable payload.
func DecodeCreateStringTable(data []byte) (*CreateStringTable, error) {
	t := &CreateStringTable{}
	err := Walk("CSVCMsg_CreateStringTable", data, func(f Field) error {
		switch f.Num {
		case 1:
			t.Name = string(f.Bytes)
		case 2:
			t.NumEntries = int32(f.Varint)
		case 3:
			t.UserDataFixed = f.Varint != 0
		case 4:
			t.UserDataSize = int32(f.Varint)
		case 5:
			t.UserDataSizeBits = int32(f.Varint)
		case 6:
			t.Flags = int32(f.Varint)
		case 7:
			t.Data = f.Bytes
		case 8:
			t.VarintBitcounts = f.Varint != 0
		}
		return nil
	})
	return t, err
}

// UpdateStringTable is the projection of CSVCMsg_UpdateStringTable.
type UpdateStringTable struct {
	TableID           int32
	NumChangedEntries int32
	Data              []byte
}

// DecodeUpdateStringTable projects a CSVCMsg_UpdateStringTable payload.
func DecodeUpdateStringTable(data []byte) (*UpdateStringTable, error) {
	u := &UpdateStringTable{}
	err := Walk("CSVCMsg_UpdateStringTable", data, func(f Field) error {
		switch f.Num {
		case 1:
			u.TableID = int32(f.Varint)
		case 2:
			u.NumChangedEntries = int32(f.Varint)
		case 3:
			u.Data = f.Bytes
		}
		return nil
	})
	return u, err
}

// DecodePacketWrapper extracts the raw inner bitstream carried by a
// CDemoPacket or CDemoSignonPacket payload (field 1).
func DecodePacketWrapper(data []byte) ([]byte, error) {
	var out []byte
	err := Walk("CDemoPacket", data, func(f Field) error {
		if f.Num == 1 && f.Type == 2 {
			out = f.Bytes
		}
		return nil
	})
	return out, err
}

// StringTableItem is one (key, value) pair of a string table snapshot.
type StringTableItem struct {
	Str  string
	Data []byte
}

// StringTableSnapshot is one named table within a CDemoStringTables full
// restore payload, used by the seek engine to replay checkpoints.
type StringTableSnapshot struct {
	Name  string
	Items []StringTableItem
}

// DecodeStringTables projects a CDemoStringTables payload: a list of
// complete named table snapshots, used for full-packet restore (§4.8).
func DecodeStringTables(data []byte) ([]StringTableSnapshot, error) {
	var out []StringTableSnapshot
	err := Walk("CDemoStringTables", data, func(f Field) error {
		if f.Num != 1 || f.Type != 2 {
			return nil
		}
		var snap StringTableSnapshot
		err := Walk("CDemoStringTables.table_t", f.Bytes, func(inner Field) error {
			switch inner.Num {
			case 1:
				snap.Name = string(inner.Bytes)
			case 2:
				if inner.Type != 2 {
					return nil
				}
				var item StringTableItem
				err := Walk("CDemoStringTables.items_t", inner.Bytes, func(ii Field) error {
					switch ii.Num {
					case 1:
						item.Str = string(ii.Bytes)
					case 2:
						item.Data = ii.Bytes
					}
					return nil
				})
				if err != nil {
					return err
				}
				snap.Items = append(snap.Items, item)
			}
			return nil
		})
		if err != nil {
			return err
		}
		out = append(out, snap)
		return nil
	})
	return out, err
}

// FullPacket is the projection of CDemoFullPacket: a string-table snapshot
// plus a regular packet, used to checkpoint seeking (§4.10).
type FullPacket struct {
	StringTableData []byte
	PacketData      []byte
}

// DecodeFullPacket projects a CDemoFullPacket payload.
func DecodeFullPacket(data []byte) (*FullPacket, error) {
	fp := &FullPacket{}
	err := Walk("CDemoFullPacket", data, func(f Field) error {
		switch f.Num {
		case 1:
			fp.StringTableData = f.Bytes
		case 2:
			fp.PacketData = f.Bytes
		}
		return nil
	})
	return fp, err
}
