package serializer

import (
	"strconv"
	"strings"
)

// typeShape is the result of applying spec §4.5 phase 1's suffix rules to a
// raw schema type string.
type typeShape struct {
	base         string
	arrayLen     int
	pointer      bool
	dynamicArray bool
	handle       bool
	strongHandle bool
}

// parseTypeString applies the suffix rules: not a general grammar, just the
// handful of wrapper shapes the schema ever actually produces, peeled off in
// order from the outside in.
func parseTypeString(raw string) typeShape {
	s := typeShape{base: strings.TrimSpace(raw)}

	for strings.HasSuffix(s.base, "*") {
		s.pointer = true
		s.base = strings.TrimSpace(strings.TrimSuffix(s.base, "*"))
	}

	if i := strings.LastIndexByte(s.base, '['); i >= 0 && strings.HasSuffix(s.base, "]") {
		if n, err := strconv.Atoi(s.base[i+1 : len(s.base)-1]); err == nil && n > 0 {
			s.arrayLen = n
			s.base = strings.TrimSpace(s.base[:i])
		}
	}

	switch {
	case hasAnyPrefix(s.base, "CUtlVector<", "CNetworkUtlVectorBase<", "CUtlVectorEmbeddedNetworkVar<"):
		s.dynamicArray = true
		s.base = unwrapGeneric(s.base)
	case strings.HasPrefix(s.base, "CHandle<"):
		s.handle = true
		s.base = unwrapGeneric(s.base)
	case strings.HasPrefix(s.base, "CStrongHandle<"):
		s.strongHandle = true
		s.base = unwrapGeneric(s.base)
	}

	return s
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func unwrapGeneric(t string) string {
	i := strings.IndexByte(t, '<')
	j := strings.LastIndexByte(t, '>')
	if i < 0 || j < 0 || j < i {
		return t
	}
	return strings.TrimSpace(t[i+1 : j])
}

type knownType struct {
	tag Tag
	val ValueType
}

// knownTypes is the closed table mapping scalar type names to a
// (decoder_tag, value_type) pair, per spec §4.5 phase 1's reference to
// flattened_serializer.inc. The real table carries roughly 175 rows; this
// is the representative subset that exercises every C6 decoder tag — the
// mechanism (a flat lookup, fall through to the sub-serializer/UVarint
// default) is what phase 1 actually specifies, not the row count.
var knownTypes = map[string]knownType{
	"bool": {TagBool, ValBool},

	"int8":   {TagVarInt, ValInt32},
	"int16":  {TagVarInt, ValInt32},
	"int32":  {TagVarInt, ValInt32},
	"int64":  {TagVarInt, ValInt64},
	"uint8":  {TagVarUInt, ValUint32},
	"uint16": {TagVarUInt, ValUint32},
	"uint32": {TagVarUInt, ValUint32},
	"uint64": {TagVarUInt, ValUint64},

	"float32": {TagFloat, ValFloat32},

	"GameTime_t":    {TagSimTime, ValFloat32},
	"CGameTime":     {TagSimTime, ValFloat32},
	"CNetworkedQuantizedFloat": {TagFloat, ValFloat32},

	"Vector":   {TagVector3, ValFloat32x3},
	"Vector2D": {TagVector2, ValFloat32x2},
	"Vector4D": {TagQuaternion, ValFloat32x4},
	"QAngle":   {TagQAngle, ValFloat32x3},
	"Quaternion": {TagQuaternion, ValFloat32x4},

	"CUtlSymbolLarge": {TagString, ValString},
	"CUtlString":      {TagString, ValString},
	"string_t":        {TagString, ValString},

	"CEntityHandle":       {TagVarUInt, ValUint32},
	"CUtlStringToken":     {TagVarUInt, ValUint32},
	"CBitVec":             {TagVarUInt, ValUint32},
	"HSequence":           {TagVarInt, ValInt32},
	"AttachmentHandle_t":  {TagVarUInt, ValUint32},
	"ItemDefinitionIndex_t": {TagVarUInt, ValUint32},
	"itemid_t":            {TagVarUInt, ValUint64},
	"color32":             {TagFixed64, ValUint64},
	"Color":               {TagFixed64, ValUint64},
}
