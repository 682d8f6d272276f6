package entitystore

import "github.com/ButterflyStats/butterfly/internal/serializer"

// FindByClassName returns the first live entity whose networked class
// resolves to name, or nil. Used by the seek engine (§4.10) to locate the
// singleton CDOTAGamerulesProxy instance without a dedicated index, since
// the store has no secondary index by class and a full scan of 20480 slots
// is cheap relative to parsing the packets between seek checkpoints.
func (s *Store) FindByClassName(name string) *Entity {
	for _, e := range s.slots {
		if e == nil {
			continue
		}
		if cn, ok := s.classes.ClassName(e.ClassID); ok && cn == name {
			return e
		}
	}
	return nil
}

// Lookup walks a Blob tree by field name, descending through TagTable/
// TagTablePtr fields for every name but the last, and returns the leaf
// field's stored scalar Value. It is the seek engine's name-path lookup
// (§4.10's "read its m_pGameRules.m_fGameTime field"), distinct from the
// ordinal field-path index the wire protocol's delta stream addresses
// fields by.
func Lookup(b *Blob, names ...string) (serializer.Value, bool) {
	cur := b
	for i, name := range names {
		if cur == nil {
			return serializer.Value{}, false
		}
		idx := cur.Layout.FieldByName(name)
		if idx < 0 {
			return serializer.Value{}, false
		}
		slot := &cur.Fields[idx]
		if i == len(names)-1 {
			return slot.Scalar, true
		}
		cur = slot.Table
	}
	return serializer.Value{}, false
}
