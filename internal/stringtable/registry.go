package stringtable

import "strconv"

// instanceBaselineTable is the well-known name of the table keyed by
// decimal-stringified class id whose values are default property blobs
// applied at entity creation (§3's String Table description).
const instanceBaselineTable = "instancebaseline"

// Registry owns every named table declared over the life of a parse,
// indexed both by name (for Create/Update dispatch) and by insertion order
// (CSVCMsg_UpdateStringTable addresses a table by a small integer id).
type Registry struct {
	byName  map[string]*Table
	ordered []*Table
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Table)}
}

// Create registers a freshly declared table, per §4.8's "register at
// position size()".
func (g *Registry) Create(t *Table) {
	g.byName[t.Name] = t
	g.ordered = append(g.ordered, t)
}

// ByName returns a previously created table.
func (g *Registry) ByName(name string) (*Table, bool) {
	t, ok := g.byName[name]
	return t, ok
}

// ByID returns the table at the given creation-order position, the
// addressing scheme CSVCMsg_UpdateStringTable.table_id uses.
func (g *Registry) ByID(id int32) (*Table, bool) {
	if id < 0 || int(id) >= len(g.ordered) {
		return nil, false
	}
	return g.ordered[id], true
}

// InstanceBaseline implements entitystore.BaselineSource: a lookup of
// the instancebaseline table keyed by decimal class id.
func (g *Registry) InstanceBaseline(classID int32) ([]byte, bool) {
	t, ok := g.byName[instanceBaselineTable]
	if !ok {
		return nil, false
	}
	key := strconv.Itoa(int(classID))
	for _, e := range t.Entries {
		if e.Name == key {
			return e.Value, true
		}
	}
	return nil, false
}
