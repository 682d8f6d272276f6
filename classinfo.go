package butterfly

import "github.com/ButterflyStats/butterfly/internal/serializer"

// ClassInfo pairs a networked class id with its name, as declared by the
// DEM_ClassInfo outer packet.
type ClassInfo struct {
	ClassID     int32
	NetworkName string
}

// classTable is the decoder's entitystore.ClassResolver: a lookup from
// class id to name, and from name to the class's root serializer.Layout
// once the schema has been built.
type classTable struct {
	byID  map[int32]string
	graph *serializer.Graph
}

func newClassTable() *classTable {
	return &classTable{byID: make(map[int32]string)}
}

func (c *classTable) add(entries []ClassInfo) {
	for _, e := range entries {
		c.byID[e.ClassID] = e.NetworkName
	}
}

func (c *classTable) ClassName(id int32) (string, bool) {
	name, ok := c.byID[id]
	return name, ok
}

func (c *classTable) RootLayout(className string) (*serializer.Layout, bool) {
	if c.graph == nil {
		return nil, false
	}
	ref, ok := c.graph.Root(className)
	if !ok {
		return nil, false
	}
	return c.graph.Layout(ref), true
}
