package resource

import "errors"

// ErrTruncatedManifest is returned when a manifest block ends mid-entry.
var ErrTruncatedManifest = errors.New("resource: truncated manifest entry")

// EventDescriptor names one game-event type; the fields a given event
// carries are already self-describing in the event packet itself (each
// key is tagged with its own value type), so the registry only needs to
// resolve an event id to a human name.
type EventDescriptor struct {
	ID   int32
	Name string
}

// EventRegistry is the event-descriptor registry keyed by event id.
type EventRegistry struct {
	byID map[int32]string
}

// NewEventRegistry returns an empty registry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{byID: make(map[int32]string)}
}

// Register adds or replaces the descriptor for d.ID.
func (r *EventRegistry) Register(d EventDescriptor) {
	r.byID[d.ID] = d.Name
}

// Name returns the registered name for id, or "" if unknown.
func (r *EventRegistry) Name(id int32) string {
	return r.byID[id]
}
