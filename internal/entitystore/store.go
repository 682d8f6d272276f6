package entitystore

import (
	"errors"

	"github.com/ButterflyStats/butterfly/internal/bitread"
	"github.com/ButterflyStats/butterfly/internal/serializer"
)

// MaxEnts bounds the slot table, matching the game's own fixed entity index
// space.
const MaxEnts = 20480

// ErrSlotOutOfRange is returned when an entity index falls outside the
// fixed slot table.
var ErrSlotOutOfRange = errors.New("entitystore: entity index out of range")

// ErrEmptySlot is I-ES1: an update or delete naming an unoccupied slot is a
// corrupt packet, not a no-op.
var ErrEmptySlot = errors.New("entitystore: update or delete on empty slot")

// Entity is one live networked object: its class, its 17-bit network serial
// (used to detect index reuse across a leave/create pair), and its property
// tree.
type Entity struct {
	Slot    int32
	ClassID int32
	Serial  int32
	Blob    *Blob
}

// ClassResolver maps a networked class id to its name and root layout, the
// information C5's Graph plus the class-info packet together provide.
type ClassResolver interface {
	ClassName(id int32) (string, bool)
	RootLayout(className string) (*serializer.Layout, bool)
}

// BaselineSource supplies an instance baseline: the pre-encoded delta
// applied to every freshly created instance of a class before the packet's
// own delta, sourced from the "instancebaseline" string table (C8) keyed by
// decimal class id.
type BaselineSource interface {
	InstanceBaseline(classID int32) ([]byte, bool)
}

// Event names the operation a Listener is notified of.
type Event int

const (
	Created Event = iota
	Updated
	Left
	Deleted
)

// Listener is notified of every create/update/leave/delete lifecycle
// event, in stream order. A Deleted notification fires before the
// entity's Blob is released, so a listener can still read its last state
// (§5: "entities freed by E_DELETE are callable with on_entity(DELETED,…)
// before their memory is released").
type Listener func(ev Event, e *Entity)

// Store is the fixed-capacity entity slot table (C7).
type Store struct {
	slots     [MaxEnts]*Entity
	classBits uint
	graph     *serializer.Graph
	classes   ClassResolver
	baselines BaselineSource
	res       serializer.ResourceResolver
	listener  Listener

	baselineHits int64
}

// New creates an empty store. graph, classes, and baselines are wired once
// the corresponding packets (send tables, class info, string tables) have
// been parsed; res may be nil until the resource manifest is loaded.
func New(graph *serializer.Graph, classes ClassResolver, baselines BaselineSource, res serializer.ResourceResolver) *Store {
	return &Store{graph: graph, classes: classes, baselines: baselines, res: res}
}

// SetClassCount fixes the bit width CREATE reads its class id with, derived
// from the number of declared networked classes.
func (s *Store) SetClassCount(n int) {
	bits := uint(0)
	for (1 << bits) < n {
		bits++
	}
	if bits == 0 {
		bits = 1
	}
	s.classBits = bits
}

// SetResourceResolver attaches the resource manifest once it becomes
// available (it may arrive after the first entities do).
func (s *Store) SetResourceResolver(res serializer.ResourceResolver) { s.res = res }

// SetListener attaches the callback invoked for every create/update/leave/
// delete, in stream order. Passing nil disables notification.
func (s *Store) SetListener(l Listener) { s.listener = l }

// BaselineHits counts the entity creations so far that found and applied
// an instancebaseline entry for their class.
func (s *Store) BaselineHits() int64 { return s.baselineHits }

func (s *Store) notify(ev Event, e *Entity) {
	if s.listener != nil {
		s.listener(ev, e)
	}
}

// At returns the entity currently occupying slot idx, or nil.
func (s *Store) At(idx int32) *Entity {
	if idx < 0 || int(idx) >= len(s.slots) {
		return nil
	}
	return s.slots[idx]
}

// opcode is the 2-bit create/update/leave/delete selector of §4.7's table.
type opcode int

const (
	opUpdate opcode = iota
	opLeave
	opCreate
	opDelete
)

func readOpcode(r *bitread.Reader) (opcode, error) {
	bit1, err := r.ReadBool()
	if err != nil {
		return 0, err
	}
	bit2, err := r.ReadBool()
	if err != nil {
		return 0, err
	}
	switch {
	case !bit1 && !bit2:
		return opUpdate, nil
	case bit1 && !bit2:
		return opLeave, nil
	case !bit1 && bit2:
		return opCreate, nil
	default:
		return opDelete, nil
	}
}

// ApplyPacketEntities applies one PacketEntities message's worth of
// create/update/leave/delete operations, per spec §4.7.
func (s *Store) ApplyPacketEntities(r *bitread.Reader, updatedEntries int32) error {
	idx := int32(-1)
	for i := int32(0); i < updatedEntries; i++ {
		delta, err := r.ReadUBitVar()
		if err != nil {
			return err
		}
		idx += int32(delta) + 1
		if idx < 0 || int(idx) >= len(s.slots) {
			return ErrSlotOutOfRange
		}

		op, err := readOpcode(r)
		if err != nil {
			return err
		}

		switch op {
		case opCreate:
			if err := s.create(r, idx); err != nil {
				return err
			}

		case opUpdate:
			e := s.slots[idx]
			if e == nil {
				return ErrEmptySlot
			}
			if err := ApplyDelta(r, e.Blob, s.graph, s.res); err != nil {
				return err
			}
			s.notify(Updated, e)

		case opLeave:
			// No payload: the entity persists untouched this tick.
			if e := s.slots[idx]; e != nil {
				s.notify(Left, e)
			}

		case opDelete:
			// I-ES2 (the create side of the invariant): the slot's blob is
			// only ever freed here or by a create overwriting an occupied
			// slot, never left dangling.
			e := s.slots[idx]
			if e == nil {
				return ErrEmptySlot
			}
			// Notify before release: §5 requires on_entity(DELETED,…) be
			// callable against the entity's last state.
			s.notify(Deleted, e)
			s.slots[idx] = nil
		}
	}
	return nil
}

func (s *Store) create(r *bitread.Reader, idx int32) error {
	classID, err := r.Read(s.classBits)
	if err != nil {
		return err
	}
	serial, err := r.Read(17)
	if err != nil {
		return err
	}
	// Unknown header field (historically an unused/reserved uvarint);
	// consumed so the bitstream stays aligned for the delta that follows.
	if _, err := r.ReadUvarint(5); err != nil {
		return err
	}

	className, ok := s.classes.ClassName(int32(classID))
	if !ok {
		return ErrSlotOutOfRange
	}
	layout, ok := s.classes.RootLayout(className)
	if !ok {
		return ErrSlotOutOfRange
	}

	// I-ES2: creating over an occupied slot frees the old blob first by
	// simply replacing it; nothing else in the store retains a reference to
	// the old Entity once this assignment runs.
	e := &Entity{Slot: idx, ClassID: int32(classID), Serial: int32(serial), Blob: NewBlob(layout, s.graph)}
	s.slots[idx] = e

	if s.baselines != nil {
		if baseline, ok := s.baselines.InstanceBaseline(int32(classID)); ok {
			br := bitread.New(baseline)
			if err := ApplyDelta(br, e.Blob, s.graph, s.res); err != nil {
				return err
			}
			s.baselineHits++
		}
	}

	if err := ApplyDelta(r, e.Blob, s.graph, s.res); err != nil {
		return err
	}
	s.notify(Created, e)
	return nil
}
