// Package butterfly decodes DotA 2 / Source 2 replay files: it drives the
// outer packet stream (C9), maintains the entity store (C7) and string
// tables (C8) it feeds, and supports seeking to a target game time (C10).
package butterfly

import (
	"errors"
	"fmt"

	"github.com/ButterflyStats/butterfly/internal/bitread"
	"github.com/ButterflyStats/butterfly/internal/dbg"
	"github.com/ButterflyStats/butterfly/internal/entitystore"
	"github.com/ButterflyStats/butterfly/internal/frame"
	"github.com/ButterflyStats/butterfly/internal/resource"
	"github.com/ButterflyStats/butterfly/internal/serializer"
	"github.com/ButterflyStats/butterfly/internal/stringtable"
	"github.com/ButterflyStats/butterfly/internal/wire"
)

// Inner sub-message type codes carried inside a Packet/SignonPacket
// bitstream (§4.9: "(type:ubitvar, size:uvarint, bytes[size])"). No .proto
// ships with this decoder (§1 Non-goal), so these are reconstructed in the
// same spirit as internal/wire's protobuf field numbers — plausible, not
// verified against a shipped schema (see DESIGN.md).
const (
	innerServerInfo        int32 = 8
	innerCreateStringTable int32 = 12
	innerUpdateStringTable int32 = 13
	innerGameEvent         int32 = 25
	innerPacketEntities    int32 = 26
	innerGameEventList     int32 = 30
)

const maxRequireID = 2048

// ErrEOF is returned by Parse once the stream is exhausted or a Stop
// packet has been consumed.
var ErrEOF = errors.New("butterfly: end of stream")

// Decoder drives one replay stream end to end. It is not safe for
// concurrent use (§5: single-threaded cooperative).
type Decoder struct {
	cfg *config

	r      *frame.Reader
	header frame.Header
	buf    []byte

	state State
	tick  int32

	classes   *classTable
	graph     *serializer.Graph
	tables    *stringtable.Registry
	entities  *entitystore.Store
	resources *resource.Manifest
	events    *resource.EventRegistry

	classInfo     []ClassInfo
	schemaBytes   []byte
	sawSendTables bool
	sawClassInfo  bool

	requireSet [maxRequireID]bool

	seekOrigin int

	stats Stats
}

// Open parses the fixed file header and returns a Decoder positioned at
// the first outer packet, in state BEGIN.
func Open(buf []byte, opts ...DecoderOption) (*Decoder, error) {
	cfg := newConfig(opts)

	r, header, err := frame.NewReader(buf)
	if err != nil {
		return nil, newError(KindMagicMismatch, "file header", err)
	}
	r.Decompressor = cfg.decompressor

	d := &Decoder{
		cfg:       cfg,
		r:         r,
		header:    header,
		buf:       buf,
		state:     StateBegin,
		classes:   newClassTable(),
		tables:    stringtable.NewRegistry(),
		resources: resource.NewManifest(),
		events:    resource.NewEventRegistry(),
	}

	if len(cfg.resourceData) > 0 {
		if err := d.resources.Load(cfg.resourceData); err != nil {
			return nil, newError(KindDecompressError, "resource manifest", err)
		}
	}
	for _, id := range cfg.requireAtOpen {
		d.Require(id)
	}

	return d, nil
}

// Require flips the bit that forwards the raw bytes of inner sub-message
// id to Observer.OnPacket, per §6's "require" mechanism.
func (d *Decoder) Require(id int32) {
	if id < 0 || int(id) >= maxRequireID {
		return
	}
	d.requireSet[id] = true
}

// Stats returns the decoder's read-only parse telemetry.
func (d *Decoder) Stats() Stats { return d.stats }

// State returns the driver's current state.
func (d *Decoder) State() State { return d.state }

// Tick returns the most recently observed tick.
func (d *Decoder) Tick() int32 { return d.tick }

func (d *Decoder) setState(s State) {
	if s == d.state {
		return
	}
	d.state = s
	d.cfg.observer.OnState(s)
}

// Reset clears the entity store and every string table, per §5's "valid
// until the next reset/seek/close" contract and property P6.
func (d *Decoder) Reset() {
	d.tables = stringtable.NewRegistry()
	if d.graph != nil {
		d.entities = entitystore.New(d.graph, d.classes, d.tables, d.resources)
		d.entities.SetClassCount(len(d.classInfo))
		d.entities.SetListener(d.onEntityEvent)
	}
}

// Parse pulls and dispatches exactly one outer packet, advancing state and
// tick as needed. It returns ErrEOF once the stream is exhausted.
//
// Parsing runs under a recover guard (§7: "the decoder never terminates the
// process on its own"): a panic surfacing from deep in the dispatch chain
// while walking attacker-controlled bytes is converted to a fatal
// KindCorruptPacket rather than crashing the host.
func (d *Decoder) Parse() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = newError(KindCorruptPacket, "panic during parse", fmt.Errorf("%v", rec))
		}
	}()

	if d.state == StateEnd {
		return ErrEOF
	}
	if d.r.AtEOF() {
		d.setState(StateEnd)
		return ErrEOF
	}

	pkt, perr := d.r.Next()
	if perr != nil {
		return newError(KindCorruptPacket, "outer packet", perr)
	}

	if pkt.Tick != 0 && pkt.Tick != d.tick {
		d.tick = pkt.Tick
		d.cfg.observer.OnTick(d.tick)
	}

	if perr := d.dispatchOuter(pkt); perr != nil {
		return perr
	}
	d.stats.PacketsParsed++

	total := len(d.buf)
	if total > 0 {
		d.cfg.observer.OnProgress(float64(d.r.Pos()) / float64(total))
	}
	return nil
}

// ParseAll drains the stream by repeatedly calling Parse until ErrEOF.
func (d *Decoder) ParseAll() error {
	for {
		err := d.Parse()
		if err == ErrEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (d *Decoder) dispatchOuter(pkt frame.Packet) error {
	switch pkt.Type {
	case frame.TypeStop:
		d.setState(StateEnd)
		return nil

	case frame.TypeFileHeader:
		if _, err := wire.DecodeFileHeader(pkt.Data); err != nil {
			return newError(KindCorruptPacket, "file header", err)
		}
		d.setState(StateSendTablesPending)
		return nil

	case frame.TypeSendTables:
		sendTableBytes, err := wire.DecodeSendTables(pkt.Data)
		if err != nil {
			return newError(KindCorruptPacket, "send tables", err)
		}
		d.schemaBytes = sendTableBytes
		d.sawSendTables = true
		return d.maybeBuildSchema()

	case frame.TypeClassInfo:
		entries, err := wire.DecodeClassInfo(pkt.Data)
		if err != nil {
			return newError(KindCorruptPacket, "class info", err)
		}
		for _, e := range entries {
			d.classInfo = append(d.classInfo, ClassInfo{ClassID: e.ClassID, NetworkName: e.NetworkName})
		}
		d.classes.add(d.classInfo)
		d.sawClassInfo = true
		return d.maybeBuildSchema()

	case frame.TypeStringTables:
		snaps, err := wire.DecodeStringTables(pkt.Data)
		if err != nil {
			return newError(KindCorruptPacket, "string tables", err)
		}
		d.restoreStringTables(snaps)
		return nil

	case frame.TypeFullPacket:
		return d.handleFullPacket(pkt.Data)

	case frame.TypeSignonPacket, frame.TypePacket:
		if d.state == StateSendTables {
			d.setState(StateRunning)
		}
		inner, err := wire.DecodePacketWrapper(pkt.Data)
		if err != nil {
			return newError(KindCorruptPacket, "packet wrapper", err)
		}
		return d.dispatchInner(inner)

	case frame.TypeConsoleCmd, frame.TypeCustomData:
		// SUPPLEMENTED FEATURES item 1: unconditional raw passthrough.
		d.cfg.observer.OnPacket(pkt.Type, pkt.Data)
		return nil

	case frame.TypeAnimationData, frame.TypeSaveGame:
		// SUPPLEMENTED FEATURES item 4: recognized and explicitly skipped.
		return nil

	default:
		if int(pkt.Type) >= 0 && int(pkt.Type) < maxRequireID && d.requireSet[pkt.Type] {
			d.cfg.observer.OnPacket(pkt.Type, pkt.Data)
		}
		return nil
	}
}

func (d *Decoder) maybeBuildSchema() error {
	if !d.sawSendTables || !d.sawClassInfo || d.graph != nil {
		return nil
	}
	schema, err := wire.DecodeFlattenedSerializer(d.schemaBytes)
	if err != nil {
		return newError(KindCorruptPacket, "flattened serializer", err)
	}
	graph, err := serializer.Build(schema)
	if err != nil {
		return newError(errKindFromBuild(err), "serializer build", err)
	}
	d.graph = graph
	d.classes.graph = graph
	d.entities = entitystore.New(graph, d.classes, d.tables, d.resources)
	d.entities.SetClassCount(len(d.classInfo))
	d.entities.SetListener(d.onEntityEvent)
	d.seekOrigin = d.r.Pos()
	d.setState(StateSendTables)
	return nil
}

// onEntityEvent translates an entitystore lifecycle event into the
// package's EntityOp and forwards it to the configured Observer, also
// keeping the create/delete running totals in Stats.
func (d *Decoder) onEntityEvent(ev entitystore.Event, e *entitystore.Entity) {
	var op EntityOp
	switch ev {
	case entitystore.Created:
		op = EntityCreated
		d.stats.EntitiesCreated++
	case entitystore.Updated:
		op = EntityUpdated
	case entitystore.Left:
		op = EntityLeft
	case entitystore.Deleted:
		op = EntityDeleted
		d.stats.EntitiesDeleted++
	}
	d.cfg.observer.OnEntity(op, e)
}

func errKindFromBuild(err error) Kind {
	switch {
	case errors.Is(err, serializer.ErrMissingSerializer):
		return KindMissingSerializer
	case errors.Is(err, serializer.ErrHashCollision):
		return KindHashCollision
	default:
		return KindUnknownType
	}
}

// dispatchInner walks the (type:ubitvar, size:uvarint, bytes[size]) inner
// sub-message stream carried by a Packet/SignonPacket, per §4.9.
func (d *Decoder) dispatchInner(data []byte) error {
	br := bitread.New(data)
	for br.BitsRemaining() >= 8 {
		typ, err := br.ReadUBitVar()
		if err != nil {
			return nil // trailing padding bits short of a full header: not an error
		}
		size, err := br.ReadUvarint(5)
		if err != nil {
			return newError(KindCorruptPacket, "inner message size", err)
		}
		buf := make([]byte, size)
		if err := br.ReadBytes(buf, int(size)); err != nil {
			return newError(KindCorruptPacket, "inner message body", err)
		}

		if err := d.dispatchInnerMessage(int32(typ), buf); err != nil {
			// §7 policy: CorruptPacket within most sub-messages is logged
			// (a dbg trace line) and the sub-message is skipped. Packet-entities is the
			// exception: by the time it errors it has already mutated the
			// entity store mid-delta, so the store's invariants can no
			// longer be trusted and the error is always fatal.
			var be *Error
			fatal := int32(typ) == innerPacketEntities
			if !fatal && errors.As(err, &be) && be.Kind != KindCorruptPacket {
				fatal = true
			}
			if fatal {
				return err
			}
			dbg.Log("dispatch", "inner message %d skipped: %v", typ, err)
		}

		if int(typ) >= 0 && int(typ) < maxRequireID && d.requireSet[typ] {
			d.cfg.observer.OnPacket(typ, buf)
		}
	}
	return nil
}

func (d *Decoder) dispatchInnerMessage(typ int32, buf []byte) error {
	switch typ {
	case innerCreateStringTable:
		return d.handleCreateStringTable(buf)
	case innerUpdateStringTable:
		return d.handleUpdateStringTable(buf)
	case innerPacketEntities:
		return d.handlePacketEntities(buf)
	case innerGameEvent:
		d.cfg.observer.OnEvent(buf)
		return nil
	case innerGameEventList, innerServerInfo:
		return nil
	default:
		return nil
	}
}

func (d *Decoder) handleCreateStringTable(buf []byte) error {
	t, err := wire.DecodeCreateStringTable(buf)
	if err != nil {
		return newError(KindCorruptPacket, "create string table", err)
	}
	tbl := stringtable.New(t.Name, t.UserDataFixed, t.UserDataSizeBits, t.Flags, t.VarintBitcounts)
	data := t.Data
	if t.Flags&1 != 0 {
		out, err := d.r.Decompressor.Decompress(data)
		if err == nil {
			data = out
		}
	}
	br := bitread.New(data)
	if err := tbl.ApplyDelta(br, t.NumEntries); err != nil {
		return newError(KindCorruptPacket, "string table entries", err)
	}
	d.tables.Create(tbl)
	return nil
}

func (d *Decoder) handleUpdateStringTable(buf []byte) error {
	u, err := wire.DecodeUpdateStringTable(buf)
	if err != nil {
		return newError(KindCorruptPacket, "update string table", err)
	}
	tbl, ok := d.tables.ByID(u.TableID)
	if !ok {
		return newError(KindCorruptPacket, "update string table: unknown table id", nil)
	}
	br := bitread.New(u.Data)
	if err := tbl.ApplyDelta(br, u.NumChangedEntries); err != nil {
		return newError(KindCorruptPacket, "string table entries", err)
	}
	return nil
}

func (d *Decoder) handlePacketEntities(buf []byte) error {
	if d.entities == nil {
		return newError(KindStateViolation, "packet entities before schema ready", nil)
	}
	pe, err := wire.DecodePacketEntities(buf)
	if err != nil {
		return newError(KindCorruptPacket, "packet entities", err)
	}
	br := bitread.New(pe.Data)
	if err := d.entities.ApplyPacketEntities(br, pe.UpdatedEntries); err != nil {
		return newError(KindCorruptPacket, "entity delta", err)
	}
	d.stats.BaselineHits = d.entities.BaselineHits()
	return nil
}

func (d *Decoder) restoreStringTables(snaps []wire.StringTableSnapshot) {
	for _, snap := range snaps {
		tbl, ok := d.tables.ByName(snap.Name)
		if !ok {
			tbl = stringtable.New(snap.Name, false, 0, 0, false)
			d.tables.Create(tbl)
		}
		items := make([]stringtable.Item, len(snap.Items))
		for i, it := range snap.Items {
			items[i] = stringtable.Item{Name: it.Str, Value: it.Data}
		}
		tbl.Restore(items)
	}
}

func (d *Decoder) handleFullPacket(data []byte) error {
	fp, err := wire.DecodeFullPacket(data)
	if err != nil {
		return newError(KindCorruptPacket, "full packet", err)
	}
	snaps, err := wire.DecodeStringTables(fp.StringTableData)
	if err != nil {
		return newError(KindCorruptPacket, "full packet string tables", err)
	}
	d.restoreStringTables(snaps)

	inner, err := wire.DecodePacketWrapper(fp.PacketData)
	if err != nil {
		return newError(KindCorruptPacket, "full packet body", err)
	}
	return d.dispatchInner(inner)
}
