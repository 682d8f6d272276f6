package butterfly

import "github.com/ButterflyStats/butterfly/internal/entitystore"

// State is one value of the stream driver's state machine (§4.9).
type State int

const (
	StateBegin State = iota
	StateSendTablesPending
	StateSendTables
	StateRunning
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateBegin:
		return "BEGIN"
	case StateSendTablesPending:
		return "SENDTABLES_PENDING"
	case StateSendTables:
		return "SENDTABLES"
	case StateRunning:
		return "RUNNING"
	case StateEnd:
		return "END"
	default:
		return "UNKNOWN"
	}
}

// EntityOp names the operation on_entity reports, mirroring the
// create/update/leave/delete dispatch of C7.
type EntityOp int

const (
	EntityCreated EntityOp = iota
	EntityUpdated
	EntityLeft
	EntityDeleted
)

// Observer is the six-method collaborator contract §4.9/§6 describe. Every
// embedder of NoopObserver gets default no-op behavior for the methods it
// does not override.
type Observer interface {
	OnState(s State)
	OnTick(tick int32)
	OnPacket(id int32, data []byte)
	OnEntity(op EntityOp, e *entitystore.Entity)
	OnEvent(data []byte)
	OnProgress(fraction float64)
}

// NoopObserver implements Observer with every method a no-op; embed it to
// override only the callbacks a particular caller cares about.
type NoopObserver struct{}

func (NoopObserver) OnState(State)                        {}
func (NoopObserver) OnTick(int32)                          {}
func (NoopObserver) OnPacket(int32, []byte)                {}
func (NoopObserver) OnEntity(EntityOp, *entitystore.Entity) {}
func (NoopObserver) OnEvent([]byte)                         {}
func (NoopObserver) OnProgress(float64)                     {}
