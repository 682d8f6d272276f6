package butterfly

import (
	"errors"

	"github.com/ButterflyStats/butterfly/internal/entitystore"
	"github.com/ButterflyStats/butterfly/internal/frame"
)

// ErrSeekNoGamerules is returned by Seek if the stream runs out of
// FullPacket checkpoints without the CDOTAGamerulesProxy entity ever
// appearing.
var ErrSeekNoGamerules = errors.New("butterfly: gamerules entity never appeared")

// ErrSeekOverflow is returned by Seek if EOF is reached before the target
// game time.
var ErrSeekOverflow = errors.New("butterfly: end of stream before target game time")

const gamerulesClassName = "CDOTAGamerulesProxy"

var gameTimeFieldPath = []string{"m_pGameRules", "m_fGameTime"}

// Seek moves the decoder to the first primed state at or after game time
// target seconds, per §4.10. It is only legal once SENDTABLES has fired
// (Parse/ParseAll reach it once both SendTables and ClassInfo have been
// consumed; Open alone does not); calling Seek earlier returns a
// StateViolation error.
//
// Seeking clears every entity slot and string table, rewinds to the seek
// origin captured at SENDTABLES, and replays FullPacket checkpoints and
// the packets between them with the observer silenced, until the
// CDOTAGamerulesProxy singleton's m_pGameRules.m_fGameTime field reaches
// target. Normal observer dispatch resumes from that point.
func (d *Decoder) Seek(target float64, opts ...SeekOption) error {
	if d.graph == nil {
		return newError(KindStateViolation, "seek before schema ready", nil)
	}
	cfg := newSeekConfig(opts)

	d.Reset()
	d.r.SeekTo(d.seekOrigin)
	d.state = StateSendTables

	observer := d.cfg.observer
	d.cfg.observer = NoopObserver{}
	defer func() { d.cfg.observer = observer }()

	// Game time is checked only on every coarsePollStride-th packet while
	// still outside the fine-grained window, since FindByClassName is a
	// linear scan of the slot table; once within the window every packet
	// is checked, to avoid overshooting target (§4.10 step 5).
	const coarsePollStride = 8
	sinceCheck := coarsePollStride

	primed := false
	sawGamerules := false
	for {
		if d.r.AtEOF() {
			if !sawGamerules {
				return newError(KindSeekNoGamerules, "seek", ErrSeekNoGamerules)
			}
			return newError(KindSeekOverflow, "seek", ErrSeekOverflow)
		}
		pkt, err := d.r.Next()
		if err != nil {
			return newError(KindCorruptPacket, "outer packet", err)
		}
		if pkt.Tick != 0 {
			d.tick = pkt.Tick
		}

		if pkt.Type == frame.TypeFullPacket {
			if err := d.handleFullPacket(pkt.Data); err != nil {
				return err
			}
			primed = true
		} else if err := d.dispatchOuter(pkt); err != nil {
			return err
		}

		if !primed {
			continue
		}

		sinceCheck++
		if sinceCheck < coarsePollStride {
			continue
		}
		sinceCheck = 0

		gr := d.entities.FindByClassName(gamerulesClassName)
		if gr == nil {
			continue
		}
		sawGamerules = true
		v, ok := entitystore.Lookup(gr.Blob, gameTimeFieldPath...)
		if !ok {
			continue
		}
		gameTime := float64(v.F32[0])
		if gameTime >= target {
			break
		}
		if target-gameTime <= cfg.fineGrainedWindow {
			sinceCheck = coarsePollStride // fine-grained: check every packet from here on
		}
	}

	d.setState(StateRunning)
	return nil
}
